package run

import (
	"crypto/sha256"
	"fmt"
	"time"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
)

// Status is the lifecycle state of an analysis run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefused   Status = "refused"
	StatusFailed    Status = "failed"
)

// AnalysisRun is one persisted execution of the analysis pipeline.
type AnalysisRun struct {
	ID          core.RunID               `json:"id" db:"id"`
	Study       string                   `json:"study" db:"study"`
	Status      Status                   `json:"status" db:"status"`
	Method      conjoint.Method          `json:"method,omitempty" db:"method"`
	Degraded    bool                     `json:"degraded" db:"degraded"`
	Fingerprint RunFingerprint           `json:"fingerprint"`
	ErrorCode   string                   `json:"error_code,omitempty" db:"error_code"`
	Error       string                   `json:"error,omitempty" db:"error_message"`
	Report      *conjoint.AnalysisReport `json:"report,omitempty"`
	CreatedAt   time.Time                `json:"created_at" db:"created_at"`
	Duration    time.Duration            `json:"duration_ns" db:"duration_ns"`
}

// Summary is the list view of a run.
type Summary struct {
	ID          core.RunID      `json:"id" db:"id"`
	Study       string          `json:"study" db:"study"`
	Status      Status          `json:"status" db:"status"`
	Method      conjoint.Method `json:"method,omitempty" db:"method"`
	Degraded    bool            `json:"degraded" db:"degraded"`
	McFaddenR2  *float64        `json:"mcfadden_r2,omitempty" db:"mcfadden_r2"`
	HitRate     *float64        `json:"hit_rate,omitempty" db:"hit_rate"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	Fingerprint core.Hash       `json:"fingerprint" db:"fingerprint"`
}

// RunFingerprint ties a run to its exact inputs so identical analyses can be recognised.
type RunFingerprint struct {
	DatasetHash core.Hash `json:"dataset_hash"`
	ConfigHash  core.Hash `json:"config_hash"`
	CodeVersion string    `json:"code_version"`
	Fingerprint core.Hash `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from the dataset and configuration hashes.
func NewRunFingerprint(datasetHash, configHash core.Hash, codeVersion string) RunFingerprint {
	data := fmt.Sprintf("dataset:%s|config:%s|code:%s", datasetHash, configHash, codeVersion)
	hash := sha256.Sum256([]byte(data))
	return RunFingerprint{
		DatasetHash: datasetHash,
		ConfigHash:  configHash,
		CodeVersion: codeVersion,
		Fingerprint: core.Hash(fmt.Sprintf("%x", hash)),
	}
}

// SettingsHash fingerprints analysis settings together with the attribute list.
func SettingsHash(s conjoint.Settings, attrs []conjoint.AttributeDefinition) core.Hash {
	flat := map[string]interface{}{
		"analysis_type":     s.AnalysisType,
		"estimation_method": s.Method,
		"baseline_handling": s.Baseline,
		"choice_type":       s.ChoiceType,
		"bw_method":         s.BestWorstMethod,
		"none_label":        s.NoneLabel,
		"confidence_level":  s.ConfidenceLevel,
		"max_iterations":    s.MaxIterations,
		"tolerance":         s.Tolerance,
	}
	for _, a := range attrs {
		flat["attr:"+a.Name] = a.Levels
	}
	return core.ComputeConfigHash(flat)
}

// EventType names a step in a run's lifecycle.
type EventType string

const (
	EventStarted   EventType = "started"
	EventEstimated EventType = "estimated"
	EventFinished  EventType = "finished"
)

// Event is a run lifecycle notification streamed to listeners of a study.
type Event struct {
	RunID     core.RunID      `json:"run_id"`
	Study     string          `json:"study"`
	Type      EventType       `json:"event_type"`
	Status    Status          `json:"status,omitempty"`
	Method    conjoint.Method `json:"method,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
