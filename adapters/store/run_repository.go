package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/domain/run"
	"conjoint/internal/errors"
	"conjoint/ports"

	"github.com/jmoiron/sqlx"
)

const defaultListLimit = 50

// RunRepositoryImpl implements RunRepository on postgres or sqlite through sqlx
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository over an open connection
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// runRow is the flat table layout of analysis_runs.
type runRow struct {
	ID           string          `db:"id"`
	Study        string          `db:"study"`
	Status       string          `db:"status"`
	Method       string          `db:"method"`
	Degraded     bool            `db:"degraded"`
	Fingerprint  string          `db:"fingerprint"`
	DatasetHash  string          `db:"dataset_hash"`
	ConfigHash   string          `db:"config_hash"`
	CodeVersion  string          `db:"code_version"`
	ErrorCode    string          `db:"error_code"`
	ErrorMessage string          `db:"error_message"`
	McFaddenR2   sql.NullFloat64 `db:"mcfadden_r2"`
	HitRate      sql.NullFloat64 `db:"hit_rate"`
	Report       sql.NullString  `db:"report"`
	CreatedAt    time.Time       `db:"created_at"`
	DurationNS   int64           `db:"duration_ns"`
}

func toRow(r *run.AnalysisRun) (*runRow, error) {
	row := &runRow{
		ID:           r.ID.String(),
		Study:        r.Study,
		Status:       string(r.Status),
		Method:       string(r.Method),
		Degraded:     r.Degraded,
		Fingerprint:  r.Fingerprint.Fingerprint.String(),
		DatasetHash:  r.Fingerprint.DatasetHash.String(),
		ConfigHash:   r.Fingerprint.ConfigHash.String(),
		CodeVersion:  r.Fingerprint.CodeVersion,
		ErrorCode:    r.ErrorCode,
		ErrorMessage: r.Error,
		CreatedAt:    r.CreatedAt.UTC(),
		DurationNS:   int64(r.Duration),
	}
	if r.Report != nil {
		data, err := json.Marshal(r.Report)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode analysis report")
		}
		row.Report = sql.NullString{String: string(data), Valid: true}
		row.McFaddenR2 = nullFloat(r.Report.Fit.McFaddenR2)
		if r.Report.HitRate != nil {
			row.HitRate = sql.NullFloat64{Float64: r.Report.HitRate.Rate, Valid: true}
		}
	}
	return row, nil
}

func nullFloat(f conjoint.Float) sql.NullFloat64 {
	if f.IsNA() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f.Value(), Valid: true}
}

func (row *runRow) toRun() (*run.AnalysisRun, error) {
	r := &run.AnalysisRun{
		ID:       core.RunID(row.ID),
		Study:    row.Study,
		Status:   run.Status(row.Status),
		Method:   conjoint.Method(row.Method),
		Degraded: row.Degraded,
		Fingerprint: run.RunFingerprint{
			DatasetHash: core.Hash(row.DatasetHash),
			ConfigHash:  core.Hash(row.ConfigHash),
			CodeVersion: row.CodeVersion,
			Fingerprint: core.Hash(row.Fingerprint),
		},
		ErrorCode: row.ErrorCode,
		Error:     row.ErrorMessage,
		CreatedAt: row.CreatedAt.UTC(),
		Duration:  time.Duration(row.DurationNS),
	}
	if row.Report.Valid && row.Report.String != "" {
		var report conjoint.AnalysisReport
		if err := json.Unmarshal([]byte(row.Report.String), &report); err != nil {
			return nil, errors.Wrapf(err, "failed to decode report of run %s", row.ID)
		}
		r.Report = &report
	}
	return r, nil
}

// Save inserts a run or replaces the stored copy with the same ID
func (r *RunRepositoryImpl) Save(ctx context.Context, ar *run.AnalysisRun) error {
	if ar == nil || ar.ID.IsEmpty() {
		return errors.InvalidInput("run must have an ID")
	}
	row, err := toRow(ar)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO analysis_runs (id, study, status, method, degraded, fingerprint, dataset_hash, config_hash,
			code_version, error_code, error_message, mcfadden_r2, hit_rate, report, created_at, duration_ns)
		VALUES (:id, :study, :status, :method, :degraded, :fingerprint, :dataset_hash, :config_hash,
			:code_version, :error_code, :error_message, :mcfadden_r2, :hit_rate, :report, :created_at, :duration_ns)
		ON CONFLICT (id) DO UPDATE SET
			study = excluded.study,
			status = excluded.status,
			method = excluded.method,
			degraded = excluded.degraded,
			fingerprint = excluded.fingerprint,
			dataset_hash = excluded.dataset_hash,
			config_hash = excluded.config_hash,
			code_version = excluded.code_version,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			mcfadden_r2 = excluded.mcfadden_r2,
			hit_rate = excluded.hit_rate,
			report = excluded.report,
			duration_ns = excluded.duration_ns
	`, row)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to save run %s", ar.ID))
	}
	return nil
}

// Get loads a run with its report
func (r *RunRepositoryImpl) Get(ctx context.Context, id core.RunID) (*run.AnalysisRun, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, study, status, method, degraded, fingerprint, dataset_hash, config_hash,
			code_version, error_code, error_message, mcfadden_r2, hit_rate, report, created_at, duration_ns
		FROM analysis_runs
		WHERE id = ?
	`), id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithCode(errors.CodeNotFound, core.NewNotFoundError("run", id.String()))
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to load run %s", id))
	}
	return row.toRun()
}

// List returns run summaries, newest first
func (r *RunRepositoryImpl) List(ctx context.Context, filters ports.RunFilters) ([]run.Summary, error) {
	var where []string
	var args []interface{}
	if filters.Study != "" {
		where = append(where, "study = ?")
		args = append(args, filters.Study)
	}
	if filters.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filters.Status))
	}

	query := `
		SELECT id, study, status, method, degraded, mcfadden_r2, hit_rate, created_at, fingerprint
		FROM analysis_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	var summaries []run.Summary
	if err := r.db.SelectContext(ctx, &summaries, r.db.Rebind(query), args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to list runs"))
	}
	for i := range summaries {
		summaries[i].CreatedAt = summaries[i].CreatedAt.UTC()
	}
	return summaries, nil
}

// Delete removes a run
func (r *RunRepositoryImpl) Delete(ctx context.Context, id core.RunID) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM analysis_runs WHERE id = ?`), id.String())
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to delete run %s", id))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.WithCode(errors.CodeNotFound, core.NewNotFoundError("run", id.String()))
	}
	return nil
}
