package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/domain/run"
	"conjoint/internal"
	"conjoint/internal/config"
	"conjoint/internal/design"
	"conjoint/internal/diagnostics"
	"conjoint/internal/errors"
	"conjoint/internal/estimation"
	"conjoint/internal/importance"
	"conjoint/internal/metrics"
	"conjoint/internal/simulator"
	"conjoint/internal/utilities"
	"conjoint/internal/validation"
	"conjoint/ports"
)

// CodeVersion is recorded in every run fingerprint.
const CodeVersion = "v0.1.0"

// AnalysisService runs the conjoint pipeline: validate, build the design,
// estimate, extract utilities, compute importance and diagnostics, persist.
type AnalysisService struct {
	runs     ports.RunRepository
	writer   ports.ResultsWriter
	events   ports.RunEventPublisher
	metrics  *metrics.Metrics
	caps     estimation.Capabilities
	workers  int
	defaults config.EstimationConfig
	log      *internal.Logger
}

// AnalysisServiceOption customises an AnalysisService.
type AnalysisServiceOption func(*AnalysisService)

// WithRunRepository persists every run, refused or completed.
func WithRunRepository(r ports.RunRepository) AnalysisServiceOption {
	return func(s *AnalysisService) { s.runs = r }
}

// WithResultsWriter writes the result workbook when a study names an output file.
func WithResultsWriter(w ports.ResultsWriter) AnalysisServiceOption {
	return func(s *AnalysisService) { s.writer = w }
}

// WithEventPublisher streams run lifecycle events.
func WithEventPublisher(p ports.RunEventPublisher) AnalysisServiceOption {
	return func(s *AnalysisService) { s.events = p }
}

// WithMetrics records run outcomes and estimator timings.
func WithMetrics(m *metrics.Metrics) AnalysisServiceOption {
	return func(s *AnalysisService) { s.metrics = m }
}

// WithCapabilities overrides the estimator backend capabilities.
func WithCapabilities(c estimation.Capabilities) AnalysisServiceOption {
	return func(s *AnalysisService) { s.caps = c }
}

// WithEstimationDefaults fills solver settings a study leaves unset.
func WithEstimationDefaults(d config.EstimationConfig) AnalysisServiceOption {
	return func(s *AnalysisService) { s.defaults = d }
}

// WithSimulatorWorkers bounds the simulator used for the starter scenario.
func WithSimulatorWorkers(n int) AnalysisServiceOption {
	return func(s *AnalysisService) { s.workers = n }
}

// WithLogger replaces the default logger.
func WithLogger(l *internal.Logger) AnalysisServiceOption {
	return func(s *AnalysisService) { s.log = l }
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(opts ...AnalysisServiceOption) *AnalysisService {
	s := &AnalysisService{
		caps: estimation.Backend(),
		log:  internal.DefaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("Analysis")
	return s
}

// AnalysisRequest is one analysis of a study. Table takes precedence over
// Source; when both are nil the study's data file is read.
type AnalysisRequest struct {
	Study  *config.Study
	Table  *conjoint.Table
	Source ports.DataSource
}

// Run executes the pipeline and returns the run record. Refusals and failures
// return an error; the run is still persisted with its error code when a
// repository is configured.
func (s *AnalysisService) Run(ctx context.Context, req AnalysisRequest) (*run.AnalysisRun, error) {
	start := time.Now()
	if req.Study == nil {
		return nil, errors.InvalidInput("analysis request has no study")
	}
	ar := &run.AnalysisRun{
		ID:        core.NewRunID(),
		Study:     req.Study.Name,
		CreatedAt: start.UTC(),
	}
	s.publish(run.Event{RunID: ar.ID, Study: ar.Study, Type: run.EventStarted})

	report, fp, err := s.analyze(ctx, ar.ID, req)
	ar.Fingerprint = fp
	ar.Duration = time.Since(start)
	if err != nil {
		ar.Status = statusOf(err)
		ar.ErrorCode = errors.GetCode(err)
		ar.Error = err.Error()
		s.log.Warn("run %s %s: %s", ar.ID, ar.Status, ar.Error)
		s.metrics.RecordAnalysis("", string(ar.Status), false)
		s.persist(ctx, ar)
		s.publish(run.Event{RunID: ar.ID, Study: ar.Study, Type: run.EventFinished, Status: ar.Status, Message: ar.ErrorCode})
		return ar, err
	}

	ar.Status = run.StatusCompleted
	ar.Report = report
	if report.Model != nil {
		ar.Method = report.Model.Method
		ar.Degraded = report.Model.Degraded
	}
	s.metrics.RecordAnalysis(string(ar.Method), metrics.OutcomeCompleted, ar.Degraded)
	s.persist(ctx, ar)

	if req.Study.OutputFile != "" && s.writer != nil {
		if err := s.writer.WriteResults(req.Study.OutputFile, report); err != nil {
			s.log.Error("failed to write results for run %s: %v", ar.ID, err)
		}
	}
	s.publish(run.Event{RunID: ar.ID, Study: ar.Study, Type: run.EventFinished, Status: ar.Status, Method: ar.Method})
	s.log.Info("run %s completed with %s in %s", ar.ID, ar.Method, ar.Duration.Round(time.Millisecond))
	return ar, nil
}

func (s *AnalysisService) publish(e run.Event) {
	if s.events == nil {
		return
	}
	e.Timestamp = time.Now().UTC()
	s.events.Publish(e)
}

func statusOf(err error) run.Status {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return run.StatusFailed
	}
	if appErr, ok := errors.As(err); ok && appErr.IsRefusal() {
		return run.StatusRefused
	}
	return run.StatusFailed
}

func (s *AnalysisService) persist(ctx context.Context, ar *run.AnalysisRun) {
	if s.runs == nil {
		return
	}
	// a cancelled request still records its outcome
	if err := s.runs.Save(context.WithoutCancel(ctx), ar); err != nil {
		s.log.Error("failed to persist run %s: %v", ar.ID, err)
	}
}

func (s *AnalysisService) analyze(ctx context.Context, id core.RunID, req AnalysisRequest) (*conjoint.AnalysisReport, run.RunFingerprint, error) {
	study := req.Study
	settings := s.withDefaults(study.Settings)
	var fp run.RunFingerprint

	if err := settings.Validate(); err != nil {
		return nil, fp, err
	}
	reg, err := study.Registry()
	if err != nil {
		return nil, fp, err
	}

	table, err := s.loadTable(ctx, req)
	if err != nil {
		return nil, fp, err
	}
	fp = run.NewRunFingerprint(datasetHash(table), run.SettingsHash(settings, study.Attributes), CodeVersion)

	vres := validation.Validate(table, reg, study.Bindings, settings)
	if err := validation.Refusal(vres, ""); err != nil {
		return nil, fp, err
	}
	s.log.Debug("validation passed %d rows with %d warning(s)", len(table.Rows), len(vres.Warnings))

	obs, err := design.Parse(table, reg, study.Bindings, settings)
	if err != nil {
		return nil, fp, err
	}
	m, err := buildMatrix(obs, reg, settings)
	if err != nil {
		return nil, fp, err
	}

	est, err := estimation.NewWithCapabilities(settings, estimation.OptionsFrom(settings, s.log), s.caps)
	if err != nil {
		return nil, fp, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fp, err
	}
	estStart := time.Now()
	model, err := est.Estimate(ctx, m)
	if err != nil {
		return nil, fp, err
	}
	s.metrics.ObserveEstimation(string(model.Method), time.Since(estStart))
	s.publish(run.Event{RunID: id, Study: study.Name, Type: run.EventEstimated, Method: model.Method})
	s.log.Debug("estimation with %s fitted %d parameters on %d rows", model.Method, model.NParameters, model.NRows)

	extracted, err := utilities.Extract(model, reg, utilities.Options{
		ConfidenceLevel: settings.ConfidenceLevel,
		NoneLabel:       settings.NoneLabel,
	})
	if err != nil {
		return nil, fp, err
	}
	imp, impWarnings := importance.Calculate(extracted.Rows, reg)

	report := &conjoint.AnalysisReport{
		RunID:        id,
		Study:        study.Name,
		CreatedAt:    time.Now().UTC(),
		AnalysisType: settings.AnalysisType,
		Baseline:     settings.Baseline,
		DatasetHash:  fp.DatasetHash,
		Attributes:   reg.Attributes(),
		Model:        model,
		Utilities:    extracted.Rows,
		NoneUtility:  extracted.None,
		Importance:   imp,
		Validation:   vres,
	}
	if settings.AnalysisType == conjoint.AnalysisChoice {
		report.ChoiceType = settings.ChoiceType
	}

	if err := s.diagnose(report, model, m, obs, reg, settings); err != nil {
		return nil, fp, err
	}

	if settings.GenerateSimulator {
		sim := simulator.New(reg, extracted.Rows, extracted.None, simulator.Options{Workers: s.workers, Logger: s.log})
		seed, err := sim.Seed()
		if err != nil {
			return nil, fp, err
		}
		report.Simulator = seed
	}

	report.Warnings = collectWarnings(vres.Warnings, model.Warnings, extracted.Warnings, impWarnings)
	s.logWarnings(id, report.Warnings)
	return report, fp, nil
}

// withDefaults applies process-level solver defaults the study left unset.
func (s *AnalysisService) withDefaults(st conjoint.Settings) conjoint.Settings {
	if st.MaxIterations <= 0 && s.defaults.MaxIterations > 0 {
		st.MaxIterations = s.defaults.MaxIterations
	}
	if st.Tolerance <= 0 && s.defaults.Tolerance > 0 {
		st.Tolerance = s.defaults.Tolerance
	}
	return st
}

func (s *AnalysisService) loadTable(ctx context.Context, req AnalysisRequest) (*conjoint.Table, error) {
	if req.Table != nil {
		return req.Table, nil
	}
	src := req.Source
	if src == nil {
		if req.Study.DataFile == "" {
			return nil, errors.Refuse(errors.CodeConfigInvalid, "No data file",
				"the study does not name a data file",
				"responses are read from the data_file setting",
				"Set data_file in the Settings sheet or YAML settings")
		}
		return nil, errors.Refuse(errors.CodeConfigInvalid, "No data source",
			fmt.Sprintf("no reader was supplied for %s", req.Study.DataFile),
			"the service does not open files on its own",
			"Pass a data source for the study's data file")
	}
	return src.ReadTable(ctx)
}

func buildMatrix(obs []conjoint.Observation, reg *conjoint.Registry, settings conjoint.Settings) (*design.Matrix, error) {
	if settings.AnalysisType == conjoint.AnalysisRating {
		return design.BuildRating(obs, reg)
	}
	synth := false
	if settings.ChoiceType == conjoint.ChoiceSingleWithNone {
		synth = true
		for _, o := range obs {
			if o.IsNone {
				synth = false
				break
			}
		}
	}
	return design.Build(obs, reg, design.Options{SynthesizeNone: synth})
}

func (s *AnalysisService) diagnose(report *conjoint.AnalysisReport, model *conjoint.ModelResult, m *design.Matrix,
	obs []conjoint.Observation, reg *conjoint.Registry, settings conjoint.Settings) error {
	if settings.AnalysisType == conjoint.AnalysisRating {
		report.Fit = diagnostics.RatingFit(model, m)
	} else {
		report.Fit = diagnostics.Fit(model, m)
		scoring, err := diagnostics.ScoringMatrix(m, settings.ChoiceType)
		if err != nil {
			return err
		}
		report.HitRate = diagnostics.HitRate(model, scoring)
	}
	if settings.IncludeDiagnostics {
		report.Significance = diagnostics.Significance(report.Utilities, reg)
		report.Frequencies = validation.LevelFrequencies(obs, reg)
	}
	return nil
}

func collectWarnings(groups ...[]conjoint.Finding) []conjoint.Finding {
	var out []conjoint.Finding
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// logWarnings emits every warning of a run in one batch.
func (s *AnalysisService) logWarnings(id core.RunID, findings []conjoint.Finding) {
	if len(findings) == 0 {
		return
	}
	s.log.Warn("run %s finished with %d warning(s)", id, len(findings))
	for _, f := range findings {
		s.log.Warn("  %s", f)
	}
}

func datasetHash(table *conjoint.Table) core.Hash {
	rows := make([]map[string]string, len(table.Rows))
	for i, r := range table.Rows {
		rows[i] = r
	}
	return core.ComputeDatasetHash(table.Headers, rows)
}
