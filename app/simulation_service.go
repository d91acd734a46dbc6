package app

import (
	"context"
	"fmt"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/domain/run"
	"conjoint/internal"
	"conjoint/internal/errors"
	"conjoint/internal/metrics"
	"conjoint/internal/simulator"
	"conjoint/ports"
)

// SimulationService answers market simulator questions against the utilities
// of a completed analysis.
type SimulationService struct {
	runs    ports.RunRepository
	metrics *metrics.Metrics
	workers int
	log     *internal.Logger
}

// NewSimulationService creates a simulation service. runs may be nil when
// only in-memory reports are simulated.
func NewSimulationService(runs ports.RunRepository, m *metrics.Metrics, workers int) *SimulationService {
	return &SimulationService{
		runs:    runs,
		metrics: m,
		workers: workers,
		log:     internal.DefaultLogger.With("Simulation"),
	}
}

// ShareOptions selects the share rule of a request.
type ShareOptions struct {
	Method       string  `json:"method,omitempty"`
	Scale        float64 `json:"scale,omitempty"`
	TieTolerance float64 `json:"tie_tolerance,omitempty"`
	IncludeNone  bool    `json:"include_none,omitempty"`
}

// SharesRequest predicts shares for a product scenario.
type SharesRequest struct {
	ShareOptions
	Products     []conjoint.Product `json:"products"`
	Availability []float64          `json:"availability,omitempty"`
}

// SharesResult is a share prediction with informational notes about
// unknown attributes or levels.
type SharesResult struct {
	Shares []conjoint.ShareRow `json:"shares"`
	Notes  []conjoint.Finding  `json:"notes,omitempty"`
}

// SensitivityRequest sweeps one attribute, or two when SecondAttribute is set.
type SensitivityRequest struct {
	ShareOptions
	Focal           conjoint.Product   `json:"focal"`
	Competitors     []conjoint.Product `json:"competitors"`
	Attribute       string             `json:"attribute"`
	SecondAttribute string             `json:"second_attribute,omitempty"`
}

// SensitivityResult holds a one-way sweep or a two-way grid.
type SensitivityResult struct {
	OneWay []conjoint.SensitivityRow     `json:"one_way,omitempty"`
	TwoWay *conjoint.TwoWaySensitivity `json:"two_way,omitempty"`
}

// OptimizeRequest searches for the share-maximising product.
type OptimizeRequest struct {
	ShareOptions
	Initial       conjoint.Product   `json:"initial"`
	Competitors   []conjoint.Product `json:"competitors"`
	Vary          []string           `json:"vary,omitempty"`
	MaxIterations int                `json:"max_iterations,omitempty"`
}

// Report loads the report of a completed run.
func (s *SimulationService) Report(ctx context.Context, id core.RunID) (*conjoint.AnalysisReport, error) {
	if s.runs == nil {
		return nil, errors.ConfigInvalid("run storage is not configured")
	}
	ar, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ar.Status != run.StatusCompleted || ar.Report == nil {
		return nil, errors.Refuse(errors.CodeInvalidProduct, "Run has no utilities",
			fmt.Sprintf("run %s is %s", id, ar.Status),
			"the simulator needs the part-worths of a completed analysis",
			"Simulate against a completed run")
	}
	return ar.Report, nil
}

// Simulator builds a simulator over a report's utilities.
func (s *SimulationService) Simulator(report *conjoint.AnalysisReport, so ShareOptions) (*simulator.Simulator, error) {
	if report == nil || len(report.Utilities) == 0 {
		return nil, errors.Refuse(errors.CodeInvalidProduct, "No utilities",
			"the report carries no part-worth utilities",
			"shares are computed from part-worths",
			"Run the analysis first")
	}
	method, err := simulator.ParseShareMethod(so.Method)
	if err != nil {
		return nil, err
	}
	policy := report.Baseline
	if policy == "" {
		policy = conjoint.BaselineFirstLevel
	}
	reg, err := conjoint.NewRegistry(report.Attributes, policy)
	if err != nil {
		return nil, err
	}
	return simulator.New(reg, report.Utilities, report.NoneUtility, simulator.Options{
		Method:       method,
		Scale:        so.Scale,
		TieTolerance: so.TieTolerance,
		IncludeNone:  so.IncludeNone,
		Workers:      s.workers,
		Logger:       internal.DefaultLogger,
	}), nil
}

// Shares predicts shares against a report.
func (s *SimulationService) Shares(report *conjoint.AnalysisReport, req SharesRequest) (*SharesResult, error) {
	sim, err := s.Simulator(report, req.ShareOptions)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSimulation("shares")
	rows, notes, err := sim.Shares(req.Products, req.Availability)
	if err != nil {
		return nil, err
	}
	return &SharesResult{Shares: rows, Notes: notes}, nil
}

// Sensitivity runs a one-way or two-way sweep against a report.
func (s *SimulationService) Sensitivity(ctx context.Context, report *conjoint.AnalysisReport, req SensitivityRequest) (*SensitivityResult, error) {
	sim, err := s.Simulator(report, req.ShareOptions)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSimulation("sensitivity")
	if req.SecondAttribute != "" {
		grid, err := sim.TwoWay(ctx, req.Focal, req.Competitors, req.Attribute, req.SecondAttribute)
		if err != nil {
			return nil, err
		}
		return &SensitivityResult{TwoWay: grid}, nil
	}
	rows, err := sim.OneWay(ctx, req.Focal, req.Competitors, req.Attribute)
	if err != nil {
		return nil, err
	}
	return &SensitivityResult{OneWay: rows}, nil
}

// Optimize runs the greedy product search against a report.
func (s *SimulationService) Optimize(ctx context.Context, report *conjoint.AnalysisReport, req OptimizeRequest) (*conjoint.OptimizationResult, error) {
	sim, err := s.Simulator(report, req.ShareOptions)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSimulation("optimize")
	res, err := sim.Optimize(ctx, req.Initial, req.Competitors, simulator.OptimizeOptions{
		Vary:          req.Vary,
		MaxIterations: req.MaxIterations,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("optimized %s: %.3f -> %.3f in %d iteration(s)",
		req.Initial.Name, res.ShareBefore, res.ShareAfter, res.Iterations)
	return res, nil
}
