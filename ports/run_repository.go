package ports

import (
	"context"

	"conjoint/domain/core"
	"conjoint/domain/run"
)

// RunFilters for listing analysis runs
type RunFilters struct {
	Study  string
	Status run.Status
	Limit  int
	Offset int
}

// RunRepository persists analysis runs and their reports.
type RunRepository interface {
	Save(ctx context.Context, r *run.AnalysisRun) error
	Get(ctx context.Context, id core.RunID) (*run.AnalysisRun, error)
	List(ctx context.Context, filters RunFilters) ([]run.Summary, error)
	Delete(ctx context.Context, id core.RunID) error
}
