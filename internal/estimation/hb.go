package estimation

import (
	"context"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/internal/design"
	"conjoint/internal/errors"
)

// HierarchicalBayes is a placeholder; the MCMC sampler does not exist yet.
// Its draws would feed diagnostics.ConvergenceDiagnoser.
type HierarchicalBayes struct{}

// NewHierarchicalBayes returns the placeholder estimator.
func NewHierarchicalBayes() *HierarchicalBayes { return &HierarchicalBayes{} }

func (e *HierarchicalBayes) Method() conjoint.Method { return conjoint.MethodHierarchicalBayes }

func (e *HierarchicalBayes) Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error) {
	return nil, errors.Refuse(errors.CodeNotImplemented, "Hierarchical Bayes not available",
		"hierarchical Bayes estimation is not implemented",
		"individual-level utilities need an MCMC sampler that this build does not include",
		"Use estimation_method auto for aggregate utilities").
		WithCause(core.ErrNotImplemented)
}

var _ Estimator = (*HierarchicalBayes)(nil)
