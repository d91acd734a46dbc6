package estimation

import (
	"context"
	"fmt"
	"sync"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/internal"
	"conjoint/internal/design"
	"conjoint/internal/errors"
)

// Estimator fits a model to a design matrix.
type Estimator interface {
	Method() conjoint.Method
	Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error)
}

// Options are solver settings shared by all estimators.
type Options struct {
	MaxIterations int
	Tolerance     float64
	Logger        *internal.Logger
}

// OptionsFrom copies solver settings from analysis settings.
func OptionsFrom(s conjoint.Settings, logger *internal.Logger) Options {
	return Options{MaxIterations: s.MaxIterations, Tolerance: s.Tolerance, Logger: logger}
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 100
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-8
	}
	if o.Logger == nil {
		o.Logger = internal.DefaultLogger
	}
	return o
}

// Capabilities lists which estimators the numerical backend can run.
type Capabilities struct {
	ConditionalLogit  bool `json:"conditional_logit"`
	StratifiedLogit   bool `json:"stratified_logit"`
	OLS               bool `json:"ols"`
	HierarchicalBayes bool `json:"hierarchical_bayes"`
}

// Supports reports whether the method can run on this backend.
func (c Capabilities) Supports(m conjoint.Method) bool {
	switch m {
	case conjoint.MethodConditionalLogit:
		return c.ConditionalLogit
	case conjoint.MethodStratifiedLogit:
		return c.StratifiedLogit
	case conjoint.MethodRatingOLS:
		return c.OLS
	case conjoint.MethodHierarchicalBayes:
		return c.HierarchicalBayes
	case conjoint.MethodAuto:
		return c.ConditionalLogit || c.StratifiedLogit
	case conjoint.MethodBestWorstSequential, conjoint.MethodBestWorstSimultaneous:
		return c.ConditionalLogit || c.StratifiedLogit
	default:
		return false
	}
}

var (
	capsOnce sync.Once
	caps     Capabilities
)

// Backend returns the capabilities of the gonum backend, resolved once.
func Backend() Capabilities {
	capsOnce.Do(func() {
		caps = Capabilities{
			ConditionalLogit:  true,
			StratifiedLogit:   true,
			OLS:               true,
			HierarchicalBayes: false,
		}
	})
	return caps
}

// New builds the estimator for the configured method. For best-worst choice
// types the best-worst method wraps a choice estimator built from method.
func New(s conjoint.Settings, opts Options) (Estimator, error) {
	return NewWithCapabilities(s, opts, Backend())
}

// NewWithCapabilities is New against an explicit capability set.
func NewWithCapabilities(s conjoint.Settings, opts Options, c Capabilities) (Estimator, error) {
	opts = opts.withDefaults()
	if s.AnalysisType == conjoint.AnalysisRating {
		if !c.OLS {
			return nil, unavailable(conjoint.MethodRatingOLS)
		}
		return NewOLS(opts), nil
	}

	inner, err := choiceEstimator(s.Method, opts, c)
	if err != nil {
		return nil, err
	}
	if s.ChoiceType != conjoint.ChoiceBestWorst {
		return inner, nil
	}
	switch s.BestWorstMethod {
	case conjoint.MethodBestWorstSimultaneous:
		return NewBestWorstSimultaneous(inner, opts), nil
	default:
		return NewBestWorstSequential(inner, opts), nil
	}
}

func choiceEstimator(method conjoint.Method, opts Options, c Capabilities) (Estimator, error) {
	switch method {
	case conjoint.MethodAuto, "":
		var primary, fallback Estimator
		if c.ConditionalLogit {
			primary = NewConditionalLogit(opts)
		}
		if c.StratifiedLogit {
			fallback = NewStratifiedLogit(opts)
		}
		if primary == nil && fallback == nil {
			return nil, unavailable(conjoint.MethodAuto)
		}
		return NewAuto(primary, fallback, opts), nil
	case conjoint.MethodConditionalLogit:
		if !c.ConditionalLogit {
			return nil, unavailable(method)
		}
		return NewConditionalLogit(opts), nil
	case conjoint.MethodStratifiedLogit:
		if !c.StratifiedLogit {
			return nil, unavailable(method)
		}
		return NewStratifiedLogit(opts), nil
	case conjoint.MethodHierarchicalBayes:
		return NewHierarchicalBayes(), nil
	default:
		return nil, errors.Refuse(errors.CodeInvalidMethod, "Method does not fit choice data",
			fmt.Sprintf("estimation method %s cannot fit a choice study", method),
			"choice data needs a discrete-choice likelihood",
			"Set estimation_method to auto, mlogit or clogit")
	}
}

func unavailable(method conjoint.Method) error {
	return errors.Refuse(errors.CodeMethodUnavailable, "Estimation method unavailable",
		fmt.Sprintf("the numerical backend cannot run %s", method),
		"the requested solver is not part of this build",
		"Use estimation_method auto", "Check the capabilities reported by the service").
		WithCause(fmt.Errorf("%w: %s", core.ErrMethodUnavailable, method))
}
