package estimation

import (
	"context"
	"fmt"
	"strings"

	"conjoint/domain/conjoint"
	"conjoint/internal/design"
	"conjoint/internal/errors"
)

// Auto tries the primary estimator and falls back to the secondary one,
// marking the result as degraded when the fallback produced it.
type Auto struct {
	primary  Estimator
	fallback Estimator
	opts     Options
}

// NewAuto composes two estimators. Either may be nil.
func NewAuto(primary, fallback Estimator, opts Options) *Auto {
	return &Auto{primary: primary, fallback: fallback, opts: opts.withDefaults()}
}

func (a *Auto) Method() conjoint.Method { return conjoint.MethodAuto }

func (a *Auto) Estimate(ctx context.Context, m *design.Matrix) (*conjoint.ModelResult, error) {
	var failures []string
	var causes []error
	var unconverged *conjoint.ModelResult

	if a.primary != nil {
		res, err := a.primary.Estimate(ctx, m)
		switch {
		case err == nil && res.Convergence.Converged:
			return res, nil
		case err == nil:
			unconverged = res
			failures = append(failures, fmt.Sprintf("%s: %s", a.primary.Method(), res.Convergence.Message))
			causes = append(causes, fmt.Errorf("%s did not converge", a.primary.Method()))
		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, fmt.Sprintf("%s: %v", a.primary.Method(), err))
			causes = append(causes, err)
		}
		a.opts.Logger.Warn("primary estimator failed, trying fallback: %s", failures[len(failures)-1])
	}

	if a.fallback != nil {
		res, err := a.fallback.Estimate(ctx, m)
		if err == nil {
			if len(failures) > 0 {
				res.Degraded = true
				res.DegradedReason = strings.Join(failures, "; ")
				res.Warnings = append(res.Warnings, conjoint.Warning(codeDegraded,
					"results come from %s because %s", res.Method, res.DegradedReason))
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		failures = append(failures, fmt.Sprintf("%s: %v", a.fallback.Method(), err))
		causes = append(causes, err)
	}

	if unconverged != nil {
		// non-convergence is not fatal when nothing better exists
		return unconverged, nil
	}

	err := errors.Refuse(errors.CodeAllMethodsFailed, "All estimation methods failed",
		strings.Join(failures, "; "),
		"no method produced coefficients, so utilities cannot be computed",
		"Review the per-method errors listed", "Check validation warnings for perfect separation or sparse levels",
		"Simplify the design or collect more data").
		WithDetail("failures", failures)
	if len(causes) > 0 {
		err = err.WithCause(causes[0])
	}
	return nil, err
}

var _ Estimator = (*Auto)(nil)
