package estimation

import (
	"fmt"
	"math"
	"strings"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/internal/design"
	"conjoint/internal/errors"

	"gonum.org/v1/gonum/mat"
)

const (
	// separationBound flags coefficients that ran off towards infinity.
	separationBound = 12.0
	// separationSE flags standard errors of separated levels.
	separationSE = 1e3

	codeUnidentified = "UNIDENTIFIED_COEFFICIENT"
	codeNoSE         = "STANDARD_ERRORS_UNAVAILABLE"
	codeNotConverged = "NOT_CONVERGED"
	codeDegraded     = "DEGRADED_ESTIMATION"
)

// buildTerms decodes estimates back to attribute levels. Columns outside
// active get NA estimates and a warning.
func buildTerms(codec *design.Codec, active []int, beta []float64, cov *mat.SymDense) ([]conjoint.Term, []conjoint.Finding) {
	pos := make(map[int]int, len(active))
	for k, j := range active {
		pos[j] = k
	}
	var warnings []conjoint.Finding
	terms := make([]conjoint.Term, 0, codec.Len())
	for _, col := range codec.Columns() {
		t := conjoint.Term{
			Name:      col.Name,
			Attribute: col.Attribute,
			Level:     col.Level,
			Column:    col.Index,
			Constant:  col.Constant,
			Estimate:  conjoint.NA,
			StdError:  conjoint.NA,
		}
		if k, ok := pos[col.Index]; ok {
			t.Estimate = conjoint.Float(beta[k])
			if cov != nil {
				if v := cov.At(k, k); v > 0 {
					t.StdError = conjoint.Float(math.Sqrt(v))
				}
			}
		} else {
			warnings = append(warnings, conjoint.Warning(codeUnidentified,
				"coefficient %s is not identified by the data and is reported as missing", col.Name).
				With("attribute", col.Attribute).With("level", col.Level))
		}
		terms = append(terms, t)
	}
	return terms, warnings
}

// separatedTerms lists terms whose estimates diverged.
func separatedTerms(terms []conjoint.Term) []string {
	var out []string
	for _, t := range terms {
		if t.Estimate.IsNA() {
			continue
		}
		if math.Abs(t.Estimate.Value()) > separationBound || t.StdError.Or(0) > separationSE {
			out = append(out, t.Name)
		}
	}
	return out
}

func separationError(method conjoint.Method, names []string) error {
	return errors.Refuse(errors.CodePerfectSeparation, "Perfect separation",
		fmt.Sprintf("%s estimates diverged for %s", method, strings.Join(names, ", ")),
		"a level that is always or never chosen has no finite maximum-likelihood estimate",
		"Check the validation warnings for levels that are always or never chosen",
		"Merge sparse levels or collect more varied choice tasks").
		WithCause(core.ErrPerfectSeparation).
		WithDetail("terms", names)
}

func insufficientVariation(method conjoint.Method, problem string) error {
	return errors.Refuse(errors.CodeInsufficientVariation, "Insufficient variation",
		fmt.Sprintf("%s: %s", method, problem),
		"coefficients cannot be estimated when levels do not vary within choice sets",
		"Check that every level is shown against other levels",
		"Collect more choice tasks").
		WithCause(core.ErrInsufficientData)
}

func estimationFailed(method conjoint.Method, problem string, cause error) error {
	return errors.Refuse(errors.CodeEstimationFailed, "Estimation failed",
		fmt.Sprintf("%s: %s", method, problem),
		"no usable coefficients were produced",
		"Try estimation_method auto", "Inspect the validation warnings for sparse levels").
		WithCause(cause)
}

func convergenceWarning(method conjoint.Method, c conjoint.Convergence) conjoint.Finding {
	return conjoint.Warning(codeNotConverged,
		"%s did not converge after %d iterations (%s); coefficients may still be usable",
		method, c.Iterations, c.Message)
}
