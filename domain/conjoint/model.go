package conjoint

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"conjoint/internal/errors"
)

// Float is a float64 that serialises NaN and ±Inf as JSON null.
type Float float64

// NA is the missing value.
var NA = Float(math.NaN())

// IsNA reports whether the value is missing or non-finite.
func (f Float) IsNA() bool {
	v := float64(f)
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Value returns the raw float64.
func (f Float) Value() float64 { return float64(f) }

// Or returns fallback when the value is missing.
func (f Float) Or(fallback float64) float64 {
	if f.IsNA() {
		return fallback
	}
	return float64(f)
}

func (f Float) MarshalJSON() ([]byte, error) {
	if f.IsNA() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = NA
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Method tags the estimator that produced a ModelResult.
type Method string

const (
	MethodAuto                  Method = "auto"
	MethodConditionalLogit      Method = "primary-conditional-logit"
	MethodStratifiedLogit       Method = "fallback-stratified-logit"
	MethodRatingOLS             Method = "ols-rating"
	MethodBestWorstSequential   Method = "best-worst-sequential"
	MethodBestWorstSimultaneous Method = "best-worst-simultaneous"
	MethodHierarchicalBayes     Method = "hierarchical-bayes"
)

// ParseMethod accepts both the tag names and the short configuration names.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MethodAuto, nil
	case "mlogit", "primary", string(MethodConditionalLogit):
		return MethodConditionalLogit, nil
	case "clogit", "fallback", string(MethodStratifiedLogit):
		return MethodStratifiedLogit, nil
	case "ols", "rating", string(MethodRatingOLS):
		return MethodRatingOLS, nil
	case "hb", string(MethodHierarchicalBayes):
		return MethodHierarchicalBayes, nil
	case "sequential", string(MethodBestWorstSequential):
		return MethodBestWorstSequential, nil
	case "simultaneous", string(MethodBestWorstSimultaneous):
		return MethodBestWorstSimultaneous, nil
	default:
		return "", errors.Refuse(errors.CodeInvalidMethod, "Unknown estimation method",
			fmt.Sprintf("estimation_method %q is not recognised", s),
			"the method decides which estimator fits the model",
			"Use auto, mlogit, clogit, hb or ols")
	}
}

// Term is one fitted coefficient, already decoded to its attribute and level.
type Term struct {
	Name      string `json:"name"`
	Attribute string `json:"attribute,omitempty"`
	Level     string `json:"level,omitempty"`
	Column    int    `json:"column"`
	Estimate  Float  `json:"estimate"`
	StdError  Float  `json:"std_error"`
	// Constant marks alternative-specific constants such as the none option.
	Constant bool `json:"constant,omitempty"`
}

// LogLikelihood holds null and fitted log-likelihoods; Available is false for OLS.
type LogLikelihood struct {
	Null      float64 `json:"null"`
	Fitted    float64 `json:"fitted"`
	Available bool    `json:"available"`
}

// Convergence codes.
const (
	ConvergenceOK            = 0
	ConvergenceMaxIterations = 1
	ConvergenceStepFailed    = 2
	ConvergenceDiverged      = 3
)

// Convergence reports solver status.
type Convergence struct {
	Converged  bool   `json:"converged"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Iterations int    `json:"iterations"`
}

// ModelResult is produced once per estimation call and never mutated afterwards;
// downstream wrappers work on Clone().
type ModelResult struct {
	Method        Method        `json:"method"`
	Terms         []Term        `json:"terms"`
	LogLikelihood LogLikelihood `json:"log_likelihood"`
	NObs          int           `json:"n_obs"`
	NRows         int           `json:"n_rows"`
	NParameters   int           `json:"n_parameters"`
	Convergence   Convergence   `json:"convergence"`

	// Degraded is set when auto mode fell back from the primary estimator.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	// Rating models only.
	RSquared    Float `json:"r_squared,omitempty"`
	AdjRSquared Float `json:"adj_r_squared,omitempty"`
	ResidualSE  Float `json:"residual_se,omitempty"`
	Intercept   Float `json:"intercept,omitempty"`

	// Components holds the best and worst fits of a sequential best-worst model.
	Components []*ModelResult `json:"components,omitempty"`

	Warnings []Finding `json:"warnings,omitempty"`
}

// Coefficients returns estimate by term name.
func (m *ModelResult) Coefficients() map[string]float64 {
	out := make(map[string]float64, len(m.Terms))
	for _, t := range m.Terms {
		out[t.Name] = float64(t.Estimate)
	}
	return out
}

// StdErrors returns standard error by term name.
func (m *ModelResult) StdErrors() map[string]float64 {
	out := make(map[string]float64, len(m.Terms))
	for _, t := range m.Terms {
		out[t.Name] = float64(t.StdError)
	}
	return out
}

// Term finds the coefficient for an attribute level.
func (m *ModelResult) Term(attribute, level string) (Term, bool) {
	for _, t := range m.Terms {
		if !t.Constant && t.Attribute == attribute && t.Level == level {
			return t, true
		}
	}
	return Term{}, false
}

// Constant finds an alternative-specific constant by name.
func (m *ModelResult) Constant(name string) (Term, bool) {
	for _, t := range m.Terms {
		if t.Constant && t.Name == name {
			return t, true
		}
	}
	return Term{}, false
}

// Beta returns estimates indexed by design column; NA estimates become 0.
func (m *ModelResult) Beta(columns int) []float64 {
	beta := make([]float64, columns)
	for _, t := range m.Terms {
		if t.Column >= 0 && t.Column < columns {
			beta[t.Column] = t.Estimate.Or(0)
		}
	}
	return beta
}

// Clone deep-copies the result.
func (m *ModelResult) Clone() *ModelResult {
	if m == nil {
		return nil
	}
	c := *m
	c.Terms = append([]Term(nil), m.Terms...)
	c.Warnings = append([]Finding(nil), m.Warnings...)
	if m.Components != nil {
		c.Components = make([]*ModelResult, len(m.Components))
		for i, comp := range m.Components {
			c.Components[i] = comp.Clone()
		}
	}
	return &c
}
