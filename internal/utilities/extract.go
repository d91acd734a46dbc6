// Package utilities turns fitted coefficients into zero-centred part-worths.
package utilities

import (
	"fmt"
	"math"

	"conjoint/domain/conjoint"
	"conjoint/internal/design"
	"conjoint/internal/errors"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	BaselineInterpretation = "Baseline (reference level)"
	NoneAttribute          = "None"

	codeNACoefficient = "NA_COEFFICIENT"
	codeMissingTerm   = "MISSING_TERM"
)

// Options control inference on the extracted utilities.
type Options struct {
	ConfidenceLevel float64
	NoneLabel       string
}

// Result is the utility table plus findings raised while building it.
type Result struct {
	Rows     []conjoint.UtilityRow
	None     *conjoint.UtilityRow
	Warnings []conjoint.Finding
}

// Extract builds one row per attribute level in registry order. The reference
// level enters with a raw coefficient of 0 (or minus the sum of the others
// under effects coding) and every attribute is centred on its mean.
func Extract(model *conjoint.ModelResult, reg *conjoint.Registry, opts Options) (*Result, error) {
	if model == nil {
		return nil, errors.InvalidInput("no model result to extract utilities from")
	}
	if opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 {
		return nil, errors.Refuse(errors.CodeInvalidConfidence, "Invalid confidence level",
			fmt.Sprintf("confidence level %.4g is outside (0, 1)", opts.ConfidenceLevel),
			"intervals are built from the normal quantile of this level",
			"Use a value such as 0.95")
	}
	z := distuv.UnitNormal.Quantile(1 - (1-opts.ConfidenceLevel)/2)
	res := &Result{}
	effects := reg.Policy() == conjoint.BaselineEffects

	for _, attr := range reg.Names() {
		levels := reg.Levels(attr)
		ref := reg.ReferenceIndex(attr)
		raw := make([]float64, len(levels))
		se := make([]conjoint.Float, len(levels))
		for i, lvl := range levels {
			se[i] = conjoint.NA
			if i == ref {
				continue
			}
			term, ok := model.Term(attr, lvl)
			if !ok {
				res.Warnings = append(res.Warnings, conjoint.Warning(codeMissingTerm,
					"no coefficient for %s = %s; its utility is set to 0", attr, lvl).
					With("attribute", attr).With("level", lvl))
				continue
			}
			if term.Estimate.IsNA() {
				res.Warnings = append(res.Warnings, conjoint.Warning(codeNACoefficient,
					"coefficient for %s = %s is undefined (separation or collinearity); it is set to 0", attr, lvl).
					With("attribute", attr).With("level", lvl))
				continue
			}
			raw[i] = term.Estimate.Value()
			se[i] = term.StdError
		}
		if effects {
			sum := 0.0
			for i, v := range raw {
				if i != ref {
					sum += v
				}
			}
			raw[ref] = -sum
		}

		mean, err := stats.Mean(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "centring %s", attr)
		}
		for i, lvl := range levels {
			row := conjoint.UtilityRow{
				Attribute: attr,
				Level:     lvl,
				Utility:   raw[i] - mean,
				StdError:  se[i],
				CILower:   conjoint.NA,
				CIUpper:   conjoint.NA,
				PValue:    conjoint.NA,
			}
			if i == ref {
				row.IsBaseline = true
				row.Interpretation = BaselineInterpretation
				res.Rows = append(res.Rows, row)
				continue
			}
			if !se[i].IsNA() && se[i].Value() > 0 {
				s := se[i].Value()
				row.CILower = conjoint.Float(raw[i] - z*s - mean)
				row.CIUpper = conjoint.Float(raw[i] + z*s - mean)
				row.PValue = conjoint.Float(PValue(raw[i], s))
				row.Significance = Stars(row.PValue.Value())
			}
			row.Interpretation = Interpret(row.Utility, row.PValue)
			res.Rows = append(res.Rows, row)
		}
	}

	if term, ok := model.Constant(design.NoneColumnName); ok {
		res.None = noneRow(term, opts, z)
		if term.Estimate.IsNA() {
			res.Warnings = append(res.Warnings, conjoint.Warning(codeNACoefficient,
				"the none constant is undefined; it is set to 0"))
		}
	}
	return res, nil
}

func noneRow(term conjoint.Term, opts Options, z float64) *conjoint.UtilityRow {
	label := opts.NoneLabel
	if label == "" {
		label = design.NoneColumnName
	}
	row := &conjoint.UtilityRow{
		Attribute: NoneAttribute,
		Level:     label,
		Utility:   term.Estimate.Or(0),
		StdError:  term.StdError,
		CILower:   conjoint.NA,
		CIUpper:   conjoint.NA,
		PValue:    conjoint.NA,
	}
	if !term.Estimate.IsNA() && !term.StdError.IsNA() && term.StdError.Value() > 0 {
		s := term.StdError.Value()
		row.CILower = conjoint.Float(row.Utility - z*s)
		row.CIUpper = conjoint.Float(row.Utility + z*s)
		row.PValue = conjoint.Float(PValue(row.Utility, s))
		row.Significance = Stars(row.PValue.Value())
	}
	row.Interpretation = Interpret(row.Utility, row.PValue)
	return row
}

// PValue is the two-sided normal p-value of estimate/se.
func PValue(estimate, se float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(estimate/se))
}

// Stars maps a p-value to significance stars.
func Stars(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return ""
	}
}

// Magnitude buckets an absolute utility.
func Magnitude(u float64) string {
	a := math.Abs(u)
	switch {
	case a < 0.2:
		return "Slightly"
	case a < 0.5:
		return "Somewhat"
	case a < 1.0:
		return "Moderately"
	default:
		return "Strongly"
	}
}

// Interpret renders magnitude, direction and significance, e.g.
// "Moderately preferred ***".
func Interpret(utility float64, p conjoint.Float) string {
	direction := "avoided"
	if utility > 0 {
		direction = "preferred"
	}
	text := Magnitude(utility) + " " + direction
	switch {
	case p.IsNA():
		return text
	case Stars(p.Value()) != "":
		return text + " " + Stars(p.Value())
	default:
		return text + " (not significant)"
	}
}
