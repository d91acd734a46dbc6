// Package importance derives attribute importance from utility ranges.
package importance

import (
	"sort"

	"conjoint/domain/conjoint"

	"github.com/montanaflynn/stats"
)

const codeDegenerate = "DEGENERATE_MODEL"

// Calculate returns one row per attribute in rank order. When every range is
// zero all importances are 0 and a warning is returned.
func Calculate(rows []conjoint.UtilityRow, reg *conjoint.Registry) ([]conjoint.ImportanceRow, []conjoint.Finding) {
	byAttr := make(map[string][]float64, reg.Len())
	for _, r := range rows {
		byAttr[r.Attribute] = append(byAttr[r.Attribute], r.Utility)
	}

	out := make([]conjoint.ImportanceRow, 0, reg.Len())
	total := 0.0
	for _, def := range reg.Attributes() {
		row := conjoint.ImportanceRow{Attribute: def.Name, Label: def.DisplayName()}
		if u := byAttr[def.Name]; len(u) > 0 {
			hi, _ := stats.Max(u)
			lo, _ := stats.Min(u)
			row.Range = hi - lo
		}
		total += row.Range
		out = append(out, row)
	}

	var warnings []conjoint.Finding
	if total <= 0 {
		warnings = append(warnings, conjoint.Warning(codeDegenerate,
			"every attribute has zero utility range; importance is reported as 0"))
	}
	for i := range out {
		if total > 0 {
			out[i].ImportancePct = 100 * out[i].Range / total
		}
	}

	// stable sort keeps configuration order for ties
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].ImportancePct > out[b].ImportancePct
	})
	for i := range out {
		out[i].Rank = i + 1
		out[i].Interpretation = Interpret(out[i].ImportancePct, total > 0)
	}
	return out, warnings
}

// Interpret labels an importance share.
func Interpret(pct float64, informative bool) string {
	switch {
	case !informative:
		return "No influence (degenerate model)"
	case pct >= 30:
		return "Primary driver of choice"
	case pct >= 20:
		return "Major influence"
	case pct >= 10:
		return "Moderate influence"
	case pct >= 5:
		return "Minor influence"
	default:
		return "Negligible influence"
	}
}
