package diagnostics

import (
	"fmt"
	"math"

	"conjoint/domain/conjoint"
)

const significanceAlpha = 0.05

// Significance summarises level tests per attribute in registry order. The
// baseline level is never tested.
func Significance(rows []conjoint.UtilityRow, reg *conjoint.Registry) []conjoint.AttributeSignificance {
	out := make([]conjoint.AttributeSignificance, 0, reg.Len())
	for _, attr := range reg.Names() {
		s := conjoint.AttributeSignificance{Attribute: attr, MinPValue: conjoint.NA}
		minP := math.Inf(1)
		for _, r := range rows {
			if r.Attribute != attr || r.IsBaseline || r.PValue.IsNA() {
				continue
			}
			s.Levels++
			p := r.PValue.Value()
			if p < significanceAlpha {
				s.Significant++
			}
			if p < minP {
				minP = p
			}
		}
		if s.Levels > 0 {
			s.MinPValue = conjoint.Float(minP)
		}
		s.Summary = summarise(s)
		out = append(out, s)
	}
	return out
}

func summarise(s conjoint.AttributeSignificance) string {
	switch {
	case s.Levels == 0:
		return "No level could be tested"
	case s.Significant == 0:
		return "No level differs significantly from the baseline"
	case s.Significant == s.Levels:
		return fmt.Sprintf("All %d tested levels differ significantly from the baseline", s.Levels)
	default:
		return fmt.Sprintf("%d of %d tested levels differ significantly from the baseline", s.Significant, s.Levels)
	}
}
