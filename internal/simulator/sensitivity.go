package simulator

import (
	"context"

	"conjoint/domain/conjoint"
)

// OneWay varies one attribute of the focal product across all its levels,
// holding everything else fixed, and reports the focal share at each level
// with its change from the current configuration.
func (s *Simulator) OneWay(ctx context.Context, focal conjoint.Product, competitors []conjoint.Product, attribute string) ([]conjoint.SensitivityRow, error) {
	levels, err := s.checkAttribute(attribute)
	if err != nil {
		return nil, err
	}
	baseline, err := s.shareOf(focal, competitors)
	if err != nil {
		return nil, err
	}

	candidates := make([]conjoint.Product, len(levels))
	for i, lvl := range levels {
		candidates[i] = focal.With(attribute, lvl)
	}
	shares, err := s.evaluate(ctx, candidates, competitors)
	if err != nil {
		return nil, err
	}

	rows := make([]conjoint.SensitivityRow, len(levels))
	for i, lvl := range levels {
		rows[i] = conjoint.SensitivityRow{
			Attribute:  attribute,
			Level:      lvl,
			Share:      shares[i],
			Delta:      shares[i] - baseline,
			IsBaseline: focal.Levels[attribute] == lvl,
		}
	}
	s.log.Debug("one-way sensitivity on %s: %d levels, baseline share %.4f", attribute, len(levels), baseline)
	return rows, nil
}

// TwoWay evaluates the focal share over the full grid of two attributes'
// levels. Cells are ordered by the first attribute, then the second.
func (s *Simulator) TwoWay(ctx context.Context, focal conjoint.Product, competitors []conjoint.Product, attrA, attrB string) (*conjoint.TwoWaySensitivity, error) {
	levelsA, err := s.checkAttribute(attrA)
	if err != nil {
		return nil, err
	}
	levelsB, err := s.checkAttribute(attrB)
	if err != nil {
		return nil, err
	}
	baseline, err := s.shareOf(focal, competitors)
	if err != nil {
		return nil, err
	}

	candidates := make([]conjoint.Product, 0, len(levelsA)*len(levelsB))
	for _, a := range levelsA {
		for _, b := range levelsB {
			candidates = append(candidates, focal.With(attrA, a).With(attrB, b))
		}
	}
	shares, err := s.evaluate(ctx, candidates, competitors)
	if err != nil {
		return nil, err
	}

	out := &conjoint.TwoWaySensitivity{AttributeA: attrA, AttributeB: attrB, BaselineShare: baseline}
	k := 0
	for _, a := range levelsA {
		for _, b := range levelsB {
			out.Cells = append(out.Cells, conjoint.SensitivityCell{
				LevelA: a,
				LevelB: b,
				Share:  shares[k],
				Delta:  shares[k] - baseline,
			})
			k++
		}
	}
	return out, nil
}
