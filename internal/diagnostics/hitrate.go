package diagnostics

import (
	"fmt"
	"math"

	"conjoint/domain/conjoint"
	"conjoint/internal/bestworst"
	"conjoint/internal/design"
)

// HitRate predicts the highest-utility alternative of every choice set and
// compares it with the actual choice. Sets are visited in the matrix's
// canonical order and ties go to the first row, so the result is
// deterministic. Sets without a chosen row are skipped. It returns nil when no
// set can be scored.
func HitRate(model *conjoint.ModelResult, m *design.Matrix) *conjoint.HitRate {
	if model == nil || m == nil || m.NSets() == 0 {
		return nil
	}
	u := m.Utilities(model.Beta(m.NCols()))

	scored, hits, alts := 0, 0, 0
	for _, set := range m.Sets {
		if set.Chosen < 0 || set.Size() == 0 {
			continue
		}
		best, bestU := set.Start, math.Inf(-1)
		for r := set.Start; r < set.End; r++ {
			if u[r] > bestU {
				best, bestU = r, u[r]
			}
		}
		scored++
		alts += set.Size()
		if best == set.Chosen {
			hits++
		}
	}
	if scored == 0 {
		return nil
	}

	hr := &conjoint.HitRate{
		ChoiceSets:       scored,
		Hits:             hits,
		Rate:             float64(hits) / float64(scored),
		MeanAlternatives: float64(alts) / float64(scored),
	}
	hr.ChanceRate = 1 / hr.MeanAlternatives
	hr.Improvement = hr.Rate / hr.ChanceRate
	hr.Assessment = assessHitRate(hr)
	return hr
}

func assessHitRate(hr *conjoint.HitRate) string {
	verdict := "no better than chance"
	switch {
	case hr.Improvement >= 2:
		verdict = "strong predictive accuracy"
	case hr.Improvement >= 1.5:
		verdict = "good predictive accuracy"
	case hr.Improvement > 1.1:
		verdict = "modest predictive accuracy"
	}
	return fmt.Sprintf("Hit rate %.1f%% vs chance %.1f%% (%.2fx): %s",
		100*hr.Rate, 100*hr.ChanceRate, hr.Improvement, verdict)
}

// ScoringMatrix returns the matrix hit rate is computed on. Best-worst data
// carries its choices in best/worst flags, so it is scored on the stacked
// best and reversed worst sets.
func ScoringMatrix(m *design.Matrix, choiceType conjoint.ChoiceType) (*design.Matrix, error) {
	if choiceType != conjoint.ChoiceBestWorst {
		return m, nil
	}
	return design.Build(bestworst.Stack(m.Rows), m.Codec.Registry(), design.Options{})
}
