package simulator

import (
	"context"

	"conjoint/domain/conjoint"
)

// improvementEpsilon is the smallest share gain accepted as an improvement.
const improvementEpsilon = 1e-12

// OptimizeOptions bound the greedy search.
type OptimizeOptions struct {
	// Vary lists the attributes the optimiser may change; empty means all.
	Vary []string
	// MaxIterations caps the number of passes; 0 means 20.
	MaxIterations int
}

// Optimize runs greedy coordinate ascent on the focal product's share. Each
// pass visits the varied attributes in order, tries every other level and
// keeps the best one if it raises the share. The search stops after a pass
// with no change (converged) or after MaxIterations improving passes.
// Iterations counts the passes that changed the product. Candidates with an
// equal share are ranked by total utility, so a saturated share (no
// competitors, or a first-choice plateau) still climbs toward the preferred
// levels.
func (s *Simulator) Optimize(ctx context.Context, initial conjoint.Product, competitors []conjoint.Product, opts OptimizeOptions) (*conjoint.OptimizationResult, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	vary := opts.Vary
	if len(vary) == 0 {
		vary = s.reg.Names()
	}
	for _, attr := range vary {
		if _, err := s.checkAttribute(attr); err != nil {
			return nil, err
		}
	}

	current := initial.Clone()
	share, err := s.shareOf(current, competitors)
	if err != nil {
		return nil, err
	}
	utility, _ := s.TotalUtility(current)
	res := &conjoint.OptimizationResult{Initial: initial, ShareBefore: share}

	for res.Iterations < opts.MaxIterations {
		changed := false
		for _, attr := range vary {
			from := current.Levels[attr]
			var candidates []conjoint.Product
			var levels []string
			for _, lvl := range s.reg.Levels(attr) {
				if lvl == from {
					continue
				}
				levels = append(levels, lvl)
				candidates = append(candidates, current.With(attr, lvl))
			}
			if len(candidates) == 0 {
				continue
			}
			shares, err := s.evaluate(ctx, candidates, competitors)
			if err != nil {
				return nil, err
			}
			best, bestShare, bestUtility := -1, share, utility
			for i, sh := range shares {
				u, _ := s.TotalUtility(candidates[i])
				if better(sh, u, bestShare, bestUtility) {
					best, bestShare, bestUtility = i, sh, u
				}
			}
			if best < 0 {
				continue
			}
			current = candidates[best]
			share, utility = bestShare, bestUtility
			changed = true
			res.History = append(res.History, conjoint.OptimizationStep{
				Iteration: res.Iterations + 1,
				Attribute: attr,
				From:      from,
				To:        levels[best],
				Share:     share,
			})
		}
		if !changed {
			res.Converged = true
			break
		}
		res.Iterations++
	}
	if !res.Converged {
		s.log.Warn("optimizer stopped after %d iterations without converging", res.Iterations)
	}

	res.Final = current
	res.ShareAfter = share
	s.log.Info("optimized %q: share %.4f -> %.4f in %d iterations", initial.Name, res.ShareBefore, res.ShareAfter, res.Iterations)
	return res, nil
}

// better orders candidates by share, then by total utility when shares tie.
func better(share, utility, bestShare, bestUtility float64) bool {
	if share > bestShare+improvementEpsilon {
		return true
	}
	return share > bestShare-improvementEpsilon && utility > bestUtility+improvementEpsilon
}
