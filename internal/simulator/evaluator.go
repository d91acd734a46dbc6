package simulator

import (
	"context"
	"time"

	"conjoint/domain/conjoint"

	"golang.org/x/sync/errgroup"
)

// evaluate computes the focal share of every candidate with at most
// opts.Workers evaluations in flight. Results keep candidate order.
func (s *Simulator) evaluate(ctx context.Context, candidates []conjoint.Product, competitors []conjoint.Product) ([]float64, error) {
	start := time.Now()
	shares := make([]float64, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			share, err := s.shareOf(c, competitors)
			if err != nil {
				return err
			}
			shares[i] = share
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Trace("evaluated %d candidates in %v (workers=%d)", len(candidates), time.Since(start), s.opts.Workers)
	return shares, nil
}
