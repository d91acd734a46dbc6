package simulator

import (
	"conjoint/domain/conjoint"
)

// Starter scenario product names.
const (
	BestProductName      = "Best levels"
	ReferenceProductName = "Reference levels"
)

// Seed returns the utility lookup and a starter scenario for the simulator:
// a product with every attribute's highest-utility level (first on ties)
// against one with every reference level, with logit shares.
func (s *Simulator) Seed() (*conjoint.SimulatorSeed, error) {
	best := conjoint.Product{Name: BestProductName, Levels: make(map[string]string)}
	ref := conjoint.Product{Name: ReferenceProductName, Levels: make(map[string]string)}
	for _, attr := range s.reg.Names() {
		levels := s.reg.Levels(attr)
		top := levels[0]
		for _, lvl := range levels[1:] {
			if s.table[attr][lvl] > s.table[attr][top] {
				top = lvl
			}
		}
		best.Levels[attr] = top
		ref.Levels[attr] = s.reg.ReferenceLevel(attr)
	}

	products := []conjoint.Product{best, ref}
	shares, _, err := s.WithOptions(Options{Method: conjoint.ShareLogit, Logger: s.opts.Logger, Workers: s.opts.Workers}).
		Shares(products, nil)
	if err != nil {
		return nil, err
	}

	table := make(map[string]map[string]float64, len(s.table))
	for attr, levels := range s.table {
		table[attr] = make(map[string]float64, len(levels))
		for lvl, u := range levels {
			table[attr][lvl] = u
		}
	}
	return &conjoint.SimulatorSeed{Utilities: table, Products: products, Shares: shares}, nil
}
