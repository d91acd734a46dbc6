package conjoint

// Product is one fully specified hypothetical offering: attribute → level.
type Product struct {
	Name   string            `json:"name" yaml:"name"`
	Levels map[string]string `json:"levels" yaml:"levels"`
}

// Clone deep-copies the product.
func (p Product) Clone() Product {
	levels := make(map[string]string, len(p.Levels))
	for k, v := range p.Levels {
		levels[k] = v
	}
	return Product{Name: p.Name, Levels: levels}
}

// With returns a copy of the product with one attribute changed.
func (p Product) With(attribute, level string) Product {
	c := p.Clone()
	c.Levels[attribute] = level
	return c
}

// ShareMethod selects the share-of-preference rule.
type ShareMethod string

const (
	ShareLogit                 ShareMethod = "logit"
	ShareFirstChoice           ShareMethod = "first_choice"
	ShareRandomizedFirstChoice ShareMethod = "randomized_first_choice"
)

// ShareRow is one product's predicted share.
type ShareRow struct {
	Product      string  `json:"product"`
	Utility      float64 `json:"utility"`
	Share        float64 `json:"share"`
	Availability float64 `json:"availability"`
}

// SensitivityRow is one level of a one-way sensitivity sweep.
type SensitivityRow struct {
	Attribute  string  `json:"attribute"`
	Level      string  `json:"level"`
	Share      float64 `json:"share"`
	Delta      float64 `json:"delta"`
	IsBaseline bool    `json:"is_baseline"`
}

// SensitivityCell is one cell of a two-way grid.
type SensitivityCell struct {
	LevelA string  `json:"level_a"`
	LevelB string  `json:"level_b"`
	Share  float64 `json:"share"`
	Delta  float64 `json:"delta"`
}

// TwoWaySensitivity is the grid over two attributes.
type TwoWaySensitivity struct {
	AttributeA    string            `json:"attribute_a"`
	AttributeB    string            `json:"attribute_b"`
	BaselineShare float64           `json:"baseline_share"`
	Cells         []SensitivityCell `json:"cells"`
}

// OptimizationStep records an accepted level change.
type OptimizationStep struct {
	Iteration int     `json:"iteration"`
	Attribute string  `json:"attribute"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Share     float64 `json:"share"`
}

// OptimizationResult is the outcome of greedy product optimisation.
type OptimizationResult struct {
	Initial     Product            `json:"initial"`
	Final       Product            `json:"final"`
	ShareBefore float64            `json:"share_before"`
	ShareAfter  float64            `json:"share_after"`
	Iterations  int                `json:"iterations"`
	Converged   bool               `json:"converged"`
	History     []OptimizationStep `json:"history"`
}
