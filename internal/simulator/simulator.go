// Package simulator predicts market shares for hypothetical products from a
// utility table and runs sensitivity and optimisation sweeps over them.
package simulator

import (
	"fmt"
	"sort"

	"conjoint/domain/conjoint"
	"conjoint/internal"
	"conjoint/internal/errors"
)

const (
	// DefaultTieTolerance is the utility band treated as a tie under
	// randomized first choice.
	DefaultTieTolerance = 0.01
	// NoneProduct names the no-purchase option in share tables.
	NoneProduct = "None"

	codeUnknownLevel     = "UNKNOWN_LEVEL"
	codeUnknownAttribute = "UNKNOWN_ATTRIBUTE"
	codeMissingAttribute = "MISSING_ATTRIBUTE"
)

// UtilityTable maps attribute → level → utility.
type UtilityTable map[string]map[string]float64

// NewUtilityTable indexes extracted utility rows.
func NewUtilityTable(rows []conjoint.UtilityRow) UtilityTable {
	t := make(UtilityTable)
	for _, r := range rows {
		if t[r.Attribute] == nil {
			t[r.Attribute] = make(map[string]float64)
		}
		t[r.Attribute][r.Level] = r.Utility
	}
	return t
}

// Lookup returns the utility of one level.
func (t UtilityTable) Lookup(attribute, level string) (float64, bool) {
	u, ok := t[attribute][level]
	return u, ok
}

// Options tune share prediction and sweeps.
type Options struct {
	Method conjoint.ShareMethod
	// Scale multiplies utilities before the logit transform; 0 means 1.
	Scale float64
	// TieTolerance applies to randomized first choice; 0 means DefaultTieTolerance.
	TieTolerance float64
	// IncludeNone adds the no-purchase option when a none utility is known.
	IncludeNone bool
	// Workers bounds concurrent candidate evaluations; 0 means 4.
	Workers int
	Logger  *internal.Logger
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = conjoint.ShareLogit
	}
	if o.Scale == 0 {
		o.Scale = 1
	}
	if o.TieTolerance <= 0 {
		o.TieTolerance = DefaultTieTolerance
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Logger == nil {
		o.Logger = internal.DefaultLogger
	}
	return o
}

// ParseShareMethod accepts the share rule spellings used in requests.
func ParseShareMethod(s string) (conjoint.ShareMethod, error) {
	switch conjoint.ShareMethod(s) {
	case "", conjoint.ShareLogit:
		return conjoint.ShareLogit, nil
	case conjoint.ShareFirstChoice, conjoint.ShareRandomizedFirstChoice:
		return conjoint.ShareMethod(s), nil
	default:
		return "", errors.Refuse(errors.CodeInvalidProduct, "Unknown share method",
			fmt.Sprintf("share method %q is not recognised", s),
			"the share rule decides how utilities become market shares",
			"Use logit, first_choice or randomized_first_choice")
	}
}

// Simulator evaluates products against a fixed utility table. It holds no
// mutable state and is safe for concurrent use.
type Simulator struct {
	reg   *conjoint.Registry
	table UtilityTable
	none  *float64
	opts  Options
	log   *internal.Logger
}

// New builds a simulator. none is the none-option utility, or nil.
func New(reg *conjoint.Registry, rows []conjoint.UtilityRow, none *conjoint.UtilityRow, opts Options) *Simulator {
	opts = opts.withDefaults()
	s := &Simulator{
		reg:   reg,
		table: NewUtilityTable(rows),
		opts:  opts,
		log:   opts.Logger.With("Simulator"),
	}
	if none != nil {
		u := none.Utility
		s.none = &u
	}
	return s
}

// Registry returns the attribute registry the simulator was built with.
func (s *Simulator) Registry() *conjoint.Registry { return s.reg }

// Table returns the utility lookup.
func (s *Simulator) Table() UtilityTable { return s.table }

// WithOptions returns a copy using different share options.
func (s *Simulator) WithOptions(opts Options) *Simulator {
	c := *s
	c.opts = opts.withDefaults()
	c.log = c.opts.Logger.With("Simulator")
	return &c
}

// TotalUtility sums the level utilities of a product over the configured
// attributes. Unknown or missing levels contribute 0 and are reported as info.
func (s *Simulator) TotalUtility(p conjoint.Product) (float64, []conjoint.Finding) {
	var notes []conjoint.Finding
	total := 0.0
	for _, attr := range s.reg.Names() {
		lvl, ok := p.Levels[attr]
		if !ok || lvl == "" {
			notes = append(notes, conjoint.Info(codeMissingAttribute,
				"product %q has no level for %s; it contributes 0", p.Name, attr).
				With("product", p.Name).With("attribute", attr))
			continue
		}
		u, ok := s.table.Lookup(attr, lvl)
		if !ok {
			notes = append(notes, conjoint.Info(codeUnknownLevel,
				"product %q uses level %q of %s which has no utility; it contributes 0", p.Name, lvl, attr).
				With("product", p.Name).With("attribute", attr).With("level", lvl))
			continue
		}
		total += u
	}
	extra := make([]string, 0)
	for attr := range p.Levels {
		if _, ok := s.reg.Attribute(attr); !ok {
			extra = append(extra, attr)
		}
	}
	sort.Strings(extra)
	for _, attr := range extra {
		notes = append(notes, conjoint.Info(codeUnknownAttribute,
			"product %q sets %s which is not a configured attribute; it is ignored", p.Name, attr).
			With("product", p.Name).With("attribute", attr))
	}
	return total, notes
}

// Shares predicts the share of every product. availability may be nil (all
// available) or hold one weight in [0, 1] per product. When the none option is
// included it is appended as a final row with full availability.
func (s *Simulator) Shares(products []conjoint.Product, availability []float64) ([]conjoint.ShareRow, []conjoint.Finding, error) {
	if len(products) == 0 {
		return nil, nil, errors.Refuse(errors.CodeInvalidProduct, "No products",
			"the scenario has no products", "shares are relative to the products in the scenario",
			"Add at least one product")
	}
	if availability != nil && len(availability) != len(products) {
		return nil, nil, errors.Refuse(errors.CodeInvalidProduct, "Availability does not match products",
			fmt.Sprintf("%d availability weights for %d products", len(availability), len(products)),
			"each product needs exactly one availability weight",
			"Provide one weight per product or omit availability")
	}

	var notes []conjoint.Finding
	rows := make([]conjoint.ShareRow, 0, len(products)+1)
	for i, p := range products {
		u, n := s.TotalUtility(p)
		notes = append(notes, n...)
		a := 1.0
		if availability != nil {
			a = availability[i]
		}
		if a < 0 || a > 1 {
			return nil, nil, errors.Refuse(errors.CodeInvalidProduct, "Invalid availability",
				fmt.Sprintf("product %q has availability %.4g", p.Name, a),
				"availability is a weight between 0 and 1",
				"Use 1 for fully available and 0 for unavailable")
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("Product %d", i+1)
		}
		rows = append(rows, conjoint.ShareRow{Product: name, Utility: u, Availability: a})
	}
	if s.opts.IncludeNone && s.none != nil {
		rows = append(rows, conjoint.ShareRow{Product: NoneProduct, Utility: *s.none, Availability: 1})
	}

	u := make([]float64, len(rows))
	a := make([]float64, len(rows))
	for i, r := range rows {
		u[i] = r.Utility
		a[i] = r.Availability
	}
	shares, err := PredictShares(u, a, s.opts.Method, s.opts.Scale, s.opts.TieTolerance)
	if err != nil {
		return nil, nil, err
	}
	for i := range rows {
		rows[i].Share = shares[i]
	}
	return rows, notes, nil
}

// shareOf returns the share of the first product in the scenario.
func (s *Simulator) shareOf(focal conjoint.Product, competitors []conjoint.Product) (float64, error) {
	products := make([]conjoint.Product, 0, len(competitors)+1)
	products = append(products, focal)
	products = append(products, competitors...)
	rows, _, err := s.Shares(products, nil)
	if err != nil {
		return 0, err
	}
	return rows[0].Share, nil
}

func (s *Simulator) checkAttribute(attr string) ([]string, error) {
	if _, ok := s.reg.Attribute(attr); !ok {
		return nil, errors.Refuse(errors.CodeInvalidProduct, "Unknown attribute",
			fmt.Sprintf("attribute %q is not configured", attr),
			"sensitivity and optimisation vary configured attributes only",
			fmt.Sprintf("Use one of: %v", s.reg.Names()))
	}
	return s.reg.Levels(attr), nil
}
