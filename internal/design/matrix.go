package design

import (
	"fmt"
	"sort"
	"strconv"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"

	"gonum.org/v1/gonum/mat"
)

// ChoiceSet is one contiguous block of rows sharing a composite id.
type ChoiceSet struct {
	CHID       int    `json:"chid"`
	Key        string `json:"key"`
	Respondent string `json:"respondent"`
	RawID      string `json:"raw_id"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	// Chosen is the absolute row index of the chosen alternative, or -1.
	Chosen int `json:"chosen"`
}

// Size is the number of alternatives in the set.
func (s ChoiceSet) Size() int { return s.End - s.Start }

// Matrix is the numeric design plus the grouping the estimators need.
// Rows of the same choice set are contiguous and sets appear in first-seen order.
type Matrix struct {
	Codec *Codec
	X     *mat.Dense
	// Y is the 0/1 choice indicator, or the rating for rating designs.
	Y    []float64
	Rows []conjoint.Observation
	CHID []int
	Alt  []int
	Sets []ChoiceSet
}

// NRows is the number of alternatives (rows).
func (m *Matrix) NRows() int { return len(m.Rows) }

// NSets is the number of choice sets.
func (m *Matrix) NSets() int { return len(m.Sets) }

// NCols is the number of design columns.
func (m *Matrix) NCols() int { return m.Codec.Len() }

// Utilities returns X·beta.
func (m *Matrix) Utilities(beta []float64) []float64 {
	out := make([]float64, m.NRows())
	v := mat.NewVecDense(len(out), out)
	v.MulVec(m.X, mat.NewVecDense(len(beta), beta))
	return out
}

// MeanAlternatives is the average choice set size.
func (m *Matrix) MeanAlternatives() float64 {
	if len(m.Sets) == 0 {
		return 0
	}
	return float64(m.NRows()) / float64(len(m.Sets))
}

// Options tunes matrix construction for choice data.
type Options struct {
	// SynthesizeNone adds a chosen-if-nothing-else none row to every set that
	// does not already carry one.
	SynthesizeNone bool
}

// Build groups observations into choice sets and encodes them.
func Build(obs []conjoint.Observation, reg *conjoint.Registry, opts Options) (*Matrix, error) {
	if len(obs) == 0 {
		return nil, errors.Refuse(errors.CodeDataEmpty, "No observations",
			"no rows reached the design step", "there is nothing to estimate",
			"Check the data filters and validation output")
	}

	order, groups := groupObservations(obs)
	if opts.SynthesizeNone {
		for _, key := range order {
			groups[key] = synthesizeNone(groups[key])
		}
	}

	hasNone := false
	for _, o := range obs {
		if o.IsNone {
			hasNone = true
			break
		}
	}
	hasNone = hasNone || opts.SynthesizeNone
	codec := NewCodec(reg, hasNone)

	altOf, err := alternativeIndexer(obs)
	if err != nil {
		return nil, err
	}

	m := &Matrix{Codec: codec}
	for ci, key := range order {
		rows := groups[key]
		set := ChoiceSet{
			CHID:       ci + 1,
			Key:        key,
			Respondent: rows[0].Respondent,
			RawID:      rows[0].ChoiceSet,
			Start:      len(m.Rows),
			Chosen:     -1,
		}
		seen := make(map[int]bool, len(rows))
		maxAlt := 0
		for pos, o := range rows {
			alt := altOf(o, pos)
			if alt > maxAlt {
				maxAlt = alt
			}
			if o.IsNone && o.Alternative == "" {
				alt = 0
			}
			if alt != 0 && seen[alt] {
				return nil, errors.Refuse(errors.CodeDuplicateAlternative, "Duplicate alternative",
					fmt.Sprintf("choice set %q (respondent %s) lists alternative %d twice", set.RawID, set.Respondent, alt),
					"each alternative must appear once per choice set",
					"Remove duplicated rows or fix the alternative id column").
					WithDetail("choice_set", set.RawID).WithDetail("respondent", set.Respondent)
			}
			seen[alt] = true
			if o.Chosen && set.Chosen < 0 {
				set.Chosen = len(m.Rows)
			}
			m.Rows = append(m.Rows, o)
			m.CHID = append(m.CHID, set.CHID)
			m.Alt = append(m.Alt, alt)
		}
		// synthesized none rows take the next free index
		for i := set.Start; i < len(m.Rows); i++ {
			if m.Alt[i] == 0 {
				maxAlt++
				m.Alt[i] = maxAlt
			}
		}
		set.End = len(m.Rows)
		m.Sets = append(m.Sets, set)
	}

	m.X, m.Y = encode(m.Rows, codec, func(o conjoint.Observation) float64 {
		if o.Chosen {
			return 1
		}
		return 0
	})
	return m, nil
}

// BuildRating encodes rating observations; every row is its own group.
func BuildRating(obs []conjoint.Observation, reg *conjoint.Registry) (*Matrix, error) {
	if len(obs) == 0 {
		return nil, errors.Refuse(errors.CodeDataEmpty, "No observations",
			"no rows reached the design step", "there is nothing to estimate",
			"Check the data filters and validation output")
	}
	codec := NewCodec(reg, false)
	m := &Matrix{Codec: codec, Rows: append([]conjoint.Observation(nil), obs...)}
	for i := range m.Rows {
		m.CHID = append(m.CHID, i+1)
		m.Alt = append(m.Alt, 1)
	}
	m.X, m.Y = encode(m.Rows, codec, func(o conjoint.Observation) float64 { return o.Rating })
	return m, nil
}

func encode(rows []conjoint.Observation, codec *Codec, response func(conjoint.Observation) float64) (*mat.Dense, []float64) {
	x := mat.NewDense(len(rows), codec.Len(), nil)
	y := make([]float64, len(rows))
	buf := make([]float64, codec.Len())
	for i, o := range rows {
		codec.Encode(buf, o.Levels, o.IsNone)
		if o.Reversed {
			for j := range buf {
				buf[j] = -buf[j]
			}
		}
		x.SetRow(i, buf)
		y[i] = response(o)
	}
	return x, y
}

func groupObservations(obs []conjoint.Observation) ([]string, map[string][]conjoint.Observation) {
	var order []string
	groups := make(map[string][]conjoint.Observation)
	for _, o := range obs {
		key := o.GroupKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], o)
	}
	return order, groups
}

func synthesizeNone(rows []conjoint.Observation) []conjoint.Observation {
	anyChosen := false
	for _, o := range rows {
		if o.IsNone {
			return rows
		}
		anyChosen = anyChosen || o.Chosen
	}
	none := conjoint.Observation{
		Respondent: rows[0].Respondent,
		ChoiceSet:  rows[0].ChoiceSet,
		Levels:     map[string]string{},
		IsNone:     true,
		Chosen:     !anyChosen,
	}
	return append(rows, none)
}

// alternativeIndexer resolves alternative ids to positive integers: numeric ids
// are used as-is, otherwise ids are re-encoded in sorted order. Without any
// ids the position in the set is used.
func alternativeIndexer(obs []conjoint.Observation) (func(o conjoint.Observation, pos int) int, error) {
	present, missing := 0, 0
	numeric := true
	values := make(map[string]struct{})
	for _, o := range obs {
		if o.IsNone && o.Alternative == "" {
			continue
		}
		if o.Alternative == "" {
			missing++
			continue
		}
		present++
		values[o.Alternative] = struct{}{}
		if n, err := strconv.Atoi(o.Alternative); err != nil || n <= 0 {
			numeric = false
		}
	}
	if present == 0 {
		return func(o conjoint.Observation, pos int) int {
			if o.IsNone && o.Alternative == "" {
				return 0
			}
			return pos + 1
		}, nil
	}
	if missing > 0 {
		return nil, errors.Refuse(errors.CodeMissingAlternative, "Missing alternative id",
			fmt.Sprintf("%d row(s) have no alternative id while %d do", missing, present),
			"alternatives cannot be told apart inside a choice set",
			"Fill the alternative id column or remove the alternative_id_column setting")
	}
	if numeric {
		return func(o conjoint.Observation, pos int) int {
			n, _ := strconv.Atoi(o.Alternative)
			return n
		}, nil
	}
	sorted := make([]string, 0, len(values))
	for v := range values {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)
	codes := make(map[string]int, len(sorted))
	for i, v := range sorted {
		codes[v] = i + 1
	}
	return func(o conjoint.Observation, pos int) int {
		return codes[o.Alternative]
	}, nil
}
