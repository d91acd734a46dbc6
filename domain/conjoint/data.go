package conjoint

import "strings"

// ColumnBindings names the data columns the core reads.
type ColumnBindings struct {
	RespondentID  string `json:"respondent_id" yaml:"respondent_id_column"`
	ChoiceSet     string `json:"choice_set" yaml:"choice_set_column"`
	Chosen        string `json:"chosen" yaml:"chosen_column"`
	AlternativeID string `json:"alternative_id,omitempty" yaml:"alternative_id_column"`
	Rating        string `json:"rating,omitempty" yaml:"rating_column"`
	Best          string `json:"best,omitempty" yaml:"best_column"`
	Worst         string `json:"worst,omitempty" yaml:"worst_column"`
	None          string `json:"none,omitempty" yaml:"none_column"`
}

// DefaultBindings mirrors the column names used by the sample study.
func DefaultBindings() ColumnBindings {
	return ColumnBindings{
		RespondentID:  "resp_id",
		ChoiceSet:     "choice_set_id",
		Chosen:        "chosen",
		AlternativeID: "alternative_id",
		Rating:        "rating",
		Best:          "best",
		Worst:         "worst",
	}
}

// Record is one raw data row keyed by column name.
type Record map[string]string

// Get returns the trimmed cell value.
func (r Record) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Table is a file-format agnostic long-format dataset.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Record `json:"rows"`
}

// HasColumn reports whether the header row contains name.
func (t *Table) HasColumn(name string) bool {
	if name == "" {
		return false
	}
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// RowMaps exposes rows as plain maps for hashing.
func (t *Table) RowMaps() []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r
	}
	return out
}

// Observation is one typed long-format row: a single alternative inside a choice set.
type Observation struct {
	Row         int               `json:"row"`
	Respondent  string            `json:"respondent"`
	ChoiceSet   string            `json:"choice_set"`
	Alternative string            `json:"alternative,omitempty"`
	Levels      map[string]string `json:"levels"`
	Chosen      bool              `json:"chosen"`
	Rating      float64           `json:"rating,omitempty"`
	Best        bool              `json:"best,omitempty"`
	Worst       bool              `json:"worst,omitempty"`
	IsNone      bool              `json:"is_none_alternative,omitempty"`
	// Reversed rows enter the design matrix with negated attribute codes.
	Reversed bool `json:"reversed,omitempty"`
}

// GroupKey identifies the (respondent, choice set) group the row belongs to.
func (o Observation) GroupKey() string {
	return GroupKey(o.Respondent, o.ChoiceSet)
}

// GroupKey joins respondent and raw choice set id with a separator that cannot
// appear in trimmed cell values.
func GroupKey(respondent, choiceSet string) string {
	return respondent + "\x1f" + choiceSet
}

// Clone deep-copies the observation.
func (o Observation) Clone() Observation {
	c := o
	c.Levels = make(map[string]string, len(o.Levels))
	for k, v := range o.Levels {
		c.Levels[k] = v
	}
	return c
}

// ParseFlag parses a 0/1 cell. ok is false for anything other than 0 or 1.
func ParseFlag(s string) (value bool, ok bool) {
	switch strings.TrimSpace(s) {
	case "1", "1.0", "1.00":
		return true, true
	case "0", "0.0", "0.00":
		return false, true
	default:
		return false, false
	}
}

// IsNoneRow reports whether a raw row is the "no purchase" alternative: either
// the none column is set, or every attribute cell is blank or the none label
// with at least one carrying the label.
func IsNoneRow(r Record, b ColumnBindings, attributes []string, noneLabel string) bool {
	if b.None != "" {
		switch strings.ToLower(r.Get(b.None)) {
		case "1", "1.0", "true", "yes":
			return true
		}
	}
	if noneLabel == "" {
		return false
	}
	if b.AlternativeID != "" && strings.EqualFold(r.Get(b.AlternativeID), noneLabel) {
		return true
	}
	labelled := false
	for _, a := range attributes {
		v := r.Get(a)
		switch {
		case v == "":
		case strings.EqualFold(v, noneLabel):
			labelled = true
		default:
			return false
		}
	}
	return labelled
}
