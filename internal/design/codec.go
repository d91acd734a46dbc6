package design

import (
	"conjoint/domain/conjoint"
)

// NoneColumnName names the alternative-specific constant of the none option.
const NoneColumnName = "NONE"

// Column describes one design-matrix column.
type Column struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Attribute string `json:"attribute,omitempty"`
	Level     string `json:"level,omitempty"`
	Constant  bool   `json:"constant,omitempty"`
}

// Codec maps attribute levels to design columns and back. Column names are
// display-only; decoding never parses them.
type Codec struct {
	reg     *conjoint.Registry
	columns []Column
	index   map[string]map[string]int
	none    int
}

// NewCodec lays out one column per non-reference level, in registry order,
// followed by the none constant when includeNone is set.
func NewCodec(reg *conjoint.Registry, includeNone bool) *Codec {
	c := &Codec{reg: reg, index: make(map[string]map[string]int, reg.Len()), none: -1}
	for _, attr := range reg.Names() {
		ref := reg.ReferenceIndex(attr)
		c.index[attr] = make(map[string]int)
		for i, lvl := range reg.Levels(attr) {
			if i == ref {
				continue
			}
			col := Column{Index: len(c.columns), Name: attr + "::" + lvl, Attribute: attr, Level: lvl}
			c.index[attr][lvl] = col.Index
			c.columns = append(c.columns, col)
		}
	}
	if includeNone {
		c.none = len(c.columns)
		c.columns = append(c.columns, Column{Index: c.none, Name: NoneColumnName, Constant: true})
	}
	return c
}

// Registry returns the registry the codec was built from.
func (c *Codec) Registry() *conjoint.Registry { return c.reg }

// Len is the number of design columns.
func (c *Codec) Len() int { return len(c.columns) }

// Columns returns a copy of the column layout.
func (c *Codec) Columns() []Column {
	return append([]Column(nil), c.columns...)
}

// Column returns the column of a non-reference level.
func (c *Codec) Column(attribute, level string) (int, bool) {
	idx, ok := c.index[attribute][level]
	return idx, ok
}

// Decode returns the attribute and level behind a column index.
func (c *Codec) Decode(col int) (Column, bool) {
	if col < 0 || col >= len(c.columns) {
		return Column{}, false
	}
	return c.columns[col], true
}

// NoneColumn is the index of the none constant, or -1.
func (c *Codec) NoneColumn() int { return c.none }

// HasNone reports whether the layout carries a none constant.
func (c *Codec) HasNone() bool { return c.none >= 0 }

// Encode writes the codes of one alternative into dst, which must have Len()
// entries. Dummy coding sets the level's column to 1; under effects coding the
// reference level sets every column of its attribute to -1.
func (c *Codec) Encode(dst []float64, levels map[string]string, isNone bool) {
	for i := range dst {
		dst[i] = 0
	}
	if isNone {
		if c.none >= 0 {
			dst[c.none] = 1
		}
		return
	}
	effects := c.reg.Policy() == conjoint.BaselineEffects
	for _, attr := range c.reg.Names() {
		lvl := levels[attr]
		if col, ok := c.index[attr][lvl]; ok {
			dst[col] = 1
			continue
		}
		if effects && lvl == c.reg.ReferenceLevel(attr) {
			for _, col := range c.index[attr] {
				dst[col] = -1
			}
		}
	}
}

// WithNone returns a codec with the same attribute layout plus a none constant.
func (c *Codec) WithNone() *Codec {
	if c.HasNone() {
		return c
	}
	return NewCodec(c.reg, true)
}
