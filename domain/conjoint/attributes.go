package conjoint

import (
	"fmt"
	"strings"

	"conjoint/internal/errors"
)

// AttributeDefinition is one product attribute and its ordered levels.
type AttributeDefinition struct {
	Name   string   `json:"name" yaml:"name"`
	Label  string   `json:"label,omitempty" yaml:"label,omitempty"`
	Levels []string `json:"levels" yaml:"levels"`
}

// DisplayName returns the label when set, otherwise the name.
func (a AttributeDefinition) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Name
}

// BaselinePolicy selects which level is the omitted reference during coding.
type BaselinePolicy string

const (
	BaselineFirstLevel BaselinePolicy = "first_level_zero"
	BaselineLastLevel  BaselinePolicy = "last_level_zero"
	BaselineEffects    BaselinePolicy = "effects_coding"
)

// ParseBaselinePolicy accepts the configuration spellings of a policy.
func ParseBaselinePolicy(s string) (BaselinePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first_level_zero", "first", "first_level":
		return BaselineFirstLevel, nil
	case "last_level_zero", "last", "last_level":
		return BaselineLastLevel, nil
	case "effects_coding", "effects":
		return BaselineEffects, nil
	default:
		return "", errors.Refuse(errors.CodeConfigInvalid, "Unknown baseline handling",
			fmt.Sprintf("baseline_handling %q is not recognised", s),
			"the reference level decides how every coefficient is read",
			"Use first_level_zero, last_level_zero or effects_coding")
	}
}

// Registry is the single source of truth for attribute names and level order.
// It is immutable once built.
type Registry struct {
	attrs  []AttributeDefinition
	index  map[string]int
	levels []map[string]int
	policy BaselinePolicy
}

// NewRegistry validates the definitions and freezes them.
func NewRegistry(defs []AttributeDefinition, policy BaselinePolicy) (*Registry, error) {
	if len(defs) == 0 {
		return nil, errors.Refuse(errors.CodeMissingAttributes, "No attributes configured",
			"the attribute list is empty",
			"part-worths are estimated per attribute level; with no attributes there is nothing to estimate",
			"Add at least one attribute with two or more levels to the Attributes sheet")
	}
	if policy == "" {
		policy = BaselineFirstLevel
	}

	r := &Registry{
		attrs:  make([]AttributeDefinition, 0, len(defs)),
		index:  make(map[string]int, len(defs)),
		levels: make([]map[string]int, 0, len(defs)),
		policy: policy,
	}
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, errors.Refuse(errors.CodeInvalidAttribute, "Attribute without a name",
				"an attribute row has an empty name",
				"data columns are matched to attributes by name",
				"Fill in AttributeName for every attribute row or delete the empty row")
		}
		if _, dup := r.index[name]; dup {
			return nil, errors.Refuse(errors.CodeInvalidAttribute, "Duplicate attribute",
				fmt.Sprintf("attribute %q is defined more than once", name),
				"each attribute maps to exactly one data column",
				"Rename or remove the duplicate attribute row")
		}
		if len(def.Levels) < 2 {
			return nil, errors.Refuse(errors.CodeInvalidAttribute, "Too few levels",
				fmt.Sprintf("attribute %q has %d level(s); at least 2 are required", name, len(def.Levels)),
				"an attribute with a single level has no variation and cannot be estimated",
				fmt.Sprintf("Add levels to %q or remove it from the study", name))
		}
		seen := make(map[string]int, len(def.Levels))
		levels := make([]string, len(def.Levels))
		for i, lvl := range def.Levels {
			lvl = strings.TrimSpace(lvl)
			if lvl == "" {
				return nil, errors.Refuse(errors.CodeInvalidAttribute, "Empty level",
					fmt.Sprintf("attribute %q has an empty level at position %d", name, i+1),
					"empty levels cannot be matched against the data",
					"Remove blank level cells between filled ones")
			}
			if _, dup := seen[lvl]; dup {
				return nil, errors.Refuse(errors.CodeInvalidAttribute, "Duplicate level",
					fmt.Sprintf("attribute %q lists level %q twice", name, lvl),
					"duplicate levels make the coding ambiguous",
					"Keep each level once per attribute")
			}
			seen[lvl] = i
			levels[i] = lvl
		}
		r.index[name] = len(r.attrs)
		r.attrs = append(r.attrs, AttributeDefinition{Name: name, Label: strings.TrimSpace(def.Label), Levels: levels})
		r.levels = append(r.levels, seen)
	}
	return r, nil
}

// Len returns the number of attributes.
func (r *Registry) Len() int { return len(r.attrs) }

// Policy returns the baseline policy.
func (r *Registry) Policy() BaselinePolicy { return r.policy }

// Attributes returns a copy of the definitions in configured order.
func (r *Registry) Attributes() []AttributeDefinition {
	out := make([]AttributeDefinition, len(r.attrs))
	for i, a := range r.attrs {
		out[i] = AttributeDefinition{Name: a.Name, Label: a.Label, Levels: append([]string(nil), a.Levels...)}
	}
	return out
}

// Names returns attribute names in configured order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.attrs))
	for i, a := range r.attrs {
		names[i] = a.Name
	}
	return names
}

// Attribute looks up a definition by name.
func (r *Registry) Attribute(name string) (AttributeDefinition, bool) {
	i, ok := r.index[name]
	if !ok {
		return AttributeDefinition{}, false
	}
	return r.attrs[i], true
}

// Levels returns the ordered levels of an attribute (nil when unknown).
func (r *Registry) Levels(name string) []string {
	i, ok := r.index[name]
	if !ok {
		return nil
	}
	return append([]string(nil), r.attrs[i].Levels...)
}

// LevelIndex returns the position of level within attribute.
func (r *Registry) LevelIndex(attribute, level string) (int, bool) {
	i, ok := r.index[attribute]
	if !ok {
		return 0, false
	}
	idx, ok := r.levels[i][level]
	return idx, ok
}

// HasLevel reports whether level belongs to attribute.
func (r *Registry) HasLevel(attribute, level string) bool {
	_, ok := r.LevelIndex(attribute, level)
	return ok
}

// ReferenceIndex is the position of the omitted level under the registry policy.
func (r *Registry) ReferenceIndex(attribute string) int {
	i, ok := r.index[attribute]
	if !ok {
		return -1
	}
	if r.policy == BaselineFirstLevel {
		return 0
	}
	return len(r.attrs[i].Levels) - 1
}

// ReferenceLevel returns the name of the omitted level.
func (r *Registry) ReferenceLevel(attribute string) string {
	idx := r.ReferenceIndex(attribute)
	if idx < 0 {
		return ""
	}
	return r.attrs[r.index[attribute]].Levels[idx]
}

// MaxLevels is the largest level count across attributes.
func (r *Registry) MaxLevels() int {
	max := 0
	for _, a := range r.attrs {
		if len(a.Levels) > max {
			max = len(a.Levels)
		}
	}
	return max
}

// Parameters is the number of estimable level parameters (levels minus one per attribute).
func (r *Registry) Parameters() int {
	n := 0
	for _, a := range r.attrs {
		n += len(a.Levels) - 1
	}
	return n
}
