package validation

import (
	"fmt"
	"sort"
	"strings"

	"conjoint/domain/conjoint"
)

// Options configures a validation pass.
type Options struct {
	Bindings             conjoint.ColumnBindings
	ChoiceType           conjoint.ChoiceType
	NoneLabel            string
	MinResponsesPerLevel int
}

// OptionsFrom derives validation options from analysis settings.
func OptionsFrom(b conjoint.ColumnBindings, s conjoint.Settings) Options {
	return Options{
		Bindings:             b,
		ChoiceType:           s.ChoiceType,
		NoneLabel:            s.NoneLabel,
		MinResponsesPerLevel: s.MinResponsesPerLevel,
	}
}

func (o Options) noneSkipper(reg *conjoint.Registry) func(conjoint.Record) bool {
	if o.ChoiceType != conjoint.ChoiceSingleWithNone {
		return nil
	}
	names := reg.Names()
	return func(r conjoint.Record) bool {
		return conjoint.IsNoneRow(r, o.Bindings, names, o.NoneLabel)
	}
}

// Choice validates a single-choice dataset. Warning checks only run once
// every critical check has passed.
func Choice(table *conjoint.Table, reg *conjoint.Registry, opts Options) conjoint.ValidationResult {
	if table == nil || len(table.Rows) == 0 {
		return conjoint.Of(conjoint.Critical(CodeMissingValue, "the dataset has no rows"))
	}
	b := opts.Bindings
	required := append([]string{b.RespondentID, b.ChoiceSet, b.Chosen}, reg.Names()...)
	if opts.ChoiceType == conjoint.ChoiceSingleWithNone && b.None != "" {
		required = append(required, b.None)
	}
	res := checkColumns(table, required)
	if !res.IsValid() {
		return res
	}

	skip := opts.noneSkipper(reg)
	res = res.
		Merge(checkNotEmpty(table, []string{b.RespondentID, b.ChoiceSet, b.Chosen}, nil)).
		Merge(checkNotEmpty(table, reg.Names(), skip)).
		Merge(checkFlags(table, b.Chosen, CodeInvalidChosen)).
		Merge(checkLevels(table, reg, skip))
	if !res.IsValid() {
		return res
	}

	groups := groupRows(table, b)
	res = res.Merge(checkChosenSums(table, groups, opts, skip))
	if !res.IsValid() {
		return res
	}

	isChosen := func(r conjoint.Record) bool {
		v, _ := conjoint.ParseFlag(r.Get(b.Chosen))
		return v
	}
	counts := levelCounts(table, reg, isChosen, skip)
	minCount := opts.MinResponsesPerLevel
	if minCount <= 0 {
		minCount = conjoint.DefaultSettings().MinResponsesPerLevel
	}
	res = res.
		Merge(checkLevelBalance(counts, reg, minCount)).
		Merge(checkNeverChosenProfiles(table, reg, isChosen, skip)).
		Merge(checkSetSizes(groups)).
		Merge(checkSampleSize(len(groups), reg)).
		Merge(checkSeparation(counts, reg))

	if b.AlternativeID == "" || !table.HasColumn(b.AlternativeID) {
		res = res.Merge(conjoint.Of(conjoint.Info(CodeNoAlternativeID,
			"no alternative id column; alternatives are indexed by their position in the choice set")))
	}
	res = res.Merge(conjoint.Of(summary(table, groups, b)))
	return res
}

// checkChosenSums requires exactly one chosen row per group. Sets in a
// single_with_none study without explicit none rows may have zero chosen rows.
func checkChosenSums(table *conjoint.Table, groups []group, opts Options, skip func(conjoint.Record) bool) conjoint.ValidationResult {
	var findings []conjoint.Finding
	total, noneChosen := 0, 0
	for _, g := range groups {
		sum, hasNoneRow := 0, false
		for _, i := range g.rows {
			row := table.Rows[i]
			if v, _ := conjoint.ParseFlag(row.Get(opts.Bindings.Chosen)); v {
				sum++
			}
			if skip != nil && skip(row) {
				hasNoneRow = true
			}
		}
		if sum == 0 && opts.ChoiceType == conjoint.ChoiceSingleWithNone && !hasNoneRow {
			noneChosen++
			continue
		}
		if sum == 1 {
			continue
		}
		total++
		if total <= maxReported {
			findings = append(findings, conjoint.Critical(CodeChosenSum,
				"choice set %q (respondent %s) has %d chosen alternatives; exactly one is required",
				g.choiceSet, g.respondent, sum).
				With("choice_set", g.choiceSet).With("respondent", g.respondent))
		}
	}
	findings = truncate(findings, total, CodeChosenSum)
	if noneChosen > 0 {
		findings = append(findings, conjoint.Info(CodeNoneChosen,
			"%d choice set(s) have no chosen alternative and are treated as a none choice", noneChosen))
	}
	return conjoint.Of(findings...)
}

// checkNeverChosenProfiles aggregates profiles that appear but are never chosen.
func checkNeverChosenProfiles(table *conjoint.Table, reg *conjoint.Registry, isChosen func(conjoint.Record) bool, skip func(conjoint.Record) bool) conjoint.ValidationResult {
	type tally struct{ shown, chosen int }
	profiles := make(map[string]*tally)
	names := reg.Names()
	parts := make([]string, len(names))
	for _, row := range table.Rows {
		if skip != nil && skip(row) {
			continue
		}
		for i, a := range names {
			parts[i] = a + "=" + row.Get(a)
		}
		key := strings.Join(parts, ", ")
		t := profiles[key]
		if t == nil {
			t = &tally{}
			profiles[key] = t
		}
		t.shown++
		if isChosen(row) {
			t.chosen++
		}
	}
	var never []string
	for k, t := range profiles {
		if t.chosen == 0 {
			never = append(never, k)
		}
	}
	if len(never) == 0 {
		return conjoint.ValidationResult{}
	}
	sort.Strings(never)
	example := never[0]
	return conjoint.Of(conjoint.Warning(CodeNeverChosenProfile,
		"%d of %d distinct product profiles were shown but never chosen (e.g. %s)",
		len(never), len(profiles), example).With("count", fmt.Sprint(len(never))))
}

// checkSetSizes warns when choice sets differ in size.
func checkSetSizes(groups []group) conjoint.ValidationResult {
	if len(groups) == 0 {
		return conjoint.ValidationResult{}
	}
	minSize, maxSize := len(groups[0].rows), len(groups[0].rows)
	for _, g := range groups[1:] {
		if n := len(g.rows); n < minSize {
			minSize = n
		} else if n > maxSize {
			maxSize = n
		}
	}
	if minSize == maxSize {
		return conjoint.ValidationResult{}
	}
	return conjoint.Of(conjoint.Warning(CodeUnbalancedSets,
		"choice sets have between %d and %d alternatives", minSize, maxSize))
}

// checkSeparation warns about levels that are always or never chosen.
func checkSeparation(counts map[string]map[string][2]int, reg *conjoint.Registry) conjoint.ValidationResult {
	var findings []conjoint.Finding
	for _, attr := range reg.Names() {
		for _, lvl := range reg.Levels(attr) {
			c := counts[attr][lvl]
			shown, chosen := c[0], c[1]
			if shown == 0 {
				continue
			}
			var what string
			switch chosen {
			case 0:
				what = "never"
			case shown:
				what = "always"
			default:
				continue
			}
			findings = append(findings, conjoint.Warning(CodeSeparation,
				"level %q of %q is %s chosen (%d times shown); its coefficient may not be identified",
				lvl, attr, what, shown).With("attribute", attr).With("level", lvl))
		}
	}
	return conjoint.Of(findings...)
}

func summary(table *conjoint.Table, groups []group, b conjoint.ColumnBindings) conjoint.Finding {
	respondents := make(map[string]struct{})
	for _, row := range table.Rows {
		respondents[row.Get(b.RespondentID)] = struct{}{}
	}
	mean := 0.0
	if len(groups) > 0 {
		mean = float64(len(table.Rows)) / float64(len(groups))
	}
	return conjoint.Info(CodeSummary,
		"%d rows, %d respondents, %d choice sets, %.2f alternatives per set",
		len(table.Rows), len(respondents), len(groups), mean).
		With("respondents", fmt.Sprint(len(respondents))).
		With("choice_sets", fmt.Sprint(len(groups)))
}

// LevelFrequencies counts how often each level was shown and chosen, skipping
// none rows.
func LevelFrequencies(obs []conjoint.Observation, reg *conjoint.Registry) []conjoint.LevelFrequency {
	var out []conjoint.LevelFrequency
	for _, attr := range reg.Names() {
		for _, lvl := range reg.Levels(attr) {
			f := conjoint.LevelFrequency{Attribute: attr, Level: lvl}
			for _, o := range obs {
				if o.IsNone || o.Reversed || o.Levels[attr] != lvl {
					continue
				}
				f.Shown++
				if o.Chosen {
					f.Chosen++
				}
			}
			if f.Shown > 0 {
				f.ChoicePct = 100 * float64(f.Chosen) / float64(f.Shown)
			}
			out = append(out, f)
		}
	}
	return out
}
