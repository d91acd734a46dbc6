package validation

import (
	"conjoint/domain/conjoint"
)

// BestWorst validates best-worst data: each choice set needs exactly one best
// row and one worst row, and they must differ.
func BestWorst(table *conjoint.Table, reg *conjoint.Registry, opts Options) conjoint.ValidationResult {
	if table == nil || len(table.Rows) == 0 {
		return conjoint.Of(conjoint.Critical(CodeMissingValue, "the dataset has no rows"))
	}
	b := opts.Bindings
	required := append([]string{b.RespondentID, b.ChoiceSet, b.Best, b.Worst}, reg.Names()...)
	res := checkColumns(table, required)
	if !res.IsValid() {
		return res
	}

	res = res.
		Merge(checkNotEmpty(table, append([]string{b.RespondentID, b.ChoiceSet, b.Best, b.Worst}, reg.Names()...), nil)).
		Merge(checkFlags(table, b.Best, CodeInvalidFlag)).
		Merge(checkFlags(table, b.Worst, CodeInvalidFlag)).
		Merge(checkLevels(table, reg, nil))
	if !res.IsValid() {
		return res
	}

	groups := groupRows(table, b)
	res = res.Merge(checkBestWorstCounts(table, groups, b))
	if !res.IsValid() {
		return res
	}

	isBest := func(r conjoint.Record) bool {
		v, _ := conjoint.ParseFlag(r.Get(b.Best))
		return v
	}
	counts := levelCounts(table, reg, isBest, nil)
	minCount := opts.MinResponsesPerLevel
	if minCount <= 0 {
		minCount = conjoint.DefaultSettings().MinResponsesPerLevel
	}
	return res.
		Merge(checkLevelBalance(counts, reg, minCount)).
		Merge(checkSetSizes(groups)).
		Merge(checkSampleSize(len(groups), reg)).
		Merge(conjoint.Of(summary(table, groups, b)))
}

func checkBestWorstCounts(table *conjoint.Table, groups []group, b conjoint.ColumnBindings) conjoint.ValidationResult {
	var findings []conjoint.Finding
	total := 0
	report := func(f conjoint.Finding) {
		total++
		if total <= maxReported {
			findings = append(findings, f)
		}
	}
	for _, g := range groups {
		best, worst, same := 0, 0, false
		for _, i := range g.rows {
			row := table.Rows[i]
			isBest, _ := conjoint.ParseFlag(row.Get(b.Best))
			isWorst, _ := conjoint.ParseFlag(row.Get(b.Worst))
			if isBest {
				best++
			}
			if isWorst {
				worst++
			}
			if isBest && isWorst {
				same = true
			}
		}
		if best != 1 {
			report(conjoint.Critical(CodeBestCount,
				"choice set %q (respondent %s) has %d best alternatives; exactly one is required",
				g.choiceSet, g.respondent, best).
				With("choice_set", g.choiceSet).With("respondent", g.respondent))
		}
		if worst != 1 {
			report(conjoint.Critical(CodeWorstCount,
				"choice set %q (respondent %s) has %d worst alternatives; exactly one is required",
				g.choiceSet, g.respondent, worst).
				With("choice_set", g.choiceSet).With("respondent", g.respondent))
		}
		if same {
			report(conjoint.Critical(CodeBestEqualsWorst,
				"choice set %q (respondent %s) marks the same alternative as best and worst",
				g.choiceSet, g.respondent).
				With("choice_set", g.choiceSet).With("respondent", g.respondent))
		}
	}
	return conjoint.Of(truncate(findings, total, "best-worst")...)
}
