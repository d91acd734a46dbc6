package validation

import (
	"strconv"

	"conjoint/domain/conjoint"
)

// Rating validates a rating-based dataset: one numeric rating per profile row.
func Rating(table *conjoint.Table, reg *conjoint.Registry, opts Options) conjoint.ValidationResult {
	if table == nil || len(table.Rows) == 0 {
		return conjoint.Of(conjoint.Critical(CodeMissingValue, "the dataset has no rows"))
	}
	b := opts.Bindings
	required := append([]string{b.RespondentID, b.Rating}, reg.Names()...)
	res := checkColumns(table, required)
	if !res.IsValid() {
		return res
	}

	res = res.
		Merge(checkNotEmpty(table, append([]string{b.RespondentID, b.Rating}, reg.Names()...), nil)).
		Merge(checkRatings(table, b.Rating)).
		Merge(checkLevels(table, reg, nil))
	if !res.IsValid() {
		return res
	}

	counts := levelCounts(table, reg, nil, nil)
	minCount := opts.MinResponsesPerLevel
	if minCount <= 0 {
		minCount = conjoint.DefaultSettings().MinResponsesPerLevel
	}
	res = res.
		Merge(checkLevelBalance(counts, reg, minCount)).
		Merge(checkSampleSize(len(table.Rows), reg)).
		Merge(checkRatingVariation(table, b.Rating))

	respondents := make(map[string]struct{})
	for _, row := range table.Rows {
		respondents[row.Get(b.RespondentID)] = struct{}{}
	}
	return res.Merge(conjoint.Of(conjoint.Info(CodeSummary,
		"%d rated profiles from %d respondents", len(table.Rows), len(respondents))))
}

func checkRatings(table *conjoint.Table, column string) conjoint.ValidationResult {
	var findings []conjoint.Finding
	total := 0
	for i, row := range table.Rows {
		v := row.Get(column)
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			total++
			if total <= maxReported {
				findings = append(findings, conjoint.Critical(CodeInvalidRating,
					"row %d: rating %q is not numeric", i+1, v).With("row", strconv.Itoa(i+1)))
			}
		}
	}
	return conjoint.Of(truncate(findings, total, CodeInvalidRating)...)
}

// checkRatingVariation flags constant ratings, which leave nothing to explain.
func checkRatingVariation(table *conjoint.Table, column string) conjoint.ValidationResult {
	first, _ := strconv.ParseFloat(table.Rows[0].Get(column), 64)
	for _, row := range table.Rows[1:] {
		if v, _ := strconv.ParseFloat(row.Get(column), 64); v != first {
			return conjoint.ValidationResult{}
		}
	}
	return conjoint.Of(conjoint.Warning(CodeInvalidRating,
		"every rating equals %g; part-worths will all be zero", first))
}
