package validation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"conjoint/domain/conjoint"
)

// maxReported caps per-check findings so a corrupt file does not produce
// thousands of identical messages.
const maxReported = 20

// Finding codes.
const (
	CodeMissingColumn      = "MISSING_COLUMN"
	CodeMissingValue       = "MISSING_VALUE"
	CodeInvalidChosen      = "INVALID_CHOSEN_VALUE"
	CodeUnknownLevel       = "UNKNOWN_LEVEL"
	CodeChosenSum          = "CHOSEN_SUM"
	CodeInvalidRating      = "INVALID_RATING"
	CodeBestCount          = "BEST_COUNT"
	CodeWorstCount         = "WORST_COUNT"
	CodeBestEqualsWorst    = "BEST_EQUALS_WORST"
	CodeInvalidFlag        = "INVALID_FLAG"
	CodeLowLevelCount      = "LOW_LEVEL_COUNT"
	CodeLevelNeverShown    = "LEVEL_NEVER_SHOWN"
	CodeNeverChosenProfile = "PROFILE_NEVER_CHOSEN"
	CodeUnbalancedSets     = "UNBALANCED_CHOICE_SETS"
	CodeSmallSample        = "SMALL_SAMPLE"
	CodeSeparation         = "PERFECT_SEPARATION"
	CodeNoAlternativeID    = "NO_ALTERNATIVE_ID"
	CodeNoneChosen         = "NONE_CHOSEN"
	CodeSummary            = "DATA_SUMMARY"
	CodeTruncated          = "TRUNCATED"
)

// group is one (respondent, choice set) bucket of raw rows.
type group struct {
	respondent string
	choiceSet  string
	rows       []int
}

// groupRows buckets row indices by composite key, preserving first-seen order.
func groupRows(table *conjoint.Table, b conjoint.ColumnBindings) []group {
	index := make(map[string]int)
	var groups []group
	for i, row := range table.Rows {
		resp, cs := row.Get(b.RespondentID), row.Get(b.ChoiceSet)
		key := conjoint.GroupKey(resp, cs)
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, group{respondent: resp, choiceSet: cs})
		}
		groups[gi].rows = append(groups[gi].rows, i)
	}
	return groups
}

// checkColumns verifies every required column exists.
func checkColumns(table *conjoint.Table, columns []string) conjoint.ValidationResult {
	var findings []conjoint.Finding
	for _, col := range columns {
		if col == "" {
			continue
		}
		if !table.HasColumn(col) {
			findings = append(findings, conjoint.Critical(CodeMissingColumn,
				"required column %q is not present in the data", col).With("column", col))
		}
	}
	return conjoint.Of(findings...)
}

// checkNotEmpty flags blank cells in key columns.
func checkNotEmpty(table *conjoint.Table, columns []string, skip func(conjoint.Record) bool) conjoint.ValidationResult {
	var findings []conjoint.Finding
	total := 0
	for i, row := range table.Rows {
		for _, col := range columns {
			if skip != nil && skip(row) {
				continue
			}
			if row.Get(col) == "" {
				total++
				if total <= maxReported {
					findings = append(findings, conjoint.Critical(CodeMissingValue,
						"row %d has a missing value in column %q", i+1, col).
						With("row", strconv.Itoa(i+1)).With("column", col))
				}
			}
		}
	}
	return conjoint.Of(truncate(findings, total, CodeMissingValue)...)
}

// checkFlags requires 0/1 values in column.
func checkFlags(table *conjoint.Table, column, code string) conjoint.ValidationResult {
	var findings []conjoint.Finding
	total := 0
	for i, row := range table.Rows {
		v := row.Get(column)
		if v == "" {
			continue
		}
		if _, ok := conjoint.ParseFlag(v); !ok {
			total++
			if total <= maxReported {
				findings = append(findings, conjoint.Critical(code,
					"row %d: column %q has value %q; only 0 and 1 are allowed", i+1, column, v).
					With("row", strconv.Itoa(i+1)))
			}
		}
	}
	return conjoint.Of(truncate(findings, total, code)...)
}

// checkLevels flags attribute values outside the configured level sets.
func checkLevels(table *conjoint.Table, reg *conjoint.Registry, skip func(conjoint.Record) bool) conjoint.ValidationResult {
	var findings []conjoint.Finding
	for _, attr := range reg.Names() {
		unknown := make(map[string]int)
		for _, row := range table.Rows {
			if skip != nil && skip(row) {
				continue
			}
			v := row.Get(attr)
			if v == "" {
				continue
			}
			if !reg.HasLevel(attr, v) {
				unknown[v]++
			}
		}
		values := make([]string, 0, len(unknown))
		for v := range unknown {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			findings = append(findings, conjoint.Critical(CodeUnknownLevel,
				"attribute %q has value %q in %d row(s) that is not a configured level (levels: %s)",
				attr, v, unknown[v], strings.Join(reg.Levels(attr), ", ")).
				With("attribute", attr).With("level", v))
		}
	}
	return conjoint.Of(findings...)
}

// levelCounts returns shown/chosen counts per attribute level over non-none rows.
func levelCounts(table *conjoint.Table, reg *conjoint.Registry, isChosen func(conjoint.Record) bool, skip func(conjoint.Record) bool) map[string]map[string][2]int {
	counts := make(map[string]map[string][2]int, reg.Len())
	for _, attr := range reg.Names() {
		counts[attr] = make(map[string][2]int)
	}
	for _, row := range table.Rows {
		if skip != nil && skip(row) {
			continue
		}
		chosen := isChosen != nil && isChosen(row)
		for _, attr := range reg.Names() {
			v := row.Get(attr)
			c := counts[attr][v]
			c[0]++
			if chosen {
				c[1]++
			}
			counts[attr][v] = c
		}
	}
	return counts
}

// checkLevelBalance warns about rarely shown or never shown levels.
func checkLevelBalance(counts map[string]map[string][2]int, reg *conjoint.Registry, minCount int) conjoint.ValidationResult {
	var findings []conjoint.Finding
	for _, attr := range reg.Names() {
		for _, lvl := range reg.Levels(attr) {
			shown := counts[attr][lvl][0]
			switch {
			case shown == 0:
				findings = append(findings, conjoint.Warning(CodeLevelNeverShown,
					"level %q of %q never appears in the data; its utility cannot be estimated", lvl, attr).
					With("attribute", attr).With("level", lvl))
			case shown < minCount:
				findings = append(findings, conjoint.Warning(CodeLowLevelCount,
					"level %q of %q appears %d time(s), below the minimum of %d", lvl, attr, shown, minCount).
					With("attribute", attr).With("level", lvl))
			}
		}
	}
	return conjoint.Of(findings...)
}

// checkSampleSize warns when the number of tasks is below 20 × attributes × max levels.
func checkSampleSize(tasks int, reg *conjoint.Registry) conjoint.ValidationResult {
	recommended := RecommendedTasks(reg)
	if tasks >= recommended {
		return conjoint.ValidationResult{}
	}
	return conjoint.Of(conjoint.Warning(CodeSmallSample,
		"%d tasks observed; at least %d are recommended for %d attributes with up to %d levels",
		tasks, recommended, reg.Len(), reg.MaxLevels()))
}

// RecommendedTasks is the heuristic minimum number of tasks for a study.
func RecommendedTasks(reg *conjoint.Registry) int {
	return 20 * reg.Len() * reg.MaxLevels()
}

func truncate(findings []conjoint.Finding, total int, code string) []conjoint.Finding {
	if total <= maxReported || len(findings) == 0 {
		return findings
	}
	sev := findings[0].Severity
	return append(findings, conjoint.Finding{
		Severity: sev,
		Code:     CodeTruncated,
		Message:  fmt.Sprintf("%d more %s finding(s) not listed", total-maxReported, code),
	})
}
