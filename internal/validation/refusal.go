package validation

import (
	"fmt"
	"strings"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"
)

// Validate dispatches to the validator matching the analysis settings.
func Validate(table *conjoint.Table, reg *conjoint.Registry, b conjoint.ColumnBindings, s conjoint.Settings) conjoint.ValidationResult {
	opts := OptionsFrom(b, s)
	switch {
	case s.AnalysisType == conjoint.AnalysisRating:
		return Rating(table, reg, opts)
	case s.ChoiceType == conjoint.ChoiceBestWorst:
		return BestWorst(table, reg, opts)
	default:
		return Choice(table, reg, opts)
	}
}

// Refusal turns a failed result into a structured refusal; it returns nil when
// the result is valid.
func Refusal(res conjoint.ValidationResult, code string) error {
	if res.IsValid() {
		return nil
	}
	if code == "" {
		code = errors.CodeDataValidation
	}
	messages := make([]string, len(res.Errors))
	for i, f := range res.Errors {
		messages[i] = f.Message
	}
	problem := fmt.Sprintf("%d critical data problem(s): %s", len(res.Errors), res.Errors[0].Message)
	err := errors.Refuse(code, "Data failed validation", problem,
		"estimates from data that breaks the choice structure are not interpretable",
		fixesFor(res.Errors)...)
	return err.WithDetail("errors", strings.Join(messages, "\n")).
		WithDetail("error_count", len(res.Errors)).
		WithDetail("warning_count", len(res.Warnings))
}

func fixesFor(findings []conjoint.Finding) []string {
	seen := make(map[string]bool)
	var fixes []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			fixes = append(fixes, s)
		}
	}
	for _, f := range findings {
		switch f.Code {
		case CodeMissingColumn:
			add("Rename the data columns or update the column settings in the study configuration")
		case CodeMissingValue:
			add("Fill or drop rows with blank cells")
		case CodeInvalidChosen, CodeInvalidFlag:
			add("Code choice columns as 0 or 1")
		case CodeUnknownLevel:
			add("Add the missing levels to the attribute definitions or correct the spelling in the data")
		case CodeChosenSum:
			add("Make sure exactly one alternative is chosen in every choice set")
		case CodeBestCount, CodeWorstCount, CodeBestEqualsWorst:
			add("Mark exactly one best and one different worst alternative per choice set")
		case CodeInvalidRating:
			add("Use numeric ratings")
		}
	}
	if len(fixes) == 0 {
		add("Review the listed data problems")
	}
	return fixes
}
