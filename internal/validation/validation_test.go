package validation

import (
	"strings"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"
	"conjoint/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallStudy(t *testing.T) (*conjoint.Table, *conjoint.Registry) {
	t.Helper()
	gen := testkit.NewStudyGenerator(testkit.SmallStudyConfig())
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	return gen.Choice(), reg
}

func defaultOptions() Options {
	return OptionsFrom(conjoint.DefaultBindings(), conjoint.DefaultSettings())
}

func codes(findings []conjoint.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func TestChoice_CleanDataPasses(t *testing.T) {
	table, reg := smallStudy(t)
	res := Choice(table, reg, defaultOptions())
	assert.True(t, res.IsValid(), "%v", res.Errors)
	assert.Contains(t, codes(res.Info), CodeSummary)
}

func TestChoice_ChosenSumOfTwoNamesTheSet(t *testing.T) {
	table, reg := smallStudy(t)
	// first set belongs to respondent 1, rows 0..2
	table.Rows[0]["chosen"] = "1"
	table.Rows[1]["chosen"] = "1"
	table.Rows[2]["chosen"] = "0"

	res := Choice(table, reg, defaultOptions())
	require.False(t, res.IsValid())
	require.Len(t, res.Errors, 1)
	f := res.Errors[0]
	assert.Equal(t, CodeChosenSum, f.Code)
	assert.Equal(t, table.Rows[0]["choice_set_id"], f.Context["choice_set"])
	assert.Contains(t, f.Message, "2 chosen")
}

func TestChoice_MissingColumn(t *testing.T) {
	table, reg := smallStudy(t)
	opts := defaultOptions()
	opts.Bindings.Chosen = "picked"

	res := Choice(table, reg, opts)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeMissingColumn, res.Errors[0].Code)
	assert.Equal(t, "picked", res.Errors[0].Context["column"])
}

func TestChoice_UnknownLevelAndBadFlag(t *testing.T) {
	table, reg := smallStudy(t)
	table.Rows[4]["Price"] = "Free"
	table.Rows[5]["chosen"] = "yes"

	res := Choice(table, reg, defaultOptions())
	assert.ElementsMatch(t, []string{CodeInvalidChosen, CodeUnknownLevel}, codes(res.Errors))
}

func TestChoice_MissingValue(t *testing.T) {
	table, reg := smallStudy(t)
	table.Rows[7]["Size"] = " "
	res := Choice(table, reg, defaultOptions())
	require.False(t, res.IsValid())
	assert.Equal(t, CodeMissingValue, res.Errors[0].Code)
	assert.Equal(t, "8", res.Errors[0].Context["row"])
}

func TestChoice_UnshownLevelWarns(t *testing.T) {
	table, reg := smallStudy(t)
	// brand B never shown
	for i := range table.Rows {
		if table.Rows[i]["Brand"] == "B" {
			table.Rows[i]["Brand"] = "A"
		}
	}
	res := Choice(table, reg, defaultOptions())
	require.True(t, res.IsValid())
	assert.Contains(t, codes(res.Warnings), CodeLevelNeverShown)
}

func TestChoice_SmallSampleWarning(t *testing.T) {
	cfg := testkit.SmallStudyConfig()
	cfg.Respondents = 2
	gen := testkit.NewStudyGenerator(cfg)
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)

	res := Choice(gen.Choice(), reg, defaultOptions())
	require.True(t, res.IsValid())
	assert.Contains(t, codes(res.Warnings), CodeSmallSample)
	assert.Equal(t, 20*3*3, RecommendedTasks(reg))
}

func TestChoice_NoneRowsSkipLevelChecks(t *testing.T) {
	cfg := testkit.SmallStudyConfig()
	cfg.IncludeNone = true
	gen := testkit.NewStudyGenerator(cfg)
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)

	opts := defaultOptions()
	opts.ChoiceType = conjoint.ChoiceSingleWithNone
	res := Choice(gen.Choice(), reg, opts)
	assert.True(t, res.IsValid(), "%v", res.Errors)

	opts.ChoiceType = conjoint.ChoiceSingle
	res = Choice(gen.Choice(), reg, opts)
	assert.Contains(t, codes(res.Errors), CodeUnknownLevel)
}

func TestChoice_ImplicitNoneAllowsEmptySets(t *testing.T) {
	table, reg := smallStudy(t)
	for i := 0; i < 3; i++ {
		table.Rows[i]["chosen"] = "0"
	}
	opts := defaultOptions()
	opts.ChoiceType = conjoint.ChoiceSingleWithNone
	res := Choice(table, reg, opts)
	assert.True(t, res.IsValid())
	assert.Contains(t, codes(res.Info), CodeNoneChosen)
}

func TestBestWorst_SameRowRejected(t *testing.T) {
	cfg := testkit.SmallStudyConfig()
	cfg.PerRespondentSetIDs = true
	gen := testkit.NewStudyGenerator(cfg)
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	table := gen.BestWorst()

	for i := 0; i < 3; i++ {
		table.Rows[i]["best"] = "0"
		table.Rows[i]["worst"] = "0"
	}
	table.Rows[0]["best"] = "1"
	table.Rows[0]["worst"] = "1"

	res := BestWorst(table, reg, defaultOptions())
	require.False(t, res.IsValid())
	var msgs []string
	for _, f := range res.Errors {
		msgs = append(msgs, f.Message)
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, `"CS1"`)
	assert.Contains(t, codes(res.Errors), CodeBestEqualsWorst)
}

// tinyStudy builds a choice table over A{x,y} and B{p,q}. Each row is
// respondent, choice set, chosen, A, B.
func tinyStudy(t *testing.T, rows [][5]string) (*conjoint.Table, *conjoint.Registry) {
	t.Helper()
	reg, err := conjoint.NewRegistry([]conjoint.AttributeDefinition{
		{Name: "A", Levels: []string{"x", "y"}},
		{Name: "B", Levels: []string{"p", "q"}},
	}, conjoint.BaselineFirstLevel)
	require.NoError(t, err)

	table := &conjoint.Table{Headers: []string{"resp_id", "choice_set_id", "chosen", "A", "B"}}
	for _, r := range rows {
		table.Rows = append(table.Rows, conjoint.Record{
			"resp_id": r[0], "choice_set_id": r[1], "chosen": r[2], "A": r[3], "B": r[4],
		})
	}
	return table, reg
}

func TestChoice_DesignWarnings(t *testing.T) {
	// x is chosen in both sets, y in neither
	separated := [][5]string{
		{"1", "s1", "1", "x", "p"},
		{"1", "s1", "0", "y", "q"},
		{"1", "s2", "1", "x", "q"},
		{"1", "s2", "0", "y", "p"},
	}
	unbalanced := [][5]string{
		{"1", "s1", "1", "x", "p"},
		{"1", "s1", "0", "y", "q"},
		{"1", "s2", "0", "x", "q"},
		{"1", "s2", "1", "y", "p"},
		{"1", "s2", "0", "x", "p"},
	}

	tests := []struct {
		name     string
		rows     [][5]string
		minCount int
		code     string
		context  map[string]string
		message  string
	}{
		{
			name:     "rare level",
			rows:     separated,
			minCount: 30,
			code:     CodeLowLevelCount,
			context:  map[string]string{"attribute": "A", "level": "x"},
			message:  "appears 2 time(s), below the minimum of 30",
		},
		{
			name:     "profile never chosen",
			rows:     separated,
			minCount: 1,
			code:     CodeNeverChosenProfile,
			context:  map[string]string{"count": "2"},
			message:  "2 of 4 distinct product profiles",
		},
		{
			name:     "uneven set sizes",
			rows:     unbalanced,
			minCount: 1,
			code:     CodeUnbalancedSets,
			message:  "between 2 and 3 alternatives",
		},
		{
			name:     "level always chosen",
			rows:     separated,
			minCount: 1,
			code:     CodeSeparation,
			context:  map[string]string{"attribute": "A", "level": "x"},
			message:  "is always chosen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, reg := tinyStudy(t, tt.rows)
			opts := defaultOptions()
			opts.MinResponsesPerLevel = tt.minCount

			res := Choice(table, reg, opts)
			require.True(t, res.IsValid(), "%v", res.Errors)

			var found *conjoint.Finding
			for i := range res.Warnings {
				if res.Warnings[i].Code == tt.code {
					found = &res.Warnings[i]
					break
				}
			}
			require.NotNil(t, found, "warnings: %v", codes(res.Warnings))
			assert.Equal(t, conjoint.SeverityWarning, found.Severity)
			assert.Contains(t, found.Message, tt.message)
			for k, v := range tt.context {
				assert.Equal(t, v, found.Context[k], k)
			}
		})
	}
}

func TestChoice_NeverChosenLevelSeparated(t *testing.T) {
	table, reg := tinyStudy(t, [][5]string{
		{"1", "s1", "1", "x", "p"},
		{"1", "s1", "0", "y", "q"},
		{"1", "s2", "1", "x", "q"},
		{"1", "s2", "0", "y", "p"},
	})
	opts := defaultOptions()
	opts.MinResponsesPerLevel = 1

	res := Choice(table, reg, opts)
	var separated []string
	for _, f := range res.Warnings {
		if f.Code == CodeSeparation {
			separated = append(separated, f.Context["attribute"]+"="+f.Context["level"])
		}
	}
	assert.ElementsMatch(t, []string{"A=x", "A=y"}, separated)
	assert.NotContains(t, codes(res.Warnings), CodeLowLevelCount)
	assert.NotContains(t, codes(res.Warnings), CodeUnbalancedSets)
}

func TestChoice_GeneratedDesignHasNoDesignWarnings(t *testing.T) {
	table, reg := smallStudy(t)
	res := Choice(table, reg, defaultOptions())
	require.True(t, res.IsValid())
	got := codes(res.Warnings)
	assert.NotContains(t, got, CodeLowLevelCount)
	assert.NotContains(t, got, CodeUnbalancedSets)
	assert.NotContains(t, got, CodeSeparation)
}

func TestBestWorst_CountsPerSet(t *testing.T) {
	tests := []struct {
		name   string
		best   [3]string
		worst  [3]string
		code   string
		amount string
	}{
		{name: "two best", best: [3]string{"1", "1", "0"}, worst: [3]string{"0", "0", "1"}, code: CodeBestCount, amount: "2 best"},
		{name: "no best", best: [3]string{"0", "0", "0"}, worst: [3]string{"0", "0", "1"}, code: CodeBestCount, amount: "0 best"},
		{name: "no worst", best: [3]string{"1", "0", "0"}, worst: [3]string{"0", "0", "0"}, code: CodeWorstCount, amount: "0 worst"},
		{name: "two worst", best: [3]string{"1", "0", "0"}, worst: [3]string{"0", "1", "1"}, code: CodeWorstCount, amount: "2 worst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testkit.SmallStudyConfig()
			cfg.PerRespondentSetIDs = true
			gen := testkit.NewStudyGenerator(cfg)
			reg, err := gen.Registry(conjoint.BaselineFirstLevel)
			require.NoError(t, err)
			table := gen.BestWorst()

			// rows 0..2 are set CS1 of respondent 1
			for i := 0; i < 3; i++ {
				table.Rows[i]["best"] = tt.best[i]
				table.Rows[i]["worst"] = tt.worst[i]
			}

			res := BestWorst(table, reg, defaultOptions())
			require.False(t, res.IsValid())
			require.Len(t, res.Errors, 1, "%v", res.Errors)
			f := res.Errors[0]
			assert.Equal(t, tt.code, f.Code)
			assert.Equal(t, conjoint.SeverityCritical, f.Severity)
			assert.Contains(t, f.Message, `"CS1"`)
			assert.Contains(t, f.Message, tt.amount)
			assert.Equal(t, "CS1", f.Context["choice_set"])
			assert.Equal(t, table.Rows[0]["resp_id"], f.Context["respondent"])
		})
	}
}

func TestRating_NonNumericRejected(t *testing.T) {
	gen := testkit.NewStudyGenerator(testkit.SmallStudyConfig())
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	table := gen.Rating()

	res := Rating(table, reg, defaultOptions())
	assert.True(t, res.IsValid(), "%v", res.Errors)

	table.Rows[3]["rating"] = "high"
	res = Rating(table, reg, defaultOptions())
	assert.Equal(t, []string{CodeInvalidRating}, codes(res.Errors))
}

func TestRefusal(t *testing.T) {
	assert.NoError(t, Refusal(conjoint.ValidationResult{}, ""))

	res := conjoint.Of(conjoint.Critical(CodeChosenSum, "choice set %q has 2", "7"))
	err := Refusal(res, "")
	require.Error(t, err)
	app, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeDataValidation, app.Code)
	assert.NotEmpty(t, app.Fixes)
	assert.Contains(t, app.Message, `choice set "7"`)
}

func TestLevelFrequencies(t *testing.T) {
	reg, err := conjoint.NewRegistry([]conjoint.AttributeDefinition{{Name: "A", Levels: []string{"x", "y"}}}, conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	obs := []conjoint.Observation{
		{Levels: map[string]string{"A": "x"}, Chosen: true},
		{Levels: map[string]string{"A": "x"}},
		{Levels: map[string]string{"A": "y"}},
		{IsNone: true, Chosen: true},
	}
	freqs := LevelFrequencies(obs, reg)
	require.Len(t, freqs, 2)
	assert.Equal(t, 2, freqs[0].Shown)
	assert.InDelta(t, 50.0, freqs[0].ChoicePct, 1e-9)
	assert.Equal(t, 0, freqs[1].Chosen)
}
