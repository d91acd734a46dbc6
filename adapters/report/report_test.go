package report

import (
	"math"
	"strings"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *conjoint.AnalysisReport {
	return &conjoint.AnalysisReport{
		Study:        "phones",
		AnalysisType: conjoint.AnalysisChoice,
		ChoiceType:   conjoint.ChoiceSingle,
		Model:        &conjoint.ModelResult{Method: conjoint.MethodStratifiedLogit, Degraded: true, DegradedReason: "primary estimator failed"},
		Utilities: []conjoint.UtilityRow{
			{Attribute: "Brand", Level: "A|1", Utility: -0.25, StdError: conjoint.Float(math.NaN()),
				CILower: conjoint.Float(math.NaN()), CIUpper: conjoint.Float(math.NaN()), PValue: conjoint.Float(math.NaN()), IsBaseline: true},
			{Attribute: "Brand", Level: "B", Utility: 0.25, StdError: 0.1, CILower: 0.05, CIUpper: 0.45, PValue: 0.012, Significance: "*"},
		},
		Importance: []conjoint.ImportanceRow{{Attribute: "Brand", Label: "Phone brand", Range: 0.5, ImportancePct: 100, Rank: 1}},
		Fit: conjoint.FitStatistics{
			LogLikNull: -120, LogLikFitted: -90, McFaddenR2: 0.25, AdjMcFaddenR2: 0.22,
			AIC: 184, BIC: 190, LRChiSq: 60, LRDF: 2, LRPValue: 1e-13, Assessment: "Good fit",
		},
		HitRate:  &conjoint.HitRate{ChoiceSets: 10, Hits: 7, Rate: 0.7, ChanceRate: 1.0 / 3, Improvement: 2.1},
		Warnings: []conjoint.Finding{{Severity: conjoint.SeverityWarning, Code: "LOW_RESPONSES", Message: "level B shown 12 times"}},
		Simulator: &conjoint.SimulatorSeed{
			Products: []conjoint.Product{
				{Name: "Best levels", Levels: map[string]string{"Brand": "B"}},
				{Name: "Reference levels", Levels: map[string]string{"Brand": "A|1"}},
			},
			Shares: []conjoint.ShareRow{{Product: "Best levels", Utility: 0.25, Share: 0.62}, {Product: "Reference levels", Utility: -0.25, Share: 0.38}},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md, err := NewRenderer().Markdown(sample())
	require.NoError(t, err)
	out := string(md)

	assert.True(t, strings.HasPrefix(out, "# Conjoint Analysis: phones\n"))
	assert.Contains(t, out, "- Method: `fallback-stratified-logit`")
	assert.Contains(t, out, "> DEGRADED: primary estimator failed")
	assert.Contains(t, out, "| 1 | Phone brand | 100.0% | 0.500 |")
	assert.Contains(t, out, `| Brand | A\|1 (ref) | -0.250 | NA | NA | NA |`)
	assert.Contains(t, out, "| Brand | B | 0.250 | 0.100 | [0.050, 0.450] | 0.0120 | * |")
	assert.Contains(t, out, "| McFadden R² | 0.2500 |")
	assert.Contains(t, out, "7 of 10 choice sets predicted correctly (70.0%")
	assert.Contains(t, out, "| Best levels | B | 0.250 | 62.0% |")
	assert.Contains(t, out, "- **warning** `LOW_RESPONSES`: level B shown 12 times")
}

func TestMarkdownRatingFit(t *testing.T) {
	r := sample()
	r.AnalysisType = conjoint.AnalysisRating
	r.Fit = conjoint.FitStatistics{RSquared: 0.64, AdjRSquared: 0.6, RMSE: conjoint.Float(math.NaN())}
	md, err := NewRenderer().Markdown(r)
	require.NoError(t, err)
	assert.Contains(t, string(md), "| R² | 0.6400 |")
	assert.Contains(t, string(md), "| RMSE | NA |")
	assert.NotContains(t, string(md), "McFadden")
}

func TestHTML(t *testing.T) {
	page, err := NewRenderer().HTML(sample())
	require.NoError(t, err)
	out := string(page)
	assert.Contains(t, out, "<title>Conjoint Analysis: phones</title>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "Part-Worth Utilities</h2>")
}

func TestRenderNil(t *testing.T) {
	_, err := NewRenderer().HTML(nil)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
