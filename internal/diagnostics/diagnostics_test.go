package diagnostics

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/design"
	"conjoint/internal/errors"
	"conjoint/internal/estimation"
	"conjoint/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitStatistics(t *testing.T) {
	model := &conjoint.ModelResult{
		NObs:          100,
		NParameters:   4,
		LogLikelihood: conjoint.LogLikelihood{Null: -100, Fitted: -70, Available: true},
		Convergence:   conjoint.Convergence{Converged: true},
	}
	fit := Fit(model, nil)

	assert.InDelta(t, 0.3, fit.McFaddenR2.Value(), 1e-12)
	assert.InDelta(t, 1-(-74.0)/-100.0, fit.AdjMcFaddenR2.Value(), 1e-12)
	assert.InDelta(t, 148, fit.AIC.Value(), 1e-12)
	assert.InDelta(t, 140+4*math.Log(100), fit.BIC.Value(), 1e-12)
	assert.InDelta(t, 60, fit.LRChiSq.Value(), 1e-12)
	assert.Equal(t, 4, fit.LRDF)
	assert.Less(t, fit.LRPValue.Value(), 1e-10)
	assert.Equal(t, QualityGood, fit.Quality)
	assert.Contains(t, fit.Assessment, "Good fit")
	assert.True(t, fit.RMSE.IsNA())
}

func TestFitWithoutLikelihood(t *testing.T) {
	fit := Fit(&conjoint.ModelResult{Convergence: conjoint.Convergence{Converged: true}}, nil)
	assert.True(t, fit.McFaddenR2.IsNA())
	assert.True(t, fit.AIC.IsNA())
	assert.Empty(t, fit.Quality)
}

func TestQualityBuckets(t *testing.T) {
	for r2, want := range map[float64]string{
		0.45: QualityExcellent,
		0.40: QualityGood,
		0.21: QualityGood,
		0.15: QualityAcceptable,
		0.10: QualityPoor,
		0.02: QualityPoor,
	} {
		assert.Equal(t, want, Quality(r2), "r2=%v", r2)
	}
}

func fitted(t *testing.T) (*conjoint.ModelResult, *design.Matrix) {
	t.Helper()
	gen := testkit.NewStudyGenerator(testkit.SmallStudyConfig())
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	obs, err := design.Parse(gen.Choice(), reg, conjoint.DefaultBindings(), conjoint.DefaultSettings())
	require.NoError(t, err)
	m, err := design.Build(obs, reg, design.Options{})
	require.NoError(t, err)
	model, err := estimation.NewConditionalLogit(estimation.Options{}).Estimate(context.Background(), m)
	require.NoError(t, err)
	return model, m
}

func TestHitRateDeterministicAndAboveChance(t *testing.T) {
	model, m := fitted(t)

	first := HitRate(model, m)
	second := HitRate(model, m)
	require.NotNil(t, first)
	assert.Equal(t, first, second)

	assert.Equal(t, 1000, first.ChoiceSets)
	assert.InDelta(t, 1.0/3, first.ChanceRate, 1e-12)
	assert.Greater(t, first.Rate, first.ChanceRate)
	assert.InDelta(t, first.Rate/first.ChanceRate, first.Improvement, 1e-12)
	assert.Contains(t, first.Assessment, "Hit rate")
}

func TestHitRateTiesGoToFirstRow(t *testing.T) {
	reg, err := conjoint.NewRegistry([]conjoint.AttributeDefinition{
		{Name: "Brand", Levels: []string{"A", "B"}},
	}, conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	var obs []conjoint.Observation
	for i := 0; i < 4; i++ {
		cs := fmt.Sprint(i)
		obs = append(obs,
			conjoint.Observation{Respondent: "r", ChoiceSet: cs, Alternative: "1", Chosen: i%2 == 0, Levels: map[string]string{"Brand": "A"}},
			conjoint.Observation{Respondent: "r", ChoiceSet: cs, Alternative: "2", Chosen: i%2 == 1, Levels: map[string]string{"Brand": "B"}},
		)
	}
	m, err := design.Build(obs, reg, design.Options{})
	require.NoError(t, err)

	flat := &conjoint.ModelResult{Terms: []conjoint.Term{{Attribute: "Brand", Level: "B", Column: 0, Estimate: 0}}}
	hr := HitRate(flat, m)
	require.NotNil(t, hr)
	assert.Equal(t, 2, hr.Hits)
	assert.InDelta(t, 0.5, hr.Rate, 1e-12)
	assert.InDelta(t, 1.0, hr.Improvement, 1e-12)
}

func TestHitRateNilWithoutChoices(t *testing.T) {
	assert.Nil(t, HitRate(&conjoint.ModelResult{}, nil))
}

func TestScoringMatrixBestWorst(t *testing.T) {
	gen := testkit.NewStudyGenerator(testkit.SmallStudyConfig())
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	s := conjoint.DefaultSettings()
	s.ChoiceType = conjoint.ChoiceBestWorst
	obs, err := design.Parse(gen.BestWorst(), reg, conjoint.DefaultBindings(), s)
	require.NoError(t, err)
	m, err := design.Build(obs, reg, design.Options{})
	require.NoError(t, err)

	scoring, err := ScoringMatrix(m, s.ChoiceType)
	require.NoError(t, err)
	assert.Equal(t, 2*m.NSets(), scoring.NSets())
	for _, set := range scoring.Sets {
		assert.GreaterOrEqual(t, set.Chosen, 0)
	}

	same, err := ScoringMatrix(m, conjoint.ChoiceSingle)
	require.NoError(t, err)
	assert.Same(t, m, same)
}

func TestSignificance(t *testing.T) {
	reg, err := conjoint.NewRegistry([]conjoint.AttributeDefinition{
		{Name: "Brand", Levels: []string{"A", "B", "C"}},
		{Name: "Size", Levels: []string{"S", "L"}},
	}, conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	rows := []conjoint.UtilityRow{
		{Attribute: "Brand", Level: "A", IsBaseline: true, PValue: conjoint.NA},
		{Attribute: "Brand", Level: "B", PValue: 0.01},
		{Attribute: "Brand", Level: "C", PValue: 0.3},
		{Attribute: "Size", Level: "S", IsBaseline: true, PValue: conjoint.NA},
		{Attribute: "Size", Level: "L", PValue: conjoint.NA},
	}
	sig := Significance(rows, reg)
	require.Len(t, sig, 2)
	assert.Equal(t, 2, sig[0].Levels)
	assert.Equal(t, 1, sig[0].Significant)
	assert.InDelta(t, 0.01, sig[0].MinPValue.Value(), 1e-12)
	assert.Equal(t, "1 of 2 tested levels differ significantly from the baseline", sig[0].Summary)
	assert.True(t, sig[1].MinPValue.IsNA())
	assert.Equal(t, "No level could be tested", sig[1].Summary)
}

func TestRatingFit(t *testing.T) {
	gen := testkit.NewStudyGenerator(testkit.SmallStudyConfig())
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	s := conjoint.DefaultSettings()
	s.AnalysisType = conjoint.AnalysisRating
	obs, err := design.Parse(gen.Rating(), reg, conjoint.DefaultBindings(), s)
	require.NoError(t, err)
	m, err := design.BuildRating(obs, reg)
	require.NoError(t, err)
	model, err := estimation.NewOLS(estimation.Options{}).Estimate(context.Background(), m)
	require.NoError(t, err)

	fit := RatingFit(model, m)
	assert.Equal(t, model.RSquared, fit.RSquared)
	assert.InDelta(t, model.ResidualSE.Value(), fit.RMSE.Value(), 0.05)
	assert.NotEmpty(t, fit.Quality)
	assert.True(t, fit.McFaddenR2.IsNA())
}

func chains(rng *rand.Rand, means []float64, n int) Draws {
	d := make(Draws, len(means))
	for c, mu := range means {
		d[c] = make([][]float64, n)
		for i := range d[c] {
			d[c][i] = []float64{mu + rng.NormFloat64()}
		}
	}
	return d
}

func TestConvergenceDiagnostics(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var diag ConvergenceDiagnoser = MCMCDiagnostics{}

	good, err := diag.Diagnose(chains(rng, []float64{0, 0, 0}, 2000), []string{"beta"})
	require.NoError(t, err)
	require.Len(t, good, 1)
	assert.InDelta(t, 1.0, good[0].RHat, 0.02)
	assert.Greater(t, good[0].ESS, 3000.0)
	assert.InDelta(t, 0, good[0].Autocorrelation, 0.1)

	bad, err := diag.Diagnose(chains(rng, []float64{0, 5}, 500), []string{"beta"})
	require.NoError(t, err)
	assert.Greater(t, bad[0].RHat, 2.0)
	assert.False(t, bad[0].Converged)
}

func TestConvergenceDiagnosticsInputChecks(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := MCMCDiagnostics{}.Diagnose(chains(rng, []float64{0}, 100), []string{"b"})
	assert.Error(t, err)
	_, err = MCMCDiagnostics{}.Diagnose(chains(rng, []float64{0, 0}, 3), []string{"b"})
	assert.Error(t, err)
	_, err = MCMCDiagnostics{}.Diagnose(chains(rng, []float64{0, 0}, 10), []string{"a", "b"})
	assert.Error(t, err)
}

func TestConvergenceDiagnosticsRaggedDraws(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	draws := make(Draws, 2)
	for c := range draws {
		draws[c] = make([][]float64, 10)
		for i := range draws[c] {
			draws[c][i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
		}
	}
	draws[1][4] = draws[1][4][:1]

	var err error
	require.NotPanics(t, func() {
		_, err = MCMCDiagnostics{}.Diagnose(draws, []string{"a", "b"})
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	assert.Contains(t, err.Error(), "chain 2 iteration 5")
}
