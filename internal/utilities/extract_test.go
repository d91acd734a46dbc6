package utilities

import (
	"math"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/design"
	"conjoint/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func model() *conjoint.ModelResult {
	return &conjoint.ModelResult{Terms: []conjoint.Term{
		{Name: "I+G::y", Attribute: "I+G", Level: "y", Column: 0, Estimate: 0.6, StdError: 0.2},
		{Name: "Price::Mid", Attribute: "Price", Level: "Mid", Column: 1, Estimate: -0.5, StdError: 0.1},
		{Name: "Price::High", Attribute: "Price", Level: "High", Column: 2, Estimate: conjoint.NA, StdError: conjoint.NA},
		{Name: design.NoneColumnName, Column: 3, Constant: true, Estimate: -1.2, StdError: 0.3},
	}}
}

func registry(t *testing.T, policy conjoint.BaselinePolicy) *conjoint.Registry {
	t.Helper()
	reg, err := conjoint.NewRegistry([]conjoint.AttributeDefinition{
		{Name: "I+G", Levels: []string{"x.(1)", "y"}},
		{Name: "Price", Levels: []string{"Low", "Mid", "High"}},
	}, policy)
	require.NoError(t, err)
	return reg
}

func byLevel(rows []conjoint.UtilityRow) map[string]conjoint.UtilityRow {
	out := make(map[string]conjoint.UtilityRow)
	for _, r := range rows {
		out[r.Attribute+"/"+r.Level] = r
	}
	return out
}

func TestExtractZeroCentresWithOneBaseline(t *testing.T) {
	res, err := Extract(model(), registry(t, conjoint.BaselineFirstLevel), Options{ConfidenceLevel: 0.95, NoneLabel: "None of these"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)

	sums := map[string]float64{}
	baselines := map[string]int{}
	for _, r := range res.Rows {
		sums[r.Attribute] += r.Utility
		if r.IsBaseline {
			baselines[r.Attribute]++
		}
	}
	for attr, s := range sums {
		assert.InDelta(t, 0, s, 1e-12, attr)
		assert.Equal(t, 1, baselines[attr], attr)
	}

	rows := byLevel(res.Rows)
	base := rows["I+G/x.(1)"]
	assert.InDelta(t, -0.3, base.Utility, 1e-12)
	assert.Equal(t, BaselineInterpretation, base.Interpretation)
	assert.True(t, base.PValue.IsNA())
	assert.True(t, base.CILower.IsNA())

	y := rows["I+G/y"]
	assert.InDelta(t, 0.3, y.Utility, 1e-12)
	z := 1.959963984540054
	assert.InDelta(t, 0.6-z*0.2-0.3, y.CILower.Value(), 1e-9)
	assert.InDelta(t, 0.6+z*0.2-0.3, y.CIUpper.Value(), 1e-9)
	assert.InDelta(t, 0.0027, y.PValue.Value(), 1e-4)
	assert.Equal(t, "**", y.Significance)
	assert.Equal(t, "Somewhat preferred **", y.Interpretation)
}

func TestExtractCoercesNACoefficients(t *testing.T) {
	res, err := Extract(model(), registry(t, conjoint.BaselineFirstLevel), Options{ConfidenceLevel: 0.95})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, codeNACoefficient, res.Warnings[0].Code)

	rows := byLevel(res.Rows)
	// raw Low 0, Mid -0.5, High 0 (coerced): mean -1/6
	assert.InDelta(t, 1.0/6, rows["Price/High"].Utility, 1e-12)
	assert.True(t, rows["Price/High"].PValue.IsNA())
	for _, r := range res.Rows {
		assert.False(t, math.IsNaN(r.Utility))
	}
}

func TestExtractNoneRow(t *testing.T) {
	res, err := Extract(model(), registry(t, conjoint.BaselineFirstLevel), Options{ConfidenceLevel: 0.95, NoneLabel: "None of these"})
	require.NoError(t, err)
	require.NotNil(t, res.None)
	assert.Equal(t, "None of these", res.None.Level)
	assert.InDelta(t, -1.2, res.None.Utility, 1e-12)
	assert.Equal(t, "***", res.None.Significance)
}

func TestExtractLastLevelReference(t *testing.T) {
	reg := registry(t, conjoint.BaselineLastLevel)
	m := &conjoint.ModelResult{Terms: []conjoint.Term{
		{Attribute: "I+G", Level: "x.(1)", Estimate: 1, StdError: 0.5},
		{Attribute: "Price", Level: "Low", Estimate: 1.5, StdError: 0.5},
		{Attribute: "Price", Level: "Mid", Estimate: 0.3, StdError: 0.5},
	}}
	res, err := Extract(m, reg, Options{ConfidenceLevel: 0.9})
	require.NoError(t, err)
	rows := byLevel(res.Rows)
	assert.True(t, rows["I+G/y"].IsBaseline)
	assert.True(t, rows["Price/High"].IsBaseline)
	assert.InDelta(t, -0.6, rows["Price/High"].Utility, 1e-12)
}

func TestExtractEffectsCoding(t *testing.T) {
	reg := registry(t, conjoint.BaselineEffects)
	m := &conjoint.ModelResult{Terms: []conjoint.Term{
		{Attribute: "I+G", Level: "x.(1)", Estimate: 0.4, StdError: 0.1},
		{Attribute: "Price", Level: "Low", Estimate: 0.9, StdError: 0.1},
		{Attribute: "Price", Level: "Mid", Estimate: -0.2, StdError: 0.1},
	}}
	res, err := Extract(m, reg, Options{ConfidenceLevel: 0.95})
	require.NoError(t, err)
	rows := byLevel(res.Rows)
	assert.InDelta(t, 0.4, rows["I+G/x.(1)"].Utility, 1e-12)
	assert.InDelta(t, -0.4, rows["I+G/y"].Utility, 1e-12)
	assert.InDelta(t, -0.7, rows["Price/High"].Utility, 1e-12)
}

func TestExtractRejectsBadConfidence(t *testing.T) {
	_, err := Extract(model(), registry(t, conjoint.BaselineFirstLevel), Options{ConfidenceLevel: 1.5})
	assert.Equal(t, errors.CodeInvalidConfidence, errors.GetCode(err))
}

func TestInterpretBuckets(t *testing.T) {
	assert.Equal(t, "Slightly avoided", Interpret(-0.1, conjoint.NA))
	assert.Equal(t, "Moderately preferred ***", Interpret(0.7, conjoint.Float(0.0001)))
	assert.Equal(t, "Strongly avoided (not significant)", Interpret(-1.3, conjoint.Float(0.2)))
	assert.Equal(t, "", Stars(0.05))
	assert.Equal(t, "*", Stars(0.049))
}
