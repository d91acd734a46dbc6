package simulator

import (
	"context"
	"math"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, opts Options) *Simulator {
	t.Helper()
	reg, err := conjoint.NewRegistry([]conjoint.AttributeDefinition{
		{Name: "Brand", Levels: []string{"A", "B"}},
		{Name: "Price", Levels: []string{"Low", "Mid", "High"}},
		{Name: "Warranty", Levels: []string{"1yr", "2yr"}},
	}, conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	rows := []conjoint.UtilityRow{
		{Attribute: "Brand", Level: "A", Utility: -0.3},
		{Attribute: "Brand", Level: "B", Utility: 0.3},
		{Attribute: "Price", Level: "Low", Utility: 0.8},
		{Attribute: "Price", Level: "Mid", Utility: 0.1},
		{Attribute: "Price", Level: "High", Utility: -0.9},
		{Attribute: "Warranty", Level: "1yr", Utility: -0.2},
		{Attribute: "Warranty", Level: "2yr", Utility: 0.2},
	}
	none := &conjoint.UtilityRow{Attribute: "None", Level: "None of these", Utility: -0.5}
	return New(reg, rows, none, opts)
}

func product(name, brand, price, warranty string) conjoint.Product {
	return conjoint.Product{Name: name, Levels: map[string]string{"Brand": brand, "Price": price, "Warranty": warranty}}
}

func TestTotalUtility(t *testing.T) {
	s := fixture(t, Options{})
	u, notes := s.TotalUtility(product("p", "B", "Low", "2yr"))
	assert.InDelta(t, 1.3, u, 1e-12)
	assert.Empty(t, notes)

	p := product("odd", "B", "Free", "2yr")
	p.Levels["Colour"] = "Red"
	delete(p.Levels, "Warranty")
	u, notes = s.TotalUtility(p)
	assert.InDelta(t, 0.3, u, 1e-12)
	require.Len(t, notes, 3)
	for _, n := range notes {
		assert.Equal(t, conjoint.SeverityInfo, n.Severity)
	}
}

func TestLogitSharesSumToOne(t *testing.T) {
	s := fixture(t, Options{})
	rows, _, err := s.Shares([]conjoint.Product{
		product("p1", "A", "Low", "1yr"),
		product("p2", "B", "High", "2yr"),
		product("p3", "B", "Mid", "1yr"),
	}, nil)
	require.NoError(t, err)
	sum := 0.0
	for _, r := range rows {
		sum += r.Share
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, math.Exp(0.3)/(math.Exp(0.3)+math.Exp(-0.4)+math.Exp(0.2)), rows[0].Share, 1e-12)
}

func TestLogitSharesStableForLargeUtilities(t *testing.T) {
	shares := LogitShares([]float64{1000, 1000, 999}, []float64{1, 1, 1}, 1)
	assert.InDelta(t, shares[0], shares[1], 1e-12)
	assert.False(t, math.IsNaN(shares[2]))
	assert.InDelta(t, 1.0, shares[0]+shares[1]+shares[2], 1e-12)
}

func TestAvailabilityWeightsShares(t *testing.T) {
	shares := LogitShares([]float64{0, 0, 0}, []float64{1, 0.5, 0}, 1)
	assert.InDelta(t, 2.0/3, shares[0], 1e-12)
	assert.InDelta(t, 1.0/3, shares[1], 1e-12)
	assert.Equal(t, 0.0, shares[2])
}

func TestFirstChoice(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 0}, FirstChoiceShares([]float64{1, 2, 2}, []float64{1, 1, 1}))
	assert.Equal(t, []float64{1, 0, 0}, FirstChoiceShares([]float64{1, 2, 0}, []float64{1, 0, 1}))
}

func TestRandomizedFirstChoice(t *testing.T) {
	shares := RandomizedFirstChoiceShares([]float64{1.0, 1.005, 0.5, 1.004}, []float64{1, 1, 1, 0}, 0.01)
	assert.Equal(t, []float64{0.5, 0.5, 0, 0}, shares)
}

func TestPredictSharesRefusals(t *testing.T) {
	_, err := PredictShares(nil, nil, conjoint.ShareLogit, 1, 0)
	assert.Equal(t, errors.CodeInvalidProduct, errors.GetCode(err))
	_, err = PredictShares([]float64{1}, []float64{0}, conjoint.ShareLogit, 1, 0)
	assert.Equal(t, errors.CodeInvalidProduct, errors.GetCode(err))
	_, err = PredictShares([]float64{1}, nil, "allocation", 1, 0)
	assert.Equal(t, errors.CodeInvalidProduct, errors.GetCode(err))

	s := fixture(t, Options{})
	_, _, err = s.Shares([]conjoint.Product{product("p", "A", "Low", "1yr")}, []float64{1, 1})
	assert.Equal(t, errors.CodeInvalidProduct, errors.GetCode(err))
}

func TestSharesIncludeNone(t *testing.T) {
	s := fixture(t, Options{IncludeNone: true})
	rows, _, err := s.Shares([]conjoint.Product{product("p", "A", "Mid", "1yr")}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, NoneProduct, rows[1].Product)
	// p utility -0.4, none -0.5
	assert.InDelta(t, 1/(1+math.Exp(-0.1)), rows[0].Share, 1e-12)
}

func TestOneWaySensitivity(t *testing.T) {
	s := fixture(t, Options{Workers: 2})
	focal := product("focal", "A", "Mid", "1yr")
	comp := []conjoint.Product{product("comp", "B", "Mid", "2yr")}

	rows, err := s.OneWay(context.Background(), focal, comp, "Price")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Low", "Mid", "High"}, []string{rows[0].Level, rows[1].Level, rows[2].Level})
	assert.True(t, rows[1].IsBaseline)
	assert.InDelta(t, 0, rows[1].Delta, 1e-12)
	assert.Greater(t, rows[0].Delta, 0.0)
	assert.Less(t, rows[2].Delta, 0.0)

	_, err = s.OneWay(context.Background(), focal, comp, "Colour")
	assert.Equal(t, errors.CodeInvalidProduct, errors.GetCode(err))
}

func TestTwoWaySensitivity(t *testing.T) {
	s := fixture(t, Options{})
	focal := product("focal", "A", "Mid", "1yr")
	grid, err := s.TwoWay(context.Background(), focal, []conjoint.Product{product("comp", "B", "Mid", "2yr")}, "Brand", "Price")
	require.NoError(t, err)
	require.Len(t, grid.Cells, 6)
	assert.Equal(t, "A", grid.Cells[0].LevelA)
	assert.Equal(t, "Low", grid.Cells[0].LevelB)
	assert.InDelta(t, grid.BaselineShare, grid.Cells[1].Share, 1e-12)
	best := grid.Cells[3] // B, Low
	for _, c := range grid.Cells {
		assert.LessOrEqual(t, c.Share, best.Share+1e-12)
	}
}

func TestOptimizeSingleAttribute(t *testing.T) {
	s := fixture(t, Options{})
	initial := product("mine", "A", "High", "1yr")
	res, err := s.Optimize(context.Background(), initial,
		[]conjoint.Product{product("comp", "B", "Mid", "2yr")},
		OptimizeOptions{Vary: []string{"Price"}, MaxIterations: 10})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "Low", res.Final.Levels["Price"])
	assert.Equal(t, "A", res.Final.Levels["Brand"])
	assert.Equal(t, "High", res.Initial.Levels["Price"])
	assert.Greater(t, res.ShareAfter, res.ShareBefore)
	require.Len(t, res.History, 1)
	assert.Equal(t, conjoint.OptimizationStep{Iteration: 1, Attribute: "Price", From: "High", To: "Low", Share: res.ShareAfter}, res.History[0])
}

func TestOptimizeAllAttributes(t *testing.T) {
	s := fixture(t, Options{Workers: 3})
	res, err := s.Optimize(context.Background(), product("mine", "A", "High", "1yr"),
		[]conjoint.Product{product("comp", "B", "Mid", "2yr")}, OptimizeOptions{})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, map[string]string{"Brand": "B", "Price": "Low", "Warranty": "2yr"}, res.Final.Levels)
	assert.Len(t, res.History, 3)
}

func TestOptimizeWithoutCompetitorsFollowsUtility(t *testing.T) {
	s := fixture(t, Options{})
	res, err := s.Optimize(context.Background(), product("alone", "A", "High", "1yr"), nil,
		OptimizeOptions{Vary: []string{"Price"}})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.ShareBefore, 1e-12)
	assert.InDelta(t, 1.0, res.ShareAfter, 1e-12)
	assert.Equal(t, "Low", res.Final.Levels["Price"])
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.History, 1)
	assert.Equal(t, "High", res.History[0].From)
}

func TestOptimizeFirstChoicePlateau(t *testing.T) {
	s := fixture(t, Options{Method: conjoint.ShareFirstChoice})
	// already winning, so every candidate keeps a share of 1
	res, err := s.Optimize(context.Background(), product("mine", "B", "Mid", "2yr"),
		[]conjoint.Product{product("comp", "A", "High", "1yr")}, OptimizeOptions{})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, map[string]string{"Brand": "B", "Price": "Low", "Warranty": "2yr"}, res.Final.Levels)
}

func TestOptimizeHonoursCancellation(t *testing.T) {
	s := fixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Optimize(ctx, product("mine", "A", "High", "1yr"),
		[]conjoint.Product{product("comp", "B", "Mid", "2yr")}, OptimizeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeed(t *testing.T) {
	s := fixture(t, Options{})
	seed, err := s.Seed()
	require.NoError(t, err)
	require.Len(t, seed.Products, 2)
	assert.Equal(t, map[string]string{"Brand": "B", "Price": "Low", "Warranty": "2yr"}, seed.Products[0].Levels)
	assert.Equal(t, map[string]string{"Brand": "A", "Price": "Low", "Warranty": "1yr"}, seed.Products[1].Levels)
	assert.Greater(t, seed.Shares[0].Share, seed.Shares[1].Share)
	assert.InDelta(t, 0.8, seed.Utilities["Price"]["Low"], 1e-12)
}
