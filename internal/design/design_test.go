package design

import (
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"
	"conjoint/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func registry(t *testing.T, policy conjoint.BaselinePolicy) *conjoint.Registry {
	t.Helper()
	reg, err := conjoint.NewRegistry([]conjoint.AttributeDefinition{
		{Name: "I+G", Levels: []string{"x.(1)", "y z", "w"}},
		{Name: "Price", Levels: []string{"Low", "High"}},
	}, policy)
	require.NoError(t, err)
	return reg
}

func obs(resp, cs, alt string, chosen bool, ig, price string) conjoint.Observation {
	return conjoint.Observation{
		Respondent:  resp,
		ChoiceSet:   cs,
		Alternative: alt,
		Chosen:      chosen,
		Levels:      map[string]string{"I+G": ig, "Price": price},
	}
}

func TestCodecRoundTripsSpecialNames(t *testing.T) {
	reg := registry(t, conjoint.BaselineLastLevel)
	codec := NewCodec(reg, true)

	require.Equal(t, 4, codec.Len())
	col, ok := codec.Column("I+G", "x.(1)")
	require.True(t, ok)
	back, ok := codec.Decode(col)
	require.True(t, ok)
	assert.Equal(t, "I+G", back.Attribute)
	assert.Equal(t, "x.(1)", back.Level)

	_, ok = codec.Column("I+G", "w")
	assert.False(t, ok, "reference level has no column")
	assert.Equal(t, 3, codec.NoneColumn())
	none, _ := codec.Decode(codec.NoneColumn())
	assert.True(t, none.Constant)
}

func TestCodecEffectsCoding(t *testing.T) {
	reg := registry(t, conjoint.BaselineEffects)
	codec := NewCodec(reg, false)
	dst := make([]float64, codec.Len())

	codec.Encode(dst, map[string]string{"I+G": "w", "Price": "Low"}, false)
	assert.Equal(t, []float64{-1, -1, 1}, dst)
}

func TestBuildUniqueChoiceSetsAcrossRespondents(t *testing.T) {
	reg := registry(t, conjoint.BaselineFirstLevel)
	in := []conjoint.Observation{
		obs("1", "CS1", "1", true, "x.(1)", "Low"),
		obs("2", "CS1", "1", false, "w", "High"),
		obs("1", "CS1", "2", false, "y z", "High"),
		obs("2", "CS1", "2", true, "x.(1)", "Low"),
	}
	m, err := Build(in, reg, Options{})
	require.NoError(t, err)

	require.Equal(t, 2, m.NSets())
	assert.Equal(t, []int{1, 1, 2, 2}, m.CHID, "rows regrouped contiguously")
	assert.Equal(t, "1", m.Sets[0].Respondent)
	assert.Equal(t, "2", m.Sets[1].Respondent)
	assert.Equal(t, 0, m.Sets[0].Chosen)
	assert.Equal(t, 3, m.Sets[1].Chosen)
	assert.Equal(t, []float64{1, 0, 0, 1}, m.Y)

	// y z / High row
	assert.Equal(t, []float64{1, 0, 1}, mat.Row(nil, 1, m.X))
}

func TestBuildDuplicateAlternativeRefused(t *testing.T) {
	reg := registry(t, conjoint.BaselineFirstLevel)
	in := []conjoint.Observation{
		obs("1", "CS1", "1", true, "x.(1)", "Low"),
		obs("1", "CS1", "1", false, "w", "High"),
	}
	_, err := Build(in, reg, Options{})
	assert.Equal(t, errors.CodeDuplicateAlternative, errors.GetCode(err))
}

func TestBuildMissingAlternativeRefused(t *testing.T) {
	reg := registry(t, conjoint.BaselineFirstLevel)
	in := []conjoint.Observation{
		obs("1", "CS1", "1", true, "x.(1)", "Low"),
		obs("1", "CS1", "", false, "w", "High"),
	}
	_, err := Build(in, reg, Options{})
	assert.Equal(t, errors.CodeMissingAlternative, errors.GetCode(err))
}

func TestBuildCategoricalAndPositionalAlternatives(t *testing.T) {
	reg := registry(t, conjoint.BaselineFirstLevel)
	in := []conjoint.Observation{
		obs("1", "A", "left", true, "x.(1)", "Low"),
		obs("1", "A", "right", false, "w", "High"),
	}
	m, err := Build(in, reg, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, m.Alt)

	in[0].Alternative, in[1].Alternative = "", ""
	m, err = Build(in, reg, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, m.Alt)
}

func TestBuildSynthesizesNone(t *testing.T) {
	reg := registry(t, conjoint.BaselineFirstLevel)
	in := []conjoint.Observation{
		obs("1", "A", "1", false, "x.(1)", "Low"),
		obs("1", "A", "2", false, "w", "High"),
		obs("1", "B", "1", true, "y z", "Low"),
		obs("1", "B", "2", false, "w", "High"),
	}
	m, err := Build(in, reg, Options{SynthesizeNone: true})
	require.NoError(t, err)

	require.Equal(t, 6, m.NRows())
	assert.True(t, m.Codec.HasNone())
	assert.Equal(t, 2, m.Sets[0].Chosen, "empty set picks the synthesized none row")
	assert.Equal(t, 3, m.Alt[2])
	assert.Equal(t, 1.0, m.X.At(2, m.Codec.NoneColumn()))
	assert.Equal(t, 0.0, m.Y[5])
}

func TestBuildReversedRowsNegated(t *testing.T) {
	reg := registry(t, conjoint.BaselineFirstLevel)
	o := obs("1", "A", "1", true, "w", "High")
	o.Reversed = true
	m, err := Build([]conjoint.Observation{o, obs("1", "A", "2", false, "x.(1)", "Low")}, reg, Options{})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, -1, -1}, mat.Row(nil, 0, m.X))
}

func TestParseAndBuildGeneratedStudy(t *testing.T) {
	cfg := testkit.SmallStudyConfig()
	cfg.Respondents = 4
	cfg.PerRespondentSetIDs = true
	gen := testkit.NewStudyGenerator(cfg)
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)

	parsed, err := Parse(gen.Choice(), reg, conjoint.DefaultBindings(), conjoint.DefaultSettings())
	require.NoError(t, err)
	m, err := Build(parsed, reg, Options{})
	require.NoError(t, err)

	assert.Equal(t, 40, m.NSets(), "CS ids repeat across respondents but sets stay distinct")
	assert.InDelta(t, 3.0, m.MeanAlternatives(), 1e-12)
	for _, s := range m.Sets {
		assert.GreaterOrEqual(t, s.Chosen, s.Start)
		assert.Less(t, s.Chosen, s.End)
	}

	u := m.Utilities(make([]float64, m.NCols()))
	assert.Len(t, u, m.NRows())
}

func TestBuildRating(t *testing.T) {
	gen := testkit.NewStudyGenerator(testkit.SmallStudyConfig())
	reg, err := gen.Registry(conjoint.BaselineFirstLevel)
	require.NoError(t, err)
	s := conjoint.DefaultSettings()
	s.AnalysisType = conjoint.AnalysisRating

	parsed, err := Parse(gen.Rating(), reg, conjoint.DefaultBindings(), s)
	require.NoError(t, err)
	m, err := BuildRating(parsed, reg)
	require.NoError(t, err)
	assert.Equal(t, len(parsed), len(m.Y))
	assert.Equal(t, parsed[0].Rating, m.Y[0])
}
