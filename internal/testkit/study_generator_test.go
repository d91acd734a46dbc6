package testkit

import (
	"testing"

	"conjoint/domain/conjoint"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudyGenerator_ChoiceStructure(t *testing.T) {
	cfg := DefaultStudyConfig()
	cfg.Respondents = 5
	table := NewStudyGenerator(cfg).Choice()

	require.Len(t, table.Rows, 5*8*3)
	chosen := make(map[string]int)
	for _, r := range table.Rows {
		if r["chosen"] == "1" {
			chosen[conjoint.GroupKey(r["resp_id"], r["choice_set_id"])]++
		}
	}
	assert.Len(t, chosen, 5*8)
	for key, n := range chosen {
		assert.Equal(t, 1, n, key)
	}
}

func TestStudyGenerator_Deterministic(t *testing.T) {
	cfg := SmallStudyConfig()
	a := NewStudyGenerator(cfg).Choice()
	b := NewStudyGenerator(cfg).Choice()
	assert.Equal(t, a.Rows, b.Rows)
}

func TestStudyGenerator_BestWorstDistinct(t *testing.T) {
	cfg := SmallStudyConfig()
	cfg.Respondents = 10
	table := NewStudyGenerator(cfg).BestWorst()
	for _, r := range table.Rows {
		assert.False(t, r["best"] == "1" && r["worst"] == "1")
	}
}

func TestStudyGenerator_NoneRows(t *testing.T) {
	cfg := SmallStudyConfig()
	cfg.Respondents = 3
	cfg.IncludeNone = true
	table := NewStudyGenerator(cfg).Choice()
	require.Len(t, table.Rows, 3*10*4)
	assert.Equal(t, "None of these", table.Rows[3]["Brand"])
}
