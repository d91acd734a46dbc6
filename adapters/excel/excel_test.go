package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	in := "\ufeffresp_id, choice_set_id,chosen,Brand\n1,1,1, Apple \n\n1,1,0\n"
	table, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"resp_id", "choice_set_id", "chosen", "Brand"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Apple", table.Rows[0]["Brand"])
	assert.Equal(t, "", table.Rows[1]["Brand"])
}

func TestReadCSVHeaderOnly(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("resp_id,chosen\n"))
	assert.Equal(t, errors.CodeDataEmpty, errors.GetCode(err))
}

func TestReadTableMissingFile(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "nope.csv")).ReadTable(context.Background())
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestReadTableFromFiles(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("resp_id,chosen\n7,1\n"), 0o644))
	table, err := NewDataReader(csvPath).ReadTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7", table.Rows[0]["resp_id"])

	xlsxPath := filepath.Join(dir, "data.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"resp_id", "chosen", "Price"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{3, 0, "$10"}))
	require.NoError(t, f.SaveAs(xlsxPath))
	require.NoError(t, f.Close())

	table, err = NewDataReader(xlsxPath).ReadTable(context.Background())
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, conjoint.Record{"resp_id": "3", "chosen": "0", "Price": "$10"}, table.Rows[0])
}

func sampleReport() *conjoint.AnalysisReport {
	return &conjoint.AnalysisReport{
		Study:        "phones",
		AnalysisType: conjoint.AnalysisChoice,
		Model:        &conjoint.ModelResult{Method: conjoint.MethodConditionalLogit},
		Utilities: []conjoint.UtilityRow{
			{Attribute: "Brand", Level: "A", Utility: -0.25, StdError: conjoint.Float(math.NaN()), IsBaseline: true},
			{Attribute: "Brand", Level: "B", Utility: 0.25, StdError: 0.1, PValue: 0.01, Significance: "**"},
		},
		NoneUtility: &conjoint.UtilityRow{Attribute: "None", Level: "None of these", Utility: -1},
		Importance:  []conjoint.ImportanceRow{{Attribute: "Brand", Range: 0.5, ImportancePct: 100, Rank: 1}},
		Fit:         conjoint.FitStatistics{McFaddenR2: 0.25, LogLikNull: conjoint.Float(math.NaN()), Quality: "good"},
		HitRate:     &conjoint.HitRate{ChoiceSets: 10, Hits: 7, Rate: 0.7},
		Simulator: &conjoint.SimulatorSeed{
			Utilities: map[string]map[string]float64{"Brand": {"A": -0.25, "B": 0.25}},
			Products: []conjoint.Product{
				{Name: "Best levels", Levels: map[string]string{"Brand": "B"}},
				{Name: "Reference levels", Levels: map[string]string{"Brand": "A"}},
			},
			Shares: []conjoint.ShareRow{{Product: "Best levels", Share: 0.62}, {Product: "Reference levels", Share: 0.38}},
		},
	}
}

func TestWriteResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.xlsx")
	require.NoError(t, NewResultsWriter().WriteResults(path, sampleReport()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{UtilitiesSheet, ImportanceSheet, FitSheet, DiagnosticsSheet, SimulatorSheet}, f.GetSheetList())

	rows, err := f.GetRows(UtilitiesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Attribute", rows[0][0])
	assert.Equal(t, "None of these", rows[3][1])
	// NA standard error is left blank
	assert.Equal(t, "", rows[1][3])

	fit, err := f.GetRows(FitSheet)
	require.NoError(t, err)
	assert.Contains(t, fit, []string{"Method", string(conjoint.MethodConditionalLogit)})
	assert.Contains(t, fit, []string{"Quality", "good"})
}

func TestWriteResultsSkipsEmptySheets(t *testing.T) {
	r := sampleReport()
	r.HitRate = nil
	r.Simulator = nil
	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, NewResultsWriter().WriteResults(path, r))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{UtilitiesSheet, ImportanceSheet, FitSheet}, f.GetSheetList())
}

func TestWriteResultsNilReport(t *testing.T) {
	err := NewResultsWriter().WriteResults(filepath.Join(t.TempDir(), "x.xlsx"), nil)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
