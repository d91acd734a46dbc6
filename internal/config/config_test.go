package config

import (
	"os"
	"path/filepath"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "DB_DRIVER", "PORT", "SIM_WORKERS", "MAX_ITERATIONS", "TOLERANCE"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "8081", cfg.Server.UIPort)
	assert.Equal(t, 4, cfg.Simulation.Workers)
	assert.Equal(t, 100, cfg.Estimation.MaxIterations)
	assert.Equal(t, 1e-8, cfg.Estimation.Tolerance)
}

func TestLoadInfersDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/conjoint?sslmode=disable")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)

	t.Setenv("DATABASE_URL", "file:runs.db")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:runs.db")
	t.Setenv("DB_DRIVER", "mysql")
	_, err := Load()
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	t.Setenv("DB_DRIVER", "")
	t.Setenv("SIM_WORKERS", "0")
	_, err = Load()
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

const studyYAML = `
name: phones
settings:
  analysis_type: choice
  estimation_method: auto
  baseline_handling: first_level_zero
  choice_type: single_with_none
  none_label: No thanks
  data_file: data/responses.csv
  output_file: /tmp/out.xlsx
  respondent_id_column: respondent
  confidence_level: 0.9
  generate_market_simulator: TRUE
  min_responses_per_level: 20
  none_as_baseline: FALSE
attributes:
  - name: Brand
    label: Phone brand
    levels: [Apple, Samsung, Google]
  - name: I+G
    levels: ["x.(1)", y]
products:
  - name: Mine
    levels: {Brand: Apple, I+G: y}
`

func TestParseStudyYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(studyYAML), 0o644))

	study, err := LoadStudy(path)
	require.NoError(t, err)
	assert.Equal(t, "phones", study.Name)
	assert.Equal(t, conjoint.ChoiceSingleWithNone, study.Settings.ChoiceType)
	assert.Equal(t, "No thanks", study.Settings.NoneLabel)
	assert.Equal(t, 0.9, study.Settings.ConfidenceLevel)
	assert.Equal(t, 20, study.Settings.MinResponsesPerLevel)
	assert.True(t, study.Settings.GenerateSimulator)
	assert.Equal(t, "respondent", study.Bindings.RespondentID)
	assert.Equal(t, "chosen", study.Bindings.Chosen)
	assert.Equal(t, filepath.Join(dir, "data", "responses.csv"), study.DataFile)
	assert.Equal(t, "/tmp/out.xlsx", study.OutputFile)
	require.Len(t, study.Products, 1)

	reg, err := study.Registry()
	require.NoError(t, err)
	assert.Equal(t, []string{"Brand", "I+G"}, reg.Names())
	assert.Equal(t, "Phone brand", study.Attributes[0].Label)
}

func TestStudyRefusals(t *testing.T) {
	cases := map[string]struct {
		doc  string
		code string
	}{
		"continuous sum": {"settings: {choice_type: continuous_sum}\nattributes: [{name: A, levels: [x, y]}]", errors.CodeUnsupportedFeature},
		"confidence":     {"settings: {confidence_level: 1.2}\nattributes: [{name: A, levels: [x, y]}]", errors.CodeInvalidConfidence},
		"method":         {"settings: {estimation_method: bayes}\nattributes: [{name: A, levels: [x, y]}]", errors.CodeInvalidMethod},
		"one level":      {"attributes: [{name: A, levels: [x]}]", errors.CodeInvalidAttribute},
		"no attributes":  {"settings: {analysis_type: choice}", errors.CodeMissingAttributes},
		"bad bool":       {"settings: {include_diagnostics: maybe}\nattributes: [{name: A, levels: [x, y]}]", errors.CodeConfigInvalid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStudyYAML([]byte(tc.doc), "")
			require.Error(t, err)
			assert.Equal(t, tc.code, errors.GetCode(err))
		})
	}
}

func TestRatingStudyUsesOLS(t *testing.T) {
	study, err := ParseStudyYAML([]byte("settings: {analysis_type: rating}\nattributes: [{name: A, levels: [x, y]}]"), "")
	require.NoError(t, err)
	assert.Equal(t, conjoint.MethodRatingOLS, study.Settings.Method)
}

func writeWorkbook(t *testing.T, path string, attrRows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", SettingsSheet))
	settings := [][]interface{}{
		{"Setting", "Value", "Description"},
		{"analysis_type", "choice", "Type of conjoint"},
		{"estimation_method", "clogit", ""},
		{"data_file", "responses.xlsx", ""},
		{"include_diagnostics", "FALSE", ""},
		{"confidence_level", 0.99, ""},
	}
	for i, row := range settings {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow(SettingsSheet, cell, &row))
	}
	_, err := f.NewSheet(AttributesSheet)
	require.NoError(t, err)
	for i, row := range attrRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow(AttributesSheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoadWorkbook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"AttributeName", "AttributeLabel", "NumLevels", "Level1", "Level2", "Level3"},
		{"Brand", "Phone brand", 3, "Apple", "Samsung", "Google"},
		{"Price", "", 2, "$399", "$699"},
	})

	study, err := LoadStudy(path)
	require.NoError(t, err)
	assert.Equal(t, "config", study.Name)
	assert.Equal(t, conjoint.MethodStratifiedLogit, study.Settings.Method)
	assert.False(t, study.Settings.IncludeDiagnostics)
	assert.Equal(t, 0.99, study.Settings.ConfidenceLevel)
	assert.Equal(t, filepath.Join(dir, "responses.xlsx"), study.DataFile)
	require.Len(t, study.Attributes, 2)
	assert.Equal(t, []string{"Apple", "Samsung", "Google"}, study.Attributes[0].Levels)
	assert.Equal(t, "Phone brand", study.Attributes[0].Label)
	assert.Equal(t, []string{"$399", "$699"}, study.Attributes[1].Levels)
}

func TestLoadWorkbookLevelCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"AttributeName", "AttributeLabel", "NumLevels", "Level1", "Level2", "Level3"},
		{"Brand", "", 3, "Apple", "Samsung"},
	})
	_, err := LoadStudy(path)
	assert.Equal(t, errors.CodeInvalidAttribute, errors.GetCode(err))
}

func TestLoadStudyUnsupportedExtension(t *testing.T) {
	_, err := LoadStudy("study.json")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
