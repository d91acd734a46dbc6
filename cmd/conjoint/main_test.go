package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"
	"conjoint/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const studyYAML = `name: phones
settings:
  data_file: data.csv
attributes:
  - name: Brand
    levels: [A, B]
  - name: Price
    levels: [Low, Mid, High]
  - name: Size
    levels: [S, L]
products:
  - name: Ours
    levels: {Brand: A, Price: Mid, Size: S}
  - name: Rival
    levels: {Brand: B, Price: High, Size: L}
`

// writeStudy lays out a YAML study and its CSV responses in a temp dir.
func writeStudy(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	table := testkit.NewStudyGenerator(testkit.SmallStudyConfig()).Choice()

	f, err := os.Create(filepath.Join(dir, "data.csv"))
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(table.Headers))
	for _, rec := range table.Rows {
		row := make([]string, len(table.Headers))
		for i, h := range table.Headers {
			row[i] = rec[h]
		}
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
	require.NoError(t, f.Close())

	path := filepath.Join(dir, "phones.yaml")
	require.NoError(t, os.WriteFile(path, []byte(studyYAML), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RESULTS_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "ERROR")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	study := writeStudy(t)

	out, err := execute(t, "analyze", study, "--no-output")
	require.NoError(t, err)
	assert.Contains(t, out, "## Part-Worth Utilities")

	out, err = execute(t, "analyze", study, "--no-output", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "completed"`)
}

func TestAnalyzeWritesWorkbook(t *testing.T) {
	study := writeStudy(t)
	output := filepath.Join(t.TempDir(), "results.xlsx")

	_, err := execute(t, "analyze", study, "--output", output)
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestAnalyzeMissingStudy(t *testing.T) {
	_, err := execute(t, "analyze", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestSimulateCommand(t *testing.T) {
	study := writeStudy(t)

	out, err := execute(t, "simulate", study)
	require.NoError(t, err)
	assert.Contains(t, out, "PRODUCT")
	assert.Contains(t, out, "Ours")
	assert.Contains(t, out, "Rival")

	out, err = execute(t, "simulate", study, "--sweep", "Price", "--focal", "Ours")
	require.NoError(t, err)
	assert.Contains(t, out, "(current)")
}

func TestSimulateNeedsReportSource(t *testing.T) {
	_, err := execute(t, "simulate")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	// stored runs need DATABASE_URL
	_, err = execute(t, "simulate", "--run", "0190a5d2-7c1e-7000-8000-000000000001")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestOptimizeCommand(t *testing.T) {
	study := writeStudy(t)

	out, err := execute(t, "optimize", study, "--product", "Ours", "--vary", "Price", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Price": "Low"`)
}

func TestSplitFocal(t *testing.T) {
	products := []conjoint.Product{{Name: "A"}, {Name: "B"}, {Name: "C"}}

	focal, rest, err := splitFocal(products, "b")
	require.NoError(t, err)
	assert.Equal(t, "B", focal.Name)
	assert.Equal(t, []conjoint.Product{{Name: "A"}, {Name: "C"}}, rest)

	focal, rest, err = splitFocal(products, "")
	require.NoError(t, err)
	assert.Equal(t, "A", focal.Name)
	assert.Len(t, rest, 2)

	_, _, err = splitFocal(products, "Z")
	assert.Error(t, err)
	_, _, err = splitFocal(nil, "")
	assert.Error(t, err)
}

func TestReadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.yaml")
	require.NoError(t, os.WriteFile(path, []byte("products:\n  - name: X\n    levels: {Brand: A}\n"), 0o644))

	products, err := readScenario(path)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "A", products[0].Levels["Brand"])

	_, err = readScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
