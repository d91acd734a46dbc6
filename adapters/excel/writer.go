package excel

import (
	"os"
	"path/filepath"
	"sort"

	"conjoint/domain/conjoint"
	"conjoint/internal"
	"conjoint/internal/errors"
	"conjoint/ports"

	"github.com/xuri/excelize/v2"
)

// Result workbook sheet names.
const (
	UtilitiesSheet   = "Utilities"
	ImportanceSheet  = "Importance"
	FitSheet         = "Model Fit"
	DiagnosticsSheet = "Diagnostics"
	SimulatorSheet   = "Simulator"
)

// ResultsWriter writes result tables to a plain .xlsx workbook, one table per sheet.
type ResultsWriter struct {
	log *internal.Logger
}

var _ ports.ResultsWriter = (*ResultsWriter)(nil)

// NewResultsWriter creates a workbook writer.
func NewResultsWriter() *ResultsWriter {
	return &ResultsWriter{log: internal.DefaultLogger}
}

type sheetTable struct {
	name string
	rows [][]interface{}
}

// WriteResults saves the report tables to path, creating parent directories.
func (w *ResultsWriter) WriteResults(path string, report *conjoint.AnalysisReport) error {
	if report == nil {
		return errors.InvalidInput("no report to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet so the workbook opens on utilities.
	if err := f.SetSheetName("Sheet1", UtilitiesSheet); err != nil {
		return errors.Wrap(err, "failed to prepare workbook")
	}

	sheets := []sheetTable{
		{UtilitiesSheet, utilityRows(report)},
		{ImportanceSheet, importanceRows(report)},
		{FitSheet, fitRows(report)},
	}
	if report.HitRate != nil || len(report.Significance) > 0 || len(report.Frequencies) > 0 || len(report.Warnings) > 0 {
		sheets = append(sheets, sheetTable{DiagnosticsSheet, diagnosticRows(report)})
	}
	if report.Simulator != nil {
		sheets = append(sheets, sheetTable{SimulatorSheet, simulatorRows(report.Simulator)})
	}

	for _, s := range sheets {
		if s.name != UtilitiesSheet {
			if _, err := f.NewSheet(s.name); err != nil {
				return errors.Wrapf(err, "failed to add sheet %s", s.name)
			}
		}
		if err := writeRows(f, s.name, s.rows); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	w.log.Info("[ResultsWriter] wrote %d sheets to %s", len(sheets), path)
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return errors.Wrapf(err, "failed to write %s row %d", sheet, i+1)
		}
	}
	return nil
}

// na writes NA cells as empty strings so the workbook has no NaN values.
func na(v conjoint.Float) interface{} {
	if v.IsNA() {
		return ""
	}
	return v.Value()
}

func utilityRows(r *conjoint.AnalysisReport) [][]interface{} {
	rows := [][]interface{}{{"Attribute", "Level", "Utility", "Std. Error", "CI Lower", "CI Upper", "p-value", "Sig.", "Baseline", "Interpretation"}}
	add := func(u conjoint.UtilityRow) {
		rows = append(rows, []interface{}{u.Attribute, u.Level, u.Utility, na(u.StdError), na(u.CILower),
			na(u.CIUpper), na(u.PValue), u.Significance, u.IsBaseline, u.Interpretation})
	}
	for _, u := range r.Utilities {
		add(u)
	}
	if r.NoneUtility != nil {
		add(*r.NoneUtility)
	}
	return rows
}

func importanceRows(r *conjoint.AnalysisReport) [][]interface{} {
	rows := [][]interface{}{{"Rank", "Attribute", "Label", "Range", "Importance %", "Interpretation"}}
	for _, imp := range r.Importance {
		rows = append(rows, []interface{}{imp.Rank, imp.Attribute, imp.Label, imp.Range, imp.ImportancePct, imp.Interpretation})
	}
	return rows
}

func fitRows(r *conjoint.AnalysisReport) [][]interface{} {
	fit := r.Fit
	rows := [][]interface{}{{"Statistic", "Value"}}
	if r.Model != nil {
		rows = append(rows, []interface{}{"Method", string(r.Model.Method)})
		if r.Model.Degraded {
			rows = append(rows, []interface{}{"Degraded", r.Model.DegradedReason})
		}
	}
	rows = append(rows,
		[]interface{}{"Observations", fit.NObs},
		[]interface{}{"Parameters", fit.NParameters},
	)
	if r.AnalysisType == conjoint.AnalysisRating {
		rows = append(rows,
			[]interface{}{"R²", na(fit.RSquared)},
			[]interface{}{"Adjusted R²", na(fit.AdjRSquared)},
			[]interface{}{"RMSE", na(fit.RMSE)},
		)
	} else {
		rows = append(rows,
			[]interface{}{"Log-likelihood (null)", na(fit.LogLikNull)},
			[]interface{}{"Log-likelihood (fitted)", na(fit.LogLikFitted)},
			[]interface{}{"McFadden R²", na(fit.McFaddenR2)},
			[]interface{}{"Adjusted McFadden R²", na(fit.AdjMcFaddenR2)},
			[]interface{}{"AIC", na(fit.AIC)},
			[]interface{}{"BIC", na(fit.BIC)},
			[]interface{}{"LR χ²", na(fit.LRChiSq)},
			[]interface{}{"LR df", fit.LRDF},
			[]interface{}{"LR p-value", na(fit.LRPValue)},
		)
	}
	if fit.Quality != "" {
		rows = append(rows, []interface{}{"Quality", fit.Quality})
	}
	if fit.Assessment != "" {
		rows = append(rows, []interface{}{"Assessment", fit.Assessment})
	}
	return rows
}

func diagnosticRows(r *conjoint.AnalysisReport) [][]interface{} {
	var rows [][]interface{}
	if h := r.HitRate; h != nil {
		rows = append(rows,
			[]interface{}{"Hit rate"},
			[]interface{}{"Choice sets", "Hits", "Rate", "Chance", "Improvement", "Assessment"},
			[]interface{}{h.ChoiceSets, h.Hits, h.Rate, h.ChanceRate, h.Improvement, h.Assessment},
			[]interface{}{},
		)
	}
	if len(r.Significance) > 0 {
		rows = append(rows,
			[]interface{}{"Significance"},
			[]interface{}{"Attribute", "Levels tested", "Significant", "Summary"})
		for _, s := range r.Significance {
			rows = append(rows, []interface{}{s.Attribute, s.Levels, s.Significant, s.Summary})
		}
		rows = append(rows, []interface{}{})
	}
	if len(r.Frequencies) > 0 {
		rows = append(rows,
			[]interface{}{"Level frequencies"},
			[]interface{}{"Attribute", "Level", "Shown", "Chosen", "Choice %"})
		for _, lf := range r.Frequencies {
			rows = append(rows, []interface{}{lf.Attribute, lf.Level, lf.Shown, lf.Chosen, lf.ChoicePct})
		}
		rows = append(rows, []interface{}{})
	}
	if len(r.Warnings) > 0 {
		rows = append(rows, []interface{}{"Warnings"}, []interface{}{"Severity", "Code", "Message"})
		for _, w := range r.Warnings {
			rows = append(rows, []interface{}{string(w.Severity), w.Code, w.Message})
		}
	}
	return rows
}

func simulatorRows(seed *conjoint.SimulatorSeed) [][]interface{} {
	rows := [][]interface{}{{"Product", "Utility", "Share"}}
	for _, s := range seed.Shares {
		rows = append(rows, []interface{}{s.Product, s.Utility, s.Share})
	}
	rows = append(rows, []interface{}{})

	header := []interface{}{"Product"}
	var attrs []string
	if len(seed.Products) > 0 {
		attrs = sortedKeys(seed.Products[0].Levels)
	}
	for _, a := range attrs {
		header = append(header, a)
	}
	rows = append(rows, header)
	for _, p := range seed.Products {
		row := []interface{}{p.Name}
		for _, a := range attrs {
			row = append(row, p.Levels[a])
		}
		rows = append(rows, row)
	}
	rows = append(rows, []interface{}{}, []interface{}{"Attribute", "Level", "Utility"})
	for _, a := range sortedKeys(seed.Utilities) {
		for _, lvl := range sortedKeys(seed.Utilities[a]) {
			rows = append(rows, []interface{}{a, lvl, seed.Utilities[a][lvl]})
		}
	}
	return rows
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
