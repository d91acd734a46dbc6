package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conjoint/domain/conjoint"
	"conjoint/internal"
	"conjoint/internal/errors"
	"conjoint/ports"

	"github.com/xuri/excelize/v2"
)

// DataReader reads long-format survey data from Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	log      *internal.Logger
}

var _ ports.DataSource = (*DataReader)(nil)

// NewDataReader creates a new data reader that handles both Excel and CSV files.
// Workbooks are read from their first sheet.
func NewDataReader(filePath string) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" || ext == ".txt" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, log: internal.DefaultLogger}
}

// WithSheet selects a named worksheet instead of the first one.
func (r *DataReader) WithSheet(sheet string) *DataReader {
	c := *r
	c.sheet = sheet
	return &c
}

// Path returns the file the reader was created for.
func (r *DataReader) Path() string { return r.filePath }

// ReadTable reads the file into a conjoint.Table with trimmed headers and cells.
func (r *DataReader) ReadTable(ctx context.Context) (*conjoint.Table, error) {
	r.log.Debug("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.Refuse(errors.CodeConfigInvalid, "Data file not found",
			fmt.Sprintf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath),
			"the analysis reads its responses from the data_file setting",
			"Check the data_file path; relative paths are resolved against the configuration file")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch r.fileType {
	case "csv":
		return r.readCSV()
	default:
		return r.readExcel()
	}
}

func (r *DataReader) readExcel() (*conjoint.Table, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.InvalidInput(fmt.Sprintf("%s has no worksheets", r.filePath))
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheet)
	}
	r.log.Debug("[DataReader] %s read in %.2fms (%d rows)", sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))
	return r.processRows(rows)
}

func (r *DataReader) readCSV() (*conjoint.Table, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()
	return ReadCSV(file)
}

// ReadCSV parses CSV content with a header row. Rows may have fewer fields than
// the header; missing cells read as empty.
func ReadCSV(in io.Reader) (*conjoint.Table, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV data")
	}
	return (&DataReader{fileType: "csv", log: internal.DefaultLogger}).processRows(rows)
}

// processRows converts raw string rows into a Table
func (r *DataReader) processRows(rows [][]string) (*conjoint.Table, error) {
	if len(rows) < 2 {
		return nil, errors.Refuse(errors.CodeDataEmpty, "No data rows",
			fmt.Sprintf("%s data must have a header row and at least one data row", strings.ToUpper(r.fileType)),
			"there is nothing to analyse",
			"Check that responses were exported below the header row")
	}

	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}

	table := &conjoint.Table{Headers: headers, Rows: make([]conjoint.Record, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(conjoint.Record, len(headers))
		for j, header := range headers {
			if j < len(row) {
				rec[header] = strings.TrimSpace(row[j])
			} else {
				rec[header] = ""
			}
		}
		table.Rows = append(table.Rows, rec)
	}

	r.log.Debug("[DataReader] %s data processed (%d columns, %d rows)",
		strings.ToUpper(r.fileType), len(headers), len(table.Rows))
	return table, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
