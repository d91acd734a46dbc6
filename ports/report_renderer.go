package ports

import (
	"conjoint/domain/conjoint"
)

// ReportRenderer turns an analysis report into a human-readable document.
type ReportRenderer interface {
	Markdown(report *conjoint.AnalysisReport) ([]byte, error)
	HTML(report *conjoint.AnalysisReport) ([]byte, error)
}

// ResultsWriter writes the result tables of a report to a file.
type ResultsWriter interface {
	WriteResults(path string, report *conjoint.AnalysisReport) error
}
