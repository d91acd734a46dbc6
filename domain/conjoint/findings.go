package conjoint

import "fmt"

// Severity grades a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Finding is one validation or pipeline observation.
type Finding struct {
	Severity Severity          `json:"severity"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Code, f.Message)
}

// With returns a copy of the finding with an extra context entry.
func (f Finding) With(key, value string) Finding {
	ctx := make(map[string]string, len(f.Context)+1)
	for k, v := range f.Context {
		ctx[k] = v
	}
	ctx[key] = value
	f.Context = ctx
	return f
}

// Critical builds a finding that blocks the run.
func Critical(code, format string, args ...interface{}) Finding {
	return Finding{Severity: SeverityCritical, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Warning builds a non-blocking finding.
func Warning(code, format string, args ...interface{}) Finding {
	return Finding{Severity: SeverityWarning, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Info builds an informational finding.
func Info(code, format string, args ...interface{}) Finding {
	return Finding{Severity: SeverityInfo, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationResult holds findings in three ordered collections.
type ValidationResult struct {
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
	Info     []Finding `json:"info"`
}

// IsValid is true when there are no critical findings.
func (v ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// Of sorts findings into a result by severity.
func Of(findings ...Finding) ValidationResult {
	var v ValidationResult
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			v.Errors = append(v.Errors, f)
		case SeverityWarning:
			v.Warnings = append(v.Warnings, f)
		default:
			v.Info = append(v.Info, f)
		}
	}
	return v
}

// Merge returns a new result with other's findings appended after v's.
func (v ValidationResult) Merge(other ValidationResult) ValidationResult {
	return ValidationResult{
		Errors:   append(append([]Finding(nil), v.Errors...), other.Errors...),
		Warnings: append(append([]Finding(nil), v.Warnings...), other.Warnings...),
		Info:     append(append([]Finding(nil), v.Info...), other.Info...),
	}
}

// All returns every finding, errors first.
func (v ValidationResult) All() []Finding {
	out := make([]Finding, 0, len(v.Errors)+len(v.Warnings)+len(v.Info))
	out = append(out, v.Errors...)
	out = append(out, v.Warnings...)
	return append(out, v.Info...)
}
