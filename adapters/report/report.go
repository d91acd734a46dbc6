// Package report renders analysis reports as Markdown and HTML documents.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"conjoint/domain/conjoint"
	"conjoint/internal/errors"
	"conjoint/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Renderer implements ports.ReportRenderer.
type Renderer struct{}

var _ ports.ReportRenderer = Renderer{}

// NewRenderer returns a report renderer.
func NewRenderer() Renderer { return Renderer{} }

// Markdown renders the report as a Markdown document.
func (Renderer) Markdown(r *conjoint.AnalysisReport) ([]byte, error) {
	if r == nil {
		return nil, errors.InvalidInput("no report to render")
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Conjoint Analysis: %s\n\n", sanitize(r.Study))
	if !r.RunID.IsEmpty() {
		fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", r.CreatedAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "- Analysis: %s", r.AnalysisType)
	if r.ChoiceType != "" && r.AnalysisType == conjoint.AnalysisChoice {
		fmt.Fprintf(&b, " (%s)", r.ChoiceType)
	}
	b.WriteString("\n")
	if r.Model != nil {
		fmt.Fprintf(&b, "- Method: `%s`\n", r.Model.Method)
	}
	if !r.DatasetHash.IsEmpty() {
		fmt.Fprintf(&b, "- Dataset: `%s`\n", r.DatasetHash.Short())
	}
	b.WriteString("\n")
	if r.Model != nil && r.Model.Degraded {
		fmt.Fprintf(&b, "> DEGRADED: %s\n\n", sanitize(r.Model.DegradedReason))
	}

	writeImportance(&b, r)
	writeUtilities(&b, r)
	writeFit(&b, r)
	writeDiagnostics(&b, r)
	writeSimulator(&b, r.Simulator)
	writeWarnings(&b, r.Warnings)
	return b.Bytes(), nil
}

// HTML renders the Markdown document as a complete HTML page.
func (rn Renderer) HTML(r *conjoint.AnalysisReport) ([]byte, error) {
	md, err := rn.Markdown(r)
	if err != nil {
		return nil, err
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Conjoint Analysis: " + r.Study,
	})
	return markdown.Render(doc, renderer), nil
}

func writeImportance(b *bytes.Buffer, r *conjoint.AnalysisReport) {
	if len(r.Importance) == 0 {
		return
	}
	b.WriteString("## Attribute Importance\n\n")
	b.WriteString("| Rank | Attribute | Importance | Range | |\n|---:|---|---:|---:|---|\n")
	for _, imp := range r.Importance {
		name := imp.Attribute
		if imp.Label != "" {
			name = imp.Label
		}
		fmt.Fprintf(b, "| %d | %s | %.1f%% | %.3f | %s |\n", imp.Rank, cell(name), imp.ImportancePct, imp.Range, cell(imp.Interpretation))
	}
	b.WriteString("\n")
}

func writeUtilities(b *bytes.Buffer, r *conjoint.AnalysisReport) {
	if len(r.Utilities) == 0 {
		return
	}
	b.WriteString("## Part-Worth Utilities\n\n")
	b.WriteString("| Attribute | Level | Utility | SE | CI | p | | Interpretation |\n")
	b.WriteString("|---|---|---:|---:|---|---:|---|---|\n")
	row := func(u conjoint.UtilityRow) {
		level := cell(u.Level)
		if u.IsBaseline {
			level += " (ref)"
		}
		ci := "NA"
		if !u.CILower.IsNA() && !u.CIUpper.IsNA() {
			ci = fmt.Sprintf("[%.3f, %.3f]", u.CILower.Value(), u.CIUpper.Value())
		}
		fmt.Fprintf(b, "| %s | %s | %.3f | %s | %s | %s | %s | %s |\n", cell(u.Attribute), level, u.Utility,
			num(u.StdError, "%.3f"), ci, num(u.PValue, "%.4f"), u.Significance, cell(u.Interpretation))
	}
	for _, u := range r.Utilities {
		row(u)
	}
	if r.NoneUtility != nil {
		row(*r.NoneUtility)
	}
	b.WriteString("\nSignificance: `***` p < 0.001, `**` p < 0.01, `*` p < 0.05, `.` p < 0.1\n\n")
}

func writeFit(b *bytes.Buffer, r *conjoint.AnalysisReport) {
	fit := r.Fit
	b.WriteString("## Model Fit\n\n")
	if fit.Assessment != "" {
		fmt.Fprintf(b, "%s\n\n", sanitize(fit.Assessment))
	}
	b.WriteString("| Statistic | Value |\n|---|---:|\n")
	fmt.Fprintf(b, "| Observations | %d |\n| Parameters | %d |\n", fit.NObs, fit.NParameters)
	if r.AnalysisType == conjoint.AnalysisRating {
		fmt.Fprintf(b, "| R² | %s |\n| Adjusted R² | %s |\n| RMSE | %s |\n",
			num(fit.RSquared, "%.4f"), num(fit.AdjRSquared, "%.4f"), num(fit.RMSE, "%.4f"))
	} else {
		fmt.Fprintf(b, "| Log-likelihood (null) | %s |\n| Log-likelihood (fitted) | %s |\n",
			num(fit.LogLikNull, "%.2f"), num(fit.LogLikFitted, "%.2f"))
		fmt.Fprintf(b, "| McFadden R² | %s |\n| Adjusted McFadden R² | %s |\n",
			num(fit.McFaddenR2, "%.4f"), num(fit.AdjMcFaddenR2, "%.4f"))
		fmt.Fprintf(b, "| AIC | %s |\n| BIC | %s |\n", num(fit.AIC, "%.2f"), num(fit.BIC, "%.2f"))
		fmt.Fprintf(b, "| LR χ² (df %d) | %s |\n| LR p-value | %s |\n", fit.LRDF, num(fit.LRChiSq, "%.2f"), num(fit.LRPValue, "%.4g"))
	}
	if fit.ConvergeNote != "" {
		fmt.Fprintf(b, "\nConvergence: %s\n", sanitize(fit.ConvergeNote))
	}
	b.WriteString("\n")
}

func writeDiagnostics(b *bytes.Buffer, r *conjoint.AnalysisReport) {
	if h := r.HitRate; h != nil {
		b.WriteString("## Hit Rate\n\n")
		fmt.Fprintf(b, "%d of %d choice sets predicted correctly (%.1f%%, chance %.1f%%, %.2f× chance). %s\n\n",
			h.Hits, h.ChoiceSets, 100*h.Rate, 100*h.ChanceRate, h.Improvement, sanitize(h.Assessment))
	}
	if len(r.Significance) > 0 {
		b.WriteString("## Significance by Attribute\n\n| Attribute | Tested | Significant | Summary |\n|---|---:|---:|---|\n")
		for _, s := range r.Significance {
			fmt.Fprintf(b, "| %s | %d | %d | %s |\n", cell(s.Attribute), s.Levels, s.Significant, cell(s.Summary))
		}
		b.WriteString("\n")
	}
	if len(r.Frequencies) > 0 {
		b.WriteString("## Level Frequencies\n\n| Attribute | Level | Shown | Chosen | Choice % |\n|---|---|---:|---:|---:|\n")
		for _, lf := range r.Frequencies {
			fmt.Fprintf(b, "| %s | %s | %d | %d | %.1f |\n", cell(lf.Attribute), cell(lf.Level), lf.Shown, lf.Chosen, lf.ChoicePct)
		}
		b.WriteString("\n")
	}
}

func writeSimulator(b *bytes.Buffer, seed *conjoint.SimulatorSeed) {
	if seed == nil {
		return
	}
	b.WriteString("## Market Simulator\n\n")
	if len(seed.Products) > 0 {
		attrs := make([]string, 0, len(seed.Products[0].Levels))
		for a := range seed.Products[0].Levels {
			attrs = append(attrs, a)
		}
		sort.Strings(attrs)
		shares := make(map[string]conjoint.ShareRow, len(seed.Shares))
		for _, s := range seed.Shares {
			shares[s.Product] = s
		}

		b.WriteString("| Product |")
		for _, a := range attrs {
			fmt.Fprintf(b, " %s |", cell(a))
		}
		b.WriteString(" Utility | Share |\n|---|")
		b.WriteString(strings.Repeat("---|", len(attrs)))
		b.WriteString("---:|---:|\n")
		for _, p := range seed.Products {
			fmt.Fprintf(b, "| %s |", cell(p.Name))
			for _, a := range attrs {
				fmt.Fprintf(b, " %s |", cell(p.Levels[a]))
			}
			s := shares[p.Name]
			fmt.Fprintf(b, " %.3f | %.1f%% |\n", s.Utility, 100*s.Share)
		}
		b.WriteString("\n")
	}
}

func writeWarnings(b *bytes.Buffer, findings []conjoint.Finding) {
	if len(findings) == 0 {
		return
	}
	b.WriteString("## Warnings\n\n")
	for _, f := range findings {
		fmt.Fprintf(b, "- **%s** `%s`: %s\n", f.Severity, f.Code, sanitize(f.Message))
	}
	b.WriteString("\n")
}

func num(v conjoint.Float, format string) string {
	if v.IsNA() {
		return "NA"
	}
	return fmt.Sprintf(format, v.Value())
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

func cell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}
