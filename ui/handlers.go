package ui

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"conjoint/domain/conjoint"
	"conjoint/domain/core"
	"conjoint/domain/run"
	"conjoint/ports"
)

const pageSize = 50

type indexPage struct {
	Title  string
	Study  string
	Status string
	Runs   []run.Summary
	Page   int
	Next   int
	Prev   int
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	filters := ports.RunFilters{
		Study:  r.URL.Query().Get("study"),
		Status: run.Status(r.URL.Query().Get("status")),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	runs, err := a.runs.List(r.Context(), filters)
	if err != nil {
		a.log.Error("listing runs: %v", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	data := indexPage{
		Title:  "Analysis runs",
		Study:  filters.Study,
		Status: string(filters.Status),
		Runs:   runs,
		Page:   page,
		Prev:   page - 1,
	}
	if len(runs) == pageSize {
		data.Next = page + 1
	}
	a.renderTemplate(w, "runs.html", data)
}

// loadReport answers the request itself when the run cannot be shown.
func (a *App) loadReport(w http.ResponseWriter, r *http.Request) (*conjoint.AnalysisReport, bool) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	ar, err := a.runs.Get(r.Context(), id)
	if err != nil {
		if core.IsNotFoundError(err) {
			http.NotFound(w, r)
			return nil, false
		}
		a.log.Error("loading run %s: %v", id, err)
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return nil, false
	}
	if ar.Report == nil {
		a.renderTemplate(w, "failed.html", ar)
		return nil, false
	}
	return ar.Report, true
}

func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	report, ok := a.loadReport(w, r)
	if !ok {
		return
	}
	page, err := a.renderer.HTML(report)
	if err != nil {
		a.log.Error("rendering report: %v", err)
		http.Error(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (a *App) handleRunMarkdown(w http.ResponseWriter, r *http.Request) {
	report, ok := a.loadReport(w, r)
	if !ok {
		return
	}
	md, err := a.renderer.Markdown(report)
	if err != nil {
		http.Error(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write(md)
}

// renderTemplate executes into a buffer first so a failing template never
// sends a half-written page.
func (a *App) renderTemplate(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := a.templates.ExecuteTemplate(&buf, name, data); err != nil {
		a.log.Error("template %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
