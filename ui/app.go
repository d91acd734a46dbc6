// Package ui serves a read-only browser view of stored analysis runs.
package ui

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"conjoint/internal"
	"conjoint/ports"
)

//go:embed templates/*.html
var embeddedFiles embed.FS

// App represents the UI application
type App struct {
	router    *chi.Mux
	runs      ports.RunRepository
	renderer  ports.ReportRenderer
	templates *template.Template
	server    *http.Server
	log       *internal.Logger
}

// Config holds UI application configuration
type Config struct {
	Port     string
	Runs     ports.RunRepository
	Renderer ports.ReportRenderer
}

// NewApp creates a new UI application
func NewApp(config Config) (*App, error) {
	if config.Runs == nil || config.Renderer == nil {
		return nil, fmt.Errorf("ui needs a run repository and a report renderer")
	}
	funcMap := template.FuncMap{
		"pct": func(v *float64) string {
			if v == nil {
				return "NA"
			}
			return fmt.Sprintf("%.1f%%", *v*100)
		},
		"num": func(v *float64) string {
			if v == nil {
				return "NA"
			}
			return fmt.Sprintf("%.3f", *v)
		},
		"when": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	}
	templates, err := template.New("").Funcs(funcMap).ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	app := &App{
		router:    chi.NewRouter(),
		runs:      config.Runs,
		renderer:  config.Renderer,
		templates: templates,
		log:       internal.DefaultLogger.With("UI"),
	}
	if config.Port != "" {
		app.server = &http.Server{Addr: ":" + config.Port, Handler: app.router, ReadHeaderTimeout: 10 * time.Second}
	}

	app.setupMiddleware()
	app.setupRoutes()

	return app, nil
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/", a.handleIndex)
	a.router.Get("/runs/{id}", a.handleRun)
	a.router.Get("/runs/{id}/report.md", a.handleRunMarkdown)
}

// Handler exposes the router for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.router
}

// Start serves the UI on the configured port until Shutdown.
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("ui port is not configured")
	}
	a.log.Info("listening on %s", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the UI server.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
