// Package api serves analyses, stored runs and the market simulator over a
// JSON HTTP API.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"conjoint/app"
	"conjoint/internal"
	"conjoint/internal/estimation"
	"conjoint/internal/metrics"
	"conjoint/ports"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators of the API server. Runs is required; the rest
// may be nil.
type Deps struct {
	Analyses    *app.AnalysisService
	Simulations *app.SimulationService
	Runs        ports.RunRepository
	Renderer    ports.ReportRenderer
	Metrics     *metrics.Metrics
	Events      *SSEHub
	// Sources opens a study's data file when a request carries no inline data.
	Sources func(path string) ports.DataSource
}

// Server represents the JSON API server
type Server struct {
	router *gin.Engine
	deps   Deps
	http   *http.Server
	log    *internal.Logger
}

// NewServer builds the router and registers every route.
func NewServer(deps Deps) *Server {
	s := &Server{
		router: gin.New(),
		deps:   deps,
		log:    internal.DefaultLogger.With("API"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	s.http = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.router.Group("/api")
	if s.deps.Events != nil {
		api.GET("/events", s.deps.Events.HandleSSE)
	}

	analyses := api.Group("/analyses")
	analyses.POST("", s.handleCreateAnalysis)
	analyses.GET("", s.handleListAnalyses)
	analyses.GET("/:id", s.handleGetAnalysis)
	analyses.DELETE("/:id", s.handleDeleteAnalysis)
	analyses.GET("/:id/report", s.handleReport)
	analyses.POST("/:id/shares", s.handleShares)
	analyses.POST("/:id/sensitivity", s.handleSensitivity)
	analyses.POST("/:id/optimize", s.handleOptimize)
}

// requestLogger logs one line per request through the application logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("%s %s -> %d in %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("listening on %s", ln.Addr())
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"capabilities": estimation.Backend(),
		"version":      app.CodeVersion,
	})
}
