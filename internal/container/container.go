package container

import (
	"context"
	"fmt"

	"conjoint/adapters/excel"
	"conjoint/adapters/report"
	"conjoint/adapters/store"
	"conjoint/app"
	"conjoint/internal"
	"conjoint/internal/api"
	"conjoint/internal/config"
	"conjoint/internal/metrics"
	"conjoint/ports"
	"conjoint/ui"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB      *sqlx.DB
	Metrics *metrics.Metrics
	Events  *api.SSEHub

	// Adapters
	Runs     ports.RunRepository
	Renderer report.Renderer
	Writer   *excel.ResultsWriter

	// Services
	Analyses    *app.AnalysisService
	Simulations *app.SimulationService

	log *internal.Logger
}

// New creates a new dependency injection container. Services are built by
// InitWithDatabase.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Container{
		Config:   cfg,
		Metrics:  metrics.New(),
		Events:   api.NewSSEHub(),
		Renderer: report.NewRenderer(),
		Writer:   excel.NewResultsWriter(),
		log:      internal.DefaultLogger.With("Container"),
	}, nil
}

// OpenDatabase connects to DATABASE_URL. With no URL and inMemory set, runs
// are kept in an in-memory sqlite database for the life of the process.
func (c *Container) OpenDatabase(ctx context.Context, inMemory bool) (*sqlx.DB, error) {
	dbCfg := c.Config.Database
	if !dbCfg.Enabled() {
		if !inMemory {
			return nil, nil
		}
		c.log.Warn("DATABASE_URL is not set, analysis runs are kept in memory")
		dbCfg.URL = ":memory:"
		dbCfg.Driver = config.DriverSQLite
	}
	return store.Open(ctx, dbCfg)
}

// InitWithDatabase builds the repositories and services. db may be nil, in
// which case runs are not persisted.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	c.DB = db
	if db != nil {
		if err := db.Ping(); err != nil {
			return fmt.Errorf("database connection test failed: %w", err)
		}
		c.Runs = store.NewRunRepository(db)
	}

	opts := []app.AnalysisServiceOption{
		app.WithResultsWriter(c.Writer),
		app.WithMetrics(c.Metrics),
		app.WithEventPublisher(c.Events),
		app.WithEstimationDefaults(c.Config.Estimation),
		app.WithSimulatorWorkers(c.Config.Simulation.Workers),
	}
	if c.Runs != nil {
		opts = append(opts, app.WithRunRepository(c.Runs))
	}
	c.Analyses = app.NewAnalysisService(opts...)
	c.Simulations = app.NewSimulationService(c.Runs, c.Metrics, c.Config.Simulation.Workers)

	c.log.Debug("services initialized (persistence: %t)", c.Runs != nil)
	return nil
}

// DataSource opens a study data file.
func (c *Container) DataSource(path string) ports.DataSource {
	return excel.NewDataReader(path)
}

// APIServer builds the JSON API over the container's services.
func (c *Container) APIServer() (*api.Server, error) {
	if c.Runs == nil {
		return nil, fmt.Errorf("api server needs run storage")
	}
	return api.NewServer(api.Deps{
		Analyses:    c.Analyses,
		Simulations: c.Simulations,
		Runs:        c.Runs,
		Renderer:    c.Renderer,
		Metrics:     c.Metrics,
		Events:      c.Events,
		Sources:     c.DataSource,
	}), nil
}

// UIApp builds the browser view of stored runs.
func (c *Container) UIApp() (*ui.App, error) {
	return ui.NewApp(ui.Config{
		Port:     c.Config.Server.UIPort,
		Runs:     c.Runs,
		Renderer: c.Renderer,
	})
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	c.Events.Close()
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// Serve runs the API and UI servers until ctx is cancelled, then shuts both
// down within the configured timeout.
func (c *Container) Serve(ctx context.Context) error {
	server, err := c.APIServer()
	if err != nil {
		return err
	}
	uiApp, err := c.UIApp()
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start(":" + c.Config.Server.Port) }()
	go func() { errCh <- uiApp.Start() }()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			c.log.Error("server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Config.Server.ShutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	if serr := uiApp.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	c.log.Info("servers stopped")
	return err
}
