package migration

import (
	"context"
	"fmt"

	"conjoint/internal"
	"conjoint/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
	log     *internal.Logger
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
		log:     internal.DefaultLogger.With("migration"),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// dialect holds the column types that differ between postgres and sqlite.
type dialect struct {
	timestamp string
	json      string
	float     string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return dialect{timestamp: "TIMESTAMP WITH TIME ZONE", json: "JSONB", float: "DOUBLE PRECISION"}, nil
	case "sqlite", "sqlite3":
		return dialect{timestamp: "TIMESTAMP", json: "TEXT", float: "REAL"}, nil
	default:
		return dialect{}, errors.ConfigInvalid(fmt.Sprintf("no schema for database driver %q", driver))
	}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	d, err := dialectFor(db.DriverName())
	if err != nil {
		return err
	}

	if err := r.createAnalysisRunsTable(ctx, db, d); err != nil {
		return errors.Wrap(err, "failed to create analysis_runs table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	r.log.Info("schema %s applied (%s)", r.version, db.DriverName())
	return nil
}

func (r *MigrationRunner) createAnalysisRunsTable(ctx context.Context, db *sqlx.DB, d dialect) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS analysis_runs (
			id VARCHAR(36) PRIMARY KEY,
			study VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL,
			method VARCHAR(50) NOT NULL DEFAULT '',
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			fingerprint VARCHAR(64) NOT NULL DEFAULT '',
			dataset_hash VARCHAR(64) NOT NULL DEFAULT '',
			config_hash VARCHAR(64) NOT NULL DEFAULT '',
			code_version VARCHAR(50) NOT NULL DEFAULT '',
			error_code VARCHAR(50) NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			mcfadden_r2 %[3]s,
			hit_rate %[3]s,
			report %[2]s,
			created_at %[1]s NOT NULL,
			duration_ns BIGINT NOT NULL DEFAULT 0
		)
	`, d.timestamp, d.json, d.float))
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_study ON analysis_runs(study)",
		"CREATE INDEX IF NOT EXISTS idx_runs_status ON analysis_runs(status)",
		"CREATE INDEX IF NOT EXISTS idx_runs_created_at ON analysis_runs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON analysis_runs(fingerprint)",
	}

	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
