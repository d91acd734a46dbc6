package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"conjoint/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Paths      PathConfig
	Estimation EstimationConfig
	Simulation SimulationConfig
	LogLevel   string
}

// DatabaseConfig holds database connection settings. An empty URL disables
// persistence of analysis runs.
type DatabaseConfig struct {
	URL     string
	Driver  string
	MaxOpen int
	MaxIdle int
	MaxLife time.Duration
}

// Enabled reports whether runs are persisted.
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string
	GinMode         string
	UIPort          string
	ShutdownTimeout time.Duration
}

// PathConfig holds file system paths
type PathConfig struct {
	ResultsDir string
}

// EstimationConfig holds solver defaults applied when a study does not set them.
type EstimationConfig struct {
	MaxIterations int
	Tolerance     float64
}

// SimulationConfig holds market simulator settings.
type SimulationConfig struct {
	Workers int
}

// Driver names accepted by DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database:   *loadDatabaseConfig(),
		Server:     *loadServerConfig(),
		Paths:      *loadPathConfig(),
		Estimation: *loadEstimationConfig(),
		Simulation: *loadSimulationConfig(),
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	// Validate required fields
	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() *DatabaseConfig {
	url := os.Getenv("DATABASE_URL")
	return &DatabaseConfig{
		URL:     url,
		Driver:  getEnvOrDefault("DB_DRIVER", inferDriver(url)),
		MaxOpen: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		MaxIdle: getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		MaxLife: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

// inferDriver picks postgres for postgres URLs and sqlite for anything else
// (file paths, file: URIs, :memory:).
func inferDriver(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") ||
		strings.Contains(url, "host=") {
		return DriverPostgres
	}
	return DriverSQLite
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		GinMode:         getEnvOrDefault("GIN_MODE", "debug"),
		UIPort:          getEnvOrDefault("UI_PORT", "8081"),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func loadPathConfig() *PathConfig {
	return &PathConfig{
		ResultsDir: getEnvOrDefault("RESULTS_DIR", "./results"),
	}
}

func loadEstimationConfig() *EstimationConfig {
	return &EstimationConfig{
		MaxIterations: getEnvIntOrDefault("MAX_ITERATIONS", 100),
		Tolerance:     getEnvFloatOrDefault("TOLERANCE", 1e-8),
	}
}

func loadSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		Workers: getEnvIntOrDefault("SIM_WORKERS", 4),
	}
}

func validateConfig(config *Config) error {
	if config.Database.Enabled() &&
		config.Database.Driver != DriverPostgres && config.Database.Driver != DriverSQLite {
		return errors.ConfigInvalid("DB_DRIVER must be postgres or sqlite")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	if config.Estimation.MaxIterations <= 0 {
		return errors.ConfigInvalid("MAX_ITERATIONS must be positive")
	}
	if config.Estimation.Tolerance <= 0 {
		return errors.ConfigInvalid("TOLERANCE must be positive")
	}
	if config.Simulation.Workers <= 0 {
		return errors.ConfigInvalid("SIM_WORKERS must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
