package container

import (
	"context"
	"testing"

	"conjoint/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Port: "0", UIPort: "0"},
		Estimation: config.EstimationConfig{MaxIterations: 50, Tolerance: 1e-8},
		Simulation: config.SimulationConfig{Workers: 2},
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestInMemoryWiring(t *testing.T) {
	ctx := context.Background()
	c, err := New(testConfig())
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	db, err := c.OpenDatabase(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, db)
	require.NoError(t, c.InitWithDatabase(db))

	assert.NotNil(t, c.Runs)
	assert.NotNil(t, c.Analyses)
	assert.NotNil(t, c.Simulations)

	server, err := c.APIServer()
	require.NoError(t, err)
	assert.NotNil(t, server.Handler())

	ui, err := c.UIApp()
	require.NoError(t, err)
	assert.NotNil(t, ui.Handler())
}

func TestWithoutPersistence(t *testing.T) {
	ctx := context.Background()
	c, err := New(testConfig())
	require.NoError(t, err)
	defer c.Shutdown(ctx)

	db, err := c.OpenDatabase(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, db)
	require.NoError(t, c.InitWithDatabase(nil))

	assert.Nil(t, c.Runs)
	assert.NotNil(t, c.Analyses)
	_, err = c.APIServer()
	assert.Error(t, err)
}
