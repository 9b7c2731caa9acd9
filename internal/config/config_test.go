package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ASTGRAPH_DSN", "")
	t.Setenv("ASTGRAPH_BACKEND", "")
	cfg := Load()
	assert.Equal(t, DefaultDSN, cfg.DSN)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 200, cfg.BatchSize)
}

func TestLoad_ReadsOverrides(t *testing.T) {
	t.Setenv("ASTGRAPH_DSN", "postgres://x/y")
	t.Setenv("ASTGRAPH_BACKEND", "SQLite")
	t.Setenv("ASTGRAPH_BATCH_SIZE", "50")
	cfg := Load()
	assert.Equal(t, "postgres://x/y", cfg.DSN)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 50, cfg.BatchSize)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("ASTGRAPH_BATCH_SIZE", "not-a-number")
	cfg := Load()
	assert.Equal(t, 200, cfg.BatchSize)
}
