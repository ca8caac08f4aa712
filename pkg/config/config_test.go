package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfigFile writes a minimal config.yaml into a temp working directory
// and chdirs into it for the duration of the test.
func writeConfigFile(t *testing.T, contents string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600))
	t.Chdir(dir)
}

func TestLoad_Defaults(t *testing.T) {
	writeConfigFile(t, "env: local\n")

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 60, cfg.Pipeline.DebounceSeconds)
	assert.Equal(t, 60, cfg.Pipeline.AutoHealMinutes)
	assert.Equal(t, 15, cfg.Pipeline.OrphanMinutes)
	assert.Equal(t, "buddy_engine", cfg.Database.Database)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	writeConfigFile(t, "env: local\npipeline:\n  debounce_seconds: 30\n")
	t.Setenv("PIPELINE_DEBOUNCE_SECONDS", "90")

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Pipeline.DebounceSeconds)
}

func TestLoad_ProductionRequiresScanner(t *testing.T) {
	writeConfigFile(t, "env: production\n")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCANNER_ENDPOINT")
}

func TestLoad_ProductionWithScannerPasses(t *testing.T) {
	writeConfigFile(t, "env: production\nscanner:\n  endpoint: http://scanner:3310\n")

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestValidate_RejectsBadThresholds(t *testing.T) {
	cfg := &Config{
		Env: "local",
		Pipeline: PipelineConfig{
			DebounceSeconds: 60,
			AutoHealMinutes: 0,
			OrphanMinutes:   15,
			WorkerCount:     1,
		},
	}
	assert.Error(t, cfg.Validate())
}

func TestConnectionString(t *testing.T) {
	db := &DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "buddy",
		Password: "secret",
		Database: "buddy_engine",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=buddy password=secret dbname=buddy_engine sslmode=require",
		db.ConnectionString())
}
