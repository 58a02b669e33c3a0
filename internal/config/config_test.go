package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.7, cfg.Enrich.MinConfidence, 0.001)
	assert.Equal(t, 5, cfg.Enrich.MaxResults)
	assert.True(t, cfg.Enrich.CrossValidation)
	assert.InDelta(t, 0.6, cfg.Enrich.SourceWeights["apollo"], 0.001)
	assert.InDelta(t, 0.4, cfg.Enrich.SourceWeights["rocketreach"], 0.001)
	assert.Contains(t, cfg.Enrich.TargetTitles, "Chief Financial Officer")
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.InitialBackoffMs)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0.001)
	assert.Equal(t, 300, cfg.Navigation.TimeoutSecs)
	assert.Equal(t, 3, cfg.Navigation.MaxAttempts)
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 60, cfg.RateLimit.WindowSecs)
	assert.Equal(t, "https://api.apollo.io/v1", cfg.Apollo.BaseURL)
	assert.Equal(t, "https://api.rocketreach.co/v2", cfg.RocketReach.BaseURL)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrent)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 5, cfg.Monitoring.MinSearches)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
enrich:
  max_results: 10
  source_weights:
    apollo: 0.9
    rocketreach: 0.8
batch:
  max_concurrent: 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Enrich.MaxResults)
	assert.InDelta(t, 0.9, cfg.Enrich.SourceWeights["apollo"], 0.001)
	assert.Equal(t, 7, cfg.Batch.MaxConcurrent)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.7, cfg.Enrich.MinConfidence, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEAD_STORE_DRIVER", "file")
	t.Setenv("LEAD_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLegacyKeyEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("APOLLO_API_KEY", "apollo-legacy")
	t.Setenv("LEAD_ROCKETREACH_KEY", "rr-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "apollo-legacy", cfg.Apollo.Key)
	assert.Equal(t, "rr-key", cfg.RocketReach.Key)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEAD_SERVER_PORT=3000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("LEAD_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with loaded defaults and one source key.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Apollo.Key = "apollo-key"
	return cfg
}

func TestValidateEnrich_AllPresent(t *testing.T) {
	cfg := validDefaults(t)
	assert.NoError(t, cfg.Validate("enrich"))
}

func TestValidateEnrich_NoSourceKeys(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Apollo.Key = ""

	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apollo.key or rocketreach.key is required")
}

func TestValidateOffline_NoSourceKeys(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Apollo.Key = ""
	assert.NoError(t, cfg.Validate("offline"))
}

func TestValidateNotion_MissingFields(t *testing.T) {
	cfg := validDefaults(t)

	err := cfg.Validate("notion")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")
	assert.Contains(t, err.Error(), "notion.lead_db is required")

	cfg.Notion.Token = "ntn_token"
	cfg.Notion.LeadDB = "lead-db-id"
	assert.NoError(t, cfg.Validate("notion"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults(t)
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRanges(t *testing.T) {
	cfg := validDefaults(t)

	cfg.Enrich.MinConfidence = 1.5
	err := cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enrich.min_confidence")

	cfg.Enrich.MinConfidence = 0.7
	cfg.Batch.MaxConcurrent = 0
	err = cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_concurrent")

	cfg.Batch.MaxConcurrent = 3
	cfg.Store.Driver = "postgres"
	err = cfg.Validate("enrich")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("enrich"))
}
