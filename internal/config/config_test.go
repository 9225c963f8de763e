package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "data/dirtiness_points.json", cfg.Store.Path)
	assert.False(t, cfg.Store.Watch)
	assert.Equal(t, 3, cfg.Estimator.K)
	assert.InDelta(t, 0.25, cfg.Estimator.NearThresholdKM, 0.001)
	assert.InDelta(t, 1e-6, cfg.Estimator.EpsilonKM, 1e-12)
	assert.InDelta(t, 0.5, cfg.Estimator.FallbackScore, 0.001)
	assert.Equal(t, "reward/model.json", cfg.Reward.ModelPath)
	assert.InDelta(t, 10, cfg.Reward.RecyclableBase, 0.001)
	assert.InDelta(t, 5, cfg.Reward.TrashBase, 0.001)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 20, cfg.Server.RateLimitRPS, 0.001)
	assert.Equal(t, 40, cfg.Server.RateLimitBurst)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, "cleancredit", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: points.db
estimator:
  k: 5
  near_threshold_km: 0.1
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "points.db", cfg.Store.DatabaseURL)
	assert.NoError(t, cfg.Validate("store"))
	assert.Equal(t, 5, cfg.Estimator.K)
	assert.InDelta(t, 0.1, cfg.Estimator.NearThresholdKM, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.5, cfg.Estimator.FallbackScore, 0.001)
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

	t.Setenv("CLEANCREDIT_STORE_DRIVER", "postgres")
	t.Setenv("CLEANCREDIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CLEANCREDIT_SERVER_PORT", "3000")
	t.Setenv("CLEANCREDIT_ESTIMATOR_K", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Estimator.K)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "file"
	cfg.Store.Path = "data/dirtiness_points.json"
	cfg.Estimator.K = 3
	cfg.Estimator.NearThresholdKM = 0.25
	cfg.Estimator.EpsilonKM = 1e-6
	cfg.Estimator.FallbackScore = 0.5
	cfg.Reward.RecyclableBase = 10
	cfg.Reward.TrashBase = 5
	cfg.Server.Port = 5000
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateEstimator_BadPolicy(t *testing.T) {
	cfg := validDefaults()
	cfg.Estimator.K = 0
	cfg.Estimator.NearThresholdKM = -1
	cfg.Estimator.FallbackScore = 2
	cfg.Estimator.EpsilonKM = -1

	err := cfg.Validate("estimator")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "estimator.k must be >= 1")
	assert.Contains(t, err.Error(), "estimator.near_threshold_km")
	assert.Contains(t, err.Error(), "estimator.fallback_score")
	assert.Contains(t, err.Error(), "estimator.epsilon_km")
}

func TestValidateReward_BadBases(t *testing.T) {
	cfg := validDefaults()
	cfg.Reward.TrashBase = 0

	err := cfg.Validate("reward")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reward.trash_base")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/cleancredit"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = ""
	// store.path names the observation file; sqlite never falls back to it.
	assert.ErrorContains(t, cfg.Validate("store"), "store.database_url is required for driver sqlite")
	cfg.Store.DatabaseURL = "data/cleancredit.db"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mongo"
	assert.ErrorContains(t, cfg.Validate("store"), "not supported")
}

func TestValidateUnknownMode(t *testing.T) {
	assert.Error(t, validDefaults().Validate("enrichment"))
}
