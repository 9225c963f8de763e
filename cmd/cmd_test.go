package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/cleancredit/internal/config"
)

// testConfig installs a config pointing at a temp file store.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{
		Store: config.StoreConfig{Driver: "file", Path: filepath.Join(dir, "points.json")},
		Estimator: config.EstimatorConfig{
			K: 3, NearThresholdKM: 0.25, EpsilonKM: 1e-6, FallbackScore: 0.5,
		},
		Reward: config.RewardConfig{
			ModelPath: filepath.Join(dir, "model.json"), RecyclableBase: 10, TrashBase: 5,
		},
		Server: config.ServerConfig{Port: 5000, CORSOrigins: []string{"*"}},
		Log:    config.LogConfig{Level: "error", Format: "json"},
	}
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return c
}

// execute runs the root command with env-based config and captures stdout.
func execute(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CLEANCREDIT_LOG_LEVEL", "error")
	for k, v := range env {
		t.Setenv(k, v)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
