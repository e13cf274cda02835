package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "gemini-2.5-flash", cfg.Backend.Model)
	assert.Equal(t, 2, cfg.Research.MaxDeepening)
	assert.Equal(t, 2*time.Second, cfg.QueryDelayDuration())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatDuration())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Research, cfg.Research)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
research:
  depth: exhaustive
  max_deepening: 4
  query_delay: 500ms
backend:
  model: gemini-2.5-pro
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "exhaustive", cfg.Research.Depth)
	assert.Equal(t, 4, cfg.Research.MaxDeepening)
	assert.Equal(t, 500*time.Millisecond, cfg.QueryDelayDuration())
	assert.Equal(t, "gemini-2.5-pro", cfg.Backend.Model)
	// Untouched sections keep defaults.
	assert.Equal(t, 100, cfg.Events.HistoryLimit)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHRONICLE_API_KEY", "key-from-env")
	t.Setenv("CHRONICLE_MODEL", "gemini-env")
	t.Setenv("CHRONICLE_MAX_DEEPENING", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.Backend.APIKey)
	assert.Equal(t, "gemini-env", cfg.Backend.Model)
	assert.Equal(t, 7, cfg.Research.MaxDeepening)
}

func TestGeminiKeyFallback(t *testing.T) {
	t.Setenv("CHRONICLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.Backend.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero discovery queries", func(c *Config) { c.Research.DiscoveryQueries = 0 }},
		{"zero target entities", func(c *Config) { c.Research.TargetEntities = 0 }},
		{"negative deepening", func(c *Config) { c.Research.MaxDeepening = -1 }},
		{"threshold above one", func(c *Config) { c.Research.DepthThreshold = 1.5 }},
		{"zero concurrency", func(c *Config) { c.Limits.MaxConcurrentMissions = 0 }},
		{"bad query delay", func(c *Config) { c.Research.QueryDelay = "soon" }},
		{"bad heartbeat", func(c *Config) { c.Events.Heartbeat = "often" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
