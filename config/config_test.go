package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "http",
			HTTPPort:  8080,
		},
		Engine: EngineConfig{
			MaxCallStackSize: 1024,
			DefaultFilename:  "script.<anonymous>",
			EnableConsole:    true,
			ScriptCacheSize:  128,
		},
		Executor: ExecutorConfig{
			TimeoutSec:  10,
			MaxSessions: 64,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		// Test that a valid config does not fail validation
		err := validConfig().validate()
		require.NoError(t, err)
	})

	tests := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{"InvalidServerTransport", func(c *Config) { c.Server.Transport = "invalid" }, "invalid server.transport"},
		{"InvalidHTTPPort", func(c *Config) { c.Server.HTTPPort = 70000 }, "invalid server.http_port"},
		{"NegativeCallStack", func(c *Config) { c.Engine.MaxCallStackSize = -1 }, "engine.max_call_stack_size"},
		{"ZeroScriptCache", func(c *Config) { c.Engine.ScriptCacheSize = 0 }, "engine.script_cache_size"},
		{"ZeroTimeout", func(c *Config) { c.Executor.TimeoutSec = 0 }, "executor.timeout_sec"},
		{"ZeroMaxSessions", func(c *Config) { c.Executor.MaxSessions = 0 }, "executor.max_sessions"},
		{"InvalidMetricsPort", func(c *Config) { c.Metrics.Port = 0 }, "invalid metrics.port"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "verbose" }, "invalid logging.mode"},
		{"InvalidLoggingLevel", func(c *Config) { c.Logging.Level = "loud" }, "invalid logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}

	t.Run("HTTPPortIgnoredForStdio", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Transport = "stdio"
		cfg.Server.HTTPPort = 0
		require.NoError(t, cfg.validate())
	})

	t.Run("MetricsPortIgnoredWhenDisabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics.Enabled = false
		cfg.Metrics.Port = 0
		require.NoError(t, cfg.validate())
	})
}

func TestGetTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Executor.TimeoutSec = 3
	assert.Equal(t, 3*time.Second, cfg.GetTimeout())
}

func TestNewDefaults(t *testing.T) {
	// No config.yaml in an empty working directory
	t.Chdir(t.TempDir())

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 1024, cfg.Engine.MaxCallStackSize)
	assert.False(t, cfg.Engine.ReleaseMemoryOnDispose)
	assert.Equal(t, "script.<anonymous>", cfg.Engine.DefaultFilename)
	assert.True(t, cfg.Engine.EnableConsole)
	assert.Equal(t, 128, cfg.Engine.ScriptCacheSize)
	assert.Equal(t, 10, cfg.Executor.TimeoutSec)
	assert.Equal(t, 64, cfg.Executor.MaxSessions)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "production", cfg.Logging.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func writeConfigFile(t *testing.T, dir string, doc map[string]any) string {
	t.Helper()

	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("FromFile", func(t *testing.T) {
		path := writeConfigFile(t, t.TempDir(), map[string]any{
			"server": map[string]any{"transport": "http", "http_port": 9000},
			"engine": map[string]any{
				"max_call_stack_size":       256,
				"release_memory_on_dispose": true,
				"enable_console":            false,
			},
			"executor": map[string]any{"timeout_sec": 2},
			"logging":  map[string]any{"mode": "development", "level": "debug"},
		})

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "http", cfg.Server.Transport)
		assert.Equal(t, 9000, cfg.Server.HTTPPort)
		assert.Equal(t, 256, cfg.Engine.MaxCallStackSize)
		assert.True(t, cfg.Engine.ReleaseMemoryOnDispose)
		assert.False(t, cfg.Engine.EnableConsole)
		assert.Equal(t, 2, cfg.Executor.TimeoutSec)
		assert.Equal(t, "development", cfg.Logging.Mode)

		// Unset keys keep their defaults
		assert.Equal(t, 64, cfg.Executor.MaxSessions)
		assert.Equal(t, 128, cfg.Engine.ScriptCacheSize)
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		path := writeConfigFile(t, t.TempDir(), map[string]any{
			"executor": map[string]any{"timeout_sec": 2},
		})
		t.Setenv("CONTEXTBOX_EXECUTOR_TIMEOUT_SEC", "7")
		t.Setenv("CONTEXTBOX_LOGGING_LEVEL", "warn")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Executor.TimeoutSec)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		path := writeConfigFile(t, t.TempDir(), map[string]any{
			"server": map[string]any{"transport": "carrier-pigeon"},
		})

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation error")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}

func TestNewReadsConfigDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	writeConfigFile(t, filepath.Join(dir, "config"), map[string]any{
		"executor": map[string]any{"max_sessions": 3},
	})
	t.Chdir(dir)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Executor.MaxSessions)
}
