package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// EngineConfig holds script engine configuration
type EngineConfig struct {
	MaxCallStackSize       int    `mapstructure:"max_call_stack_size"`
	ReleaseMemoryOnDispose bool   `mapstructure:"release_memory_on_dispose"`
	DefaultFilename        string `mapstructure:"default_filename"`
	EnableConsole          bool   `mapstructure:"enable_console"`
	ScriptCacheSize        int    `mapstructure:"script_cache_size"`
}

// ExecutorConfig holds session executor configuration
type ExecutorConfig struct {
	TimeoutSec  int `mapstructure:"timeout_sec"`
	MaxSessions int `mapstructure:"max_sessions"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// EnvPrefix prefixes environment overrides, e.g. CONTEXTBOX_SERVER_TRANSPORT
const EnvPrefix = "CONTEXTBOX"

// New loads and validates the application configuration from config.yaml
// in the working directory or ./config, falling back to defaults
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	return unmarshal(v)
}

// Load reads the configuration from an explicit file path
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)

	v.SetDefault("engine.max_call_stack_size", 1024)
	v.SetDefault("engine.release_memory_on_dispose", false)
	v.SetDefault("engine.default_filename", "script.<anonymous>")
	v.SetDefault("engine.enable_console", true)
	v.SetDefault("engine.script_cache_size", 128)

	v.SetDefault("executor.timeout_sec", 10)
	v.SetDefault("executor.max_sessions", 64)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Engine.MaxCallStackSize < 0 {
		return fmt.Errorf("engine.max_call_stack_size must not be negative, got: %d", c.Engine.MaxCallStackSize)
	}

	if c.Engine.ScriptCacheSize <= 0 {
		return fmt.Errorf("engine.script_cache_size must be positive, got: %d", c.Engine.ScriptCacheSize)
	}

	if c.Executor.TimeoutSec <= 0 {
		return fmt.Errorf("executor.timeout_sec must be positive, got: %d", c.Executor.TimeoutSec)
	}

	if c.Executor.MaxSessions <= 0 {
		return fmt.Errorf("executor.max_sessions must be positive, got: %d", c.Executor.MaxSessions)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics.port: %d", c.Metrics.Port)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Executor.TimeoutSec) * time.Second
}
