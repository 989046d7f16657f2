package sandbox

import (
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/isdmx/contextbox/config"
)

// NewEngineFromConfig creates an Engine reporting to reg
func NewEngineFromConfig(logger *zap.Logger, cfg *config.Config, reg *prometheus.Registry) *Engine {
	opts := []Option{
		WithMaxCallStackSize(cfg.Engine.MaxCallStackSize),
		WithDefaultFilename(cfg.Engine.DefaultFilename),
	}
	if reg != nil {
		opts = append(opts, WithMetrics(NewMetrics(reg)))
	}
	if cfg.Engine.ReleaseMemoryOnDispose {
		opts = append(opts, WithGCHint(debug.FreeOSMemory))
	}

	return NewEngine(logger.Named("engine"), opts...)
}

// NewExecutor creates the executor exposed over MCP
func NewExecutor(logger *zap.Logger, cfg *config.Config, engine *Engine) SandboxExecutor {
	return NewScriptExecutor(logger.Named("executor"), engine, ExecutorConfig{
		Timeout:         cfg.GetTimeout(),
		MaxSessions:     cfg.Executor.MaxSessions,
		EnableConsole:   cfg.Engine.EnableConsole,
		ScriptCacheSize: cfg.Engine.ScriptCacheSize,
	})
}
