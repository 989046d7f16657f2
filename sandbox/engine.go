package sandbox

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Engine builds sandboxes, tracks which Context is currently entered and
// tears contexts down once their sandbox is collected.
//
// An Engine and everything built on it must be used from one goroutine at a
// time. Re-entrant runs (guest code calling host code that runs more guest
// code) are supported through the context stack.
type Engine struct {
	logger  *zap.Logger
	metrics *Metrics

	maxCallStackSize int
	defaultFilename  string
	gcHint           func()
	disposeHooks     []func(id uint64)

	stack    []*Context
	nextID   atomic.Uint64
	disposed atomic.Int64
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics sets the collectors the engine reports to.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMaxCallStackSize bounds guest recursion depth.
func WithMaxCallStackSize(n int) Option {
	return func(e *Engine) {
		e.maxCallStackSize = n
	}
}

// WithDefaultFilename sets the origin name used by Sandbox.Run when none is given.
func WithDefaultFilename(name string) Option {
	return func(e *Engine) {
		e.defaultFilename = name
	}
}

// WithGCHint sets the function called after a context is torn down.
func WithGCHint(hint func()) Option {
	return func(e *Engine) {
		e.gcHint = hint
	}
}

// WithDisposeHook registers a function called once per invalidated context.
// Hooks run on the runtime's cleanup goroutine.
func WithDisposeHook(hook func(id uint64)) Option {
	return func(e *Engine) {
		e.disposeHooks = append(e.disposeHooks, hook)
	}
}

// NewEngine creates an Engine
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		logger:          logger,
		defaultFilename: DefaultFilename,
		gcHint:          func() {},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}

	return e
}

// Compile compiles code and records the attempt in the engine's metrics.
func (e *Engine) Compile(code string, filename ...string) (*Script, error) {
	s, err := Compile(code, filename...)
	if err != nil {
		e.metrics.ScriptsCompiled.WithLabelValues("error").Inc()
		return nil, err
	}
	e.metrics.ScriptsCompiled.WithLabelValues(resultOK).Inc()
	return s, nil
}

// Current returns the innermost entered Context, or nil when no script is
// running.
func (e *Engine) Current() *Context {
	if len(e.stack) == 0 {
		return nil
	}
	return e.stack[len(e.stack)-1]
}

// Depth returns the number of contexts currently entered.
func (e *Engine) Depth() int {
	return len(e.stack)
}

// Disposed returns how many contexts have been invalidated.
func (e *Engine) Disposed() int64 {
	return e.disposed.Load()
}

// enter pushes c and returns the matching exit. Callers defer the exit so
// it runs on every path.
func (e *Engine) enter(c *Context) func() {
	e.stack = append(e.stack, c)
	depth := len(e.stack)

	return func() {
		e.stack[depth-1] = nil
		e.stack = e.stack[:depth-1]
	}
}

// entered reports whether c already has a frame on the stack.
func (e *Engine) entered(c *Context) bool {
	for _, f := range e.stack {
		if f == c {
			return true
		}
	}
	return false
}

// invalidate runs on the cleanup goroutine once the owning Sandbox is
// unreachable. It must not reference the Sandbox.
func (e *Engine) invalidate(c *Context) {
	if !c.live.invalidate() {
		return
	}

	c.rt.Interrupt(ErrContextInvalidated)

	e.disposed.Add(1)
	e.metrics.ContextsDisposed.Inc()
	e.metrics.ContextsActive.Dec()
	e.logger.Debug("context invalidated", zap.Uint64("context_id", c.id))

	for _, hook := range e.disposeHooks {
		hook(c.id)
	}

	e.gcHint()
}
