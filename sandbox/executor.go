package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutorConfig holds executor limits
type ExecutorConfig struct {
	Timeout         time.Duration
	MaxSessions     int
	EnableConsole   bool
	ScriptCacheSize int
}

// ScriptExecutor implements SandboxExecutor on top of an Engine. It
// serializes all engine access, so it is safe for concurrent callers.
type ScriptExecutor struct {
	logger *zap.Logger
	engine *Engine
	config ExecutorConfig

	mu       sync.Mutex
	sessions map[string]*session
	scripts  *lru.Cache
	newID    func() string
}

type session struct {
	sb      *Sandbox
	console *consoleBuffer
	created time.Time
}

type scriptKey struct {
	filename string
	code     string
}

// ScriptExecutorOption defines a functional option for ScriptExecutor
type ScriptExecutorOption func(*ScriptExecutor)

// WithSessionIDGenerator sets the function used to name new sessions
func WithSessionIDGenerator(gen func() string) ScriptExecutorOption {
	return func(x *ScriptExecutor) {
		x.newID = gen
	}
}

// NewScriptExecutor creates a ScriptExecutor
func NewScriptExecutor(logger *zap.Logger, engine *Engine, config ExecutorConfig, opts ...ScriptExecutorOption) *ScriptExecutor {
	x := &ScriptExecutor{
		logger:   logger,
		engine:   engine,
		config:   config,
		sessions: make(map[string]*session),
		scripts:  lru.New(config.ScriptCacheSize),
		newID: func() string {
			return "sbx_" + uuid.NewString()
		},
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// CreateSession creates a named sandbox seeded with globals
func (x *ScriptExecutor) CreateSession(_ context.Context, globals map[string]any) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.config.MaxSessions > 0 && len(x.sessions) >= x.config.MaxSessions {
		return "", fmt.Errorf("%w: limit is %d", ErrTooManySessions, x.config.MaxSessions)
	}

	sess, err := x.newSession(globals)
	if err != nil {
		return "", err
	}

	id := x.newID()
	x.sessions[id] = sess

	x.logger.Info("sandbox session created",
		zap.String("session_id", id),
		zap.Uint64("context_id", sess.sb.Context().ID()),
		zap.Int("globals", len(globals)))

	return id, nil
}

// Execute runs req.Code in the requested session, or in a throwaway sandbox
// when no session is given
func (x *ScriptExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var sess *session
	if req.SessionID != "" {
		var ok bool
		sess, ok = x.sessions[req.SessionID]
		if !ok {
			return ExecuteResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
		}
	} else {
		var err error
		sess, err = x.newSession(nil)
		if err != nil {
			return ExecuteResult{}, err
		}
	}

	result := ExecuteResult{SessionID: req.SessionID}
	start := time.Now()
	sess.console.reset()

	script, err := x.compile(req.Code, req.Filename)
	if err == nil {
		var v goja.Value
		v, err = x.runWithTimeout(ctx, sess.sb, script, x.timeout(req))
		if err == nil && v != nil {
			result.Value = v.Export()
			result.Display = v.String()
		}
	}

	result.Duration = time.Since(start)
	result.Console = sess.console.entries()

	if err != nil {
		info := newErrorInfo(err)
		if info == nil {
			return ExecuteResult{}, fmt.Errorf("failed to run script: %w", err)
		}
		result.Error = info
		x.logger.Debug("script failed",
			zap.String("session_id", req.SessionID),
			zap.String("error_type", info.Type),
			zap.String("message", info.Message))
	}

	return result, nil
}

// Globals returns a snapshot of a session's store
func (x *ScriptExecutor) Globals(_ context.Context, sessionID string) (map[string]any, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	sess, ok := x.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	out := make(map[string]any)
	for _, k := range sess.sb.Keys() {
		out[k] = describe(sess.sb.Get(k))
	}
	return out, nil
}

// CloseSession drops a session. Its context is torn down once collected.
func (x *ScriptExecutor) CloseSession(_ context.Context, sessionID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	sess, ok := x.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(x.sessions, sessionID)

	x.logger.Info("sandbox session closed",
		zap.String("session_id", sessionID),
		zap.Duration("age", time.Since(sess.created)))

	return nil
}

// Sessions returns the number of open sessions
func (x *ScriptExecutor) Sessions() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.sessions)
}

func (x *ScriptExecutor) newSession(globals map[string]any) (*session, error) {
	sb, err := x.engine.NewSandbox(globals)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	sess := &session{sb: sb, console: &consoleBuffer{}, created: time.Now()}
	if x.config.EnableConsole {
		sess.console.install(sb.Context())
	}
	return sess, nil
}

func (x *ScriptExecutor) compile(code, filename string) (*Script, error) {
	if filename == "" {
		filename = x.engine.defaultFilename
	}

	key := scriptKey{filename: filename, code: code}
	if cached, ok := x.scripts.Get(key); ok {
		return cached.(*Script), nil
	}

	script, err := x.engine.Compile(code, filename)
	if err != nil {
		return nil, err
	}
	x.scripts.Add(key, script)
	return script, nil
}

func (x *ScriptExecutor) timeout(req ExecuteRequest) time.Duration {
	if req.TimeoutSec > 0 {
		return time.Duration(req.TimeoutSec) * time.Second
	}
	return x.config.Timeout
}

// runWithTimeout interrupts the run when the timeout fires or ctx is done.
func (x *ScriptExecutor) runWithTimeout(ctx context.Context, sb *Sandbox, script *Script, timeout time.Duration) (goja.Value, error) {
	c := sb.Context()
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		var expired <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}

		select {
		case <-expired:
			c.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			c.Interrupt("context cancelled")
		case <-done:
		}
	}()

	v, err := script.RunInContext(sb)

	close(done)
	<-stopped
	c.ClearInterrupt()

	return v, err
}

// describe renders a stored value for reporting. Functions have no Go
// export that survives encoding, so they are shown by name.
func describe(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFunc := goja.AssertFunction(obj); isFunc {
			return fmt.Sprintf("[Function: %s]", obj.Get("name"))
		}
	}
	return v.Export()
}

type consoleBuffer struct {
	mu   sync.Mutex
	logs []LogEntry
}

func (b *consoleBuffer) install(c *Context) {
	console := c.rt.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, b.logFunc(level))
	}
	c.store.Set("console", console)
}

func (b *consoleBuffer) logFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		b.mu.Lock()
		b.logs = append(b.logs, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		b.mu.Unlock()

		return goja.Undefined()
	}
}

func (b *consoleBuffer) reset() {
	b.mu.Lock()
	b.logs = nil
	b.mu.Unlock()
}

func (b *consoleBuffer) entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LogEntry{}, b.logs...)
}
