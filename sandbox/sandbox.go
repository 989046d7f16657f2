package sandbox

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/dop251/goja"
)

// Sandbox is the host handle for a guest global scope. Its Context lives
// exactly as long as the handle is reachable.
type Sandbox struct {
	ctx    *Context
	handle *handleState
}

// handleState is shared with the host methods installed in the store, which
// must not reference the Sandbox itself.
type handleState struct {
	disposed atomic.Bool
}

type sandboxOptions struct {
	hostMethods bool
}

// SandboxOption configures a Sandbox
type SandboxOption func(*sandboxOptions)

// WithHostMethods installs run, getGlobal and dispose functions into the
// store so guest code can reach them as globals.
func WithHostMethods() SandboxOption {
	return func(o *sandboxOptions) {
		o.hostMethods = true
	}
}

// NewSandbox wraps init in a new Sandbox. init may be a Store, used as-is, or
// a map[string]any, copied into a fresh MapStore. Anything else, including
// nil, gives an empty MapStore.
func (e *Engine) NewSandbox(init any, opts ...SandboxOption) (*Sandbox, error) {
	var o sandboxOptions
	for _, opt := range opts {
		if opt == nil {
			return nil, &ArgumentError{Op: "sandbox", Message: "nil option"}
		}
		opt(&o)
	}

	var (
		store  Store
		values map[string]any
	)
	switch v := init.(type) {
	case Store:
		store = v
	case map[string]any:
		store = NewMapStore()
		values = v
	default:
		store = NewMapStore()
	}

	s := &Sandbox{handle: &handleState{}}
	if err := s.bind(e, store); err != nil {
		return nil, err
	}

	for k, v := range values {
		store.Set(k, s.ctx.toValue(v))
	}
	if o.hostMethods {
		s.ctx.installHostMethods(s.handle)
	}

	return s, nil
}

// bind creates the Context once the handle exists and ties the Context's
// teardown to the handle's collection.
func (s *Sandbox) bind(e *Engine, store Store) error {
	if s.ctx != nil {
		return &ArgumentError{Op: "sandbox", Message: "already bound"}
	}

	c, err := e.newContext(store)
	if err != nil {
		return err
	}
	s.ctx = c

	runtime.AddCleanup(s, e.invalidate, c)
	return nil
}

// Context returns the sandbox's execution context.
func (s *Sandbox) Context() *Context {
	return s.ctx
}

// Run compiles code and runs it in the sandbox's context.
func (s *Sandbox) Run(code string, filename ...string) (goja.Value, error) {
	if s.handle.disposed.Load() {
		return nil, &DisposedError{Method: "run"}
	}

	v, err := s.ctx.runSource(code, filename)
	runtime.KeepAlive(s)
	return v, err
}

// Global returns the context's global object.
func (s *Sandbox) Global() (*goja.Object, error) {
	if s.handle.disposed.Load() {
		return nil, &DisposedError{Method: "getGlobal"}
	}
	return s.ctx.Global()
}

// Dispose detaches the handle: Run, Global and Dispose fail afterwards. The
// context itself is torn down only when the handle is collected.
func (s *Sandbox) Dispose() error {
	if !s.handle.disposed.CompareAndSwap(false, true) {
		return &DisposedError{Method: "dispose"}
	}
	return nil
}

// Get returns the stored value for key, or nil when absent.
func (s *Sandbox) Get(key string) goja.Value {
	v, _ := s.ctx.store.Get(key)
	return v
}

// Set stores value under key, converting Go values with the context's runtime.
func (s *Sandbox) Set(key string, value any) error {
	if key == "" {
		return &ArgumentError{Op: "set", Message: "key must not be empty"}
	}
	s.ctx.store.Set(key, s.ctx.toValue(value))
	return nil
}

// Delete removes key from the store.
func (s *Sandbox) Delete(key string) bool {
	return s.ctx.store.Delete(key)
}

// Keys returns the store's keys.
func (s *Sandbox) Keys() []string {
	return s.ctx.store.Keys()
}

// Export returns a snapshot of the store with values exported to Go.
func (s *Sandbox) Export() map[string]any {
	out := make(map[string]any)
	for _, k := range s.ctx.store.Keys() {
		v, ok := s.ctx.store.Get(k)
		if !ok || v == nil {
			out[k] = nil
			continue
		}
		out[k] = v.Export()
	}
	return out
}

// InstanceOf reports whether v is a Context, or a Sandbox owning one, built
// by this package.
func InstanceOf(v any) bool {
	switch t := v.(type) {
	case *Context:
		return t != nil && t.live != nil && t.live.load() != StateCreated
	case *Sandbox:
		return t != nil && t.ctx != nil
	default:
		return false
	}
}

func (c *Context) runSource(code string, filename []string) (goja.Value, error) {
	name, err := scriptName("run", filename, c.engine.defaultFilename)
	if err != nil {
		return nil, err
	}
	script, err := c.engine.Compile(code, name)
	if err != nil {
		return nil, err
	}
	return c.run(script)
}

func (c *Context) installHostMethods(h *handleState) {
	c.store.Set("run", c.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		if h.disposed.Load() {
			panic(c.rt.NewGoError(&DisposedError{Method: "run"}))
		}
		if len(call.Arguments) == 0 {
			panic(c.rt.NewTypeError("must supply at least 1 argument to run"))
		}

		var filename []string
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Argument(1)) {
			filename = []string{call.Argument(1).String()}
		}

		v, err := c.runSource(call.Argument(0).String(), filename)
		if err != nil {
			var rerr *RuntimeError
			if errors.As(err, &rerr) && errors.Is(rerr, ErrInterrupted) {
				// Re-arm the interrupt so it keeps unwinding the caller. A
				// thrown value would be catchable by guest code.
				c.rt.Interrupt(rerr.reason)
				return goja.Undefined()
			}
			panic(c.throwable(err))
		}
		return v
	}))

	c.store.Set("getGlobal", c.rt.ToValue(func(goja.FunctionCall) goja.Value {
		if h.disposed.Load() {
			panic(c.rt.NewGoError(&DisposedError{Method: "getGlobal"}))
		}
		return c.global
	}))

	c.store.Set("dispose", c.rt.ToValue(func(goja.FunctionCall) goja.Value {
		if !h.disposed.CompareAndSwap(false, true) {
			panic(c.rt.NewGoError(&DisposedError{Method: "dispose"}))
		}
		return goja.Undefined()
	}))
}

// throwable converts a host error into a value guest code can catch.
func (c *Context) throwable(err error) goja.Value {
	switch e := err.(type) {
	case *RuntimeError:
		if e.Value != nil {
			return e.Value
		}
	case *CompileError:
		if ctor, ok := goja.AssertConstructor(c.intrinsic.Get("SyntaxError")); ok {
			if obj, cerr := ctor(nil, c.rt.ToValue(e.Error())); cerr == nil {
				return obj
			}
		}
	}
	return c.rt.NewGoError(err)
}
