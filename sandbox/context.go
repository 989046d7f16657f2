package sandbox

import (
	"errors"
	"time"
	"weak"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Context is an isolated execution environment whose global object
// delegates every named property operation to a Store.
type Context struct {
	id        uint64
	engine    *Engine
	rt        *goja.Runtime
	intrinsic *goja.Object
	global    *goja.Object
	store     Store
	live      *liveness
	bridge    *bridge
}

func (e *Engine) newContext(store Store) (*Context, error) {
	rt := goja.New()
	if e.maxCallStackSize > 0 {
		rt.SetMaxCallStackSize(e.maxCallStackSize)
	}

	live := &liveness{}
	c := &Context{
		id:        e.nextID.Add(1),
		engine:    e,
		rt:        rt,
		intrinsic: rt.GlobalObject(),
		store:     store,
		live:      live,
	}

	c.bridge = newBridge(live)
	c.bridge.ctx = weak.Make(c)
	c.global = c.bridge.newGlobal(rt)
	rt.SetGlobalObject(c.global)

	// globalThis must resolve to the bridged global, otherwise writes through
	// it would land on the intrinsic object.
	if err := c.intrinsic.Set("globalThis", c.global); err != nil {
		return nil, err
	}

	if !live.activate() {
		return nil, errors.New("context already bound")
	}

	e.metrics.ContextsCreated.Inc()
	e.metrics.ContextsActive.Inc()
	e.logger.Debug("context created", zap.Uint64("context_id", c.id))

	return c, nil
}

// ID returns the engine-unique context id.
func (c *Context) ID() uint64 {
	return c.id
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	return c.live.load()
}

// Global returns the context's own global object.
func (c *Context) Global() (*goja.Object, error) {
	if c.live.load() != StateActive {
		return nil, ErrContextInvalidated
	}
	return c.global, nil
}

// Interrupt stops guest code currently running in the context. Runs never
// time out on their own; this is for hosts that supervise execution.
func (c *Context) Interrupt(reason any) {
	c.rt.Interrupt(reason)
}

// ClearInterrupt drops a pending interrupt that did not hit a running script.
func (c *Context) ClearInterrupt() {
	c.rt.ClearInterrupt()
}

func (c *Context) toValue(v any) goja.Value {
	return c.rt.ToValue(v)
}

func (c *Context) run(s *Script) (goja.Value, error) {
	m := c.engine.metrics
	if c.live.load() != StateActive {
		m.Runs.WithLabelValues(resultInvalidated).Inc()
		return nil, ErrContextInvalidated
	}

	nested := c.engine.entered(c)
	exit := c.engine.enter(c)
	defer exit()

	start := time.Now()
	v, err := c.rt.RunProgram(s.prg)
	m.RunDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		rerr := newRuntimeError(err)
		if errors.Is(rerr, ErrInterrupted) {
			// An outer frame of this context is still unwinding the same
			// interrupt, so only the outermost run may clear it.
			if !nested {
				c.rt.ClearInterrupt()
			}
			m.Runs.WithLabelValues(resultInterrupted).Inc()
		} else {
			m.Runs.WithLabelValues(resultThrown).Inc()
		}
		c.engine.logger.Debug("script threw",
			zap.Uint64("context_id", c.id),
			zap.String("filename", s.filename),
			zap.Error(rerr))
		return nil, rerr
	}

	m.Runs.WithLabelValues(resultOK).Inc()
	return v, nil
}
