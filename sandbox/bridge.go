package sandbox

import (
	"sync/atomic"
	"weak"

	"github.com/dop251/goja"
)

// State is the lifecycle state of a Context.
type State int32

const (
	StateCreated State = iota
	StateActive
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// liveness is shared by a Context and its bridge. It is the single
// authority on whether the Context may be dereferenced.
type liveness struct {
	state atomic.Int32
}

func (l *liveness) load() State {
	return State(l.state.Load())
}

func (l *liveness) activate() bool {
	return l.state.CompareAndSwap(int32(StateCreated), int32(StateActive))
}

// invalidate reports whether this call performed the transition.
func (l *liveness) invalidate() bool {
	return l.state.CompareAndSwap(int32(StateActive), int32(StateInvalidated))
}

// bridge is the payload behind a Context's global object. It holds the
// Context weakly so the global object never keeps it alive.
type bridge struct {
	ctx  weak.Pointer[Context]
	live *liveness

	// declared names were bound by top-level var or function declarations.
	// They are mirrored onto the proxy target as non-configurable properties
	// and can never be deleted afterwards.
	declared map[string]struct{}
}

func newBridge(live *liveness) *bridge {
	return &bridge{live: live, declared: make(map[string]struct{})}
}

// context returns nil once the liveness flag is cleared or the Context has
// been reclaimed.
func (b *bridge) context() *Context {
	if b.live.load() != StateActive {
		return nil
	}
	return b.ctx.Value()
}

func (b *bridge) Get(key string) goja.Value {
	c := b.context()
	if c == nil {
		return nil
	}
	if v, ok := c.store.Get(key); ok {
		if v == nil {
			return goja.Undefined()
		}
		return v
	}
	// The intrinsic global is an ordinary object, so this lookup does not
	// re-enter the bridge.
	return c.intrinsic.Get(key)
}

func (b *bridge) Set(key string, val goja.Value) bool {
	c := b.context()
	if c == nil {
		return false
	}
	c.store.Set(key, val)
	return true
}

// Has reports names in the store and names the intrinsic global resolves,
// own or inherited.
func (b *bridge) Has(key string) bool {
	c := b.context()
	if c == nil {
		return false
	}
	return c.store.Has(key) || c.intrinsic.Get(key) != nil
}

// Delete never falls back to the intrinsic global. A name the intrinsic
// global resolves, own or inherited, reports false and stays in place.
func (b *bridge) Delete(key string) bool {
	c := b.context()
	if c == nil {
		return false
	}
	if c.store.Delete(key) {
		return true
	}
	return c.intrinsic.Get(key) == nil
}

func (b *bridge) Keys() []string {
	c := b.context()
	if c == nil {
		return nil
	}
	return c.store.Keys()
}

func (b *bridge) isDeclared(key string) bool {
	_, ok := b.declared[key]
	return ok
}

// own returns the value behind an own property of the global.
func (b *bridge) own(key string) (goja.Value, bool) {
	if c := b.context(); c != nil {
		if v, ok := c.store.Get(key); ok {
			if v == nil {
				v = goja.Undefined()
			}
			return v, true
		}
	}
	if b.isDeclared(key) {
		return goja.Undefined(), true
	}
	return nil, false
}

// define handles Object.defineProperty and the bindings the runtime creates
// for top-level declarations. Only plain writable, enumerable data
// properties can be stored.
func (b *bridge) define(target *goja.Object, key string, desc goja.PropertyDescriptor) bool {
	if desc.Getter != nil || desc.Setter != nil ||
		desc.Writable == goja.FLAG_FALSE || desc.Enumerable == goja.FLAG_FALSE {
		return false
	}
	c := b.context()
	if c == nil {
		return false
	}

	declared := b.isDeclared(key)
	if declared && desc.Configurable == goja.FLAG_TRUE {
		return false
	}

	val := desc.Value
	if val == nil {
		if v, ok := c.store.Get(key); ok && v != nil {
			val = v
		} else {
			val = goja.Undefined()
		}
	}

	if desc.Configurable == goja.FLAG_FALSE && !declared {
		if err := target.DefineDataProperty(key, goja.Undefined(), goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return false
		}
		b.declared[key] = struct{}{}
	}

	c.store.Set(key, val)
	return true
}

func (b *bridge) ownKeys() []any {
	keys := b.Keys()
	out := make([]any, 0, len(keys)+len(b.declared))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out = append(out, k)
		seen[k] = struct{}{}
	}
	for k := range b.declared {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// newGlobal wraps the bridge in a proxy usable as the runtime's global
// object. The proxy target only ever holds the declared names, which keeps
// the proxy invariants satisfied for non-configurable bindings.
func (b *bridge) newGlobal(rt *goja.Runtime) *goja.Object {
	target := rt.NewObject()
	proxy := rt.NewProxy(target, &goja.ProxyTrapConfig{
		Get: func(_ *goja.Object, key string, _ goja.Value) goja.Value {
			return b.Get(key)
		},
		Set: func(_ *goja.Object, key string, val goja.Value, _ goja.Value) bool {
			return b.Set(key, val)
		},
		Has: func(_ *goja.Object, key string) bool {
			return b.Has(key) || b.isDeclared(key)
		},
		DeleteProperty: func(_ *goja.Object, key string) bool {
			if b.isDeclared(key) {
				return false
			}
			return b.Delete(key)
		},
		GetOwnPropertyDescriptor: func(_ *goja.Object, key string) goja.PropertyDescriptor {
			v, ok := b.own(key)
			if !ok {
				return goja.PropertyDescriptor{}
			}
			configurable := goja.FLAG_TRUE
			if b.isDeclared(key) {
				configurable = goja.FLAG_FALSE
			}
			return goja.PropertyDescriptor{
				Value:        v,
				Writable:     goja.FLAG_TRUE,
				Enumerable:   goja.FLAG_TRUE,
				Configurable: configurable,
			}
		},
		DefineProperty: b.define,
		OwnKeys: func(*goja.Object) *goja.Object {
			return rt.NewArray(b.ownKeys()...)
		},
		PreventExtensions: func(*goja.Object) bool {
			return false
		},
	})
	return rt.ToValue(proxy).(*goja.Object)
}
