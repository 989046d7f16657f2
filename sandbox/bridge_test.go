package sandbox

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeTraps(t *testing.T) {
	e := newTestEngine(t)
	sb := newTestSandbox(t, e, map[string]any{"prop1": "prop1", "undef": goja.Undefined()})
	c := sb.Context()
	b := c.bridge

	t.Run("GetFromStore", func(t *testing.T) {
		assert.Equal(t, "prop1", b.Get("prop1").String())
	})

	t.Run("GetStoredNilIsUndefined", func(t *testing.T) {
		c.store.Set("nilValue", nil)
		v := b.Get("nilValue")
		require.NotNil(t, v)
		assert.True(t, goja.IsUndefined(v))
		assert.True(t, goja.IsUndefined(b.Get("undef")))
	})

	t.Run("GetFallsBackToIntrinsic", func(t *testing.T) {
		v := b.Get("Object")
		require.NotNil(t, v)
		_, ok := goja.AssertConstructor(v)
		assert.True(t, ok)
	})

	t.Run("GetMiss", func(t *testing.T) {
		assert.Nil(t, b.Get("nothingHere"))
	})

	t.Run("SetWritesStore", func(t *testing.T) {
		assert.True(t, b.Set("written", c.toValue(7)))
		assert.Equal(t, int64(7), sb.Get("written").Export())
		assert.Nil(t, c.intrinsic.Get("written"))
	})

	t.Run("SetShadowsIntrinsic", func(t *testing.T) {
		assert.True(t, b.Set("Math", c.toValue("shadow")))
		assert.Equal(t, "shadow", b.Get("Math").String())
		assert.NotNil(t, c.intrinsic.Get("Math"))
		assert.True(t, b.Delete("Math"))
	})

	t.Run("Has", func(t *testing.T) {
		assert.True(t, b.Has("prop1"))
		assert.True(t, b.Has("undef"))
		assert.True(t, b.Has("Array"))
		assert.False(t, b.Has("nothingHere"))
		assert.True(t, b.Has("toString"))
	})

	t.Run("Delete", func(t *testing.T) {
		b.Set("temp", c.toValue(1))

		tests := []struct {
			name     string
			key      string
			expected bool
		}{
			{"StoredName", "temp", true},
			{"IntrinsicOnlyName", "JSON", false},
			{"AbsentName", "nothingHere", true},
			{"InheritedName", "hasOwnProperty", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.expected, b.Delete(tt.key))
			})
		}

		assert.False(t, c.store.Has("temp"))
		assert.NotNil(t, c.intrinsic.Get("JSON"))
	})

	t.Run("KeysAreStoreKeys", func(t *testing.T) {
		assert.Equal(t, c.store.Keys(), b.Keys())
		assert.NotContains(t, b.Keys(), "Object")
	})
}

func TestBridgeSetThenGet(t *testing.T) {
	e := newTestEngine(t)
	sb := newTestSandbox(t, e, nil)
	c := sb.Context()

	values := []any{0, -1.5, "", "text", true, false, nil, []any{1, "a"}, map[string]any{"k": "v"}}
	for _, key := range []string{"a", "Object", "undefined_name", "with space"} {
		for _, raw := range values {
			v := c.toValue(raw)
			require.True(t, c.bridge.Set(key, v))
			got := c.bridge.Get(key)
			require.NotNil(t, got)
			assert.True(t, v.SameAs(got), "key %q value %v", key, raw)
		}
	}
}

func TestBridgeWithoutLiveContext(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{"Created", StateCreated},
		{"Invalidated", StateInvalidated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := &liveness{}
			live.state.Store(int32(tt.state))
			b := newBridge(live)

			assert.Nil(t, b.Get("x"))
			assert.False(t, b.Set("x", goja.Undefined()))
			assert.False(t, b.Has("x"))
			assert.False(t, b.Delete("x"))
			assert.Nil(t, b.Keys())
		})
	}
}

func TestBridgeAfterInvalidate(t *testing.T) {
	e := newTestEngine(t)
	sb := newTestSandbox(t, e, map[string]any{"x": 1})
	c := sb.Context()

	e.invalidate(c)

	assert.Nil(t, c.bridge.Get("x"))
	assert.False(t, c.bridge.Set("y", c.toValue(2)))
	assert.False(t, c.bridge.Has("x"))
	assert.False(t, c.bridge.Delete("x"))
	assert.Nil(t, c.bridge.Keys())

	// The store is left as it was.
	assert.Equal(t, []string{"x"}, sb.Keys())
}

func TestLiveness(t *testing.T) {
	var l liveness
	assert.Equal(t, StateCreated, l.load())

	assert.False(t, l.invalidate())
	assert.True(t, l.activate())
	assert.False(t, l.activate())
	assert.Equal(t, StateActive, l.load())

	assert.True(t, l.invalidate())
	assert.False(t, l.invalidate())
	assert.False(t, l.activate())
	assert.Equal(t, StateInvalidated, l.load())
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateCreated, "created"},
		{StateActive, "active"},
		{StateInvalidated, "invalidated"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
