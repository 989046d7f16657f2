package sandbox

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStore(t *testing.T) {
	rt := goja.New()
	s := NewMapStore()

	s.Set("b", rt.ToValue(2))
	s.Set("a", rt.ToValue(1))
	s.Set("c", nil)

	assert.Equal(t, []string{"b", "a", "c"}, s.Keys())
	assert.Equal(t, 3, s.Len())

	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Export())

	v, ok = s.Get("c")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	assert.True(t, s.Has("c"))
	assert.False(t, s.Has("missing"))

	// Overwriting keeps the original position.
	s.Set("b", rt.ToValue(20))
	assert.Equal(t, []string{"b", "a", "c"}, s.Keys())

	assert.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))
	assert.Equal(t, []string{"a", "c"}, s.Keys())
	assert.Equal(t, 2, s.Len())
}

func TestMapStoreEmpty(t *testing.T) {
	s := NewMapStore()
	assert.Empty(t, s.Keys())
	assert.NotNil(t, s.Keys())
	assert.Equal(t, 0, s.Len())
}
