package sandbox

import (
	"github.com/dop251/goja"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store is the mapping a Context delegates its global scope to. Any
// container implementing it can back a Context.
type Store interface {
	Get(key string) (goja.Value, bool)
	Set(key string, val goja.Value)
	Has(key string) bool
	Delete(key string) bool
	Keys() []string
}

// MapStore is the default Store. Keys enumerate in insertion order.
type MapStore struct {
	m *orderedmap.OrderedMap[string, goja.Value]
}

// NewMapStore creates an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{m: orderedmap.New[string, goja.Value]()}
}

func (s *MapStore) Get(key string) (goja.Value, bool) {
	return s.m.Get(key)
}

func (s *MapStore) Set(key string, val goja.Value) {
	s.m.Set(key, val)
}

func (s *MapStore) Has(key string) bool {
	_, ok := s.m.Get(key)
	return ok
}

func (s *MapStore) Delete(key string) bool {
	_, ok := s.m.Delete(key)
	return ok
}

func (s *MapStore) Keys() []string {
	keys := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of entries.
func (s *MapStore) Len() int {
	return s.m.Len()
}
