package store

import (
	"maps"
	"slices"
)

// Map is a reactive keyed object. Keys come into existence on first Set,
// readers of absent keys and of the key set are notified when keys appear.
type Map struct {
	store   *Store
	entries map[string]*Field
	keys    *Dep
}

func (s *Store) NewMap() *Map {
	return &Map{
		store:   s,
		entries: make(map[string]*Field),
		keys:    s.newDep(),
	}
}

func (m *Map) Get(key string) (any, bool) {
	if f, ok := m.entries[key]; ok {
		return f.Get(), true
	}

	m.keys.Depend()
	return nil, false
}

// Set writes key, defining it if needed.
func (m *Map) Set(key string, v any) {
	if f, ok := m.entries[key]; ok {
		f.Set(v)
		return
	}

	m.entries[key] = &Field{key: key, value: v, dep: m.store.newDep()}
	m.keys.Notify()
}

func (m *Map) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Delete removes key. Readers of the key and of the key set are notified.
func (m *Map) Delete(key string) {
	f, ok := m.entries[key]
	if !ok {
		return
	}

	delete(m.entries, key)
	f.dep.Notify()
	m.keys.Notify()
}

// Clear removes every key.
func (m *Map) Clear() {
	if len(m.entries) == 0 {
		return
	}

	entries := m.entries
	m.entries = make(map[string]*Field)
	for _, key := range slices.Sorted(maps.Keys(entries)) {
		entries[key].dep.Notify()
	}
	m.keys.Notify()
}

// Keys returns the sorted key set, recording the read.
func (m *Map) Keys() []string {
	m.keys.Depend()
	return slices.Sorted(maps.Keys(m.entries))
}

// Snapshot copies the map, recording a read of every key.
func (m *Map) Snapshot() map[string]any {
	out := make(map[string]any, len(m.entries))
	for _, key := range m.Keys() {
		out[key] = m.entries[key].Get()
	}
	return out
}
