package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	ErrDuplicate    = errors.New("store: key already defined")
	ErrUnknownField = errors.New("store: unknown key")
)

// Store holds the reactive state of one component.
type Store struct {
	name string

	fields    map[string]*Field
	computed  map[string]*Watcher
	accessors map[string]func() any

	targets  []*Watcher
	watchers []*Watcher

	onError func(*Watcher, error)

	nextID uint64
}

func New(name string) *Store {
	return &Store{
		name:      name,
		fields:    make(map[string]*Field),
		computed:  make(map[string]*Watcher),
		accessors: make(map[string]func() any),
	}
}

func (s *Store) Name() string { return s.name }

// OnError sets the handler for watcher evaluation errors.
func (s *Store) OnError(fn func(*Watcher, error)) {
	s.onError = fn
}

// Has reports whether key names a field, a computed property or an accessor.
func (s *Store) Has(key string) bool {
	_, field := s.fields[key]
	_, computed := s.computed[key]
	_, accessor := s.accessors[key]
	return field || computed || accessor
}

// Keys returns every defined key, sorted.
func (s *Store) Keys() []string {
	keys := slices.Collect(maps.Keys(s.fields))
	keys = slices.AppendSeq(keys, maps.Keys(s.computed))
	keys = slices.AppendSeq(keys, maps.Keys(s.accessors))
	slices.Sort(keys)
	return keys
}

// Define adds a field. Fails with ErrDuplicate if key is taken.
func (s *Store) Define(key string, initial any) (*Field, error) {
	if s.Has(key) {
		return nil, fmt.Errorf("%w: %q in %s", ErrDuplicate, key, s.name)
	}

	f := &Field{key: key, value: initial, dep: s.newDep()}
	s.fields[key] = f
	return f, nil
}

func (s *Store) Field(key string) (*Field, bool) {
	f, ok := s.fields[key]
	return f, ok
}

// Computed defines a lazily evaluated property.
func (s *Store) Computed(key string, getter Getter) (*Watcher, error) {
	if s.Has(key) {
		return nil, fmt.Errorf("%w: %q in %s", ErrDuplicate, key, s.name)
	}

	w := s.NewWatcher(getter, nil, WatchOptions{Lazy: true})
	s.computed[key] = w
	return w, nil
}

// ComputedWatcher returns the watcher behind a computed property.
func (s *Store) ComputedWatcher(key string) (*Watcher, bool) {
	w, ok := s.computed[key]
	return w, ok
}

// ComputedKeys returns the computed property names, sorted.
func (s *Store) ComputedKeys() []string {
	return slices.Sorted(maps.Keys(s.computed))
}

// DefineAccessor exposes get under key. Reads made by get are tracked as usual.
func (s *Store) DefineAccessor(key string, get func() any) error {
	if s.Has(key) {
		return fmt.Errorf("%w: %q in %s", ErrDuplicate, key, s.name)
	}

	s.accessors[key] = get
	return nil
}

// Get reads key, recording the read on the evaluating watcher.
func (s *Store) Get(key string) (any, error) {
	if f, ok := s.fields[key]; ok {
		return f.Get(), nil
	}

	if w, ok := s.computed[key]; ok {
		if w.dirty {
			w.Evaluate()
		}
		w.Depend()
		return w.value, w.err
	}

	if get, ok := s.accessors[key]; ok {
		return get(), nil
	}

	return nil, fmt.Errorf("%w: %q in %s", ErrUnknownField, key, s.name)
}

// Set writes a field.
func (s *Store) Set(key string, v any) error {
	f, ok := s.fields[key]
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrUnknownField, key, s.name)
	}

	f.Set(v)
	return nil
}

// Watch calls cb whenever the value produced by getter changes.
// The returned function stops watching.
func (s *Store) Watch(getter Getter, cb Callback, opts WatchOptions) func() {
	w := s.NewWatcher(getter, cb, opts)
	return w.Teardown
}

// Target is the watcher currently evaluating, or nil.
func (s *Store) Target() *Watcher {
	if len(s.targets) == 0 {
		return nil
	}
	return s.targets[len(s.targets)-1]
}

// Untracked runs fn without a dependency target.
func (s *Store) Untracked(fn func()) {
	s.pushTarget(nil)
	defer s.popTarget()

	fn()
}

// Watchers returns the live watchers in creation order.
func (s *Store) Watchers() []*Watcher {
	return slices.Clone(s.watchers)
}

// Teardown stops every watcher.
func (s *Store) Teardown() {
	for _, w := range slices.Clone(s.watchers) {
		w.Teardown()
	}
}

func (s *Store) pushTarget(w *Watcher) {
	s.targets = append(s.targets, w)
}

func (s *Store) popTarget() {
	s.targets = s.targets[:len(s.targets)-1]
}

func (s *Store) removeWatcher(w *Watcher) {
	if i := slices.Index(s.watchers, w); i >= 0 {
		s.watchers = slices.Delete(s.watchers, i, i+1)
	}
}

func (s *Store) reportError(w *Watcher, err error) {
	if w.onError != nil {
		w.onError(err)
		return
	}

	if s.onError != nil {
		s.onError(w, err)
	}
}
