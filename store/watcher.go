package store

import (
	"fmt"
	"reflect"
)

// Getter produces a watcher's value.
type Getter func() (any, error)

// Callback receives a watched value when it changes.
type Callback func(value, old any)

type WatchOptions struct {
	// Immediate calls the callback with the first value.
	Immediate bool
	// Deep compares values structurally instead of by identity.
	Deep bool
	// Lazy skips the first evaluation; the value is computed on demand.
	Lazy bool
	// OnError receives the watcher's evaluation errors instead of the store's handler.
	OnError func(error)
}

// Watcher evaluates a getter, records what it read, and reacts when any of it changes.
type Watcher struct {
	id    uint64
	store *Store

	getter Getter
	cb     Callback

	deep bool
	lazy bool

	dirty      bool
	active     bool
	running    bool
	evaluating bool

	value any
	err   error

	deps      []*Dep
	newDeps   []*Dep
	newDepIDs map[uint64]struct{}

	// dependents of the watcher's value (computed properties)
	own *Dep

	updateHook func()
	onError    func(error)
}

func (s *Store) NewWatcher(getter Getter, cb Callback, opts WatchOptions) *Watcher {
	s.nextID++
	w := &Watcher{
		id:      s.nextID,
		store:   s,
		getter:  getter,
		cb:      cb,
		deep:    opts.Deep,
		lazy:    opts.Lazy,
		dirty:   opts.Lazy,
		active:  true,
		own:     s.newDep(),
		onError: opts.OnError,
	}
	s.watchers = append(s.watchers, w)

	if !w.lazy {
		w.value, w.err = w.Get()
		if w.err != nil {
			s.reportError(w, w.err)
		} else if opts.Immediate && w.cb != nil {
			w.invoke(w.value, nil)
		}
	}

	return w
}

func (w *Watcher) ID() uint64 { return w.id }

func (w *Watcher) Active() bool { return w.active }

func (w *Watcher) Dirty() bool { return w.dirty }

// Evaluating reports whether the getter is on the stack.
func (w *Watcher) Evaluating() bool { return w.evaluating }

func (w *Watcher) Value() any { return w.value }

// SetValue stores v as the up to date value.
func (w *Watcher) SetValue(v any) {
	w.value = v
	w.err = nil
	w.dirty = false
}

// Err is the error of the last evaluation.
func (w *Watcher) Err() error { return w.err }

// Getter returns the function the watcher evaluates.
func (w *Watcher) Getter() Getter { return w.getter }

// SetUpdateHook replaces what the watcher does when a dependency changes.
func (w *Watcher) SetUpdateHook(fn func()) {
	w.updateHook = fn
}

// Get evaluates the getter, replacing the watcher's deps with what it read.
func (w *Watcher) Get() (any, error) {
	return w.Capture(w.getter)
}

// Capture runs fn with w as the dependency target. If w is already evaluating,
// the reads join the running pass; otherwise they replace w's deps.
func (w *Watcher) Capture(fn Getter) (any, error) {
	if w.evaluating {
		w.store.pushTarget(w)
		defer w.store.popTarget()
		return call(fn)
	}

	w.store.pushTarget(w)
	w.evaluating = true
	value, err := call(fn)
	w.evaluating = false
	w.store.popTarget()
	w.cleanupDeps()

	return value, err
}

// Evaluate recomputes a lazy watcher's value.
func (w *Watcher) Evaluate() {
	value, err := w.Get()
	w.err = err
	if err == nil {
		w.value = value
	}
	w.dirty = false
}

// Depend makes the evaluating watcher depend on w's value.
func (w *Watcher) Depend() {
	w.own.Depend()
}

// Update reacts to a dependency change.
func (w *Watcher) Update() {
	if !w.active {
		return
	}

	if w.updateHook != nil {
		w.updateHook()
		return
	}

	if w.lazy {
		w.dirty = true
		w.own.Notify()
		return
	}

	w.Run()
}

// Run re-evaluates and calls the callback if the value changed.
// A watcher whose callback is on the stack is not re-entered.
func (w *Watcher) Run() {
	if !w.active || w.running {
		return
	}

	value, err := w.Get()
	w.err = err
	if err != nil {
		w.store.reportError(w, err)
		return
	}

	w.RunWith(value)
}

// RunWith stores value as if the getter returned it and calls the callback when it changed.
func (w *Watcher) RunWith(value any) {
	old := w.value
	w.value = value

	if w.cb == nil || w.running || !w.changed(old, value) {
		return
	}

	w.invoke(value, old)
}

// NotifyDependents updates everything depending on w's value or on w's own
// deps, except skip.
func (w *Watcher) NotifyDependents(skip *Watcher) {
	seen := map[*Watcher]struct{}{}
	if skip != nil {
		seen[skip] = struct{}{}
	}

	deps := append([]*Dep{w.own}, w.deps...)
	for _, dep := range deps {
		for _, sub := range dep.Subs() {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			sub.Update()
		}
	}
}

// Deps returns the deps recorded by the last evaluation.
func (w *Watcher) Deps() []*Dep {
	return append([]*Dep(nil), w.deps...)
}

// Teardown unsubscribes the watcher from everything.
func (w *Watcher) Teardown() {
	if !w.active {
		return
	}
	w.active = false

	for _, dep := range w.deps {
		dep.removeSub(w)
	}
	w.deps = nil
	w.store.removeWatcher(w)
}

func (w *Watcher) invoke(value, old any) {
	w.running = true
	defer func() { w.running = false }()

	w.cb(value, old)
}

func (w *Watcher) changed(old, value any) bool {
	if w.deep {
		return !reflect.DeepEqual(old, value)
	}

	if old == nil || value == nil {
		return old != nil || value != nil
	}

	t := reflect.TypeOf(value)
	if t != reflect.TypeOf(old) || !t.Comparable() {
		return true
	}
	return old != value
}

func (w *Watcher) addDep(d *Dep) {
	if w.newDepIDs == nil {
		w.newDepIDs = make(map[uint64]struct{})
	}
	if _, ok := w.newDepIDs[d.id]; ok {
		return
	}

	w.newDepIDs[d.id] = struct{}{}
	w.newDeps = append(w.newDeps, d)
	d.addSub(w)
}

// cleanupDeps drops subscriptions to deps the last pass did not read.
func (w *Watcher) cleanupDeps() {
	for _, dep := range w.deps {
		if _, ok := w.newDepIDs[dep.id]; !ok {
			dep.removeSub(w)
		}
	}

	w.deps = w.newDeps
	w.newDeps = nil
	w.newDepIDs = nil

	if !w.active {
		for _, dep := range w.deps {
			dep.removeSub(w)
		}
		w.deps = nil
	}
}

func call(fn Getter) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store: getter panicked: %v", r)
		}
	}()

	return fn()
}
