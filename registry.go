package sigbridge

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stoppable is anything a registry can release.
type Stoppable interface {
	Stop()
}

// Releaser is a Stoppable that reports what went wrong while stopping.
type Releaser interface {
	Stoppable
	Release() error
}

type stopFunc struct {
	fn func()
}

func (s *stopFunc) Stop() { s.fn() }

// StopFunc adapts fn to a Stoppable. Each call returns a distinct item.
func StopFunc(fn func()) Stoppable {
	return &stopFunc{fn}
}

// Registry owns the live reactive items of a scope, in insertion order.
type Registry struct {
	items  []Stoppable
	active bool

	log *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = Logger()
	}

	return &Registry{log: log}
}

// Active reports whether the registry was started and not stopped since.
func (r *Registry) Active() bool { return r.active }

func (r *Registry) Len() int { return len(r.items) }

// Items returns the live items in insertion order.
func (r *Registry) Items() []Stoppable { return slices.Clone(r.items) }

// Start marks the registry active. Fails if it already is.
func (r *Registry) Start() error {
	if r.active {
		return newConfigError(ErrCodeScopeActive, "", "registry is already active")
	}

	r.active = true
	return nil
}

// Register adds item. Items are found again by identity, so registering an
// item whose dynamic type is not comparable panics.
func (r *Registry) Register(item Stoppable) {
	if !isComparable(item) {
		panic(fmt.Sprintf("sigbridge: cannot register %T: reactive items must be comparable", item))
	}

	r.items = append(r.items, item)
}

// Has reports whether item is registered.
func (r *Registry) Has(item Stoppable) bool {
	return r.indexOf(item) >= 0
}

// Unregister forgets item without stopping it.
func (r *Registry) Unregister(item Stoppable) bool {
	i := r.indexOf(item)
	if i < 0 {
		return false
	}

	r.items = slices.Delete(r.items, i, i+1)
	return true
}

// Stop stops item and forgets it.
func (r *Registry) Stop(item Stoppable) error {
	r.Unregister(item)
	return r.release(item)
}

// StopAll stops every item in insertion order, even when some fail, and
// leaves the registry empty and inactive. Items stopped by another item while
// this runs are not stopped twice.
func (r *Registry) StopAll() error {
	defer func() { r.active = false }()

	var errs error
	for len(r.items) > 0 {
		item := r.items[0]
		r.items = r.items[1:]

		if err := r.release(item); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	r.items = nil
	return errs
}

func (r *Registry) release(item Stoppable) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}

		if err != nil {
			r.log.Warn("failed to stop reactive item",
				zap.String("item", fmt.Sprintf("%T", item)),
				zap.Error(err))
		}
	}()

	if rel, ok := item.(Releaser); ok {
		return rel.Release()
	}

	item.Stop()
	return nil
}

func (r *Registry) indexOf(item Stoppable) int {
	return slices.IndexFunc(r.items, func(other Stoppable) bool {
		return same(item, other)
	})
}

func isComparable(item Stoppable) bool {
	t := reflect.TypeOf(item)
	return t != nil && t.Comparable()
}

// same compares by identity, and never panics on uncomparable items.
func same(a, b Stoppable) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !isComparable(a) {
		return false
	}
	return a == b
}
