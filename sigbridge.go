package sigbridge

import (
	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge/internal"
)

func init() {
	internal.Reporter = func(c *internal.Computation, err error) {
		Logger().Error("computation failed",
			zap.Int("computation", c.ID()),
			zap.Error(err))
	}
}

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}

	return v.(T)
}

type Signal[T any] struct {
	signal *internal.Signal
}

type SignalOption[T any] func(*signalOptions[T])

type signalOptions[T any] struct {
	equals func(a, b T) bool
}

// WithEquals replaces the equality used to skip redundant writes.
func WithEquals[T any](equals func(a, b T) bool) SignalOption[T] {
	return func(o *signalOptions[T]) {
		o.equals = equals
	}
}

// NewSignal creates your tipical read/write signal.
func NewSignal[T any](initial T, opts ...SignalOption[T]) *Signal[T] {
	o := &signalOptions[T]{}
	for _, opt := range opts {
		opt(o)
	}

	var equals func(a, b any) bool
	if o.equals != nil {
		equals = func(a, b any) bool { return o.equals(as[T](a), as[T](b)) }
	}

	return &Signal[T]{
		internal.GetRuntime().NewSignal(initial, equals),
	}
}

// Read the current value of the signal, tracking the dependency if within a computation.
func (s *Signal[T]) Read() T {
	return as[T](s.signal.Read())
}

// Peek reads the current value without tracking.
func (s *Signal[T]) Peek() T {
	return as[T](s.signal.Peek())
}

// Write a new value to the signal, rerunning any dependents.
func (s *Signal[T]) Write(v T) {
	s.signal.Write(v)
}

// Update writes fn applied to the current value.
func (s *Signal[T]) Update(fn func(T) T) {
	s.Write(fn(s.Peek()))
}

// Dependency is a value-less source: sources outside of this package
// (collections, subscription handles) call Depend when read and Changed when
// modified.
type Dependency struct {
	source *internal.Source
}

func NewDependency() *Dependency {
	return &Dependency{internal.GetRuntime().NewSource()}
}

// Depend records the dependency on the running computation, if any.
func (d *Dependency) Depend() { d.source.Depend() }

// Changed reruns every computation depending on d.
func (d *Dependency) Changed() { d.source.Changed() }

// HasDependents reports whether a computation currently depends on d.
func (d *Dependency) HasDependents() bool { return d.source.HasSubs() }

// Computation is a running autorun.
type Computation struct {
	c *internal.Computation
}

// Autorun runs fn now and again every time something it read changes.
// The error of the first run is returned along with the computation, which
// stays active either way. Autoruns created while another computation runs
// are stopped when that computation reruns or stops.
func Autorun(fn func(*Computation) error) (*Computation, error) {
	comp := &Computation{}

	c, err := internal.GetRuntime().NewComputation(func(c *internal.Computation) error {
		comp.c = c
		return fn(comp)
	})
	comp.c = c

	return comp, err
}

// DetachedAutorun is Autorun without a parent: it lives until stopped.
func DetachedAutorun(fn func(*Computation) error) (comp *Computation, err error) {
	internal.GetRuntime().Detach(func() {
		comp, err = Autorun(fn)
	})
	return comp, err
}

func (c *Computation) ID() int { return c.c.ID() }

// Stop the computation. Further invalidations are ignored.
func (c *Computation) Stop() { c.c.Stop() }

func (c *Computation) Stopped() bool { return c.c.Stopped() }

// Invalidated reports whether the computation is waiting to rerun.
func (c *Computation) Invalidated() bool { return c.c.Invalidated() }

// FirstRun is true during the computation's first run.
func (c *Computation) FirstRun() bool { return c.c.FirstRun() }

// Invalidate reruns the computation. Called outside of any run, the rerun
// happens before Invalidate returns and its error is returned. Called while
// the computation itself runs, it does nothing.
func (c *Computation) Invalidate() error { return c.c.Invalidate() }

// OnInvalidate registers fn for the next invalidation.
func (c *Computation) OnInvalidate(fn func()) { c.c.OnInvalidate(fn) }

// OnStop registers fn to run when the computation stops.
func (c *Computation) OnStop(fn func()) { c.c.OnStop(fn) }

// OnError registers a listener for errors of reruns triggered by a change.
// Without listeners such errors go to the parent computation's listeners,
// then to the logger.
func (c *Computation) OnError(fn func(error)) { c.c.Owner.OnError(fn) }

// Batch defers reruns until fn returns.
func Batch(fn func()) {
	internal.GetRuntime().NewBatch(fn)
}

// Untrack runs the given function without tracking any reactive dependencies.
func Untrack[T any](fn func() T) T {
	var result T
	internal.GetRuntime().Untrack(func() { result = fn() })
	return result
}

// AfterFlush runs fn once pending reruns are done.
func AfterFlush(fn func()) {
	internal.GetRuntime().AfterFlush(fn)
}

// OnCleanup registers fn to run before the current computation reruns or stops.
func OnCleanup(fn func()) {
	internal.GetRuntime().OnCleanup(fn)
}

// Active reports whether the caller runs inside a computation.
func Active() bool {
	return internal.GetRuntime().Active()
}

// ReleaseRuntime forgets the calling goroutine's reactive runtime. Call it
// before returning a goroutine to a pool; computations still alive on the
// released runtime must not be touched afterwards.
func ReleaseRuntime() {
	internal.ReleaseRuntime()
}
