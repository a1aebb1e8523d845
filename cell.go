package sigbridge

import (
	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge/store"
)

// DataFunc produces the value of a reactive data key. It may read graph A
// sources (signals, collections) and store fields alike.
type DataFunc func() (any, error)

// Target is where an owned cell publishes its results.
type Target interface {
	Get() any
	Set(v any)
}

type fieldTarget struct {
	field *store.Field
}

func (t fieldTarget) Get() any  { return t.field.Get() }
func (t fieldTarget) Set(v any) { t.field.Set(v) }

// FieldTarget publishes to a store field.
func FieldTarget(f *store.Field) Target {
	return fieldTarget{f}
}

type mapTarget struct {
	m   *store.Map
	key string
}

func (t mapTarget) Get() any {
	v, _ := t.m.Get(t.key)
	return v
}

func (t mapTarget) Set(v any) { t.m.Set(t.key, v) }

// MapTarget publishes to one key of a store map.
func MapTarget(m *store.Map, key string) Target {
	return mapTarget{m, key}
}

type Mode int

const (
	// ModeOwned cells own a store watcher and publish to a Target.
	ModeOwned Mode = iota
	// ModeMirrored cells drive an existing computed property.
	ModeMirrored
)

func (m Mode) String() string {
	switch m {
	case ModeOwned:
		return "owned"
	case ModeMirrored:
		return "mirrored"
	default:
		return "unknown"
	}
}

type cellState uint8

const (
	cellIdle cellState = iota
	cellRunning
	cellStopped
)

// CellOption configures a cell.
type CellOption func(*Cell)

// WithFreezeResult freezes results before they are published.
func WithFreezeResult(freeze bool) CellOption {
	return func(c *Cell) { c.freeze = freeze }
}

// WithResultHook calls fn with every published result.
func WithResultHook(fn func(any)) CellOption {
	return func(c *Cell) { c.onResult = fn }
}

// WithCellErrorHandler receives the errors of reruns triggered by a change
// in either graph.
func WithCellErrorHandler(fn func(error)) CellOption {
	return func(c *Cell) { c.onError = fn }
}

// Cell keeps one reactive data key in sync with its data function. Both
// graphs can trigger a rerun: graph A through the cell's computation, the
// store through the cell's watcher.
type Cell struct {
	key   string
	mode  Mode
	state cellState

	fn          DataFunc
	computation *Computation
	watcher     *store.Watcher
	target      Target

	freeze   bool
	onResult func(any)
	onError  func(error)
}

// Bind creates an owned cell and runs it once. The error of the first run is
// returned along with the cell, which stays bound either way.
func Bind(st *store.Store, key string, target Target, fn DataFunc, opts ...CellOption) (*Cell, error) {
	c := &Cell{key: key, mode: ModeOwned, fn: fn, target: target}
	for _, opt := range opts {
		opt(c)
	}

	c.watcher = st.NewWatcher(store.Getter(fn), nil, store.WatchOptions{Lazy: true})
	c.watcher.SetUpdateHook(c.invalidateFromStore)

	var err error
	c.computation, err = DetachedAutorun(func(*Computation) error {
		return c.runOwned()
	})
	c.computation.OnError(c.report)

	return c, err
}

// BindComputed creates a mirrored cell over the computed property w.
// Created while w evaluates, the cell's reads join that evaluation.
func BindComputed(w *store.Watcher, key string, fn DataFunc, opts ...CellOption) (*Cell, error) {
	c := &Cell{key: key, mode: ModeMirrored, fn: fn, watcher: w}
	for _, opt := range opts {
		opt(c)
	}

	w.SetUpdateHook(c.invalidateFromStore)

	var err error
	c.computation, err = DetachedAutorun(func(*Computation) error {
		return c.runMirrored()
	})
	c.computation.OnError(c.report)

	return c, err
}

func (c *Cell) Key() string { return c.key }

func (c *Cell) Mode() Mode { return c.mode }

func (c *Cell) Stopped() bool { return c.state == cellStopped }

// Running is true while the data function is on the stack.
func (c *Cell) Running() bool { return c.state == cellRunning }

func (c *Cell) Computation() *Computation { return c.computation }

// Result reads the published value, tracking the read in the store.
func (c *Cell) Result() any {
	if c.mode == ModeMirrored {
		c.watcher.Depend()
		return c.watcher.Value()
	}
	return c.target.Get()
}

// Invalidate reruns the data function and returns its error.
func (c *Cell) Invalidate() error {
	if c.state != cellIdle {
		return nil
	}
	return c.computation.Invalidate()
}

// Stop detaches the cell from both graphs. The published value stays as is.
func (c *Cell) Stop() {
	if c.state == cellStopped {
		return
	}
	c.state = cellStopped

	c.computation.Stop()

	if c.mode == ModeOwned {
		c.watcher.Teardown()
		return
	}

	// the computed property keeps its last value
	c.watcher.SetUpdateHook(func() {})
}

func (c *Cell) runOwned() error {
	return c.guard(func() error {
		raw, err := c.watcher.Get()
		if err != nil {
			return err
		}

		v, err := transformResult(raw, c.freeze)
		if err != nil {
			return err
		}

		c.target.Set(v)
		c.published(v)
		return nil
	})
}

func (c *Cell) runMirrored() error {
	return c.guard(func() error {
		evaluating := c.watcher.Evaluating()

		raw, err := c.watcher.Capture(store.Getter(c.fn))
		if err != nil {
			return err
		}

		v, err := transformResult(raw, c.freeze)
		if err != nil {
			return err
		}

		c.watcher.RunWith(v)
		c.watcher.SetValue(v)
		c.published(v)

		// readers of the property are mid-evaluation when the cell is created lazily
		if !evaluating {
			c.watcher.NotifyDependents(c.watcher)
		}
		return nil
	})
}

// guard marks the cell running so that store notifications caused by its
// own run do not re-enter it.
func (c *Cell) guard(fn func() error) error {
	if c.state == cellStopped {
		return nil
	}

	c.state = cellRunning
	defer func() {
		if c.state == cellRunning {
			c.state = cellIdle
		}
	}()

	return fn()
}

func (c *Cell) published(v any) {
	if c.onResult != nil && c.state != cellStopped {
		c.onResult(v)
	}
}

func (c *Cell) invalidateFromStore() {
	if c.state != cellIdle {
		return
	}

	if err := c.computation.Invalidate(); err != nil {
		c.report(err)
	}
}

func (c *Cell) report(err error) {
	if c.onError != nil {
		c.onError(err)
		return
	}

	Logger().Error("reactive data failed",
		zap.String("key", c.key),
		zap.Error(err))
}
