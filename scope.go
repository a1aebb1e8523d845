package sigbridge

import (
	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge/store"
)

// SubReadyKey is the store key exposing the readiness of every subscription.
const SubReadyKey = "$subReady"

// Scope binds declarations to a host component: it publishes reactive data
// and subscription readiness in the host's store and releases everything when
// the host is destroyed.
type Scope struct {
	host  Host
	store *store.Store
	decl  Declarations
	opts  Options
	log   *zap.Logger

	registry *Registry
	data     *store.Map
	subs     *store.Map

	accessors map[string]bool
	computed  map[string]*store.Watcher
	cells     map[string]*Cell
	mirrored  map[string]*Cell
	slots     map[string]*Slot
}

// New attaches decl to host. Declaration mistakes and keys colliding with
// the host's store are reported here, before any hook runs.
func New(host Host, decl Declarations, opts ...Option) (*Scope, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}

	table, err := hookTable(host.Version())
	if err != nil {
		return nil, err
	}

	o := resolveOptions(opts)
	if host.Server() {
		o.Server = true
	}

	st := host.Store()
	s := &Scope{
		host:      host,
		store:     st,
		decl:      decl,
		opts:      o,
		log:       o.Logger.With(zap.String("scope", st.Name())),
		data:      st.NewMap(),
		subs:      st.NewMap(),
		accessors: make(map[string]bool),
		computed:  make(map[string]*store.Watcher),
	}
	s.reset()

	if err := s.defineAccessor(SubReadyKey, func() any { return s.Ready() }); err != nil {
		return nil, err
	}

	for _, key := range decl.dataKeys() {
		if err := s.defineDataAccessor(key); err != nil {
			return nil, err
		}
	}

	for _, key := range sortedKeys(decl.Computed) {
		if err := s.defineComputed(key, decl.Computed[key]); err != nil {
			return nil, err
		}
	}

	host.On(table.Init, s.reset)
	host.On(table.Created, s.created)
	host.On(table.Destroyed, s.destroyed)

	return s, nil
}

func (s *Scope) Store() *store.Store { return s.store }

func (s *Scope) Registry() *Registry { return s.registry }

func (s *Scope) Options() Options { return s.opts }

// Active reports whether the declarations are running.
func (s *Scope) Active() bool { return s.registry.Active() }

// Start launches the declarations. Fails if the scope is already active.
func (s *Scope) Start() error {
	if err := s.registry.Start(); err != nil {
		return err
	}

	// values of a previous activation must not outlive it
	s.data.Clear()

	if s.opts.Server && (!s.opts.SSR || s.decl.NoSSR) {
		s.log.Debug("server rendering, declarations not launched")
		return nil
	}

	s.launch()
	return nil
}

// Stop releases every cell, subscription and autorun of the scope. Every item
// is stopped even when some fail; the failures are returned combined.
func (s *Scope) Stop() error {
	err := s.registry.StopAll()
	s.reset()
	return err
}

// reset forgets the items of a previous lifetime.
func (s *Scope) reset() {
	if s.registry == nil || s.registry.Len() == 0 {
		s.registry = NewRegistry(s.log)
	}

	s.cells = make(map[string]*Cell)
	s.mirrored = make(map[string]*Cell)
	s.slots = make(map[string]*Slot)
}

func (s *Scope) created() {
	if s.decl.Lazy {
		return
	}

	if err := s.Start(); err != nil {
		s.reportError("", err)
	}
}

func (s *Scope) destroyed() {
	if err := s.Stop(); err != nil {
		s.log.Warn("scope teardown incomplete", zap.Error(err))
	}
}

// launch runs the declarations, subscriptions first. Failures are reported
// per key and do not prevent the other keys from launching.
func (s *Scope) launch() {
	for _, key := range sortedKeys(s.decl.Subscribe) {
		if _, err := s.AddSubscription(key, s.decl.Subscribe[key]); err != nil {
			s.reportError(key, err)
		}
	}

	for _, key := range sortedKeys(s.decl.Data) {
		if _, err := s.AddReactiveData(key, s.decl.Data[key]); err != nil {
			s.reportError(key, err)
		}
	}

	for _, key := range sortedKeys(s.decl.ParamData) {
		if err := s.addParamData(key, s.decl.ParamData[key]); err != nil {
			s.reportError(key, err)
		}
	}

	for _, key := range sortedKeys(s.decl.Computed) {
		if _, err := s.mirror(key, s.decl.Computed[key]); err != nil {
			s.reportError(key, err)
		}
	}
}

// AddReactiveData binds key to fn, replacing and stopping the cell already
// bound to key. The error of the first run is returned; the cell stays bound.
// The returned function unbinds the key.
func (s *Scope) AddReactiveData(key string, fn DataFunc) (func(), error) {
	if key == "" {
		return nil, newConfigError(ErrCodeMissingName, "", "reactive data declared without a name")
	}
	if fn == nil {
		return nil, newConfigError(ErrCodeMissingFunction, key, "reactive data declared without a function")
	}

	if err := s.defineDataAccessor(key); err != nil {
		return nil, err
	}

	if old, ok := s.cells[key]; ok {
		delete(s.cells, key)
		if err := s.registry.Stop(old); err != nil {
			s.reportError(key, err)
		}
	}

	cell, err := Bind(s.store, key, MapTarget(s.data, key), fn, s.cellOptions(key)...)
	s.cells[key] = cell
	s.registry.Register(cell)

	return func() { s.unbind(key, cell) }, err
}

func (s *Scope) unbind(key string, cell *Cell) {
	if s.cells[key] == cell {
		delete(s.cells, key)
	}

	if err := s.registry.Stop(cell); err != nil {
		s.reportError(key, err)
	}
}

func (s *Scope) addParamData(key string, pd ParamData) error {
	update := func(params any) DataFunc {
		return func() (any, error) { return pd.Update(params) }
	}

	if pd.Params == nil {
		_, err := s.AddReactiveData(key, update(nil))
		return err
	}

	if s.opts.Server {
		params, err := protect(pd.Params)
		if err != nil {
			return err
		}
		_, err = s.AddReactiveData(key, update(params))
		return err
	}

	var firstErr error
	first := true
	fail := func(err error) {
		if first {
			firstErr = err
		} else if err != nil {
			s.reportError(key, err)
		}
	}

	unwatch := s.store.Watch(
		func() (any, error) { return pd.Params(), nil },
		func(params, _ any) {
			_, err := s.AddReactiveData(key, update(params))
			fail(err)
		},
		store.WatchOptions{Immediate: true, Deep: pd.Deep, OnError: fail},
	)
	first = false

	s.registry.Register(StopFunc(unwatch))
	return firstErr
}

// AddSubscription subscribes to key with params. Dynamic params resubscribe
// when they change, the previous subscription running until the new one is
// ready. The returned function unsubscribes.
func (s *Scope) AddSubscription(key string, params Params) (func(), error) {
	if key == "" {
		return nil, newConfigError(ErrCodeMissingName, "", "subscription declared without a name")
	}

	sl := s.slot(key)
	err := sl.watchParams(params)

	return func() { s.dropSlot(sl) }, err
}

// Subscribe opens name(args...) in the slot of name, replacing its current
// subscription once the new one is ready.
func (s *Scope) Subscribe(name string, args ...any) (Handle, error) {
	if name == "" {
		return nil, newConfigError(ErrCodeMissingName, "", "you must provide the publication name to subscribe")
	}

	return s.slot(name).subscribe(args)
}

func (s *Scope) slot(key string) *Slot {
	if sl, ok := s.slots[key]; ok && !sl.stopped {
		return sl
	}

	sl := newSlot(s, key)
	s.slots[key] = sl
	s.registry.Register(sl)
	return sl
}

func (s *Scope) dropSlot(sl *Slot) {
	if s.slots[sl.key] == sl {
		delete(s.slots, sl.key)
	}

	if err := s.registry.Stop(sl); err != nil {
		s.reportError(sl.key, err)
	}
}

// Autorun runs fn as a computation owned by the scope.
func (s *Scope) Autorun(fn func(*Computation) error) (*Computation, error) {
	comp, err := DetachedAutorun(fn)
	comp.OnError(func(err error) { s.reportError("", err) })
	s.registry.Register(comp)

	return comp, err
}

// StopHandle stops a handle returned by the scope: a computation, a cell,
// or a subscription.
func (s *Scope) StopHandle(h Stoppable) error {
	for key, sl := range s.slots {
		if !sl.owns(h) {
			continue
		}

		if same(sl.current, h) {
			delete(s.slots, key)
			return s.registry.Stop(sl)
		}
		return sl.retire(h)
	}

	for key, c := range s.cells {
		if same(c, h) {
			delete(s.cells, key)
		}
	}

	return s.registry.Stop(h)
}

// AddComputed makes the computed property key a mirrored cell of fn.
func (s *Scope) AddComputed(key string, fn DataFunc) error {
	if fn == nil {
		return newConfigError(ErrCodeMissingFunction, key, "computed declared without a function")
	}

	if err := s.defineComputed(key, fn); err != nil {
		return err
	}

	if !s.Active() {
		return nil
	}

	_, err := s.mirror(key, fn)
	return err
}

func (s *Scope) defineComputed(key string, fn DataFunc) error {
	var w *store.Watcher
	w, err := s.store.Computed(key, func() (any, error) {
		// the first read of an active scope binds the property
		if c, ok := s.mirrored[key]; (!ok || c.Stopped()) && s.Active() {
			if _, err := s.mirror(key, fn); err != nil {
				return nil, err
			}
		}
		return w.Value(), nil
	})
	if err != nil {
		return &ConfigError{Code: ErrCodeDuplicateKey, Key: key, Message: "computed property already defined", Err: err}
	}

	s.computed[key] = w
	return nil
}

func (s *Scope) mirror(key string, fn DataFunc) (*Cell, error) {
	if c, ok := s.mirrored[key]; ok && !c.Stopped() {
		return c, nil
	}

	cell, err := BindComputed(s.computed[key], key, fn, s.cellOptions(key)...)
	s.mirrored[key] = cell
	s.registry.Register(cell)

	return cell, err
}

func (s *Scope) cellOptions(key string) []CellOption {
	return []CellOption{
		WithFreezeResult(s.opts.Freeze),
		WithCellErrorHandler(func(err error) { s.reportError(key, err) }),
	}
}

func (s *Scope) defineAccessor(key string, get func() any) error {
	if err := s.store.DefineAccessor(key, get); err != nil {
		return &ConfigError{Code: ErrCodeDuplicateKey, Key: key, Message: "property already used by the host", Err: err}
	}

	s.accessors[key] = true
	return nil
}

func (s *Scope) defineDataAccessor(key string) error {
	if s.accessors[key] {
		return nil
	}

	return s.defineAccessor(key, func() any {
		v, _ := s.data.Get(key)
		return v
	})
}

// Data reads the value published for key, tracking the read.
func (s *Scope) Data(key string) (any, bool) {
	return s.data.Get(key)
}

// Cell returns the cell bound to a data or computed key.
func (s *Scope) Cell(key string) (*Cell, bool) {
	if c, ok := s.cells[key]; ok {
		return c, true
	}

	c, ok := s.mirrored[key]
	return c, ok
}

// Slot returns the subscription slot of key.
func (s *Scope) Slot(key string) (*Slot, bool) {
	sl, ok := s.slots[key]
	return sl, ok
}

// Ready returns the readiness of every subscription, tracking the read.
func (s *Scope) Ready() map[string]bool {
	out := make(map[string]bool)
	for key, v := range s.subs.Snapshot() {
		out[key], _ = v.(bool)
	}
	return out
}

// SubscriptionReady reports whether the subscription of key is ready,
// tracking the read.
func (s *Scope) SubscriptionReady(key string) bool {
	v, _ := s.subs.Get(key)
	ready, _ := v.(bool)
	return ready
}

// AllReady reports whether every subscription of the scope is ready.
func (s *Scope) AllReady() bool {
	for _, ready := range s.Ready() {
		if !ready {
			return false
		}
	}
	return true
}

func (s *Scope) reportError(key string, err error) {
	if s.opts.OnError != nil {
		s.opts.OnError(key, err)
		return
	}

	s.log.Error("reactive data failed",
		zap.String("key", key),
		zap.Error(err))
}

// Get reads the data published for key as a T.
func Get[T any](s *Scope, key string) T {
	v, _ := s.Data(key)
	t, _ := v.(T)
	return t
}
