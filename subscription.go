package sigbridge

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge/store"
)

// Handle is an open subscription.
type Handle interface {
	Stop()
}

// ReadyHandle is a Handle that reports when its data has arrived.
// Ready must be reactive: reading it inside a computation tracks it.
type ReadyHandle interface {
	Handle
	Ready() bool
}

type SlotState int

const (
	SlotUnsubscribed SlotState = iota
	SlotSubscribing
	SlotReadinessPending
	SlotSteady
	SlotReplacing
)

func (s SlotState) String() string {
	switch s {
	case SlotUnsubscribed:
		return "unsubscribed"
	case SlotSubscribing:
		return "subscribing"
	case SlotReadinessPending:
		return "readiness-pending"
	case SlotSteady:
		return "steady"
	case SlotReplacing:
		return "replacing"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// Params are the arguments of a declared subscription: fixed, or produced by
// a function whose store reads trigger a resubscription.
type Params struct {
	args []any
	fn   func() []any
}

func Args(args ...any) Params {
	return Params{args: args}
}

func ArgsFunc(fn func() []any) Params {
	return Params{fn: fn}
}

func (p Params) dynamic() bool { return p.fn != nil }

// Slot is the subscription of one key. A new subscription replaces the
// current one, which keeps running until the new one is ready.
type Slot struct {
	key   string
	scope *Scope
	state SlotState

	current  Handle
	previous []Handle
	ready    *Cell
	stopped  bool

	stopWatch func()
}

func newSlot(scope *Scope, key string) *Slot {
	return &Slot{key: key, scope: scope}
}

func (sl *Slot) Key() string { return sl.key }

func (sl *Slot) State() SlotState { return sl.state }

func (sl *Slot) Current() Handle { return sl.current }

// Previous returns the handles waiting for the current one to be ready.
func (sl *Slot) Previous() []Handle { return append([]Handle(nil), sl.previous...) }

// subscribe opens name(args...) and makes it the current handle.
func (sl *Slot) subscribe(args []any) (Handle, error) {
	s := sl.scope
	if s.opts.Subscribe == nil {
		return nil, newConfigError(ErrCodeNoSubscribe, sl.key, "no subscribe function installed")
	}

	prev := sl.state
	sl.state = SlotSubscribing

	handle := s.opts.Subscribe(sl.key, args...)
	if handle == nil {
		sl.state = prev
		return nil, newConfigError(ErrCodeNoSubscribe, sl.key, "subscribe returned no handle")
	}
	if !isComparable(handle) {
		sl.state = prev
		return nil, multierr.Append(
			newConfigError(ErrCodeNoSubscribe, sl.key, "subscribe returned an uncomparable %T handle", handle),
			stopHandle(handle),
		)
	}

	s.log.Debug("subscribed",
		zap.String("subscription", sl.key),
		zap.Any("args", args))

	if sl.current != nil {
		sl.previous = append(sl.previous, sl.current)
	}
	sl.current = handle

	if sl.ready != nil {
		sl.ready.Stop()
		sl.ready = nil
	}

	rh, ok := handle.(ReadyHandle)
	if !ok {
		s.subs.Set(sl.key, true)
		sl.steady()
		return handle, nil
	}

	s.subs.Set(sl.key, false)
	sl.state = SlotReadinessPending
	if len(sl.previous) > 0 {
		sl.state = SlotReplacing
	}

	var err error
	sl.ready, err = Bind(s.store, sl.key, MapTarget(s.subs, sl.key),
		func() (any, error) { return rh.Ready(), nil },
		WithResultHook(func(v any) {
			if ready, _ := v.(bool); ready && same(sl.current, handle) {
				sl.steady()
			}
		}),
		WithCellErrorHandler(func(err error) { s.reportError(sl.key, err) }),
	)
	return handle, err
}

func (sl *Slot) steady() {
	sl.state = SlotSteady

	previous := sl.previous
	sl.previous = nil

	for _, h := range previous {
		if err := stopHandle(h); err != nil {
			sl.scope.log.Warn("failed to stop replaced subscription",
				zap.String("subscription", sl.key),
				zap.Error(err))
		}
	}
}

// owns reports whether h is the current or a previous handle of the slot.
func (sl *Slot) owns(h Stoppable) bool {
	if sl.current != nil && same(sl.current, h) {
		return true
	}

	for _, p := range sl.previous {
		if same(p, h) {
			return true
		}
	}
	return false
}

// retire stops a previous handle ahead of time.
func (sl *Slot) retire(h Stoppable) error {
	for i, p := range sl.previous {
		if same(p, h) {
			sl.previous = append(sl.previous[:i:i], sl.previous[i+1:]...)
			return stopHandle(p)
		}
	}
	return nil
}

func (sl *Slot) Stop() {
	_ = sl.Release()
}

// Release stops the readiness cell and every handle of the slot, even when
// some of them fail.
func (sl *Slot) Release() error {
	if sl.stopped {
		return nil
	}
	sl.stopped = true
	sl.state = SlotUnsubscribed
	sl.unwatch()

	if sl.ready != nil {
		sl.ready.Stop()
		sl.ready = nil
	}

	if cur, ok := sl.scope.slots[sl.key]; !ok || cur == sl {
		sl.scope.subs.Delete(sl.key)
	}

	var errs error
	if sl.current != nil {
		errs = multierr.Append(errs, stopHandle(sl.current))
		sl.current = nil
	}
	for _, h := range sl.previous {
		errs = multierr.Append(errs, stopHandle(h))
	}
	sl.previous = nil

	return errs
}

// protect calls fn, returning a panic as a *PanicError.
func protect[T any](fn func() T) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	return fn(), nil
}

func stopHandle(h Stoppable) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec}
		}
	}()

	h.Stop()
	return nil
}

// watchParams subscribes with params, resubscribing every time dynamic
// params change. Returns the error of the first subscription.
func (sl *Slot) watchParams(params Params) error {
	s := sl.scope
	sl.unwatch()

	if !params.dynamic() {
		_, err := sl.subscribe(params.args)
		return err
	}

	// the server renders once, nothing would see a resubscription
	if s.opts.Server {
		args, err := protect(params.fn)
		if err != nil {
			return err
		}
		_, err = sl.subscribe(args)
		return err
	}

	var firstErr error
	first := true
	fail := func(err error) {
		if first {
			firstErr = err
		} else if err != nil {
			s.reportError(sl.key, err)
		}
	}

	sl.stopWatch = s.store.Watch(
		func() (any, error) { return params.fn(), nil },
		func(v, _ any) {
			args, _ := v.([]any)
			_, err := sl.subscribe(args)
			fail(err)
		},
		store.WatchOptions{Immediate: true, Deep: true, OnError: fail},
	)
	first = false

	return firstErr
}

func (sl *Slot) unwatch() {
	if sl.stopWatch != nil {
		sl.stopWatch()
		sl.stopWatch = nil
	}
}
