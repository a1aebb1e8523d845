// Package pubsub is an in-process subscription transport. Subscriptions
// carry a reactive readiness flag the server side of a test or a tool sets
// with MarkReady.
package pubsub

import (
	"reflect"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge"
)

type Transport struct {
	subs      []*Subscription
	readiness bool

	log *zap.Logger
}

type Option func(*Transport)

// WithoutReadiness makes Subscribe return handles without a Ready method.
func WithoutReadiness() Option {
	return func(t *Transport) { t.readiness = false }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) { t.log = l }
}

func New(opts ...Option) *Transport {
	t := &Transport{readiness: true, log: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe opens a subscription. It has the signature of sigbridge.SubscribeFunc.
func (t *Transport) Subscribe(name string, args ...any) sigbridge.Handle {
	sub := &Subscription{
		id:        uuid.NewString(),
		seq:       len(t.subs) + 1,
		name:      name,
		args:      slices.Clone(args),
		ready:     sigbridge.NewSignal(false),
		transport: t,
	}
	t.subs = append(t.subs, sub)

	t.log.Debug("subscription opened",
		zap.String("id", sub.id),
		zap.String("name", name),
		zap.Any("args", args))

	if !t.readiness {
		return &Plain{sub}
	}
	return sub
}

// All returns every subscription ever opened, in order.
func (t *Transport) All() []*Subscription {
	return slices.Clone(t.subs)
}

// Active returns the subscriptions not stopped yet.
func (t *Transport) Active() []*Subscription {
	var out []*Subscription
	for _, sub := range t.subs {
		if !sub.Stopped() {
			out = append(out, sub)
		}
	}
	return out
}

// Find returns the latest subscription to name with args, or nil.
func (t *Transport) Find(name string, args ...any) *Subscription {
	for _, sub := range slices.Backward(t.subs) {
		if sub.name == name && reflect.DeepEqual(sub.args, slices.Clone(args)) {
			return sub
		}
	}
	return nil
}

// Last returns the latest subscription to name, or nil.
func (t *Transport) Last(name string) *Subscription {
	for _, sub := range slices.Backward(t.subs) {
		if sub.name == name {
			return sub
		}
	}
	return nil
}

type Subscription struct {
	id   string
	seq  int
	name string
	args []any

	ready *sigbridge.Signal[bool]
	stops int

	// set by FailStop
	stopErr error

	transport *Transport
}

func (s *Subscription) ID() string { return s.id }

// Seq is the position of the subscription in the transport, from 1.
func (s *Subscription) Seq() int { return s.seq }

func (s *Subscription) Name() string { return s.name }

func (s *Subscription) Args() []any { return slices.Clone(s.args) }

// Ready reports whether the subscription's data has arrived. Reactive.
func (s *Subscription) Ready() bool { return s.ready.Read() }

func (s *Subscription) MarkReady() { s.ready.Write(true) }

// MarkUnready simulates a lost connection.
func (s *Subscription) MarkUnready() { s.ready.Write(false) }

func (s *Subscription) Stop() {
	s.stops++
	if s.stops == 1 {
		s.transport.log.Debug("subscription stopped",
			zap.String("id", s.id),
			zap.String("name", s.name))
	}

	if s.stopErr != nil {
		panic(s.stopErr)
	}
}

func (s *Subscription) Stopped() bool { return s.stops > 0 }

// StopCount is the number of times Stop was called.
func (s *Subscription) StopCount() int { return s.stops }

// FailStop makes every call to Stop panic with err, after counting it.
func (s *Subscription) FailStop(err error) { s.stopErr = err }

// Plain is a subscription handle without readiness.
type Plain struct {
	sub *Subscription
}

func (p *Plain) Stop() { p.sub.Stop() }

func (p *Plain) Subscription() *Subscription { return p.sub }
