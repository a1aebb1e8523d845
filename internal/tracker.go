package internal

import (
	"fmt"
	"runtime/debug"
)

type Tracker struct {
	tracking bool

	currentOwner       *Owner       // for lifecycle/cleanup tracking
	currentComputation *Computation // for reactive dependency tracking
}

func NewTracker() *Tracker {
	return &Tracker{
		tracking: true,
	}
}

func (t *Tracker) CurrentOwner() *Owner {
	return t.currentOwner
}

func (t *Tracker) CurrentComputation() *Computation {
	return t.currentComputation
}

// RunWithComputation runs fn with node as the current computation.
// A panic in fn is recovered and returned as a *PanicError.
func (t *Tracker) RunWithComputation(node *Computation, fn func() error) (err error) {
	prevOwner := t.currentOwner
	prevComputation := t.currentComputation
	prevTracking := t.tracking

	t.currentOwner = node.Owner
	t.currentComputation = node
	t.tracking = true

	defer func() {
		t.currentOwner = prevOwner
		t.currentComputation = prevComputation
		t.tracking = prevTracking

		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return fn()
}

func (t *Tracker) RunUntracked(fn func()) {
	prev := t.tracking
	t.tracking = false
	defer func() { t.tracking = prev }()

	fn()
}

func (t *Tracker) Track(node *Source) {
	if t.ShouldTrack() {
		t.currentComputation.Link(node)
	}
}

func (t *Tracker) ShouldTrack() bool {
	return t.currentComputation != nil && t.tracking
}

// PanicError wraps a value recovered from a panicking computation.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("computation panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// RunDetached runs fn with no current owner or computation, so computations
// created by fn are neither dependencies nor children of the running one.
func (t *Tracker) RunDetached(fn func()) {
	prevOwner := t.currentOwner
	prevComputation := t.currentComputation

	t.currentOwner = nil
	t.currentComputation = nil

	defer func() {
		t.currentOwner = prevOwner
		t.currentComputation = prevComputation
	}()

	fn()
}
