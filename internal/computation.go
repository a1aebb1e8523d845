package internal

import "iter"

type NodeFlags int

const (
	FlagNone NodeFlags = 0
	// FlagInvalidated marks a computation waiting to rerun
	FlagInvalidated NodeFlags = 1 << iota
	// FlagInHeap marks a computation queued in the rerun heap
	FlagInHeap
	// FlagRunning marks a computation whose callback is on the stack
	FlagRunning
	// FlagStopped marks a terminal computation
	FlagStopped
)

// Computation runs a callback, records the sources read while it runs,
// and reruns whenever one of them changes.
type Computation struct {
	*Owner

	id       int
	flags    NodeFlags
	height   int
	firstRun bool

	depsHead *DependencyLink

	fn func(*Computation) error

	onInvalidate []func()
	onStop       []func()
}

func (c *Computation) ID() int { return c.id }

func (c *Computation) FirstRun() bool { return c.firstRun }

func (c *Computation) Stopped() bool { return c.HasFlag(FlagStopped) }

func (c *Computation) Running() bool { return c.HasFlag(FlagRunning) }

func (c *Computation) Invalidated() bool { return c.HasFlag(FlagInvalidated) }

func (c *Computation) HasFlag(f NodeFlags) bool { return c.flags&f != 0 }

func (c *Computation) AddFlag(f NodeFlags) { c.flags |= f }

func (c *Computation) RemoveFlag(f NodeFlags) { c.flags &^= f }

// OnInvalidate registers fn to run the next time the computation is invalidated.
// Runs immediately if the computation is already invalidated or stopped.
func (c *Computation) OnInvalidate(fn func()) {
	if c.HasFlag(FlagInvalidated | FlagStopped) {
		GetRuntime().Untrack(fn)
		return
	}

	c.onInvalidate = append(c.onInvalidate, fn)
}

// OnStop registers fn to run when the computation stops.
// Runs immediately if the computation is already stopped.
func (c *Computation) OnStop(fn func()) {
	if c.Stopped() {
		GetRuntime().Untrack(fn)
		return
	}

	c.onStop = append(c.onStop, fn)
}

// Invalidate schedules a rerun. Outside of a flush or batch the rerun
// happens before Invalidate returns, and its error is returned.
func (c *Computation) Invalidate() error {
	return GetRuntime().Invalidate(c)
}

// Stop detaches the computation from its sources for good.
func (c *Computation) Stop() {
	if c.Stopped() {
		return
	}
	c.AddFlag(FlagStopped)

	r := GetRuntime()
	r.heap.Remove(c)
	c.ClearDeps()

	r.Untrack(func() {
		c.runInvalidateCallbacks()
		c.Owner.Dispose()

		callbacks := c.onStop
		c.onStop = nil
		for _, fn := range callbacks {
			fn()
		}
	})
}

func (c *Computation) runInvalidateCallbacks() {
	callbacks := c.onInvalidate
	c.onInvalidate = nil

	for _, fn := range callbacks {
		fn()
	}
}

// Link creates a bidirectional dependency link between this computation (subscriber) and the given source (dependency).
func (c *Computation) Link(dep *Source) {
	if c.Stopped() {
		return
	}

	// dont link if already present as the most recent dependency
	if c.depsHead != nil {
		tail := c.depsHead.prevDep
		if tail.dep == dep {
			return
		}
	}

	for link := c.depsHead; link != nil; link = link.nextDep {
		if link.dep == dep {
			return
		}
	}

	link := &DependencyLink{dep: dep, sub: c}

	c.addDepLink(link)
	dep.addSubLink(link)

	// Update subscriber height if needed
	if dep.height >= c.height {
		c.height = dep.height + 1
	}
}

// Deps returns an iterator over all dependencies
func (c *Computation) Deps() iter.Seq[*Source] {
	return func(yield func(*Source) bool) {
		link := c.depsHead
		for link != nil {
			if !yield(link.dep) {
				return
			}

			link = link.nextDep
		}
	}
}

// ClearDeps removes all dependencies
func (c *Computation) ClearDeps() {
	for link := c.depsHead; link != nil; {
		next := link.nextDep
		link.dep.removeSubLink(link)
		link = next
	}

	c.depsHead = nil
}

func (c *Computation) addDepLink(link *DependencyLink) {
	if c.depsHead == nil {
		c.depsHead = link
		link.prevDep = link // loop to self
		link.nextDep = nil
	} else {
		tail := c.depsHead.prevDep
		tail.nextDep = link
		link.prevDep = tail
		link.nextDep = nil
		c.depsHead.prevDep = link
	}
}
