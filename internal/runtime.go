package internal

// Reporter receives errors of reruns nobody asked for directly
// (reruns triggered by a source change) and no owner listened to.
var Reporter func(c *Computation, err error)

type Runtime struct {
	heap    *PriorityHeap
	tracker *Tracker
	batcher *Batcher
	settled *SettledQueue

	// number of computation callbacks on the stack
	depth    int
	flushing bool

	nextID int
}

func NewRuntime() *Runtime {
	return &Runtime{
		heap:    NewHeap(),
		tracker: NewTracker(),
		batcher: NewBatcher(),
		settled: NewSettledQueue(),
	}
}

func (r *Runtime) CurrentOwner() *Owner {
	return r.tracker.CurrentOwner()
}

func (r *Runtime) CurrentComputation() *Computation {
	return r.tracker.CurrentComputation()
}

// Active reports whether a computation callback is currently running.
func (r *Runtime) Active() bool {
	return r.tracker.ShouldTrack()
}

func (r *Runtime) OnCleanup(fn func()) {
	owner := r.CurrentOwner()
	if owner != nil {
		owner.OnCleanup(fn)
	}
}

func (r *Runtime) Untrack(fn func()) {
	r.tracker.RunUntracked(fn)
}

// NewComputation creates a computation and runs it once, synchronously.
// The computation is returned even if the first run failed: it stays active.
func (r *Runtime) NewComputation(fn func(*Computation) error) (*Computation, error) {
	r.nextID++

	c := &Computation{
		Owner:    r.NewOwner(),
		id:       r.nextID,
		firstRun: true,
		fn:       fn,
	}

	// nested computations stop when their parent reruns or stops
	if parent := r.CurrentOwner(); parent != nil {
		parent.OnCleanup(c.Stop)
	}

	err := r.recompute(c)
	r.Schedule()

	return c, err
}

// Invalidate marks c for rerun and flushes unless a flush, batch or
// computation run is already in progress. A computation invalidating
// itself while it runs is ignored.
func (r *Runtime) Invalidate(c *Computation) error {
	if c.Stopped() || c.Running() {
		return nil
	}

	r.invalidate(c)

	if !r.canFlush() {
		return nil
	}
	return r.flush(c)
}

// Notify invalidates the subscribers of s. The running computation is never
// invalidated by its own writes.
func (r *Runtime) Notify(s *Source) {
	current := r.CurrentComputation()
	if current != nil && current.height >= s.height {
		s.height = current.height + 1
	}

	subs := make([]*Computation, 0)
	for sub := range s.Subs() {
		if sub != current {
			subs = append(subs, sub)
		}
	}

	for _, sub := range subs {
		r.invalidate(sub)
	}

	r.Schedule()
}

func (r *Runtime) Schedule() {
	if r.canFlush() && (r.heap.Len() > 0 || r.settled.Len() > 0) {
		r.flush(nil)
	}
}

// AfterFlush runs fn once pending reruns are done, right away if there are none.
func (r *Runtime) AfterFlush(fn func()) {
	r.settled.Enqueue(fn)
	r.Schedule()
}

func (r *Runtime) canFlush() bool {
	return !r.flushing && r.depth == 0 && !r.batcher.IsBatching()
}

func (r *Runtime) invalidate(c *Computation) {
	if c.Stopped() || c.HasFlag(FlagInvalidated) {
		return
	}
	c.AddFlag(FlagInvalidated)

	r.Untrack(c.runInvalidateCallbacks)
	r.heap.Insert(c)
}

// flush reruns every invalidated computation in height order.
// The error of caller's own rerun is returned, the others are reported.
func (r *Runtime) flush(caller *Computation) error {
	r.flushing = true

	var callerErr error
	func() {
		defer func() { r.flushing = false }()

		for {
			r.heap.Drain(func(c *Computation) {
				err := r.recompute(c)
				if err == nil {
					return
				}

				if c == caller && callerErr == nil {
					callerErr = err
					return
				}
				r.report(c, err)
			})

			// after-flush callbacks may invalidate again
			r.settled.Run()
			if r.heap.Len() == 0 {
				return
			}
		}
	}()

	return callerErr
}

func (r *Runtime) recompute(c *Computation) error {
	if c.Stopped() {
		return nil
	}

	c.RemoveFlag(FlagInvalidated)

	// release what the previous run created
	r.Untrack(c.Owner.Dispose)
	c.ClearDeps()

	c.AddFlag(FlagRunning)
	r.depth++
	defer func() {
		r.depth--
		c.RemoveFlag(FlagRunning)
		c.firstRun = false
	}()

	return r.tracker.RunWithComputation(c, func() error {
		return c.fn(c)
	})
}

func (r *Runtime) report(c *Computation, err error) {
	if c.Owner.handle(err) {
		return
	}

	if Reporter != nil {
		Reporter(c, err)
	}
}

func (r *Runtime) Detach(fn func()) {
	r.tracker.RunDetached(fn)
}
