package internal

// Owner holds what must be released when a computation reruns or stops:
// nested computations and cleanup functions. It also holds error listeners,
// looked up the owner chain when a computation fails outside of a direct call.
type Owner struct {
	// cleanup functions to be called when the owner is disposed
	cleanups []func()

	// error handlers
	catchers []func(error)

	parent *Owner
}

func (r *Runtime) NewOwner() *Owner {
	return &Owner{
		cleanups: make([]func(), 0),
		parent:   r.tracker.CurrentOwner(),
	}
}

// Dispose runs the registered cleanups in reverse order.
func (o *Owner) Dispose() {
	cleanups := o.cleanups
	o.cleanups = nil

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func (o *Owner) OnCleanup(fn func()) {
	o.cleanups = append(o.cleanups, fn)
}

func (o *Owner) OnError(fn func(error)) {
	o.catchers = append(o.catchers, fn)
}

// handle delivers err to the nearest owner with listeners.
// Returns false if nobody listened.
func (o *Owner) handle(err error) bool {
	for owner := o; owner != nil; owner = owner.parent {
		if len(owner.catchers) == 0 {
			continue
		}

		for _, catcher := range owner.catchers {
			catcher(err)
		}
		return true
	}

	return false
}
