package internal

// DependencyLink connects a source (dependency) to a computation (subscriber).
// Each link lives in two lists at once: the computation's deps and the source's subs.
type DependencyLink struct {
	dep *Source
	sub *Computation

	prevDep *DependencyLink
	nextDep *DependencyLink

	prevSub *DependencyLink
	nextSub *DependencyLink
}
