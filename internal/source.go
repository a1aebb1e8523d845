package internal

import "iter"

// Source is anything a computation can depend on.
type Source struct {
	// height of the computation that last wrote this source, used to order reruns
	height int

	subsHead *DependencyLink
}

func (r *Runtime) NewSource() *Source {
	return &Source{}
}

// Depend records the source as a dependency of the running computation, if any.
func (s *Source) Depend() {
	GetRuntime().tracker.Track(s)
}

// Changed invalidates every computation depending on this source.
func (s *Source) Changed() {
	GetRuntime().Notify(s)
}

// HasSubs reports whether at least one computation depends on the source.
func (s *Source) HasSubs() bool {
	return s.subsHead != nil
}

// Subs returns an iterator over the computations depending on this source.
func (s *Source) Subs() iter.Seq[*Computation] {
	return func(yield func(*Computation) bool) {
		link := s.subsHead
		for link != nil {
			if !yield(link.sub) {
				return
			}

			link = link.nextSub
		}
	}
}

func (s *Source) addSubLink(link *DependencyLink) {
	if s.subsHead == nil {
		s.subsHead = link
		link.prevSub = link // loop to self
		link.nextSub = nil
	} else {
		tail := s.subsHead.prevSub
		tail.nextSub = link
		link.prevSub = tail
		link.nextSub = nil
		s.subsHead.prevSub = link
	}
}

func (s *Source) removeSubLink(link *DependencyLink) {
	head := s.subsHead
	if head == nil {
		return
	}

	if link == head {
		s.subsHead = link.nextSub
		if s.subsHead != nil {
			s.subsHead.prevSub = head.prevSub
		}
	} else {
		link.prevSub.nextSub = link.nextSub
		if link.nextSub != nil {
			link.nextSub.prevSub = link.prevSub
		} else {
			head.prevSub = link.prevSub
		}
	}

	link.prevSub = nil
	link.nextSub = nil
}
