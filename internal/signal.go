package internal

import "reflect"

type Signal struct {
	*Source

	value  any
	equals func(a, b any) bool
}

func (r *Runtime) NewSignal(initial any, equals func(a, b any) bool) *Signal {
	if equals == nil {
		equals = isEqual
	}

	return &Signal{
		Source: r.NewSource(),
		value:  initial,
		equals: equals,
	}
}

// Read returns the current value, tracking the dependency if within a computation.
func (s *Signal) Read() any {
	s.Depend()
	return s.value
}

// Peek returns the current value without tracking.
func (s *Signal) Peek() any {
	return s.value
}

func (s *Signal) Write(v any) {
	if s.equals(s.value, v) {
		return
	}

	s.value = v
	s.Changed()
}

func isEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}

	return a == b
}
