package store

// Field is a named slot holding one value.
type Field struct {
	key   string
	value any
	dep   *Dep
}

func (f *Field) Key() string { return f.key }

// Get returns the value, recording the read on the evaluating watcher.
func (f *Field) Get() any {
	f.dep.Depend()
	return f.value
}

// Peek returns the value without recording the read.
func (f *Field) Peek() any {
	return f.value
}

// Set stores v and notifies dependents, even if v equals the previous value.
func (f *Field) Set(v any) {
	f.value = v
	f.dep.Notify()
}

// Dep exposes the field's subscriber list.
func (f *Field) Dep() *Dep {
	return f.dep
}
