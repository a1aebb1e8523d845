package store

import (
	"cmp"
	"slices"
)

// Dep is the subscriber list of one reactive slot.
type Dep struct {
	id    uint64
	store *Store
	subs  []*Watcher
}

func (s *Store) newDep() *Dep {
	s.nextID++
	return &Dep{id: s.nextID, store: s}
}

// Depend records the dep on the watcher currently evaluating, if any.
func (d *Dep) Depend() {
	if target := d.store.Target(); target != nil {
		target.addDep(d)
	}
}

// Subs returns a copy of the subscribers in creation order.
func (d *Dep) Subs() []*Watcher {
	subs := slices.Clone(d.subs)
	slices.SortFunc(subs, func(a, b *Watcher) int {
		return cmp.Compare(a.id, b.id)
	})
	return subs
}

func (d *Dep) Notify() {
	d.NotifyExcept(nil)
}

// NotifyExcept updates every subscriber but skip.
func (d *Dep) NotifyExcept(skip *Watcher) {
	for _, sub := range d.Subs() {
		if sub != skip {
			sub.Update()
		}
	}
}

func (d *Dep) addSub(w *Watcher) {
	if !slices.Contains(d.subs, w) {
		d.subs = append(d.subs, w)
	}
}

func (d *Dep) removeSub(w *Watcher) {
	if i := slices.Index(d.subs, w); i >= 0 {
		d.subs = slices.Delete(d.subs, i, i+1)
	}
}
