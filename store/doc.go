// Package store is a small component-scoped reactive store: the graph the
// bridge mirrors graph-A computations into.
//
// Reads of fields, map keys and computed properties made while a Watcher
// evaluates are recorded as the watcher's dependencies; writes notify the
// watchers depending on what was written, synchronously and in creation
// order. Values are not compared on write: setting the same value notifies
// again.
//
// A Watcher's update step can be overridden with SetUpdateHook. The bridge
// uses that to route graph-B invalidations into a graph-A computation
// instead of letting the watcher re-evaluate on its own.
package store
