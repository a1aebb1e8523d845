//go:build !wasm

package internal

import (
	"sync"

	"github.com/petermattis/goid"
)

// one runtime per goroutine: reactive graphs never span goroutines
var runtimes sync.Map

func GetRuntime() *Runtime {
	gid := getGID()

	if r, ok := runtimes.Load(gid); ok {
		return r.(*Runtime)
	}

	r := NewRuntime()
	runtimes.Store(gid, r)
	return r
}

// ReleaseRuntime forgets the calling goroutine's runtime.
// Computations created on it keep working until they are stopped, but new
// ones will land on a fresh runtime.
func ReleaseRuntime() {
	runtimes.Delete(getGID())
}

func getGID() int64 {
	return goid.Get()
}
