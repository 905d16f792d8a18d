// Package post queues callbacks onto the main routine of a process.
//
// Worker goroutines hand results back with Post; the node and wrapper main loops call Tick.
package post

import (
	"sync"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

var (
	callbacks []PostCallback
	lock      sync.Mutex
)

// Post a callback which will be executed by the next Tick of the main routine.
// Post is safe to call from any goroutine.
func Post(f PostCallback) {
	lock.Lock()
	callbacks = append(callbacks, f)
	lock.Unlock()
}

// Len returns the number of callbacks waiting for Tick
func Len() int {
	lock.Lock()
	n := len(callbacks)
	lock.Unlock()
	return n
}

// Tick runs all posted functions, including the ones posted while running
func Tick() {
	for {
		lock.Lock()
		if len(callbacks) == 0 {
			lock.Unlock()
			break
		}
		callbacksCopy := callbacks
		callbacks = make([]PostCallback, 0, len(callbacks))
		lock.Unlock()

		for _, f := range callbacksCopy {
			cnutils.RunPanicless(f)
		}
	}
}
