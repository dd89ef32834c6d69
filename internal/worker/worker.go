// ============================================================================
// Worker - one OS thread of the task's pool
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Execution unit that runs its share of every parallel region
//
// How it works:
//   Each Worker is a goroutine locked to its own OS thread for its whole
//   life. After the thread setup hook ran, the worker waits at the startup
//   barrier and then loops:
//   1. Receive the next region from its private channel
//   2. Run the iterations the region's discipline assigns to it
//   3. Mark its share done
//   4. Repeat until the pool stops
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine (locked thread)   │
//   │  ┌──────────────────────────────┐   │
//   │  │ setup(id), await start       │   │
//   │  │ for region := range regionCh │   │
//   │  │   └─ region.run(id)          │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// ============================================================================

package worker

import (
	"context"
	"runtime"

	"github.com/sonndinh/gedf-vs-fed/internal/barrier"
)

// Worker is one pool thread.
type Worker struct {
	id       int
	regionCh <-chan *region
	stopCh   <-chan struct{}
}

func newWorker(id int, regionCh <-chan *region, stopCh <-chan struct{}) *Worker {
	return &Worker{
		id:       id,
		regionCh: regionCh,
		stopCh:   stopCh,
	}
}

// Run pins the goroutine to its thread, applies setup, aligns with the
// other workers on start and then serves regions until the pool stops.
// The thread is never unlocked, so it exits together with the goroutine.
func (w *Worker) Run(setup ThreadSetup, start *barrier.Local, setupErr *error) {
	runtime.LockOSThread()

	if setup != nil {
		*setupErr = setup(w.id)
	}
	start.Await(context.Background())

	for {
		select {
		case r := <-w.regionCh:
			r.run(w.id)
		case <-w.stopCh:
			return
		}
	}
}
