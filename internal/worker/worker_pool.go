// ============================================================================
// Worker Pool - fixed team of OS threads for parallel-for regions
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Owns the task's worker threads and runs parallel loops on them
//
// Design:
//   One pool per task process, sized to the cores the task may use.
//   1. Every worker is a goroutine locked to its own OS thread
//   2. Start returns only after every worker ran its thread setup and
//      reached the startup barrier, so the whole team exists before the
//      first job is released
//   3. ParallelFor hands the same region to every worker over its private
//      channel and joins on the region's WaitGroup
//
// Architecture:
//   ┌──────────────┐
//   │ Task body    │ --ParallelFor(n, fn)--> region
//   └──────────────┘                           │
//   ┌──────────────┐                           │
//   │   Pool       │  regionCh[0] <────────────┤
//   │  Worker 0..k │  regionCh[1] <────────────┤
//   │              │  regionCh[k] <────────────┘
//   └──────────────┘        └── region.done.Wait()
//
// Disciplines:
//   - Static: contiguous chunks of ceil(n/size), one per worker
//   - Dynamic: shared atomic counter, chunk size one
//
// A ParallelFor issued while another region is active (for example from
// inside a loop body) runs serially on the calling goroutine.
//
// Shutdown:
//   Stop closes stopCh and waits for every worker to leave its loop. It
//   must not be called while a ParallelFor is still running.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sonndinh/gedf-vs-fed/internal/barrier"
)

var (
	// ErrPoolClosed means the pool has been stopped.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted means Start has not been called yet.
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStarted means Start was called twice.
	ErrPoolStarted = errors.New("worker pool already started")
	// ErrNoWorkers means a pool of size zero was requested.
	ErrNoWorkers = errors.New("worker pool needs at least one worker")
)

// Pool is the task's team of worker threads.
type Pool struct {
	workers    []*Worker
	regionChs  []chan *region
	stopCh     chan struct{}
	wg         sync.WaitGroup
	discipline Discipline
	busy       atomic.Bool
	started    bool
	stopped    bool
	mu         sync.Mutex
}

// NewPool creates an idle pool using the given discipline.
func NewPool(discipline Discipline) *Pool {
	return &Pool{
		workers:    make([]*Worker, 0),
		stopCh:     make(chan struct{}),
		discipline: discipline,
	}
}

// Start launches workerCount workers, runs setup on each worker's thread
// and waits until all of them are ready. If any setup fails the pool is
// stopped again and the joined setup errors are returned.
func (p *Pool) Start(workerCount int, setup ThreadSetup) error {
	if workerCount < 1 {
		return ErrNoWorkers
	}

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrPoolStarted
	}

	start, err := barrier.NewLocal(workerCount + 1)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	errs := make([]error, workerCount)
	for i := 0; i < workerCount; i++ {
		ch := make(chan *region, 1)
		worker := newWorker(i, ch, p.stopCh)
		p.regionChs = append(p.regionChs, ch)
		p.workers = append(p.workers, worker)

		p.wg.Add(1)
		go func(w *Worker, setupErr *error) {
			defer p.wg.Done()
			w.Run(setup, start, setupErr)
		}(worker, &errs[i])
	}
	p.started = true
	p.mu.Unlock()

	start.Await(context.Background())

	if err := errors.Join(errs...); err != nil {
		p.Stop()
		return err
	}
	return nil
}

// ParallelFor runs fn(i) for every i in [0, n) across the pool and returns
// once all iterations finished.
func (p *Pool) ParallelFor(n int, fn func(i int)) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	chans := p.regionChs
	p.mu.Unlock()

	if n <= 0 {
		return nil
	}

	if !p.busy.CompareAndSwap(false, true) {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return nil
	}
	defer p.busy.Store(false)

	r := &region{
		n:          n,
		fn:         fn,
		discipline: p.discipline,
		size:       len(chans),
	}
	r.done.Add(len(chans))
	for _, ch := range chans {
		ch <- r
	}
	r.done.Wait()
	return nil
}

// Stop ends every worker and waits for their threads to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

// GetWorkerCount returns the number of started workers.
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted reports whether Start succeeded at least once.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Discipline returns the pool's iteration discipline.
func (p *Pool) Discipline() Discipline {
	return p.discipline
}
