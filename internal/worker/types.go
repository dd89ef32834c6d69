package worker

import (
	"sync"
	"sync/atomic"
)

// Discipline decides how loop iterations are handed to workers.
type Discipline int

const (
	// Static splits the loop into equal contiguous chunks, one per worker.
	Static Discipline = iota
	// Dynamic lets idle workers claim the next iteration, one at a time.
	Dynamic
)

func (d Discipline) String() string {
	switch d {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// ThreadSetup runs once on each worker's OS thread before it joins the pool.
type ThreadSetup func(worker int) error

// region is one parallel-for handed to every worker.
type region struct {
	n          int
	fn         func(i int)
	discipline Discipline
	size       int
	next       atomic.Int64
	done       sync.WaitGroup
}

func (r *region) run(worker int) {
	defer r.done.Done()

	if r.discipline == Dynamic {
		for {
			i := int(r.next.Add(1) - 1)
			if i >= r.n {
				return
			}
			r.fn(i)
		}
	}

	lo, hi := staticChunk(r.n, r.size, worker)
	for i := lo; i < hi; i++ {
		r.fn(i)
	}
}

// staticChunk returns worker's block [lo, hi) of n iterations: ceil(n/size)
// each, the last block shorter and trailing workers idle.
func staticChunk(n, size, worker int) (lo, hi int) {
	chunk := (n + size - 1) / size
	lo = min(worker*chunk, n)
	hi = min(lo+chunk, n)
	return lo, hi
}
