// ============================================================================
// Release Barrier - named single-use rendezvous
// ============================================================================
//
// Package: internal/barrier
// File: barrier.go
// Purpose: Line up a fixed number of parties (task processes, or worker
//          threads inside one process) and release them together.
//
// Lifecycle:
//   1. Create(dir, name, K)   - launcher, before forking anything
//   2. Open(dir, name)        - every task process
//   3. Await(ctx)             - K arrivals, the K-th releases everyone
//   4. Remove(dir, name)      - launcher, after reaping the children
//
// A barrier is single use: arriving after the release, or more than K
// times, returns ErrAlreadyReleased.
//
// The cross-process variant is a small shared-memory object (a file under
// /dev/shm by default) holding the party count, an arrival counter and a
// release word that waiters block on with futex(2).
//
// ============================================================================

package barrier

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultName is the base barrier name; a cluster id is appended to it.
const DefaultName = "/RT_GOMP_CLUSTERING_BARRIER"

// DefaultDir is where named barriers live.
const DefaultDir = "/dev/shm"

// EnvDir tells task processes which directory the launcher created the
// barrier in. Unset means DefaultDir.
const EnvDir = "FEDSCHED_BARRIER_DIR"

var (
	// ErrBarrierInit is matched by every initialization failure.
	ErrBarrierInit = errors.New("barrier: initialization failed")
	// ErrAlreadyExists indicates the name is in use.
	ErrAlreadyExists = errors.New("barrier: name already in use")
	// ErrInvalidParties indicates a party count below one.
	ErrInvalidParties = errors.New("barrier: party count must be at least 1")
	// ErrAlreadyReleased indicates a second use of a single-use barrier.
	ErrAlreadyReleased = errors.New("barrier: already released")
	// ErrNotInitialized indicates the shared object was never set up.
	ErrNotInitialized = errors.New("barrier: object not initialized")
	// ErrUnsupported indicates the platform has no cross-process barrier.
	ErrUnsupported = errors.New("barrier: not supported on this platform")
)

// Barrier is anything a party can rendezvous on.
type Barrier interface {
	Await(ctx context.Context) error
}

// InitError reports a barrier that could not be created or opened.
type InitError struct {
	Name string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("barrier: cannot initialize %s: %v", e.Name, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Is makes every InitError match ErrBarrierInit.
func (e *InitError) Is(target error) bool {
	return target == ErrBarrierInit
}

// Name builds the barrier name for a cluster. An empty cluster id yields
// the base name unchanged.
func Name(base, cluster string) string {
	if base == "" {
		base = DefaultName
	}
	return base + cluster
}

// Path maps a barrier name onto a file in dir.
func Path(dir, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, strings.TrimPrefix(name, "/"))
}

// ============================================================================
// In-process barrier
// ============================================================================

// Local is the single-use barrier for threads of one process.
type Local struct {
	mu       sync.Mutex
	parties  int
	arrived  int
	released chan struct{}
}

// NewLocal returns a barrier for exactly parties arrivals.
func NewLocal(parties int) (*Local, error) {
	if parties < 1 {
		return nil, ErrInvalidParties
	}
	return &Local{
		parties:  parties,
		released: make(chan struct{}),
	}, nil
}

// Await blocks until all parties arrived or ctx is done.
func (b *Local) Await(ctx context.Context) error {
	b.mu.Lock()
	if b.arrived >= b.parties {
		b.mu.Unlock()
		return ErrAlreadyReleased
	}
	b.arrived++
	if b.arrived == b.parties {
		close(b.released)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-b.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Arrived returns the number of parties that reached the barrier so far.
func (b *Local) Arrived() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}
