package taskmanager

import (
	"errors"
	"time"

	"github.com/sonndinh/gedf-vs-fed/internal/worker"
)

// ErrUnsupported is returned by platform operations that the host OS lacks.
var ErrUnsupported = errors.New("taskmanager: not supported on this platform")

// Variant selects who owns core assignment for the task.
type Variant int

const (
	// VariantPinned binds the task to its own cores and balances work
	// greedily inside them.
	VariantPinned Variant = iota
	// VariantGlobal leaves placement to the host's fixed-priority scheduler
	// and splits work into equal static chunks.
	VariantGlobal
)

func (v Variant) String() string {
	switch v {
	case VariantPinned:
		return "pinned"
	case VariantGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// Discipline returns the pool discipline the variant runs with.
func (v Variant) Discipline() worker.Discipline {
	if v == VariantGlobal {
		return worker.Static
	}
	return worker.Dynamic
}

// Platform is the OS surface the runtime needs.
type Platform interface {
	// Bind restricts every thread of the process to cores [first, last].
	Bind(first, last int) error
	// Elevate moves every thread of the process to SCHED_FIFO at priority.
	Elevate(priority int) error
	// UsableCores returns how many cores the process may run on.
	UsableCores() int
	// SetupThread applies the current binding and priority to the calling
	// OS thread. Worker threads call it before joining the pool.
	SetupThread(worker int) error
}

// Clock is a monotonic time source able to sleep until an absolute instant.
type Clock interface {
	Now() time.Duration
	SleepUntil(t time.Duration)
}
