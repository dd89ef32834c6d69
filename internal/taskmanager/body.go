package taskmanager

import (
	"errors"

	"github.com/sonndinh/gedf-vs-fed/internal/worker"
)

// ErrNoRunFunction reports a task without a run entry point.
var ErrNoRunFunction = errors.New("taskmanager: task does not have a run function")

// Body is a task's per-period work. Run is called once per job.
type Body interface {
	Run(args []string) error
}

// Initializer is implemented by bodies that need setup before the release.
type Initializer interface {
	Init(args []string) error
}

// Finalizer is implemented by bodies that clean up after the last job.
type Finalizer interface {
	Finalize(args []string) error
}

// ParallelBody is implemented by bodies that run parallel regions. The pool
// is handed over before Init.
type ParallelBody interface {
	UsePool(pool *worker.Pool)
}

// Funcs adapts plain functions to the body contract. Nil Init and Finalize
// are skipped; a nil Run makes the task invalid.
type Funcs struct {
	InitFn     func(args []string) error
	RunFn      func(args []string) error
	FinalizeFn func(args []string) error
}

func (f *Funcs) Init(args []string) error {
	if f.InitFn == nil {
		return nil
	}
	return f.InitFn(args)
}

func (f *Funcs) Run(args []string) error {
	if f.RunFn == nil {
		return ErrNoRunFunction
	}
	return f.RunFn(args)
}

func (f *Funcs) Finalize(args []string) error {
	if f.FinalizeFn == nil {
		return nil
	}
	return f.FinalizeFn(args)
}

func hasRun(body Body) bool {
	if body == nil {
		return false
	}
	if f, ok := body.(*Funcs); ok {
		return f != nil && f.RunFn != nil
	}
	return true
}
