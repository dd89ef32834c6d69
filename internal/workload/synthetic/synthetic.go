// Package synthetic is the task body used by generated task sets: each job
// is a chain of segments, and each segment is a parallel loop of strands
// that busy-spin for a fixed length.
//
// Arguments: program num_segments {num_strands len_sec len_ns}...
package synthetic

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sonndinh/gedf-vs-fed/internal/worker"
)

var (
	ErrTooFewArgs = errors.New("synthetic: too few arguments")
	ErrBadArg     = errors.New("synthetic: cannot parse argument")
	ErrNotInit    = errors.New("synthetic: task not initialized")
)

// Segment is one parallel region of a job.
type Segment struct {
	Strands int
	Length  time.Duration
}

// Program is the shape of every job of the task.
type Program struct {
	Segments []Segment
}

// Work is the total spin time of one job.
func (p *Program) Work() time.Duration {
	var total time.Duration
	for _, s := range p.Segments {
		total += time.Duration(s.Strands) * s.Length
	}
	return total
}

// Span is the spin time of one job on unlimited cores.
func (p *Program) Span() time.Duration {
	var total time.Duration
	for _, s := range p.Segments {
		if s.Strands > 0 {
			total += s.Length
		}
	}
	return total
}

// Parse reads the task arguments. args[0] is the program path.
func Parse(args []string) (*Program, error) {
	if len(args) < 2 {
		return nil, ErrTooFewArgs
	}

	n, err := strconv.ParseUint(args[1], 10, 31)
	if err != nil {
		return nil, fmt.Errorf("%w: num_segments %q", ErrBadArg, args[1])
	}
	if len(args) < 2+3*int(n) {
		return nil, fmt.Errorf("%w: %d segments need %d arguments, got %d", ErrTooFewArgs, n, 2+3*n, len(args))
	}

	p := &Program{Segments: make([]Segment, n)}
	for i := range p.Segments {
		base := 2 + 3*i
		strands, err := strconv.ParseUint(args[base], 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d strands %q", ErrBadArg, i, args[base])
		}
		sec, err := strconv.ParseUint(args[base+1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d seconds %q", ErrBadArg, i, args[base+1])
		}
		nsec, err := strconv.ParseUint(args[base+2], 10, 63)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d nanoseconds %q", ErrBadArg, i, args[base+2])
		}
		p.Segments[i] = Segment{
			Strands: int(strands),
			Length:  time.Duration(sec)*time.Second + time.Duration(nsec),
		}
	}
	return p, nil
}

// Task implements the task body contract.
type Task struct {
	pool    *worker.Pool
	program *Program
	spin    func(time.Duration)
}

// New returns a task that spins on the wall clock.
func New() *Task {
	return &Task{spin: BusyWork}
}

func (t *Task) UsePool(pool *worker.Pool) {
	t.pool = pool
}

func (t *Task) Init(args []string) error {
	p, err := Parse(args)
	if err != nil {
		return err
	}
	t.program = p
	return nil
}

// Run executes one job: every segment in order, the strands of a segment in
// parallel on the pool.
func (t *Task) Run(args []string) error {
	if t.program == nil {
		return ErrNotInit
	}

	for _, seg := range t.program.Segments {
		length := seg.Length
		strand := func(int) { t.spin(length) }

		if t.pool == nil {
			for j := 0; j < seg.Strands; j++ {
				strand(j)
			}
			continue
		}
		if err := t.pool.ParallelFor(seg.Strands, strand); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) Finalize(args []string) error {
	t.program = nil
	return nil
}

// Program returns the parsed job shape, or nil before Init.
func (t *Task) Program() *Program {
	return t.program
}

// BusyWork keeps the calling thread running for d.
func BusyWork(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
