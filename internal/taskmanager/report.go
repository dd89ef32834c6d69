package taskmanager

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

// DefaultMaxRecordedJobs bounds the per-job timing series kept in memory.
const DefaultMaxRecordedJobs = 1 << 24

// Report accumulates the timing of a task's jobs. Job 0 warms caches and
// the pool, so it is stored but never counted in Missed, Max or Total.
type Report struct {
	Name       string
	Iterations int
	Deadline   time.Duration

	Missed int
	Jobs   int
	Max    time.Duration
	Total  time.Duration

	// Timings and Starts are nil when the series was too large to keep.
	Timings []time.Duration
	Starts  []time.Duration
}

func newReport(cfg *Config, maxRecorded int) *Report {
	r := &Report{
		Name:       cfg.Name,
		Iterations: cfg.Iterations,
		Deadline:   cfg.Deadline,
	}
	if cfg.Iterations <= maxRecorded {
		r.Timings = make([]time.Duration, 0, cfg.Iterations)
		r.Starts = make([]time.Duration, 0, cfg.Iterations)
	}
	return r
}

// Record adds one finished job that started at start and ran for elapsed.
// It reports whether the job counts as a deadline miss.
func (r *Report) Record(start, elapsed time.Duration) bool {
	job := r.Jobs
	r.Jobs++

	if r.Timings != nil {
		r.Timings = append(r.Timings, elapsed)
		r.Starts = append(r.Starts, start)
	}

	if job == 0 {
		return false
	}

	missed := elapsed > r.Deadline
	if missed {
		r.Missed++
	}
	if elapsed > r.Max {
		r.Max = elapsed
	}
	r.Total += elapsed
	return missed
}

// Average is the mean runtime of every job but the first.
func (r *Report) Average() time.Duration {
	if r.Jobs <= 1 {
		return 0
	}
	return r.Total / time.Duration(r.Jobs-1)
}

// WriteTo emits the result file: miss ratio, max and average runtime, then
// one elapsed time in nanoseconds per job.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	fmt.Fprintf(cw, "Deadlines missed for task %s: %d/%d\n", r.Name, r.Missed, r.Iterations)
	fmt.Fprintf(cw, "Max running time for task %s: %d sec %d nsec\n",
		r.Name, int64(r.Max/time.Second), int64(r.Max%time.Second))
	fmt.Fprintf(cw, "Avg running time for task %s: %d nsec\n", r.Name, r.Average().Nanoseconds())

	for _, t := range r.Timings {
		fmt.Fprintf(cw, "%d\n", t.Nanoseconds())
	}

	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, bw.Flush()
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
