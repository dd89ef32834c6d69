// ============================================================================
// Launcher - fork one real-time task process per schedule record
// ============================================================================
//
// Package: internal/launcher
// File: launcher.go
// Purpose: Read a partitioned schedule, create the release barrier sized to
//          the task count, start every task program with its own argument
//          vector and result file, then reap them all.
//
// Run sequence:
//   1. Open <base>.rtps                     (ExitFileOpen)
//   2. Check the 2+3N line shape            (ExitFileParse)
//   3. Feasibility 0 runs, 1 runs with a warning, 2 stops (ExitUnschedulable)
//   4. Keep the core-range line as is
//   5. Create the barrier for N parties     (ExitBarrierInit, nothing forked)
//   6. Per record: parse, build argv, start the child with stdout on
//      <base>_output/task<t>.txt            (ExitFileParse / ExitForkExec)
//   7. Any failure from step 6 on terminates the whole process group
//   8. Reap every child, report how each one ended
//
// ============================================================================

package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sonndinh/gedf-vs-fed/internal/barrier"
	"github.com/sonndinh/gedf-vs-fed/internal/journal"
	"github.com/sonndinh/gedf-vs-fed/internal/metrics"
	"github.com/sonndinh/gedf-vs-fed/internal/procgroup"
	"github.com/sonndinh/gedf-vs-fed/internal/schedule"
	"github.com/sonndinh/gedf-vs-fed/pkg/types"
)

var log = slog.Default()

// MetricsFile is the launcher's own textfile inside the output directory.
const MetricsFile = "launcher.prom"

// Config controls where the launcher reads and writes.
type Config struct {
	Layout       schedule.Layout
	BarrierBase  string // "" means barrier.DefaultName
	BarrierDir   string // "" means barrier.DefaultDir
	OutputSuffix string // appended to the schedule base to name the output dir
	Journal      bool   // keep <output>/launch.journal
	Metrics      bool   // write Prometheus textfiles next to the results
}

// DefaultConfig returns the layout of 11 timing fields (4 skipped) and 3
// partition fields, results in <base>_output, journal on, metrics off.
func DefaultConfig() Config {
	return Config{
		Layout:       schedule.DefaultLayout(),
		BarrierBase:  barrier.DefaultName,
		BarrierDir:   barrier.DefaultDir,
		OutputSuffix: "_output",
		Journal:      true,
	}
}

// ChildStatus is one reaped task process.
type ChildStatus struct {
	Ordinal int
	PID     int
	Program string
	Termination
}

// Normal reports a zero exit status.
func (c ChildStatus) Normal() bool {
	return c.Exited && c.Code == 0
}

func (c ChildStatus) outcome() string {
	switch {
	case c.Signaled:
		return metrics.OutcomeSignaled
	case c.Normal():
		return metrics.OutcomeNormal
	default:
		return metrics.OutcomeAbnormal
	}
}

// Option customizes a Launcher.
type Option func(*Launcher)

// WithSpawner replaces fork/exec.
func WithSpawner(s Spawner) Option {
	return func(l *Launcher) { l.spawner = s }
}

// WithKiller replaces the process-group kill.
func WithKiller(k procgroup.Killer) Option {
	return func(l *Launcher) { l.killer = k }
}

// WithStdout sets where per-child outcome lines go.
func WithStdout(w io.Writer) Option {
	return func(l *Launcher) { l.stdout = w }
}

// WithMetrics records launch counters in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Launcher) { l.metrics = c }
}

// WithLaunchID fixes the id stamped on journal events.
func WithLaunchID(id string) Option {
	return func(l *Launcher) { l.launchID = id }
}

// Launcher runs one schedule. It is not reusable.
type Launcher struct {
	cfg      Config
	spawner  Spawner
	killer   procgroup.Killer
	stdout   io.Writer
	metrics  *metrics.Collector
	launchID string

	barrierName string
	outDir      string
	journal     *journal.Journal
	abortOnce   sync.Once
}

// New creates a launcher.
func New(cfg Config, opts ...Option) *Launcher {
	if cfg.OutputSuffix == "" {
		cfg.OutputSuffix = "_output"
	}
	if cfg.BarrierDir == "" {
		cfg.BarrierDir = barrier.DefaultDir
	}

	l := &Launcher{
		cfg:      cfg,
		spawner:  ExecSpawner{},
		killer:   procgroup.Group{Spare: true},
		stdout:   os.Stdout,
		launchID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LaunchID returns the id stamped on this launch's journal events.
func (l *Launcher) LaunchID() string {
	return l.launchID
}

// OutputDir returns the directory results are written to once Run has
// started.
func (l *Launcher) OutputDir() string {
	return l.outDir
}

// OutputDir derives the result directory of a schedule base path.
func OutputDir(base, suffix string) string {
	return base + suffix
}

// Run launches the schedule at base+".rtps" under the barrier of cluster
// and returns the children once all of them ended. A failed launch returns
// an *Error. A cancelled launch, including one a task aborted by signalling
// the group, reaps what it started and returns no error.
func (l *Launcher) Run(ctx context.Context, base, cluster string) ([]ChildStatus, error) {
	sched, err := schedule.OpenSchedule(base)
	if err != nil {
		var perr *schedule.ParseError
		if errors.As(err, &perr) {
			return nil, fail(ExitFileParse, err)
		}
		return nil, fail(ExitFileOpen, fmt.Errorf("cannot open schedule file: %w", err))
	}

	switch sched.Feasibility {
	case types.StatusFound:
		log.Info("task set is schedulable", "schedule", base)
	case types.StatusHeuristicUsed:
		log.Warn("task set may not be schedulable", "schedule", base)
	default:
		log.Warn("task set not schedulable", "schedule", base)
		return nil, fail(ExitUnschedulable, fmt.Errorf("%s: %w", base, ErrUnschedulable))
	}

	l.outDir = OutputDir(base, l.cfg.OutputSuffix)
	if err := os.MkdirAll(l.outDir, 0755); err != nil {
		return nil, fail(ExitFileOpen, fmt.Errorf("cannot create output directory: %w", err))
	}

	if l.cfg.Metrics && l.metrics == nil {
		l.metrics = metrics.NewCollector(prometheus.Labels{"schedule": filepath.Base(base)}).WithProcessMetrics()
	}
	l.openJournal()
	defer l.closeJournal()
	l.record(journal.EventLaunchStart, 0, 0, 0, base)

	// A task that aborts the experiment signals the whole group, the
	// launcher included. Catch it before anything is forked so the group
	// is still reaped and the barrier removed.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	n := sched.NumTasks()
	l.barrierName = barrier.Name(l.cfg.BarrierBase, cluster)
	b, err := barrier.Create(l.cfg.BarrierDir, l.barrierName, n)
	if err != nil {
		l.record(journal.EventLaunchAborted, 0, 0, int(ExitBarrierInit), err.Error())
		return nil, fail(ExitBarrierInit, err)
	}
	b.Close()
	l.record(journal.EventBarrierCreated, 0, 0, n, l.barrierName)

	children := make([]*child, 0, n)
	for t := 1; t <= n && ctx.Err() == nil; t++ {
		rec, err := sched.Record(t, l.cfg.Layout)
		if err != nil {
			return nil, l.abort(ExitFileParse, err)
		}

		c, err := l.spawn(rec)
		if err != nil {
			return nil, l.abort(ExitForkExec, err)
		}
		children = append(children, c)
	}
	log.Info("All tasks started", "tasks", len(children), "barrier", l.barrierName, "launch", l.launchID)

	statuses := l.reap(ctx, children)

	l.removeBarrier()
	log.Info("All tasks finished", "tasks", n, "launch", l.launchID)
	l.record(journal.EventLaunchDone, 0, 0, 0, "")
	l.writeMetrics()

	return statuses, nil
}

// BuildArgv assembles a task's argument vector: program, partition fields,
// the kept timing fields, the barrier name, then the program and its own
// arguments again. Every element is a separate string and the slice shares
// no storage with rec.
func BuildArgv(rec *schedule.Record, barrierName string) []string {
	argv := make([]string, 0, 3+len(rec.Partition)+len(rec.Timing)+len(rec.Args))
	argv = append(argv, rec.Program)
	argv = append(argv, rec.Partition...)
	argv = append(argv, rec.Timing...)
	argv = append(argv, barrierName)
	argv = append(argv, rec.Program)
	argv = append(argv, rec.Args...)
	return argv
}

// Abort terminates the whole process group with SIGTERM and removes the
// barrier. Only the first call has an effect.
func (l *Launcher) Abort() {
	l.abortOnce.Do(func() {
		log.Error("terminating process group", "launch", l.launchID)
		if l.metrics != nil {
			l.metrics.RecordAbort()
		}
		if err := l.killer.KillGroup(syscall.SIGTERM); err != nil {
			log.Error("could not terminate process group", "error", err)
		}
		l.removeBarrier()
	})
}

func (l *Launcher) abort(code ExitCode, err error) error {
	log.Error("launch failed", "code", int(code), "error", err)
	l.record(journal.EventLaunchAborted, 0, 0, int(code), err.Error())
	l.Abort()
	l.writeMetrics()
	return fail(code, err)
}

type child struct {
	ordinal int
	program string
	proc    Process
}

func (l *Launcher) spawn(rec *schedule.Record) (*child, error) {
	argv := BuildArgv(rec, l.barrierName)

	env := []string{barrier.EnvDir + "=" + l.cfg.BarrierDir}
	if l.cfg.Metrics {
		path := filepath.Join(l.outDir, fmt.Sprintf("task%d.prom", rec.Ordinal))
		env = append(env, metrics.EnvTextfile+"="+path)
	}

	stdout := os.Stdout
	resultPath := filepath.Join(l.outDir, fmt.Sprintf("task%d.txt", rec.Ordinal))
	if f, err := os.OpenFile(resultPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600); err != nil {
		log.Warn("redirecting stdout failed", "task", rec.Program, "path", resultPath, "error", err)
	} else {
		defer f.Close()
		stdout = f
	}

	log.Info("forking and exec-ing task", "task", rec.Program, "ordinal", rec.Ordinal)
	proc, err := l.spawner.Spawn(argv, env, stdout)
	if err != nil {
		return nil, fmt.Errorf("task %d (%s): %w", rec.Ordinal, rec.Program, err)
	}

	l.record(journal.EventChildForked, rec.Ordinal, proc.Pid(), 0, rec.Program)
	if l.metrics != nil {
		l.metrics.RecordLaunch()
	}
	return &child{ordinal: rec.Ordinal, program: rec.Program, proc: proc}, nil
}

// reap waits for every child and returns them in the order they ended.
// Cancelling ctx, or a SIGTERM sent to the group, terminates the group;
// reaping continues until all are gone.
func (l *Launcher) reap(ctx context.Context, children []*child) []ChildStatus {
	type ended struct {
		status ChildStatus
		err    error
	}

	done := make(chan ended, len(children))
	for _, c := range children {
		go func(c *child) {
			term, err := c.proc.Wait()
			done <- ended{
				status: ChildStatus{Ordinal: c.ordinal, PID: c.proc.Pid(), Program: c.program, Termination: term},
				err:    err,
			}
		}(c)
	}

	statuses := make([]ChildStatus, 0, len(children))
	cancelled := ctx.Done()
	for len(statuses) < len(children) {
		select {
		case <-cancelled:
			log.Warn("launch cancelled", "error", ctx.Err())
			l.record(journal.EventLaunchAborted, 0, 0, 0, ctx.Err().Error())
			l.Abort()
			cancelled = nil
		case e := <-done:
			if e.err != nil {
				log.Error("could not wait for task", "task", e.status.Program, "pid", e.status.PID, "error", e.err)
				e.status.Code = -1
			}
			l.report(e.status)
			statuses = append(statuses, e.status)
		}
	}
	return statuses
}

func (l *Launcher) report(s ChildStatus) {
	fmt.Fprintf(l.stdout, "Child PID: %d. Terminate normally? %d. Terminate by signal? %d\n",
		s.PID, boolInt(s.Exited), boolInt(s.Signaled))

	switch {
	case s.Exited:
		fmt.Fprintf(l.stdout, "Exit status: %d\n", s.Code)
		l.record(journal.EventChildExited, s.Ordinal, s.PID, s.Code, "")
	case s.Signaled:
		fmt.Fprintf(l.stdout, "Terminating signal sent: %d\n", int(s.Signal))
		l.record(journal.EventChildSignaled, s.Ordinal, s.PID, int(s.Signal), s.Signal.String())
	default:
		l.record(journal.EventChildExited, s.Ordinal, s.PID, s.Code, "unknown termination")
	}

	if l.metrics != nil {
		l.metrics.RecordChildExit(s.outcome())
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (l *Launcher) removeBarrier() {
	if l.barrierName == "" {
		return
	}
	if err := barrier.Remove(l.cfg.BarrierDir, l.barrierName); err != nil {
		log.Warn("could not remove barrier", "barrier", l.barrierName, "error", err)
	}
}

func (l *Launcher) openJournal() {
	if !l.cfg.Journal {
		return
	}
	path := filepath.Join(l.outDir, journal.FileName)
	j, err := journal.Open(path, l.launchID, true)
	if err != nil {
		log.Warn("launch journal disabled", "path", path, "error", err)
		return
	}
	l.journal = j
}

func (l *Launcher) closeJournal() {
	if l.journal == nil {
		return
	}
	if err := l.journal.Close(); err != nil {
		log.Warn("could not close launch journal", "error", err)
	}
}

func (l *Launcher) record(t journal.EventType, ordinal, pid, code int, detail string) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Append(t, ordinal, pid, code, detail); err != nil {
		log.Warn("could not append to launch journal", "event", string(t), "error", err)
	}
}

func (l *Launcher) writeMetrics() {
	if !l.cfg.Metrics || l.metrics == nil {
		return
	}
	path := filepath.Join(l.outDir, MetricsFile)
	if err := l.metrics.WriteTextfile(path); err != nil {
		log.Warn("could not write metrics", "path", path, "error", err)
	}
}
