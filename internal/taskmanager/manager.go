// ============================================================================
// Task Manager - periodic real-time job loop of one task process
// ============================================================================
//
// Package: internal/taskmanager
// File: manager.go
// Purpose: Turn a task body into a periodic real-time task: pin it to its
//          cores, raise it to SCHED_FIFO, wait for the release barrier and
//          run one job per period, then report the timing.
//
// Run sequence:
//   1. Validate the deadline against the period
//   2. Require a run entry point
//   3. Bind to [first, last] (pinned variant). On failure the task still
//      meets its peers at the barrier, writes "Binding failed !" and exits
//      with ExitCoreBind without touching the group
//   4. Elevate to SCHED_FIFO at the configured priority
//   5. Start the worker pool sized to the usable cores
//   6. Init the body
//   7. Allocate the timing series (skipped with a warning when too large)
//   8. Await the release barrier
//   9. Job loop: next = now + release; sleep until next, run, measure,
//      next += period
//  10. Finalize the body (failure is only a warning)
//  11. Write the report to the task's output
//
// Fatal errors terminate the whole process group through the Killer.
//
// ============================================================================

package taskmanager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sonndinh/gedf-vs-fed/internal/barrier"
	"github.com/sonndinh/gedf-vs-fed/internal/metrics"
	"github.com/sonndinh/gedf-vs-fed/internal/procgroup"
	"github.com/sonndinh/gedf-vs-fed/internal/worker"
)

var log = slog.Default()

// ExitCode is the task process's exit status.
type ExitCode int

const (
	ExitSuccess ExitCode = iota
	ExitCoreBind
	ExitSetPriority
	ExitInitTask
	ExitRunTask
	ExitBarrier
	ExitBadDeadline
	ExitArgParse
	ExitArgCount
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitCoreBind:
		return "core bind error"
	case ExitSetPriority:
		return "set priority error"
	case ExitInitTask:
		return "init task error"
	case ExitRunTask:
		return "run task error"
	case ExitBarrier:
		return "barrier error"
	case ExitBadDeadline:
		return "bad deadline error"
	case ExitArgParse:
		return "argument parse error"
	case ExitArgCount:
		return "argument count error"
	default:
		return "unknown"
	}
}

// RunFailurePolicy decides what a failing job does to the rest of the
// experiment.
type RunFailurePolicy int

const (
	// AbortGroup terminates every task of the launch.
	AbortGroup RunFailurePolicy = iota
	// TaskOnly ends this task and leaves its peers running.
	TaskOnly
)

// BarrierOpener opens the named release barrier.
type BarrierOpener func(name string) (barrier.Barrier, error)

type settings struct {
	platform    Platform
	clock       Clock
	killer      procgroup.Killer
	openBarrier BarrierOpener
	variant     Variant
	policy      RunFailurePolicy
	output      io.Writer
	metrics     *metrics.Collector
	metricsPath string
	maxRecorded int
}

// Option customizes a Manager.
type Option func(*settings)

func WithPlatform(p Platform) Option { return func(s *settings) { s.platform = p } }

func WithClock(c Clock) Option { return func(s *settings) { s.clock = c } }

func WithKiller(k procgroup.Killer) Option { return func(s *settings) { s.killer = k } }

func WithBarrierOpener(o BarrierOpener) Option { return func(s *settings) { s.openBarrier = o } }

func WithVariant(v Variant) Option { return func(s *settings) { s.variant = v } }

func WithRunFailurePolicy(p RunFailurePolicy) Option { return func(s *settings) { s.policy = p } }

func WithOutput(w io.Writer) Option { return func(s *settings) { s.output = w } }

func WithMaxRecordedJobs(n int) Option { return func(s *settings) { s.maxRecorded = n } }

// WithMetrics records every job in c and writes c to path when the task ends.
// An empty path keeps the metrics in memory only.
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(s *settings) {
		s.metrics = c
		s.metricsPath = path
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		platform:    NewNativePlatform(),
		clock:       MonotonicClock{},
		killer:      procgroup.Group{},
		openBarrier: openSharedBarrier,
		variant:     VariantPinned,
		policy:      AbortGroup,
		output:      os.Stdout,
		maxRecorded: DefaultMaxRecordedJobs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// openSharedBarrier opens the cross-process barrier in the directory the
// launcher advertised.
func openSharedBarrier(name string) (barrier.Barrier, error) {
	return barrier.Open(os.Getenv(barrier.EnvDir), name)
}

// Manager runs one task.
type Manager struct {
	cfg    *Config
	body   Body
	s      *settings
	report *Report
}

// NewManager prepares a task with the given configuration and body.
func NewManager(cfg *Config, body Body, opts ...Option) *Manager {
	return &Manager{
		cfg:  cfg,
		body: body,
		s:    newSettings(opts),
	}
}

// Report returns the timing report once the job loop has started.
func (m *Manager) Report() *Report {
	return m.report
}

// Run executes the task and returns its exit code.
func (m *Manager) Run(ctx context.Context) ExitCode {
	cfg := m.cfg
	task := slog.String("task", cfg.Name)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid task parameters", task, "error", err)
		return m.abort(ExitBadDeadline)
	}

	if !hasRun(m.body) {
		log.Error("task does not have a run function", task)
		return m.abort(ExitRunTask)
	}

	if m.s.variant == VariantPinned {
		if err := m.s.platform.Bind(cfg.FirstCore, cfg.LastCore); err != nil {
			log.Error("could not set CPU affinity", task, "first", cfg.FirstCore, "last", cfg.LastCore, "error", err)
			return m.bindingFailed(ctx)
		}
	}

	if err := m.s.platform.Elevate(cfg.Priority); err != nil {
		log.Error("could not set scheduler priority", task, "priority", cfg.Priority, "error", err)
		return m.abort(ExitSetPriority)
	}

	pool := worker.NewPool(m.s.variant.Discipline())
	cores := m.s.platform.UsableCores()
	if err := pool.Start(cores, m.s.platform.SetupThread); err != nil {
		log.Error("could not start worker pool", task, "workers", cores, "error", err)
		return m.abort(ExitSetPriority)
	}
	defer pool.Stop()
	log.Info("pool discipline", task, "discipline", pool.Discipline().String(), "workers", cores, "variant", m.s.variant.String())

	if pb, ok := m.body.(ParallelBody); ok {
		pb.UsePool(pool)
	}

	log.Info("initializing task", task)
	if initializer, ok := m.body.(Initializer); ok {
		if err := initializer.Init(cfg.TaskArgs); err != nil {
			log.Error("task initialization failed", task, "error", err)
			return m.abort(ExitInitTask)
		}
	}

	m.report = newReport(cfg, m.s.maxRecorded)
	if m.report.Timings == nil {
		log.Warn("per-job timing storage skipped", task, "iterations", cfg.Iterations, "limit", m.s.maxRecorded)
	}

	log.Info("task reached barrier", task)
	if err := m.await(ctx); err != nil {
		log.Error("barrier error", task, "barrier", cfg.BarrierName, "error", err)
		return m.abort(ExitBarrier)
	}

	if code, ok := m.loop(); !ok {
		return code
	}

	if fin, ok := m.body.(Finalizer); ok {
		if err := fin.Finalize(cfg.TaskArgs); err != nil {
			log.Warn("task finalization failed", task, "error", err)
		}
	}

	if _, err := m.report.WriteTo(m.s.output); err != nil {
		log.Error("could not write results", task, "error", err)
	}
	m.writeMetrics()

	return ExitSuccess
}

// loop runs the jobs. It returns false with an exit code if a job failed.
func (m *Manager) loop() (ExitCode, bool) {
	cfg, clock := m.cfg, m.s.clock

	next := clock.Now() + cfg.Release
	for i := 0; i < cfg.Iterations; i++ {
		clock.SleepUntil(next)

		start := clock.Now()
		err := m.body.Run(cfg.TaskArgs)
		finish := clock.Now()

		if err != nil {
			log.Error("task run failed", "task", cfg.Name, "job", i, "error", err)
			m.writeMetrics()
			if m.s.policy == TaskOnly {
				return ExitRunTask, false
			}
			return m.abort(ExitRunTask), false
		}

		elapsed := finish - start
		missed := m.report.Record(start, elapsed)
		if m.s.metrics != nil && i != 0 {
			m.s.metrics.RecordJob(elapsed, missed)
			m.s.metrics.SetMaxResponse(m.report.Max)
		}

		next += cfg.Period
	}
	return ExitSuccess, true
}

// bindingFailed keeps the barrier party count intact so peers are released,
// then reports the failure locally.
func (m *Manager) bindingFailed(ctx context.Context) ExitCode {
	if err := m.await(ctx); err != nil {
		log.Error("barrier error", "task", m.cfg.Name, "barrier", m.cfg.BarrierName, "error", err)
		return m.abort(ExitBarrier)
	}
	io.WriteString(m.s.output, "Binding failed !")
	return ExitCoreBind
}

func (m *Manager) await(ctx context.Context) error {
	b, err := m.s.openBarrier(m.cfg.BarrierName)
	if err != nil {
		return err
	}
	if c, ok := b.(io.Closer); ok {
		defer c.Close()
	}
	return b.Await(ctx)
}

// abort terminates the whole process group and returns code.
func (m *Manager) abort(code ExitCode) ExitCode {
	return abortGroup(m.s.killer, code)
}

func abortGroup(k procgroup.Killer, code ExitCode) ExitCode {
	if err := k.KillGroup(syscall.SIGTERM); err != nil {
		log.Error("could not terminate process group", "error", err)
	}
	return code
}

func (m *Manager) writeMetrics() {
	if m.s.metrics == nil || m.s.metricsPath == "" {
		return
	}
	if err := m.s.metrics.WriteTextfile(m.s.metricsPath); err != nil {
		log.Warn("could not write metrics", "task", m.cfg.Name, "path", m.s.metricsPath, "error", err)
	}
}

// Main parses argv, runs body as a periodic task and returns the process
// exit status. When the launcher set metrics.EnvTextfile, the task's
// metrics are written there.
func Main(argv []string, body Body, opts ...Option) int {
	s := newSettings(opts)

	cfg, err := ParseArgs(argv)
	if err != nil {
		name := "task"
		if len(argv) > 0 {
			name = argv[0]
		}
		log.Error("cannot start task", "task", name, "error", err)
		if errors.Is(err, ErrArgCount) {
			return int(abortGroup(s.killer, ExitArgCount))
		}
		return int(abortGroup(s.killer, ExitArgParse))
	}

	if path := os.Getenv(metrics.EnvTextfile); path != "" && s.metrics == nil {
		collector := metrics.NewCollector(prometheus.Labels{"task": cfg.Name}).WithProcessMetrics()
		opts = append(opts, WithMetrics(collector, path))
	}

	return int(NewManager(cfg, body, opts...).Run(context.Background()))
}
