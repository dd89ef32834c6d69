// ============================================================================
// fedsched CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra front end for the federated-scheduling testbed
//
// Command Structure:
//   fedsched                          # Root command
//   ├── partition <taskset.rtpt>      # Assign cores, write taskset.rtps
//   │   ├── --cores                   # Override the system core count
//   │   ├── --priority                # Priority written on every partition line
//   │   └── --yaml                    # Print the partitioned task set as YAML
//   ├── launch <schedule> [cluster]   # Run schedule.rtps, reap every task
//   ├── status <schedule>             # Replay the launch journal
//   │   ├── --all                     # Every launch, not just the last one
//   │   └── --yaml                    # YAML instead of text
//   ├── --config, -c                  # Config file (default: configs/default.yaml)
//   └── --log-level                   # debug, info, warn, error
//
// Configuration Management:
//   YAML file with schedule, barrier, partition, journal, metrics and log
//   sections. A missing default file means built-in defaults.
//
// Exit Codes (launch):
//   0 success, 1 file open, 2 file parse, 3 unschedulable, 4 fork/exec,
//   5 barrier init, 6 argument error
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sonndinh/gedf-vs-fed/internal/journal"
	"github.com/sonndinh/gedf-vs-fed/internal/launcher"
	"github.com/sonndinh/gedf-vs-fed/internal/metrics"
	"github.com/sonndinh/gedf-vs-fed/internal/partition"
	"github.com/sonndinh/gedf-vs-fed/internal/schedule"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var log = slog.Default()

var (
	configFile string
	logLevel   string
)

// BuildCLI creates the fedsched root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fedsched",
		Short: "fedsched: federated scheduling testbed for parallel real-time tasks",
		Long: `fedsched partitions parallel real-time task sets onto dedicated cores and
runs them as one SCHED_FIFO process per task:
- federated core assignment with a utilization-floor heuristic
- simultaneous release through a cross-process barrier
- per-job response times and deadline misses per task`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("log-level") {
				if err := ConfigureLogging(logLevel); err != nil {
					return usageError(err)
				}
			}
			return nil
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", DefaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(buildPartitionCommand())
	rootCmd.AddCommand(buildLaunchCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// ExitCode maps a command error onto the process exit status. Launch and
// usage errors keep their launcher code; anything else is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var le *launcher.Error
	if errors.As(err, &le) {
		return int(le.Code)
	}
	return 1
}

// usageError marks bad flags, arguments and configuration with
// ExitArgument so scripts can tell them from launch failures.
func usageError(err error) error {
	return &launcher.Error{Code: launcher.ExitArgument, Err: err}
}

// argRange accepts between lo and hi positional arguments.
func argRange(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < lo || len(args) > hi {
			return usageError(fmt.Errorf("usage: %s", cmd.UseLine()))
		}
		return nil
	}
}

func commandConfig(cmd *cobra.Command) (*Config, error) {
	cfg, err := resolveConfig(configFile, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, usageError(err)
	}
	if !cmd.Flags().Changed("log-level") {
		if err := ConfigureLogging(cfg.Log.Level); err != nil {
			return nil, usageError(err)
		}
	}
	return cfg, nil
}

// ============================================================================
// partition
// ============================================================================

func buildPartitionCommand() *cobra.Command {
	var cores, priority int
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "partition <taskset.rtpt>",
		Short: "Assign dedicated cores to every task and write the schedule",
		Long: `Read a pre-partition task set, compute each task's federated core
requirement ceil((C-L)/(D-L)), assign contiguous core ranges and write the
schedule file next to it with the .rtps extension.`,
		Args: argRange(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cores") {
				cfg.Partition.Cores = cores
			}
			if cmd.Flags().Changed("priority") {
				cfg.Partition.Priority = priority
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPartition(cmd.OutOrStdout(), cfg, args[0], asYAML)
		},
	}

	cmd.Flags().IntVar(&cores, "cores", 0, "system core count (0 = the file's core range)")
	cmd.Flags().IntVar(&priority, "priority", 97, "SCHED_FIFO priority written for every task")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the partitioned task set as YAML")

	return cmd
}

func runPartition(out io.Writer, cfg *Config, path string, asYAML bool) error {
	f, err := schedule.ReadTaskSetFile(path)
	if err != nil {
		return err
	}
	ts := f.TaskSet

	cores := cfg.Partition.Cores
	if cores == 0 {
		cores = ts.SystemCores()
	}
	if host, err := cpu.Counts(true); err == nil && cores > host {
		log.Warn("task set uses more cores than this host has", "cores", cores, "host", host)
	}

	err = partition.Partition(ts, cores)
	switch {
	case err == nil:
	case errors.Is(err, partition.ErrInsufficientCores), errors.Is(err, partition.ErrTooManyTasks),
		errors.Is(err, partition.ErrSpanExceedsDeadline):
		log.Warn("task set not schedulable", "taskset", path, "reason", err)
	default:
		return err
	}
	if ts.UnplacedCores > 0 {
		log.Warn("spare cores left unassigned", "unplaced", ts.UnplacedCores)
	}

	schedPath := schedule.SchedulePath(path)
	if err := f.WriteScheduleFile(schedPath, cfg.Partition.Priority); err != nil {
		return err
	}
	log.Info("schedule written", "path", schedPath, "status", ts.Status.String(), "cores", cores)

	if cfg.Metrics.Enabled {
		c := metrics.NewCollector(prometheus.Labels{"taskset": filepath.Base(strings.TrimSuffix(path, schedule.TaskSetExt))})
		c.RecordPartition(int(ts.Status), ts.TotalRequiredCores, ts.TotalMinCores, cores)
		promPath := strings.TrimSuffix(schedPath, schedule.ScheduleExt) + "_partition.prom"
		if err := c.WriteTextfile(promPath); err != nil {
			log.Warn("could not write metrics", "path", promPath, "error", err)
		}
	}

	if asYAML {
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(ts)
	}

	fmt.Fprintf(out, "Status: %s (required %d of %d cores)\n", ts.Status, ts.TotalRequiredCores, cores)
	for _, t := range ts.Tasks {
		if !t.Assigned() {
			fmt.Fprintf(out, "  task %d: unassigned (required %d)\n", t.ID, t.RequiredCores)
			continue
		}
		fmt.Fprintf(out, "  task %d: cores %d-%d (required %d)\n", t.ID, t.FirstCore, t.LastCore, t.RequiredCores)
	}
	return nil
}

// ============================================================================
// launch
// ============================================================================

func buildLaunchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch <schedule> [cluster]",
		Short: "Launch every task of a schedule and wait for them",
		Long: `Run <schedule>.rtps: create the release barrier, start one task process
per record with its result file in <schedule>_output/task<t>.txt, and reap
them all. The optional cluster id keeps simultaneous launches on separate
barriers.

Exit codes: 0 success, 1 file open error, 2 file parse error,
3 unschedulable, 4 fork/exec error, 5 barrier initialization error,
6 argument error.`,
		Args: argRange(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return err
			}

			cluster := ""
			if len(args) == 2 {
				cluster = args[1]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runLaunch(ctx, cmd.OutOrStdout(), cfg, args[0], cluster)
		},
	}
	return cmd
}

func runLaunch(ctx context.Context, out io.Writer, cfg *Config, base, cluster string) error {
	l := launcher.New(cfg.LauncherConfig(), launcher.WithStdout(out))
	log.Info("launching schedule", "schedule", base, "cluster", cluster, "launch", l.LaunchID())

	_, err := l.Run(ctx, base, cluster)
	return err
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	var all, asYAML bool

	cmd := &cobra.Command{
		Use:   "status <schedule>",
		Short: "Show the recorded status of a schedule's launches",
		Long:  "Replay <schedule>_output/launch.journal and report how each task process ended",
		Args:  argRange(1, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return err
			}
			return showStatus(cmd.OutOrStdout(), cfg, args[0], all, asYAML)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "show every launch in the journal")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the report as YAML")

	return cmd
}

// launchReport is the YAML shape of one launch.
type launchReport struct {
	ID       string        `yaml:"id"`
	Schedule string        `yaml:"schedule"`
	Barrier  string        `yaml:"barrier,omitempty"`
	State    string        `yaml:"state"`
	ExitCode int           `yaml:"exit_code,omitempty"`
	Started  string        `yaml:"started,omitempty"`
	Finished string        `yaml:"finished,omitempty"`
	Children []childReport `yaml:"children"`
}

type childReport struct {
	Ordinal int    `yaml:"ordinal"`
	PID     int    `yaml:"pid"`
	Program string `yaml:"program,omitempty"`
	State   string `yaml:"state"`
	Code    int    `yaml:"code"`
}

func showStatus(out io.Writer, cfg *Config, base string, all, asYAML bool) error {
	path := filepath.Join(launcher.OutputDir(base, cfg.Schedule.OutputSuffix), journal.FileName)

	events, err := journal.ReadAll(path)
	if err != nil {
		var corrupt *journal.CorruptionError
		if !errors.As(err, &corrupt) {
			return fmt.Errorf("failed to read launch journal: %w", err)
		}
		log.Warn("launch journal has a torn tail", "path", path, "error", err)
	}

	launches := journal.Summarize(events)
	if len(launches) == 0 {
		return fmt.Errorf("no launches recorded in %s", path)
	}
	if !all {
		launches = launches[len(launches)-1:]
	}

	reports := make([]launchReport, 0, len(launches))
	for _, l := range launches {
		reports = append(reports, newLaunchReport(l))
	}

	if asYAML {
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(reports)
	}

	for _, r := range reports {
		fmt.Fprintf(out, "Launch %s (%s)\n", r.ID, r.State)
		fmt.Fprintf(out, "  ├─ Schedule: %s\n", r.Schedule)
		fmt.Fprintf(out, "  ├─ Barrier:  %s\n", r.Barrier)
		if r.Started != "" {
			fmt.Fprintf(out, "  ├─ Started:  %s\n", r.Started)
		}
		if r.Finished != "" {
			fmt.Fprintf(out, "  ├─ Finished: %s\n", r.Finished)
		}
		fmt.Fprintf(out, "  └─ Tasks:    %d\n", len(r.Children))
		for i, c := range r.Children {
			branch := "├─"
			if i == len(r.Children)-1 {
				branch = "└─"
			}
			fmt.Fprintf(out, "     %s task %d pid %d: %s %d\n", branch, c.Ordinal, c.PID, c.State, c.Code)
		}
	}
	return nil
}

func newLaunchReport(l *journal.Launch) launchReport {
	r := launchReport{
		ID:       l.ID,
		Schedule: l.Schedule,
		Barrier:  l.Barrier,
		State:    "running",
	}
	switch {
	case l.Aborted:
		r.State = "aborted"
		r.ExitCode = l.ExitCode
	case l.Done:
		r.State = "done"
	}
	if !l.Started.IsZero() {
		r.Started = l.Started.Format("2006-01-02 15:04:05.000")
	}
	if !l.Finished.IsZero() {
		r.Finished = l.Finished.Format("2006-01-02 15:04:05.000")
	}

	for _, c := range l.Children {
		cr := childReport{Ordinal: c.Ordinal, PID: c.PID, Program: c.Program, Code: c.Code}
		switch {
		case c.Signaled:
			cr.State = "signaled"
		case c.Exited:
			cr.State = "exited"
		default:
			cr.State = "running"
		}
		r.Children = append(r.Children, cr)
	}
	return r
}
