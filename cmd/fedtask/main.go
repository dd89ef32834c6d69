package main

// ============================================================================
// fedtask: the synthetic periodic task program
//
// Exec'd by the launcher with the positional contract
//   fedtask first last priority period_s period_ns deadline_s deadline_ns
//           release_s release_ns iterations barrier program args...
// where args are: num_segments {num_strands len_s len_ns}...
//
// Environment:
//   FEDTASK_VARIANT      pinned (default) or global
//   FEDTASK_RUN_FAILURE  group (default) or task
//   FEDTASK_LOG_LEVEL    debug, info (default), warn, error
// ============================================================================

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sonndinh/gedf-vs-fed/internal/taskmanager"
	"github.com/sonndinh/gedf-vs-fed/internal/workload/synthetic"
)

func main() {
	if level := os.Getenv("FEDTASK_LOG_LEVEL"); level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			slog.SetLogLoggerLevel(lvl)
		}
	}

	var opts []taskmanager.Option
	if strings.EqualFold(os.Getenv("FEDTASK_VARIANT"), "global") {
		opts = append(opts, taskmanager.WithVariant(taskmanager.VariantGlobal))
	}
	if strings.EqualFold(os.Getenv("FEDTASK_RUN_FAILURE"), "task") {
		opts = append(opts, taskmanager.WithRunFailurePolicy(taskmanager.TaskOnly))
	}

	os.Exit(taskmanager.Main(os.Args, synthetic.New(), opts...))
}
