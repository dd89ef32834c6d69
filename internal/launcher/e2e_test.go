//go:build linux

package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sonndinh/gedf-vs-fed/internal/partition"
	"github.com/sonndinh/gedf-vs-fed/internal/procgroup"
	"github.com/sonndinh/gedf-vs-fed/internal/schedule"
	"github.com/sonndinh/gedf-vs-fed/internal/taskmanager"
	"github.com/sonndinh/gedf-vs-fed/internal/workload/synthetic"
	"github.com/sonndinh/gedf-vs-fed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helperEnv turns the test binary into a task program.
const helperEnv = "FEDSCHED_HELPER_TASK"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(taskmanager.Main(os.Args, synthetic.New(),
			taskmanager.WithPlatform(helperPlatform{}),
			taskmanager.WithKiller(&procgroup.Recorder{})))
	}
	os.Exit(m.Run())
}

// helperPlatform runs without privileges: no binding, no SCHED_FIFO.
type helperPlatform struct{}

func (helperPlatform) Bind(first, last int) error   { return nil }
func (helperPlatform) Elevate(priority int) error   { return nil }
func (helperPlatform) UsableCores() int             { return 2 }
func (helperPlatform) SetupThread(worker int) error { return nil }

func TestPartitionAndLaunchTwoTasks(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	taskSetPath := filepath.Join(dir, "taskset1"+schedule.TaskSetExt)
	content := fmt.Sprintf("0 3\n"+
		"%s 1 2 0 100000\n0 4000000 0 2000000 0 100000000 0 100000000 0 0 5\n"+
		"%s 1 1 0 100000\n0 2000000 0 1000000 0 100000000 0 100000000 0 0 5\n", exe, exe)
	require.NoError(t, os.WriteFile(taskSetPath, []byte(content), 0644))

	f, err := schedule.ReadTaskSetFile(taskSetPath)
	require.NoError(t, err)
	require.NoError(t, partition.Partition(f.TaskSet, f.TaskSet.SystemCores()))
	require.Equal(t, types.StatusFound, f.TaskSet.Status)
	assert.Equal(t, [2]int{0, 1}, [2]int{f.TaskSet.Tasks[0].FirstCore, f.TaskSet.Tasks[0].LastCore})
	assert.Equal(t, [2]int{2, 3}, [2]int{f.TaskSet.Tasks[1].FirstCore, f.TaskSet.Tasks[1].LastCore})
	require.NoError(t, f.WriteScheduleFile(schedule.SchedulePath(taskSetPath), 97))

	t.Setenv(helperEnv, "1")
	cfg := DefaultConfig()
	cfg.BarrierDir = t.TempDir()
	cfg.Metrics = true
	l := New(cfg, WithKiller(&procgroup.Recorder{}), WithStdout(io.Discard))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	base := strings.TrimSuffix(taskSetPath, schedule.TaskSetExt)
	children, err := l.Run(ctx, base, "e2e")
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, c := range children {
		assert.True(t, c.Normal(), "task %d ended with %+v", c.Ordinal, c.Termination)
	}

	for task := 1; task <= 2; task++ {
		result, err := os.ReadFile(filepath.Join(l.OutputDir(), fmt.Sprintf("task%d.txt", task)))
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(result)), "\n")
		require.Len(t, lines, 3+5)
		assert.Equal(t, "Deadlines missed for task "+exe+": 0/5", lines[0])
		assert.Contains(t, lines[1], " sec ")

		prom, err := os.ReadFile(filepath.Join(l.OutputDir(), fmt.Sprintf("task%d.prom", task)))
		require.NoError(t, err)
		assert.Contains(t, string(prom), fmt.Sprintf("fedtask_jobs_total{task=%q} 4", exe))
		assert.Contains(t, string(prom), "process_cpu_seconds_total")
	}

	assert.NoFileExists(t, filepath.Join(cfg.BarrierDir, "RT_GOMP_CLUSTERING_BARRIERe2e"))
}
