package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nil)

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.Registry(), "registry should be initialized")
	assert.NotNil(t, collector.tasksLaunched, "tasksLaunched counter should be initialized")
	assert.NotNil(t, collector.childrenExited, "childrenExited counter should be initialized")
	assert.NotNil(t, collector.jobs, "jobs counter should be initialized")
	assert.NotNil(t, collector.responseTime, "responseTime histogram should be initialized")
}

func TestCollectorIsolation(t *testing.T) {
	// every collector owns its registry, so two of them never collide
	assert.NotPanics(t, func() {
		NewCollector(nil)
		NewCollector(nil)
	})
}

func TestRecordPartition(t *testing.T) {
	collector := NewCollector(nil)
	collector.RecordPartition(1, 20, 10, 16)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.partitionStatus))
	assert.Equal(t, 20.0, testutil.ToFloat64(collector.partitionRequired))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.partitionMin))
	assert.Equal(t, 16.0, testutil.ToFloat64(collector.partitionSystemCores))
}

func TestLauncherCounters(t *testing.T) {
	collector := NewCollector(nil)

	for i := 0; i < 3; i++ {
		collector.RecordLaunch()
	}
	collector.RecordChildExit(OutcomeNormal)
	collector.RecordChildExit(OutcomeNormal)
	collector.RecordChildExit(OutcomeSignaled)
	collector.RecordAbort()

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.tasksLaunched))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.childrenExited.WithLabelValues(OutcomeNormal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.childrenExited.WithLabelValues(OutcomeSignaled)))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.childrenExited.WithLabelValues(OutcomeAbnormal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.launchAborts))
}

func TestRecordJob(t *testing.T) {
	collector := NewCollector(prometheus.Labels{"task": "synthetic"})

	collector.RecordJob(2*time.Millisecond, false)
	collector.RecordJob(15*time.Millisecond, true)
	collector.SetMaxResponse(15 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.jobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.deadlineMisses))
	assert.InDelta(t, 0.015, testutil.ToFloat64(collector.maxResponse), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(collector.responseTime))
}

func TestConcurrentMetricUpdates(t *testing.T) {
	collector := NewCollector(nil)

	var wg sync.WaitGroup
	goroutines := 10
	iterations := 100

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				collector.RecordJob(time.Millisecond, j%10 == 0)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(goroutines*iterations), testutil.ToFloat64(collector.jobs))
	assert.Equal(t, float64(goroutines*iterations/10), testutil.ToFloat64(collector.deadlineMisses))
}

func TestWriteTextfile(t *testing.T) {
	collector := NewCollector(prometheus.Labels{"task": "task1"})
	collector.RecordLaunch()
	collector.RecordJob(time.Millisecond, true)

	path := filepath.Join(t.TempDir(), "task1.prom")
	require.NoError(t, collector.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)

	assert.True(t, strings.Contains(text, `fedsched_tasks_launched_total{task="task1"} 1`))
	assert.True(t, strings.Contains(text, `fedtask_deadline_misses_total{task="task1"} 1`))
}

func TestWithProcessMetrics(t *testing.T) {
	collector := NewCollector(nil).WithProcessMetrics()

	families, err := collector.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
}
