package launcher

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sonndinh/gedf-vs-fed/internal/schedule"
	"github.com/stretchr/testify/assert"
)

func TestBuildArgv(t *testing.T) {
	rec := &schedule.Record{
		Ordinal:   1,
		Program:   "/opt/rt/synthetic_task",
		Args:      []string{"1", "2", "0", "1000"},
		Timing:    []string{"0", "100000000", "0", "90000000", "0", "0", "5"},
		Partition: []string{"0", "1", "97"},
	}

	argv := BuildArgv(rec, "/RT_GOMP_CLUSTERING_BARRIER2")
	assert.Equal(t, []string{
		"/opt/rt/synthetic_task",
		"0", "1", "97",
		"0", "100000000", "0", "90000000", "0", "0", "5",
		"/RT_GOMP_CLUSTERING_BARRIER2",
		"/opt/rt/synthetic_task",
		"1", "2", "0", "1000",
	}, argv)

	rec.Args[0] = "changed"
	rec.Partition[0] = "changed"
	assert.Equal(t, "0", argv[1])
	assert.Equal(t, "1", argv[13])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ExitSuccess, CodeOf(nil))
	assert.Equal(t, ExitFileParse, CodeOf(errors.New("plain")))

	err := fmt.Errorf("wrapped: %w", fail(ExitBarrierInit, errors.New("shm")))
	assert.Equal(t, ExitBarrierInit, CodeOf(err))
	assert.Contains(t, err.Error(), "barrier initialization error")
}

func TestExitCodesAreStable(t *testing.T) {
	codes := map[ExitCode]int{
		ExitSuccess:       0,
		ExitFileOpen:      1,
		ExitFileParse:     2,
		ExitUnschedulable: 3,
		ExitForkExec:      4,
		ExitBarrierInit:   5,
		ExitArgument:      6,
	}
	for code, want := range codes {
		assert.Equal(t, want, int(code), code.String())
	}
}
