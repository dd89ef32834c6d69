package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, launchID string) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	j, err := Open(path, launchID, true)
	require.NoError(t, err)
	return j, path
}

func TestAppendAndReplay(t *testing.T) {
	j, path := openTemp(t, "launch-1")

	require.NoError(t, j.Append(EventLaunchStart, 0, 0, 0, "taskset1"))
	require.NoError(t, j.Append(EventChildForked, 1, 4242, 0, "/opt/rt/synthetic_task"))
	require.NoError(t, j.Append(EventChildExited, 1, 4242, 0, ""))
	require.NoError(t, j.Close())

	events, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, "launch-1", e.LaunchID)
		assert.True(t, VerifyChecksum(e))
	}
	assert.Equal(t, EventChildForked, events[1].Type)
	assert.Equal(t, 4242, events[1].PID)
	assert.Equal(t, 1, events[1].Ordinal)
}

func TestSeqContinuesAcrossOpens(t *testing.T) {
	j, path := openTemp(t, "first")
	require.NoError(t, j.Append(EventLaunchStart, 0, 0, 0, ""))
	require.NoError(t, j.Append(EventLaunchDone, 0, 0, 0, ""))
	require.NoError(t, j.Close())

	j2, err := Open(path, "second", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), j2.LastSeq())
	require.NoError(t, j2.Append(EventLaunchStart, 0, 0, 0, ""))
	require.NoError(t, j2.Close())

	last, err := LastEvent(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last.Seq)
	assert.Equal(t, "second", last.LaunchID)
}

func TestAppendAfterClose(t *testing.T) {
	j, _ := openTemp(t, "x")
	require.NoError(t, j.Close())
	assert.ErrorIs(t, j.Append(EventLaunchStart, 0, 0, 0, ""), ErrJournalClosed)
	assert.NoError(t, j.Close())
}

func TestReplayDetectsChecksumMismatch(t *testing.T) {
	j, path := openTemp(t, "launch")
	require.NoError(t, j.Append(EventChildExited, 1, 10, 0, ""))
	require.NoError(t, j.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(content), `"pid":10`, `"pid":11`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, err = ReadAll(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	var cerr *ChecksumError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, uint64(1), cerr.Seq)
}

func TestReplayTornTail(t *testing.T) {
	j, path := openTemp(t, "launch")
	require.NoError(t, j.Append(EventLaunchStart, 0, 0, 0, ""))
	require.NoError(t, j.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":2,"type":"CHILD_FO`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := ReadAll(path)
	assert.ErrorIs(t, err, ErrCorruptedJournal)
	assert.Len(t, events, 1)

	last, err := LastEvent(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last.Seq)
}

func TestLastEventEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, nil, 0644))

	last, err := LastEvent(path)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestSummarize(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	events := []Event{
		{Seq: 1, Type: EventLaunchStart, LaunchID: "a", Detail: "taskset1", Timestamp: ts},
		{Seq: 2, Type: EventBarrierCreated, LaunchID: "a", Detail: "/RT_GOMP_CLUSTERING_BARRIER"},
		{Seq: 3, Type: EventChildForked, LaunchID: "a", Ordinal: 1, PID: 100, Detail: "/bin/t1"},
		{Seq: 4, Type: EventChildForked, LaunchID: "a", Ordinal: 2, PID: 101, Detail: "/bin/t2"},
		{Seq: 5, Type: EventChildExited, LaunchID: "a", PID: 100, Code: 0},
		{Seq: 6, Type: EventChildSignaled, LaunchID: "a", PID: 101, Code: 15},
		{Seq: 7, Type: EventLaunchDone, LaunchID: "a", Timestamp: ts + 5000},
		{Seq: 8, Type: EventLaunchStart, LaunchID: "b", Detail: "taskset2"},
		{Seq: 9, Type: EventChildForked, LaunchID: "b", Ordinal: 1, PID: 200},
		{Seq: 10, Type: EventLaunchAborted, LaunchID: "b", Code: 4},
	}

	launches := Summarize(events)
	require.Len(t, launches, 2)

	a := launches[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "taskset1", a.Schedule)
	assert.Equal(t, "/RT_GOMP_CLUSTERING_BARRIER", a.Barrier)
	assert.True(t, a.Done)
	assert.False(t, a.Aborted)
	assert.Equal(t, 5*time.Second, a.Finished.Sub(a.Started))
	require.Len(t, a.Children, 2)
	assert.True(t, a.Children[0].Normal())
	assert.True(t, a.Children[1].Signaled)
	assert.Equal(t, 15, a.Children[1].Code)
	assert.Empty(t, a.Running())

	b := launches[1]
	assert.True(t, b.Aborted)
	assert.False(t, b.Done)
	assert.Equal(t, 4, b.ExitCode)
	require.Len(t, b.Running(), 1)
	assert.Equal(t, 200, b.Running()[0].PID)
}
