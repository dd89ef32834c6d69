package schedule

// ============================================================================
// Pre-partition (.rtpt) file handling
// Responsibility:
// 1. Parse the system core range and per-task command/timing lines
// 2. Write the partitioned schedule (.rtps) with the feasibility flag and
//    one partition line per task
// 3. Write atomically (temp file + rename) so a launcher never reads a
//    half-written schedule
// ============================================================================

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sonndinh/gedf-vs-fed/pkg/types"
)

const (
	// TaskSetExt is the extension of pre-partition files.
	TaskSetExt = ".rtpt"
	// ScheduleExt is the extension of partitioned schedule files.
	ScheduleExt = ".rtps"

	// timingFields is the number of fields on a task timing line.
	timingFields = 11
)

// TaskSetFile is a parsed .rtpt file. The raw command and timing lines are
// kept verbatim so the schedule can repeat them unchanged.
type TaskSetFile struct {
	CoreLine string
	Commands []string
	Timings  []string
	TaskSet  *types.TaskSet
}

// ReadTaskSet parses a pre-partition file: one core-range line followed by
// two lines per task.
func ReadTaskSet(r io.Reader) (*TaskSetFile, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	if len(lines) <= 1 || (len(lines)-1)%2 != 0 {
		return nil, parseErr(len(lines), "task set", fmt.Errorf("%w: got %d, want 1+2N", ErrLineCount, len(lines)))
	}

	first, last, err := parseCoreLine(lines[0])
	if err != nil {
		return nil, parseErr(1, "system core range", err)
	}

	f := &TaskSetFile{
		CoreLine: lines[0],
		TaskSet:  &types.TaskSet{SystemFirstCore: first, SystemLastCore: last},
	}

	numTasks := (len(lines) - 1) / 2
	for i := 0; i < numTasks; i++ {
		cmdLine, timingLine := lines[1+2*i], lines[2+2*i]

		task := f.TaskSet.Add()
		if err := parseTiming(task, timingLine); err != nil {
			return nil, parseErr(3+2*i, fmt.Sprintf("timing parameters of task %d", task.ID), err)
		}

		f.Commands = append(f.Commands, cmdLine)
		f.Timings = append(f.Timings, timingLine)
	}

	return f, nil
}

// ReadTaskSetFile opens and parses a .rtpt file.
func ReadTaskSetFile(path string) (*TaskSetFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task set file: %w", err)
	}
	defer file.Close()
	return ReadTaskSet(file)
}

// WriteSchedule writes the partitioned schedule. Unassigned tasks keep
// "-1 -1" so the file keeps its 2+3N shape.
func (f *TaskSetFile) WriteSchedule(w io.Writer, priority int) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d\n", int(f.TaskSet.Status))
	fmt.Fprintf(bw, "%s\n", f.CoreLine)
	for i, task := range f.TaskSet.Tasks {
		fmt.Fprintf(bw, "%s\n", f.Commands[i])
		fmt.Fprintf(bw, "%s\n", f.Timings[i])
		fmt.Fprintf(bw, "%d %d %d\n", task.FirstCore, task.LastCore, priority)
	}

	return bw.Flush()
}

// WriteScheduleFile atomically writes the schedule to path.
//
// 1. write to a temporary file (.tmp)
// 2. os.Rename over the destination
func (f *TaskSetFile) WriteScheduleFile(path string, priority int) error {
	var buf bytes.Buffer
	if err := f.WriteSchedule(&buf, priority); err != nil {
		return fmt.Errorf("failed to render schedule: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp schedule: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename schedule: %w", err)
	}

	return nil
}

// SchedulePath maps a .rtpt path to its .rtps counterpart.
func SchedulePath(taskSetPath string) string {
	return strings.TrimSuffix(taskSetPath, TaskSetExt) + ScheduleExt
}

// parseTiming fills the timing fields of a task from
// work_sec work_ns span_sec span_ns period_sec period_ns
// deadline_sec deadline_ns release_sec release_ns num_iters.
func parseTiming(task *types.Task, line string) error {
	fields := strings.Fields(line)
	if len(fields) < timingFields {
		return fmt.Errorf("%w: got %d, want %d", ErrTooFewFields, len(fields), timingFields)
	}

	durations := make([]time.Duration, 5)
	for i := range durations {
		d, err := ParseDuration(fields[2*i], fields[2*i+1])
		if err != nil {
			return err
		}
		durations[i] = d
	}

	iters, err := strconv.Atoi(fields[10])
	if err != nil || iters < 0 {
		return fmt.Errorf("%w: iterations %q", ErrBadNumber, fields[10])
	}

	task.Work = durations[0]
	task.Span = durations[1]
	task.Period = durations[2]
	task.Deadline = durations[3]
	task.Release = durations[4]
	task.Iterations = iters
	return nil
}

// ParseDuration converts a <seconds, nanoseconds> pair to a duration.
func ParseDuration(sec, nsec string) (time.Duration, error) {
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || s < 0 {
		return 0, fmt.Errorf("%w: seconds %q", ErrBadNumber, sec)
	}
	ns, err := strconv.ParseInt(nsec, 10, 64)
	if err != nil || ns < 0 {
		return 0, fmt.Errorf("%w: nanoseconds %q", ErrBadNumber, nsec)
	}
	return time.Duration(s)*time.Second + time.Duration(ns), nil
}

// FormatDuration splits a duration into the <seconds> <nanoseconds> pair
// used on timing lines.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%d %d", int64(d/time.Second), int64(d%time.Second))
}

func parseCoreLine(line string) (int, int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("%w: got %d, want 2", ErrTooFewFields, len(fields))
	}
	first, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: first core %q", ErrBadNumber, fields[0])
	}
	last, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: last core %q", ErrBadNumber, fields[1])
	}
	if first < 0 || last < first {
		return 0, 0, fmt.Errorf("%w: core range %d-%d", ErrBadNumber, first, last)
	}
	return first, last, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lines: %w", err)
	}
	return lines, nil
}
