package schedule

// ============================================================================
// Schedule (.rtps) file handling for the launcher
//
// Layout:
//   <feasibility: 0|1|2>
//   <system_first_core> <system_last_core>
//   <program_path> <task_args...>                      \
//   <11 timing fields, first 4 only for partitioning>   } per task
//   <first_core> <last_core> <priority>                /
//
// The header is parsed eagerly; task records are parsed one at a time so the
// launcher can fork each task right after its record validates.
// ============================================================================

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sonndinh/gedf-vs-fed/pkg/types"
)

// Layout fixes how many fields the launcher expects on each task line.
type Layout struct {
	TimingParams        int `yaml:"timing_params"`
	SkippedTimingParams int `yaml:"skipped_timing_params"`
	PartitionParams     int `yaml:"partition_params"`
}

// DefaultLayout is 11 timing fields (4 skipped) and 3 partition fields.
func DefaultLayout() Layout {
	return Layout{
		TimingParams:        timingFields,
		SkippedTimingParams: 4,
		PartitionParams:     3,
	}
}

// Schedule is a schedule file whose header has been validated.
type Schedule struct {
	Feasibility types.PartitionStatus
	CoreLine    string // not interpreted by the launcher

	lines []string
}

// Record is one task's three lines, split into fields.
type Record struct {
	Ordinal   int      // 1-based task position in the file
	Program   string   // first token of the command line
	Args      []string // remaining tokens of the command line
	Timing    []string // timing fields kept for the task (skipped ones removed)
	Partition []string // first core, last core, priority
}

// ReadSchedule reads a schedule and validates the line count and the
// feasibility flag. Records are parsed later through Record.
func ReadSchedule(r io.Reader) (*Schedule, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	if len(lines) <= 2 || (len(lines)-2)%3 != 0 {
		return nil, parseErr(len(lines), "schedule", fmt.Errorf("%w: got %d, want 2+3N", ErrLineCount, len(lines)))
	}

	flag, err := strconv.ParseUint(firstField(lines[0]), 10, 32)
	if err != nil {
		return nil, parseErr(1, "feasibility", fmt.Errorf("%w: %q", ErrBadNumber, lines[0]))
	}

	feasibility := types.PartitionStatus(flag)
	if feasibility > types.StatusInvalid {
		feasibility = types.StatusInvalid
	}

	return &Schedule{
		Feasibility: feasibility,
		CoreLine:    lines[1],
		lines:       lines,
	}, nil
}

// OpenSchedule opens base+".rtps" and reads its header.
func OpenSchedule(base string) (*Schedule, error) {
	file, err := os.Open(base + ScheduleExt)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadSchedule(file)
}

// NumTasks returns the number of task records.
func (s *Schedule) NumTasks() int {
	return (len(s.lines) - 2) / 3
}

// Record parses the t-th task record (1-based) against the layout.
func (s *Schedule) Record(t int, layout Layout) (*Record, error) {
	if t < 1 || t > s.NumTasks() {
		return nil, fmt.Errorf("schedule: task %d out of range 1..%d", t, s.NumTasks())
	}

	base := 2 + 3*(t-1)
	cmdLine, timingLine, partitionLine := s.lines[base], s.lines[base+1], s.lines[base+2]

	command := strings.Fields(cmdLine)
	if len(command) == 0 {
		return nil, parseErr(base+1, fmt.Sprintf("command of task %d", t), ErrNoProgram)
	}
	rec := &Record{
		Ordinal: t,
		Program: command[0],
		Args:    append([]string(nil), command[1:]...),
	}

	partition := strings.Fields(partitionLine)
	if err := exactly(len(partition), layout.PartitionParams); err != nil {
		return nil, parseErr(base+3, "partition parameters of task "+rec.Program, err)
	}
	rec.Partition = partition

	timing := strings.Fields(timingLine)
	if err := exactly(len(timing), layout.TimingParams); err != nil {
		return nil, parseErr(base+2, "timing parameters of task "+rec.Program, err)
	}
	rec.Timing = append([]string(nil), timing[layout.SkippedTimingParams:]...)

	return rec, nil
}

// CoreRange returns the parsed first and last core of the record.
func (r *Record) CoreRange() (int, int, error) {
	if len(r.Partition) < 2 {
		return 0, 0, ErrTooFewFields
	}
	first, err := strconv.Atoi(r.Partition[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: first core %q", ErrBadNumber, r.Partition[0])
	}
	last, err := strconv.Atoi(r.Partition[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: last core %q", ErrBadNumber, r.Partition[1])
	}
	return first, last, nil
}

func exactly(got, want int) error {
	switch {
	case got < want:
		return fmt.Errorf("%w: got %d, want %d", ErrTooFewFields, got, want)
	case got > want:
		return fmt.Errorf("%w: got %d, want %d", ErrTooManyFields, got, want)
	}
	return nil
}

func firstField(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
