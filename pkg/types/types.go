// Package types defines the core domain model shared by the partitioner,
// the launcher and the per-task runtime.
package types

import (
	"time"
)

// PartitionStatus is the feasibility verdict of a partitioning pass.
// Its numeric value is the first line of a schedule (.rtps) file.
type PartitionStatus int

const (
	StatusFound         PartitionStatus = 0 // enough cores for every task's federated requirement
	StatusHeuristicUsed PartitionStatus = 1 // fell back to the minimum-cores heuristic
	StatusInvalid       PartitionStatus = 2 // utilization exceeds the system, do not run
)

// String returns the human-readable form of the status.
func (s PartitionStatus) String() string {
	switch s {
	case StatusFound:
		return "FOUND"
	case StatusHeuristicUsed:
		return "HEURISTIC_USED"
	case StatusInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Task is one periodic parallel task of a task set.
// Core fields are negative until the partitioner assigns a range.
type Task struct {
	// Identity and timing
	ID         int           `json:"id" yaml:"id"` // dense 1..N, declaration order
	Work       time.Duration `json:"work" yaml:"work"`
	Span       time.Duration `json:"span" yaml:"span"`
	Period     time.Duration `json:"period" yaml:"period"`
	Deadline   time.Duration `json:"deadline" yaml:"deadline"`
	Release    time.Duration `json:"release" yaml:"release"`
	Iterations int           `json:"iterations" yaml:"iterations"`

	// Derived by the partitioner
	RequiredCores int `json:"required_cores" yaml:"required_cores"`
	MinCores      int `json:"min_cores" yaml:"min_cores"`
	FirstCore     int `json:"first_core" yaml:"first_core"`
	LastCore      int `json:"last_core" yaml:"last_core"`
}

// NewTask returns a task with an unassigned core range.
func NewTask(id int) *Task {
	return &Task{ID: id, FirstCore: -1, LastCore: -1}
}

// Assigned reports whether the task has a valid core range.
func (t *Task) Assigned() bool {
	return t.FirstCore >= 0 && t.LastCore >= t.FirstCore
}

// Cores returns the width of the assigned core range, 0 when unassigned.
func (t *Task) Cores() int {
	if !t.Assigned() {
		return 0
	}
	return t.LastCore - t.FirstCore + 1
}

// TaskSet is an ordered collection of tasks plus the partitioning verdict.
// It is built once from parsed input, mutated by the partitioner and then
// treated as read-only.
type TaskSet struct {
	Tasks []*Task `json:"tasks" yaml:"tasks"` // index i holds task id i+1

	Status             PartitionStatus `json:"status" yaml:"status"`
	TotalRequiredCores int             `json:"total_required_cores" yaml:"total_required_cores"`
	TotalMinCores      int             `json:"total_min_cores" yaml:"total_min_cores"`
	UnplacedCores      int             `json:"unplaced_cores" yaml:"unplaced_cores"` // heuristic spares no task could absorb

	SystemFirstCore int `json:"system_first_core" yaml:"system_first_core"`
	SystemLastCore  int `json:"system_last_core" yaml:"system_last_core"`
}

// SystemCores returns the number of cores in the system range.
func (ts *TaskSet) SystemCores() int {
	return ts.SystemLastCore - ts.SystemFirstCore + 1
}

// Get looks a task up by id. It returns nil for unknown ids.
func (ts *TaskSet) Get(id int) *Task {
	if id < 1 || id > len(ts.Tasks) {
		return nil
	}
	return ts.Tasks[id-1]
}

// Add appends a task with the next dense id and returns it.
func (ts *TaskSet) Add() *Task {
	t := NewTask(len(ts.Tasks) + 1)
	ts.Tasks = append(ts.Tasks, t)
	return t
}
