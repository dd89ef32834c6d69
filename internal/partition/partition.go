// ============================================================================
// Federated Scheduling Partitioner
// ============================================================================
//
// Package: internal/partition
// File: partition.go
// Purpose: Decide how many dedicated cores every task of a task set gets and
//          which contiguous core range it runs on.
//
// Algorithm:
//   1. required_i = ceil((C_i - L_i) / (D_i - L_i)), clamped to >= 1
//   2. sum(required) <= M  -> FOUND
//        spare cores go round-robin over tasks sorted by ascending gap
//        (required_i - (C_i - L_i)/(D_i - L_i)), ties by id
//   3. else min_i = floor(C_i / D_i); sum(min) <= M -> HEURISTIC_USED
//        spare cores go to tasks sorted by descending slack
//        (required_i - min_i), never above required_i
//   4. else INVALID, no ranges written
//
// Ranges are always laid out in ascending task id, starting at the system's
// first core, so the output is stable across runs.
//
// ============================================================================

package partition

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/sonndinh/gedf-vs-fed/pkg/types"
)

var log = slog.Default()

var (
	// ErrInsufficientCores means even the utilization floor does not fit.
	ErrInsufficientCores = errors.New("partition: task set utilization exceeds system cores")
	// ErrTooManyTasks means the utilization floor fits but every task needs
	// a core of its own and there are fewer cores than tasks.
	ErrTooManyTasks = errors.New("partition: more tasks than cores")
	// ErrSpanExceedsDeadline means a task's critical path is not shorter than its deadline.
	ErrSpanExceedsDeadline = errors.New("partition: span is not shorter than deadline")
	// ErrNoCores means the system core count is not positive.
	ErrNoCores = errors.New("partition: system has no cores")
	// ErrEmptyTaskSet means there is nothing to partition.
	ErrEmptyTaskSet = errors.New("partition: task set is empty")
)

// RequiredCores returns the federated core requirement of a task.
// The caller must ensure Deadline > Span.
func RequiredCores(t *types.Task) int {
	n := int(math.Ceil(ratio(t)))
	if n < 1 {
		return 1
	}
	return n
}

// MinCores returns floor(C/D), the implicit-deadline utilization floor.
func MinCores(t *types.Task) int {
	if t.Deadline <= 0 {
		return 0
	}
	return int(t.Work / t.Deadline)
}

// ratio is (C-L)/(D-L), the fractional core demand.
func ratio(t *types.Task) float64 {
	return float64(t.Work-t.Span) / float64(t.Deadline-t.Span)
}

// Partition computes the status and, unless INVALID, the core ranges of ts
// for a system of the given number of cores. It mutates ts in place.
//
// An INVALID verdict is returned together with an error wrapping
// ErrInsufficientCores, ErrTooManyTasks or ErrSpanExceedsDeadline; the task set is still
// safe to serialize.
func Partition(ts *types.TaskSet, cores int) error {
	if cores <= 0 {
		return ErrNoCores
	}
	if len(ts.Tasks) == 0 {
		return ErrEmptyTaskSet
	}

	for _, t := range ts.Tasks {
		t.FirstCore, t.LastCore = -1, -1
		if t.Deadline <= t.Span {
			ts.Status = types.StatusInvalid
			return fmt.Errorf("task %d (span=%s deadline=%s): %w", t.ID, t.Span, t.Deadline, ErrSpanExceedsDeadline)
		}
	}

	total := 0
	for _, t := range ts.Tasks {
		t.RequiredCores = RequiredCores(t)
		total += t.RequiredCores
	}
	ts.TotalRequiredCores = total
	ts.UnplacedCores = 0

	if total <= cores {
		ts.Status = types.StatusFound
		assign(ts, distributeByGap(ts, cores-total))
		return nil
	}

	return heuristic(ts, cores)
}

// distributeByGap gives spare cores one at a time in repeated passes over
// the tasks sorted by ascending gap.
func distributeByGap(ts *types.TaskSet, spare int) map[int]int {
	type gap struct {
		id  int
		gap float64
	}

	gaps := make([]gap, 0, len(ts.Tasks))
	allocated := make(map[int]int, len(ts.Tasks))
	for _, t := range ts.Tasks {
		gaps = append(gaps, gap{id: t.ID, gap: float64(t.RequiredCores) - ratio(t)})
		allocated[t.ID] = t.RequiredCores
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].gap < gaps[j].gap
	})

	for idx := 0; spare > 0; idx++ {
		allocated[gaps[idx%len(gaps)].id]++
		spare--
	}
	return allocated
}

// heuristic handles the case where federated requirements do not fit.
func heuristic(ts *types.TaskSet, cores int) error {
	totalMin, utilization := 0, 0
	for _, t := range ts.Tasks {
		t.MinCores = MinCores(t)
		totalMin += floor(t)
		utilization += t.MinCores
	}
	ts.TotalMinCores = totalMin

	if utilization <= cores && len(ts.Tasks) > cores {
		ts.Status = types.StatusInvalid
		log.Warn("Task set has more tasks than the system has cores",
			"tasks", len(ts.Tasks), "cores", cores)
		return fmt.Errorf("%w: %d tasks on %d cores", ErrTooManyTasks, len(ts.Tasks), cores)
	}

	if totalMin > cores {
		ts.Status = types.StatusInvalid
		log.Warn("Task set is too big to run on the system",
			"min_cores", totalMin, "cores", cores)
		return fmt.Errorf("%w: need at least %d cores, have %d", ErrInsufficientCores, totalMin, cores)
	}

	ts.Status = types.StatusHeuristicUsed

	type slack struct {
		id     int
		needed int
	}

	allocated := make(map[int]int, len(ts.Tasks))
	slacks := make([]slack, 0, len(ts.Tasks))
	for _, t := range ts.Tasks {
		allocated[t.ID] = floor(t)
		slacks = append(slacks, slack{id: t.ID, needed: t.RequiredCores - floor(t)})
	}

	sort.SliceStable(slacks, func(i, j int) bool {
		return slacks[i].needed > slacks[j].needed
	})

	spare := cores - totalMin
	for spare > 0 {
		placed := false
		for i := range slacks {
			if spare == 0 {
				break
			}
			t := ts.Get(slacks[i].id)
			if allocated[t.ID] >= t.RequiredCores {
				continue
			}
			slacks[i].needed--
			allocated[t.ID]++
			spare--
			placed = true
		}
		// Every task already holds its required cores.
		if !placed {
			break
		}
	}

	if spare > 0 {
		ts.UnplacedCores = spare
		log.Warn("Spare cores left unassigned", "unplaced", spare)
	}

	assign(ts, allocated)
	return nil
}

// floor is the heuristic starting allocation: MinCores, but never an empty
// core range.
func floor(t *types.Task) int {
	if t.MinCores < 1 {
		return 1
	}
	return t.MinCores
}

// assign lays out contiguous ranges in ascending task id.
func assign(ts *types.TaskSet, allocated map[int]int) {
	next := ts.SystemFirstCore
	for _, t := range ts.Tasks {
		n := allocated[t.ID]
		t.FirstCore = next
		t.LastCore = next + n - 1
		next += n
	}
}
