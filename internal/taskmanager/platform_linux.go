//go:build linux

package taskmanager

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// NativePlatform applies affinity and real-time priority through the
// kernel. Go runs a task on many OS threads, so every operation walks the
// process's thread list.
type NativePlatform struct {
	mu       sync.Mutex
	mask     *unix.CPUSet
	priority int
	elevated bool
}

// NewNativePlatform returns the Linux platform.
func NewNativePlatform() *NativePlatform {
	return &NativePlatform{}
}

func (p *NativePlatform) Bind(first, last int) error {
	if first < 0 || last < first {
		return fmt.Errorf("taskmanager: invalid core range %d-%d", first, last)
	}

	var set unix.CPUSet
	set.Zero()
	for cpu := first; cpu <= last; cpu++ {
		set.Set(cpu)
	}

	err := eachThread(func(tid int) error {
		return unix.SchedSetaffinity(tid, &set)
	})
	if err != nil {
		return fmt.Errorf("set affinity to %d-%d: %w", first, last, err)
	}

	p.mu.Lock()
	p.mask = &set
	p.mu.Unlock()

	runtime.GOMAXPROCS(last - first + 1)
	return nil
}

func (p *NativePlatform) Elevate(priority int) error {
	err := eachThread(func(tid int) error {
		return setFIFO(tid, priority)
	})
	if err != nil {
		return fmt.Errorf("set SCHED_FIFO priority %d: %w", priority, err)
	}

	p.mu.Lock()
	p.priority = priority
	p.elevated = true
	p.mu.Unlock()
	return nil
}

func (p *NativePlatform) UsableCores() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return runtime.NumCPU()
	}
	return set.Count()
}

func (p *NativePlatform) SetupThread(worker int) error {
	p.mu.Lock()
	mask, priority, elevated := p.mask, p.priority, p.elevated
	p.mu.Unlock()

	tid := unix.Gettid()
	if mask != nil {
		if err := unix.SchedSetaffinity(tid, mask); err != nil {
			return fmt.Errorf("worker %d: set affinity: %w", worker, err)
		}
	}
	if elevated {
		if err := setFIFO(tid, priority); err != nil {
			return fmt.Errorf("worker %d: set priority: %w", worker, err)
		}
	}
	return nil
}

func setFIFO(tid, priority int) error {
	return unix.SchedSetAttr(tid, &unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}, 0)
}

// eachThread applies fn to every thread of the process. Threads that exit
// in between are skipped.
func eachThread(fn func(tid int) error) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	threads, err := proc.Threads()
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		return fn(0)
	}

	for tid := range threads {
		if err := fn(int(tid)); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
	}
	return nil
}

// MonotonicClock reads CLOCK_MONOTONIC and sleeps with an absolute
// clock_nanosleep, so wake-ups do not drift.
type MonotonicClock struct{}

func (MonotonicClock) Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic(err)
	}
	return time.Duration(ts.Nano())
}

func (MonotonicClock) SleepUntil(t time.Duration) {
	ts := unix.NsecToTimespec(int64(t))
	for {
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
		if err != unix.EINTR {
			return
		}
	}
}
