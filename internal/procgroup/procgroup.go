// Package procgroup terminates the whole experiment: every task process
// and the launcher share one process group, and a fatal error anywhere
// signals all of them at once.
package procgroup

import (
	"sync"
	"syscall"
)

// Killer signals the caller's process group.
type Killer interface {
	KillGroup(sig syscall.Signal) error
}

// Recorder is a Killer that only remembers the signals it was asked to send.
type Recorder struct {
	mu      sync.Mutex
	signals []syscall.Signal
}

func (r *Recorder) KillGroup(sig syscall.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
	return nil
}

// Signals returns the recorded signals in order.
func (r *Recorder) Signals() []syscall.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]syscall.Signal(nil), r.signals...)
}

// Count returns how many times the group would have been signaled.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}
