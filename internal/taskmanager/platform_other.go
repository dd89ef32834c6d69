//go:build !linux

package taskmanager

import (
	"runtime"
	"time"
)

// NativePlatform cannot bind or elevate outside Linux.
type NativePlatform struct{}

func NewNativePlatform() *NativePlatform { return &NativePlatform{} }

func (p *NativePlatform) Bind(first, last int) error   { return ErrUnsupported }
func (p *NativePlatform) Elevate(priority int) error   { return ErrUnsupported }
func (p *NativePlatform) UsableCores() int             { return runtime.NumCPU() }
func (p *NativePlatform) SetupThread(worker int) error { return nil }

var epoch = time.Now()

// MonotonicClock falls back to the runtime's monotonic reading.
type MonotonicClock struct{}

func (MonotonicClock) Now() time.Duration { return time.Since(epoch) }

func (c MonotonicClock) SleepUntil(t time.Duration) {
	if d := t - c.Now(); d > 0 {
		time.Sleep(d)
	}
}
