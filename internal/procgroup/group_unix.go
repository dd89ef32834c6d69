//go:build unix

package procgroup

import (
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Group signals the real process group with kill(0, sig).
//
// With Spare set the caller ignores sig from then on, so it survives its own
// broadcast and can still return an exit status. Only processes that have no
// children left to fork should spare themselves: an ignored signal stays
// ignored across exec.
type Group struct {
	Spare bool
}

func (g Group) KillGroup(sig syscall.Signal) error {
	if g.Spare {
		signal.Ignore(sig)
	}
	return unix.Kill(0, sig)
}
