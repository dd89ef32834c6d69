//go:build !unix

package procgroup

import (
	"errors"
	"syscall"
)

// Group has no process group to signal on this platform.
type Group struct {
	Spare bool
}

func (Group) KillGroup(sig syscall.Signal) error {
	return errors.New("procgroup: process groups not supported")
}
