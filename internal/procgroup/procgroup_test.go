package procgroup

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	assert.Equal(t, 0, r.Count())

	assert.NoError(t, r.KillGroup(syscall.SIGTERM))
	assert.NoError(t, r.KillGroup(syscall.SIGKILL))

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, r.Signals())
}

func TestGroupImplementsKiller(t *testing.T) {
	var _ Killer = Group{}
	var _ Killer = &Recorder{}
}
