package launcher

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Termination is how a child process ended.
type Termination struct {
	Exited   bool
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// Process is a started child.
type Process interface {
	Pid() int
	// Wait blocks until the child ends.
	Wait() (Termination, error)
}

// Spawner starts task processes.
type Spawner interface {
	// Spawn starts argv[0] with argv as its argument vector, the launcher's
	// environment plus env, and stdout as its standard output.
	Spawn(argv, env []string, stdout *os.File) (Process, error)
}

// ExecSpawner forks and execs real processes. Children stay in the
// launcher's process group so a group kill reaches them.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(argv, env []string, stdout *os.File) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("launcher: empty argument vector")
	}

	cmd := &exec.Cmd{
		Path:   argv[0],
		Args:   argv,
		Env:    append(os.Environ(), env...),
		Stdout: stdout,
		Stderr: os.Stderr,
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (Termination, error) {
	err := p.cmd.Wait()

	state := p.cmd.ProcessState
	if state == nil {
		return Termination{}, err
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Termination{Signaled: true, Signal: ws.Signal()}, nil
	}
	return Termination{Exited: state.Exited(), Code: state.ExitCode()}, nil
}
