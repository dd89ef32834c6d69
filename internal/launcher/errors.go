package launcher

import (
	"errors"
	"fmt"
)

// ExitCode is the launcher's process exit status. Scripts branch on these
// values; they never change.
type ExitCode int

const (
	ExitSuccess       ExitCode = 0
	ExitFileOpen      ExitCode = 1
	ExitFileParse     ExitCode = 2
	ExitUnschedulable ExitCode = 3
	ExitForkExec      ExitCode = 4
	ExitBarrierInit   ExitCode = 5
	ExitArgument      ExitCode = 6
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitFileOpen:
		return "file open error"
	case ExitFileParse:
		return "file parse error"
	case ExitUnschedulable:
		return "unschedulable"
	case ExitForkExec:
		return "fork/exec error"
	case ExitBarrierInit:
		return "barrier initialization error"
	case ExitArgument:
		return "argument error"
	default:
		return "unknown"
	}
}

// ErrUnschedulable is reported for schedules whose feasibility flag says
// the task set does not fit on the system.
var ErrUnschedulable = errors.New("launcher: task set not schedulable")

// Error is a failed launch together with the exit code it maps to.
type Error struct {
	Code ExitCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("launcher: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf maps err to an exit code. A nil error is ExitSuccess; an error that
// carries no code is treated as a parse failure.
func CodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ExitFileParse
}

func fail(code ExitCode, err error) error {
	return &Error{Code: code, Err: err}
}
