package schedule

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrLineCount indicates the file does not have the expected number of lines
	ErrLineCount = errors.New("schedule: invalid number of lines")

	// ErrTooFewFields indicates a line is missing fields
	ErrTooFewFields = errors.New("schedule: too few fields")

	// ErrTooManyFields indicates a line carries extra fields
	ErrTooManyFields = errors.New("schedule: too many fields")

	// ErrBadNumber indicates a field is not a valid number
	ErrBadNumber = errors.New("schedule: field is not a number")

	// ErrNoProgram indicates a command line without a program path
	ErrNoProgram = errors.New("schedule: program name not provided")
)

// ParseError carries the location of a malformed line.
type ParseError struct {
	Line  int    // 1-based line number in the file
	Field string // what was being parsed
	Err   error  // underlying error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schedule: line %d: %s: %v", e.Line, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(line int, field string, err error) error {
	return &ParseError{Line: line, Field: field, Err: err}
}
