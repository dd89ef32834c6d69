package taskmanager

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// RequiredArgs is the argv length the launcher always provides: the program
// name, ten numeric fields, the barrier name and the program path again.
const RequiredArgs = 13

var (
	ErrArgCount    = errors.New("taskmanager: too few arguments")
	ErrArgParse    = errors.New("taskmanager: cannot parse argument")
	ErrBadDeadline = errors.New("taskmanager: deadline must be positive")
)

// Config is a task's parameters, fixed once parsed.
type Config struct {
	Name        string
	FirstCore   int
	LastCore    int
	Priority    int
	Period      time.Duration
	Deadline    time.Duration
	Release     time.Duration
	Iterations  int
	BarrierName string
	TaskArgs    []string // program path followed by the free-form task arguments
}

// ParseArgs builds a Config from the launcher's argv contract:
//
//	argv[0]      program
//	argv[1..3]   first_core last_core priority
//	argv[4..9]   period, deadline, relative release as sec/nsec pairs
//	argv[10]     iterations
//	argv[11]     barrier name
//	argv[12..]   program path and task arguments
func ParseArgs(argv []string) (*Config, error) {
	if len(argv) < RequiredArgs {
		return nil, fmt.Errorf("%w: got %d, want at least %d", ErrArgCount, len(argv), RequiredArgs)
	}

	p := argParser{argv: argv}
	cfg := &Config{
		Name:        argv[0],
		FirstCore:   p.uint(1, "first core"),
		LastCore:    p.uint(2, "last core"),
		Priority:    p.int(3, "priority"),
		Period:      p.duration(4, "period"),
		Deadline:    p.duration(6, "deadline"),
		Release:     p.duration(8, "relative release"),
		Iterations:  p.uint(10, "iterations"),
		BarrierName: argv[11],
		TaskArgs:    append([]string(nil), argv[12:]...),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Validate checks the timing parameters.
func (c *Config) Validate() error {
	if c.Deadline <= 0 {
		return fmt.Errorf("%w: deadline %v", ErrBadDeadline, c.Deadline)
	}
	if c.LastCore < c.FirstCore {
		return fmt.Errorf("%w: core range %d-%d", ErrArgParse, c.FirstCore, c.LastCore)
	}
	return nil
}

// Cores returns the width of the assigned core range.
func (c *Config) Cores() int {
	return c.LastCore - c.FirstCore + 1
}

// argParser keeps the first parse error so fields can be read in one pass.
type argParser struct {
	argv []string
	err  error
}

func (p *argParser) fail(i int, what string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s %q (argv[%d]): %v", ErrArgParse, what, p.argv[i], i, err)
	}
}

func (p *argParser) uint(i int, what string) int {
	v, err := strconv.ParseUint(p.argv[i], 10, 31)
	if err != nil {
		p.fail(i, what, err)
		return 0
	}
	return int(v)
}

func (p *argParser) int(i int, what string) int {
	v, err := strconv.Atoi(p.argv[i])
	if err != nil {
		p.fail(i, what, err)
		return 0
	}
	return v
}

func (p *argParser) duration(i int, what string) time.Duration {
	sec, err := strconv.ParseInt(p.argv[i], 10, 64)
	if err != nil {
		p.fail(i, what+" seconds", err)
		return 0
	}
	nsec, err := strconv.ParseInt(p.argv[i+1], 10, 64)
	if err != nil {
		p.fail(i+1, what+" nanoseconds", err)
		return 0
	}
	return time.Duration(sec)*time.Second + time.Duration(nsec)
}
