package journal

import "time"

// Child is what the journal knows about one task process.
type Child struct {
	Ordinal  int
	PID      int
	Program  string
	Exited   bool
	Signaled bool
	Code     int // exit status or signal number
}

// Normal reports whether the child exited with status zero.
func (c Child) Normal() bool {
	return c.Exited && c.Code == 0
}

// Launch summarizes one launch found in a journal.
type Launch struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Schedule string
	Barrier  string
	Aborted  bool
	Done     bool
	ExitCode int
	Children []*Child
}

// Running returns the children that were forked but never reaped.
func (l *Launch) Running() []*Child {
	var out []*Child
	for _, c := range l.Children {
		if !c.Exited && !c.Signaled {
			out = append(out, c)
		}
	}
	return out
}

// Summarize folds events into launches, in order of first appearance.
func Summarize(events []Event) []*Launch {
	var launches []*Launch
	byID := make(map[string]*Launch)

	for _, e := range events {
		l, ok := byID[e.LaunchID]
		if !ok {
			l = &Launch{ID: e.LaunchID}
			byID[e.LaunchID] = l
			launches = append(launches, l)
		}
		at := time.UnixMilli(e.Timestamp)

		switch e.Type {
		case EventLaunchStart:
			l.Started = at
			l.Schedule = e.Detail
		case EventBarrierCreated:
			l.Barrier = e.Detail
		case EventChildForked:
			l.Children = append(l.Children, &Child{Ordinal: e.Ordinal, PID: e.PID, Program: e.Detail})
		case EventChildExited, EventChildSignaled:
			c := l.child(e.PID)
			if c == nil {
				c = &Child{Ordinal: e.Ordinal, PID: e.PID}
				l.Children = append(l.Children, c)
			}
			c.Exited = e.Type == EventChildExited
			c.Signaled = e.Type == EventChildSignaled
			c.Code = e.Code
		case EventLaunchAborted:
			l.Aborted = true
			l.ExitCode = e.Code
		case EventLaunchDone:
			l.Done = true
			l.Finished = at
			l.ExitCode = e.Code
		}
	}
	return launches
}

func (l *Launch) child(pid int) *Child {
	for _, c := range l.Children {
		if c.PID == pid {
			return c
		}
	}
	return nil
}
