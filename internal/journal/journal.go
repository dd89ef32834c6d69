package journal

// ============================================================================
// Launch Journal
// Responsibilities:
// 1. Append launcher events to a JSON-lines file (append-only)
// 2. Replay the file for the status command
// 3. Keep sequence numbers increasing across launches sharing one file
//
// The launcher journals before acting on the outside world where it can
// (barrier creation, fork) and after observing it (reaping), so a journal
// left behind by a killed launcher still tells which children existed.
// ============================================================================

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// FileName is the journal's name inside a launch output directory.
const FileName = "launch.journal"

// FileInterface is what the journal needs from its file; tests substitute it.
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Journal records the events of one launch.
type Journal struct {
	mu           sync.Mutex
	file         FileInterface
	encoder      *json.Encoder
	path         string
	launchID     string
	seq          uint64
	syncOnAppend bool
	closed       bool
	now          func() time.Time
}

// Open creates or opens the journal at path for the given launch. Events
// already in the file are kept and numbering continues after the last one.
func Open(path, launchID string, syncOnAppend bool) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	var seq uint64
	if last, err := LastEvent(path); err == nil && last != nil {
		seq = last.Seq
	}

	return &Journal{
		file:         file,
		encoder:      json.NewEncoder(file),
		path:         path,
		launchID:     launchID,
		seq:          seq,
		syncOnAppend: syncOnAppend,
		now:          time.Now,
	}, nil
}

// Append writes one event for this launch.
func (j *Journal) Append(eventType EventType, ordinal, pid, code int, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}

	j.seq++
	event := Event{
		Seq:       j.seq,
		Type:      eventType,
		LaunchID:  j.launchID,
		Ordinal:   ordinal,
		PID:       pid,
		Code:      code,
		Detail:    detail,
		Timestamp: j.now().UnixMilli(),
	}
	event.Checksum = CalculateChecksum(event)

	if err := j.encoder.Encode(event); err != nil {
		return err
	}
	if j.syncOnAppend {
		return j.file.Sync()
	}
	return nil
}

// LaunchID returns the launch the journal writes for.
func (j *Journal) LaunchID() string {
	return j.launchID
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// LastSeq returns the sequence number of the last appended event.
func (j *Journal) LastSeq() uint64 {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Close syncs and closes the journal. A closed journal cannot be reused.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if err := j.file.Sync(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// ============================================================================
// Reading
// ============================================================================

// Replay feeds every event of the file at path to handler, verifying each
// checksum. It stops at the first bad record or handler error.
func Replay(path string, handler EventHandler) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return ReplayReader(file, handler)
}

// ReplayReader is Replay over an arbitrary reader.
func ReplayReader(r io.Reader, handler EventHandler) error {
	decoder := json.NewDecoder(r)

	var lastSeq uint64
	for {
		var event Event
		offset := decoder.InputOffset()
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &CorruptionError{Seq: lastSeq, Offset: offset, Cause: err}
		}

		if expected := CalculateChecksum(event); expected != event.Checksum {
			return &ChecksumError{Seq: event.Seq, Expected: expected, Actual: event.Checksum}
		}

		if err := handler(event); err != nil {
			return err
		}
		lastSeq = event.Seq
	}
}

// LastEvent returns the last decodable event of the file, or nil when the
// file holds none. A torn record at the end is ignored.
func LastEvent(path string) (*Event, error) {
	var last *Event
	err := Replay(path, func(event Event) error {
		e := event
		last = &e
		return nil
	})

	var corrupt *CorruptionError
	if err != nil && !errors.As(err, &corrupt) {
		return nil, err
	}
	return last, nil
}

// ReadAll returns every event of the file at path.
func ReadAll(path string) ([]Event, error) {
	var events []Event
	err := Replay(path, func(event Event) error {
		events = append(events, event)
		return nil
	})
	return events, err
}
