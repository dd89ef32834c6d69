package journal

// ============================================================================
// Journal Type Definitions
// Responsibility: Define the events the launcher records per launch
// ============================================================================

// EventType defines journal event types
type EventType string

const (
	EventLaunchStart    EventType = "LAUNCH_START"    // Schedule header accepted
	EventBarrierCreated EventType = "BARRIER_CREATED" // Release barrier allocated
	EventChildForked    EventType = "CHILD_FORKED"    // Task process started
	EventChildExited    EventType = "CHILD_EXITED"    // Task process exited
	EventChildSignaled  EventType = "CHILD_SIGNALED"  // Task process killed by a signal
	EventLaunchAborted  EventType = "LAUNCH_ABORTED"  // Process group terminated
	EventLaunchDone     EventType = "LAUNCH_DONE"     // Every child reaped
)

// Event represents one journal record
type Event struct {
	Seq       uint64    `json:"seq"`               // Sequence number (monotonically increasing per file)
	Type      EventType `json:"type"`              // Event type
	LaunchID  string    `json:"launch_id"`         // Launch this event belongs to
	Ordinal   int       `json:"ordinal,omitempty"` // 1-based task position in the schedule
	PID       int       `json:"pid,omitempty"`     // Child process id
	Code      int       `json:"code"`              // Exit status, signal number or launcher exit code
	Detail    string    `json:"detail,omitempty"`  // Free text (program path, barrier name, error)
	Timestamp int64     `json:"timestamp"`         // Unix millisecond timestamp
	Checksum  uint32    `json:"checksum"`          // CRC32 checksum
}

// EventHandler processes one event during Replay
type EventHandler func(event Event) error
