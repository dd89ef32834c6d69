package journal

// ============================================================================
// Checksum
// Responsibility: CRC32 over the identifying fields of an event
// ============================================================================

import (
	"fmt"
	"hash/crc32"
)

// CalculateChecksum computes the CRC32-IEEE checksum of an event. The
// timestamp and the stored checksum are not covered.
func CalculateChecksum(event Event) uint32 {
	data := fmt.Sprintf("%d|%s|%s|%d|%d|%d|%s",
		event.Seq, event.Type, event.LaunchID, event.Ordinal, event.PID, event.Code, event.Detail)
	return crc32.ChecksumIEEE([]byte(data))
}

// VerifyChecksum reports whether the stored checksum matches the event.
func VerifyChecksum(event Event) bool {
	return event.Checksum == CalculateChecksum(event)
}
