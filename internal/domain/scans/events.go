package scans

import "time"

// EventType enumerates the messages published to scan subscribers.
type EventType string

const (
	EventProgress           EventType = "scan_progress"
	EventLog                EventType = "scan_log"
	EventVulnerabilityFound EventType = "vulnerability_found"
	EventScanCompleted      EventType = "scan_completed"
	EventScanFailed         EventType = "scan_failed"
)

// Event is one message on a scan's event stream. The runner and the manager
// produce events into a single per-scan channel, which gives subscribers
// intra-scan FIFO ordering for free.
type Event struct {
	Type      EventType `json:"type"`
	ScanID    ScanID    `json:"scanId"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressPayload carries a monotonically non-decreasing percentage in [0,100]
// plus a human-readable phase.
type ProgressPayload struct {
	Progress float64 `json:"progress"`
	Phase    string  `json:"phase"`
}

// LogPayload mirrors a persisted log entry.
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// FailurePayload carries the terminal error of a failed scan.
type FailurePayload struct {
	Error string `json:"error"`
}

// NewProgressEvent builds a progress event stamped with now.
func NewProgressEvent(id ScanID, pct float64, phase string) Event {
	return Event{
		Type:      EventProgress,
		ScanID:    id,
		Data:      ProgressPayload{Progress: pct, Phase: phase},
		Timestamp: time.Now().UTC(),
	}
}

// NewLogEvent builds a log event stamped with now.
func NewLogEvent(id ScanID, level, message string) Event {
	return Event{
		Type:      EventLog,
		ScanID:    id,
		Data:      LogPayload{Level: level, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// NewVulnerabilityEvent builds a finding event stamped with now.
func NewVulnerabilityEvent(id ScanID, v Vulnerability) Event {
	return Event{
		Type:      EventVulnerabilityFound,
		ScanID:    id,
		Data:      v,
		Timestamp: time.Now().UTC(),
	}
}
