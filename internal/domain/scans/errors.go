package scans

import (
	"errors"
	"fmt"
	"time"
)

// ErrScanNotFound indicates a lookup for an unknown scan id.
var ErrScanNotFound = errors.New("scan not found")

// ErrToolUnavailable indicates the tool binary is not installed or not runnable.
var ErrToolUnavailable = errors.New("tool binary not available")

// ErrScanAlreadyFinished indicates a status transition aimed at a scan that
// already reached a terminal state. Terminal statuses are write-once.
var ErrScanAlreadyFinished = errors.New("scan already finished")

// ValidationError rejects a malformed scan request. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid scan request: " + e.Reason
}

// CapacityError rejects admission when the concurrency cap is reached.
// The caller may retry later.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("maximum concurrent scans limit reached (%d)", e.Limit)
}

// ToolExecutionError wraps an abnormal tool process exit.
type ToolExecutionError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s process exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// TimeoutError indicates the per-tool wall-clock ceiling was exceeded and the
// subprocess was terminated.
type TimeoutError struct {
	Tool  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s scan timed out after %s", e.Tool, e.After)
}
