package scans

import "context"

// Repository port (persistence gateway). The store is the single source of
// truth for scan state; broadcast events are a best-effort hint on top of it.
//
// UpdateScanStatus and SetScanError refuse to move a scan that already
// reached a terminal status and report ErrScanAlreadyFinished instead, so
// concurrent writers cannot regress completed or failed scans.
type Repository interface {
	CreateScan(ctx context.Context, s *Scan) error
	GetScan(ctx context.Context, id ScanID) (*Scan, error)
	UpdateScanStatus(ctx context.Context, id ScanID, status Status) error
	SetScanError(ctx context.Context, id ScanID, message string) error
	UpdateScanStats(ctx context.Context, id ScanID, stats Stats, durationSecs int) error
	SetArtifactURL(ctx context.Context, id ScanID, url string) error
	RecentScans(ctx context.Context, limit int) ([]*Scan, error)

	InsertVulnerability(ctx context.Context, v *Vulnerability) error
	ListVulnerabilities(ctx context.Context, id ScanID) ([]Vulnerability, error)

	AppendLog(ctx context.Context, id ScanID, level, message string) error
	ListLogs(ctx context.Context, id ScanID, limit int) ([]LogEntry, error)
}

// RunOptions bound one tool invocation.
type RunOptions struct {
	SeverityFilter []Severity
	TimeoutSeconds int
}

// RunResult is what a finished tool invocation hands back. Findings themselves
// travel over the event channel, not the return value.
type RunResult struct {
	// ArtifactPath is the raw tool output file, left on disk for the caller
	// to upload or delete. Empty when the run produced no file (fallback,
	// crash, timeout).
	ArtifactPath string
	Findings     int
}

// Runner port (subprocess adapter for one scanning tool).
//
// Run drives a single tool invocation to completion, writing progress, log
// and vulnerability events into emit. When the tool binary is missing it
// emits synthetic placeholder findings instead of failing. A crash raises
// *ToolExecutionError, an exceeded ceiling raises *TimeoutError.
type Runner interface {
	Run(ctx context.Context, id ScanID, target string, opts RunOptions, emit chan<- Event) (RunResult, error)
	Stop(id ScanID) bool
	Available() bool
}

// Broadcaster port (topic fan-out to live subscribers).
type Broadcaster interface {
	Publish(id ScanID, ev Event)
	BroadcastAll(ev Event)
}

// ArtifactStore port (raw tool output archiving).
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}
