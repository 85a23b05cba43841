package scans

import (
	"strings"
	"time"
)

// ScanID identifier type
type ScanID string

// Severity enum, ordered from least to most severe.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a tool-native severity string to the canonical levels.
// Unknown values map to info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Valid reports whether s is one of the five canonical levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Status enum. Transitions are monotonic:
// pending -> running -> completed | failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Target is the scanned endpoint plus an optional display name.
type Target struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// ToolConfig describes one scanning tool requested for a scan.
type ToolConfig struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// Stats value object, derived from the vulnerability set.
type Stats struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// ComputeStats recounts severities over the given vulnerability set.
func ComputeStats(vulns []Vulnerability) Stats {
	st := Stats{Total: len(vulns)}
	for _, v := range vulns {
		switch v.Severity {
		case SeverityCritical:
			st.Critical++
		case SeverityHigh:
			st.High++
		case SeverityMedium:
			st.Medium++
		case SeverityLow:
			st.Low++
		default:
			st.Info++
		}
	}
	return st
}

// Aggregate Root: Scan
type Scan struct {
	ID             ScanID       `json:"id"`
	Target         Target       `json:"target"`
	Tools          []ToolConfig `json:"tools"`
	SeverityFilter []Severity   `json:"severityFilter,omitempty"`
	TimeoutSeconds int          `json:"timeoutSeconds,omitempty"`
	Status         Status       `json:"status"`
	Stats          Stats        `json:"stats"`
	ArtifactURL    string       `json:"artifactUrl,omitempty"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	StartedAt      *time.Time   `json:"startedAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	DurationSecs   int          `json:"duration"`
}

// Vulnerability is one normalized finding, owned by its scan.
type Vulnerability struct {
	ID          string    `json:"id"`
	ScanID      ScanID    `json:"scanId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	CVSS        float64   `json:"cvss,omitempty"`
	CVE         string    `json:"cve,omitempty"`
	URL         string    `json:"url"`
	Method      string    `json:"method,omitempty"`
	Evidence    string    `json:"evidence,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"timestamp"`
}

// DedupeKey is a stable content key used to suppress duplicate rows when the
// same finding is ingested twice for one scan.
func (v Vulnerability) DedupeKey() string {
	return strings.ToLower(v.Title) + "|" + v.URL + "|" + v.Method + "|" + string(v.Severity)
}

// HasTag reports whether the finding carries the given tag.
func (v Vulnerability) HasTag(tag string) bool {
	for _, t := range v.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// LogEntry is one append-only diagnostic line for a scan.
type LogEntry struct {
	ID        int64     `json:"id"`
	ScanID    ScanID    `json:"scanId"`
	Level     string    `json:"level"` // info | warning | error
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanResult is the assembled read model returned by status queries.
type ScanResult struct {
	Scan            *Scan           `json:"scan"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Options is a validated scan request.
type Options struct {
	Target         Target       `json:"target"`
	Tools          []ToolConfig `json:"tools"`
	SeverityFilter []Severity   `json:"severity,omitempty"`
	TimeoutSeconds int          `json:"timeout,omitempty"`
}

// EnabledTools returns the requested tools that are switched on, in order.
func (o Options) EnabledTools() []ToolConfig {
	var out []ToolConfig
	for _, t := range o.Tools {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}
