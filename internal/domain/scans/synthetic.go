package scans

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyntheticFindings returns the fixed placeholder findings used when the real
// tool cannot run. They are tagged "demo" so a fallback scan is always
// distinguishable from a real one.
func SyntheticFindings(id ScanID, targetURL string) []Vulnerability {
	base := strings.TrimRight(targetURL, "/")
	now := time.Now().UTC()
	return []Vulnerability{
		{
			ID:          uuid.New().String(),
			ScanID:      id,
			Title:       "Demo SQL Injection Vulnerability",
			Description: "This is a placeholder finding for demonstration purposes. The scanning tool is not installed or failed to run.",
			Severity:    SeverityHigh,
			CVSS:        8.1,
			CVE:         "CVE-2023-DEMO",
			URL:         base + "/login",
			Method:      "POST",
			Evidence:    "Placeholder evidence of SQL injection",
			Tags:        []string{"injection", "sql", "demo"},
			CreatedAt:   now,
		},
		{
			ID:          uuid.New().String(),
			ScanID:      id,
			Title:       "Demo Cross-Site Scripting (XSS)",
			Description: "This is a placeholder XSS finding for demonstration purposes.",
			Severity:    SeverityMedium,
			CVSS:        6.1,
			URL:         base + "/search",
			Method:      "GET",
			Evidence:    "Placeholder XSS payload",
			Tags:        []string{"xss", "client-side", "demo"},
			CreatedAt:   now,
		},
	}
}
