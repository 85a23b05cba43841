package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/vulnwatch/internal/domain/analysis"
	"github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior application security analyst reviewing vulnerability scan results. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- Output must be a single JSON object following the schema below.
- riskScore is an integer from 0 to 100.
- recommendations is an ordered list, most urgent first, at most 6 items.
- riskFactors is a list of short statements, at most 6 items.
- estimatedFixTime is a short human string like "3 days" or "2 weeks".

Schema (example with empty values):
{
  "summary": "<string>",
  "riskScore": 0,
  "recommendations": ["<string>"],
  "riskFactors": ["<string>"],
  "estimatedFixTime": "<string>"
}`
}

// GetUserPrompt builds a compact user message from the scan results.
func GetUserPrompt(req analysis.Request) string {
	stats := scans.ComputeStats(req.Vulnerabilities)

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following vulnerability scan results for %s.\n\n", req.TargetURL)
	fmt.Fprintf(&b, "Scan summary:\n- Total: %d\n- Critical: %d\n- High: %d\n- Medium: %d\n- Low: %d\n- Info: %d\n- Duration: %ds\n",
		stats.Total, stats.Critical, stats.High, stats.Medium, stats.Low, stats.Info, req.DurationSecs)

	if len(req.Vulnerabilities) > 0 {
		b.WriteString("\nTop findings:\n")
		for i, v := range req.Vulnerabilities {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", v.Title, strings.ToUpper(string(v.Severity)), v.Description)
		}
	}

	b.WriteString("\nRespond with the JSON per schema.")
	return b.String()
}
