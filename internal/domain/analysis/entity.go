package analysis

import (
	"time"

	"github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// AnalysisID identifier type
type AnalysisID string

// Analysis is the derived risk assessment of a completed scan. One per scan,
// created once, never updated.
type Analysis struct {
	ID               AnalysisID   `json:"id"`
	ScanID           scans.ScanID `json:"scanId"`
	Summary          string       `json:"summary"`
	RiskScore        int          `json:"riskScore"` // 0-100
	Recommendations  []string     `json:"recommendations"`
	RiskFactors      []string     `json:"riskFactors"`
	EstimatedFixTime string       `json:"estimatedFixTime"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// Request bundles the inputs handed to an analyzer.
type Request struct {
	Vulnerabilities []scans.Vulnerability
	TargetURL       string
	DurationSecs    int
}
