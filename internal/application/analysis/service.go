package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/vulnwatch/internal/domain/analysis"
	"github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// Service produces risk assessments for completed scans. When an AI client is
// configured it is tried first; any client failure falls back to the local
// heuristic so Analyze never returns an error.
type Service struct {
	Client analysis.Client // optional
	log    *logrus.Entry
}

func NewService(client analysis.Client, log *logrus.Logger) *Service {
	return &Service{
		Client: client,
		log:    log.WithField("component", "analysis"),
	}
}

// Enabled reports whether an AI backend is wired in.
func (s *Service) Enabled() bool {
	return s.Client != nil
}

// Analyze assesses the given findings, preferring the AI client when present.
func (s *Service) Analyze(ctx context.Context, req analysis.Request) *analysis.Analysis {
	if s.Client != nil {
		a, err := s.Client.Analyze(ctx, req)
		if err == nil {
			return a
		}
		s.log.WithError(err).Warn("ai analysis failed, using heuristic fallback")
	}
	return s.heuristic(req)
}

// heuristic scores findings with fixed severity weights and derives the
// summary, recommendations and fix estimate from the counts.
func (s *Service) heuristic(req analysis.Request) *analysis.Analysis {
	st := scans.ComputeStats(req.Vulnerabilities)

	score := st.Critical*25 + st.High*15 + st.Medium*8 + st.Low*3 + st.Info*1
	if score > 100 {
		score = 100
	}

	return &analysis.Analysis{
		ID:               analysis.AnalysisID(uuid.New().String()),
		Summary:          summarize(score, st),
		RiskScore:        score,
		Recommendations:  recommend(st, req.Vulnerabilities),
		RiskFactors:      riskFactors(st, req.Vulnerabilities),
		EstimatedFixTime: estimateFixTime(st),
		CreatedAt:        time.Now().UTC(),
	}
}

func summarize(score int, st scans.Stats) string {
	switch {
	case score >= 80:
		return fmt.Sprintf("HIGH RISK: %d findings detected including %d critical and %d high severity issues. Immediate remediation is required.", st.Total, st.Critical, st.High)
	case score >= 60:
		return fmt.Sprintf("MEDIUM-HIGH RISK: %d findings detected. Prioritize the %d high severity issues in the next sprint.", st.Total, st.High)
	case score >= 30:
		return fmt.Sprintf("MODERATE RISK: %d findings detected. No critical issues, but remediation should be scheduled.", st.Total)
	default:
		return fmt.Sprintf("LOW RISK: %d findings detected. The target's security posture looks good overall.", st.Total)
	}
}

func recommend(st scans.Stats, vulns []scans.Vulnerability) []string {
	var recs []string
	if st.Critical > 0 {
		recs = append(recs, fmt.Sprintf("Remediate the %d critical severity findings immediately", st.Critical))
	}
	if st.High > 0 {
		recs = append(recs, fmt.Sprintf("Fix the %d high severity findings within the current sprint", st.High))
	}
	if hasAnyTag(vulns, "sql", "injection") {
		recs = append(recs, "Use parameterized queries and input validation to eliminate injection points")
	}
	if hasAnyTag(vulns, "xss") {
		recs = append(recs, "Apply context-aware output encoding and a Content-Security-Policy header")
	}
	if hasAnyTag(vulns, "ssl", "tls") {
		recs = append(recs, "Update TLS configuration: disable legacy protocols and weak cipher suites")
	}
	if hasAnyTag(vulns, "exposure", "disclosure") {
		recs = append(recs, "Review exposed files and endpoints; restrict access to sensitive paths")
	}
	recs = append(recs, "Re-scan after remediation to confirm fixes")
	if len(recs) > 6 {
		recs = recs[:6]
	}
	return recs
}

func riskFactors(st scans.Stats, vulns []scans.Vulnerability) []string {
	var factors []string
	if st.Critical > 0 {
		factors = append(factors, fmt.Sprintf("%d critical severity vulnerabilities", st.Critical))
	}
	if st.High > 0 {
		factors = append(factors, fmt.Sprintf("%d high severity vulnerabilities", st.High))
	}
	if st.Medium > 0 {
		factors = append(factors, fmt.Sprintf("%d medium severity vulnerabilities", st.Medium))
	}
	if hasAnyTag(vulns, "injection") {
		factors = append(factors, "Injection attack surface present")
	}
	if hasAnyTag(vulns, "cve") {
		factors = append(factors, "Known CVEs matched against the target")
	}
	if len(factors) == 0 {
		factors = append(factors, "Only low severity and informational findings")
	}
	if len(factors) > 6 {
		factors = factors[:6]
	}
	return factors
}

func estimateFixTime(st scans.Stats) string {
	days := float64(st.Critical)*2 + float64(st.High)*1 + float64(st.Medium)*0.5 + float64(st.Low)*0.25
	switch {
	case days < 1:
		return "< 1 day"
	case days <= 5:
		return fmt.Sprintf("%d days", int(math.Ceil(days)))
	case days <= 20:
		return fmt.Sprintf("%d weeks", int(math.Ceil(days/5)))
	default:
		return fmt.Sprintf("%d months", int(math.Ceil(days/20)))
	}
}

func hasAnyTag(vulns []scans.Vulnerability, tags ...string) bool {
	for _, v := range vulns {
		for _, t := range tags {
			if v.HasTag(t) {
				return true
			}
		}
	}
	return false
}
