package nuclei

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// maxEvidenceLen bounds the evidence snippet stored per finding.
const maxEvidenceLen = 1024

var (
	progressRe = regexp.MustCompile(`(\d+)/(\d+)`)
	methodRe   = regexp.MustCompile(`^(?i)(GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS)`)
)

// ParseProgress extracts a "current/total" template counter from one line of
// tool output. Returns ok=false when the line carries no counter.
func ParseProgress(line string) (current, total int, ok bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	current, _ = strconv.Atoi(m[1])
	total, _ = strconv.Atoi(m[2])
	if total <= 0 || current > total {
		return 0, 0, false
	}
	return current, total, true
}

// ProgressPercent converts a template counter to a percentage in the 5-90
// band, reserving 0-5 for startup and 90-100 for result parsing.
func ProgressPercent(current, total int) float64 {
	pct := float64(current)/float64(total)*85 + 5
	if pct > 90 {
		pct = 90
	}
	return pct
}

// ExtractHTTPMethod pulls the verb from a raw HTTP request dump, if present.
func ExtractHTTPMethod(request string) string {
	m := methodRe.FindString(strings.TrimSpace(request))
	return strings.ToUpper(m)
}

// Record is one line of the tool's JSONL export.
type Record struct {
	TemplateID   string `json:"template-id"`
	TemplateName string `json:"template"`
	Info         struct {
		Name           string   `json:"name"`
		Description    string   `json:"description"`
		Severity       string   `json:"severity"`
		Tags           []string `json:"tags"`
		Classification struct {
			CVSSScore float64  `json:"cvss-score"`
			CVEID     []string `json:"cve-id"`
		} `json:"classification"`
	} `json:"info"`
	Matched          string   `json:"matched-at"`
	Host             string   `json:"host"`
	Request          string   `json:"request"`
	ExtractedResults []string `json:"extracted-results"`
	Timestamp        string   `json:"timestamp"`
}

// ParseOutputFile reads the JSONL results file line by line. A malformed line
// is skipped, not fatal; a missing file means the tool found nothing.
func ParseOutputFile(path string) (records []Record, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := s.Err(); err != nil {
		return records, skipped, err
	}
	return records, skipped, nil
}

// ToVulnerability maps a tool-native record to the domain shape.
func (rec Record) ToVulnerability(id domain.ScanID) domain.Vulnerability {
	title := rec.Info.Name
	if title == "" {
		title = rec.TemplateName
	}
	desc := rec.Info.Description
	if desc == "" {
		desc = "No description available"
	}
	evidence := rec.Matched
	if len(rec.ExtractedResults) > 0 {
		evidence = rec.ExtractedResults[0]
	}
	if len(evidence) > maxEvidenceLen {
		evidence = evidence[:maxEvidenceLen]
	}
	var cve string
	if len(rec.Info.Classification.CVEID) > 0 {
		cve = strings.ToUpper(rec.Info.Classification.CVEID[0])
	}
	created := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
		created = ts
	}
	tags := rec.Info.Tags
	if tags == nil {
		tags = []string{}
	}
	return domain.Vulnerability{
		ID:          uuid.New().String(),
		ScanID:      id,
		Title:       title,
		Description: desc,
		Severity:    domain.ParseSeverity(rec.Info.Severity),
		CVSS:        rec.Info.Classification.CVSSScore,
		CVE:         cve,
		URL:         rec.Matched,
		Method:      ExtractHTTPMethod(rec.Request),
		Evidence:    evidence,
		Tags:        tags,
		CreatedAt:   created,
	}
}
