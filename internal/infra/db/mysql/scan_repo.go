package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/vulnwatch/internal/domain/analysis"
	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// ScanRepository is the MySQL persistence gateway for scans, vulnerabilities,
// log entries and AI analyses.
type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `id, target_url, target_name, status, tools, severity_filter, timeout_seconds,
       created_at, started_at, completed_at, duration, error_message, artifact_url,
       total_vulnerabilities, critical_count, high_count, medium_count, low_count, info_count`

// CreateScan inserts the initial pending record.
func (r *ScanRepository) CreateScan(ctx context.Context, s *domain.Scan) error {
	tools, err := json.Marshal(s.Tools)
	if err != nil {
		return fmt.Errorf("encoding tools: %w", err)
	}
	filter, err := json.Marshal(s.SeverityFilter)
	if err != nil {
		return fmt.Errorf("encoding severity filter: %w", err)
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	const q = `
INSERT INTO scans (id, target_url, target_name, status, tools, severity_filter, timeout_seconds, created_at)
VALUES (?,?,?,?,?,?,?,?);`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.Target.URL, s.Target.Name, s.Status, tools, filter, s.TimeoutSeconds, created,
	)
	return err
}

// GetScan fetches one scan by id.
func (r *ScanRepository) GetScan(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id=? LIMIT 1;`, id)
	s, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrScanNotFound
	}
	return s, err
}

// UpdateScanStatus moves the lifecycle forward, stamping started_at and
// completed_at on the relevant transitions. Terminal rows are never
// overwritten; a matched-but-terminal scan yields ErrScanAlreadyFinished.
func (r *ScanRepository) UpdateScanStatus(ctx context.Context, id domain.ScanID, status domain.Status) error {
	const q = `
UPDATE scans SET status = ?,
 started_at = CASE WHEN ? = 'running' THEN CURRENT_TIMESTAMP ELSE started_at END,
 completed_at = CASE WHEN ? IN ('completed','failed') THEN CURRENT_TIMESTAMP ELSE completed_at END
WHERE id = ? AND status NOT IN ('completed','failed');`
	res, err := r.db.ExecContext(ctx, q, status, status, status, id)
	if err != nil {
		return err
	}
	return checkScanUpdated(res)
}

// SetScanError marks the scan failed with its terminal error message. A scan
// that already reached a terminal status keeps it.
func (r *ScanRepository) SetScanError(ctx context.Context, id domain.ScanID, message string) error {
	const q = `
UPDATE scans SET status = 'failed', error_message = ?, completed_at = CURRENT_TIMESTAMP
WHERE id = ? AND status NOT IN ('completed','failed');`
	res, err := r.db.ExecContext(ctx, q, message, id)
	if err != nil {
		return err
	}
	return checkScanUpdated(res)
}

func checkScanUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrScanAlreadyFinished
	}
	return nil
}

// UpdateScanStats writes the derived severity counters and the duration.
func (r *ScanRepository) UpdateScanStats(ctx context.Context, id domain.ScanID, st domain.Stats, durationSecs int) error {
	const q = `
UPDATE scans SET
  total_vulnerabilities = ?, critical_count = ?, high_count = ?,
  medium_count = ?, low_count = ?, info_count = ?, duration = ?
WHERE id = ?;`
	_, err := r.db.ExecContext(ctx, q,
		st.Total, st.Critical, st.High, st.Medium, st.Low, st.Info, durationSecs, id,
	)
	return err
}

// SetArtifactURL records where the raw tool output was archived.
func (r *ScanRepository) SetArtifactURL(ctx context.Context, id domain.ScanID, url string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE scans SET artifact_url = ? WHERE id = ?;`, url, id)
	return err
}

// RecentScans lists the newest scans first.
func (r *ScanRepository) RecentScans(ctx context.Context, limit int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+scanColumns+` FROM scans ORDER BY created_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertVulnerability stores one finding.
func (r *ScanRepository) InsertVulnerability(ctx context.Context, v *domain.Vulnerability) error {
	tags, err := json.Marshal(v.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	created := v.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	const q = `
INSERT INTO vulnerabilities (id, scan_id, title, description, severity, cvss, cve, url, method, evidence, tags, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`
	_, err = r.db.ExecContext(ctx, q,
		v.ID, v.ScanID, v.Title, v.Description, v.Severity, v.CVSS, v.CVE,
		v.URL, v.Method, v.Evidence, tags, created,
	)
	return err
}

// ListVulnerabilities returns all findings for a scan in insertion order.
func (r *ScanRepository) ListVulnerabilities(ctx context.Context, id domain.ScanID) ([]domain.Vulnerability, error) {
	const q = `
SELECT id, scan_id, title, description, severity, cvss, cve, url, method, evidence, tags, created_at
FROM vulnerabilities WHERE scan_id = ? ORDER BY created_at, id;`
	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vulnerability
	for rows.Next() {
		var v domain.Vulnerability
		var cve, method, evidence, tags sql.NullString
		if err := rows.Scan(
			&v.ID, &v.ScanID, &v.Title, &v.Description, &v.Severity, &v.CVSS,
			&cve, &v.URL, &method, &evidence, &tags, &v.CreatedAt,
		); err != nil {
			return nil, err
		}
		v.CVE = cve.String
		v.Method = method.String
		v.Evidence = evidence.String
		v.Tags = decodeTags(tags.String)
		out = append(out, v)
	}
	return out, rows.Err()
}

// AppendLog appends one diagnostic entry.
func (r *ScanRepository) AppendLog(ctx context.Context, id domain.ScanID, level, message string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scan_logs (scan_id, level, message) VALUES (?,?,?);`,
		id, level, message,
	)
	return err
}

// ListLogs reads back entries most-recent-first, bounded by limit.
func (r *ScanRepository) ListLogs(ctx context.Context, id domain.ScanID, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, scan_id, level, message, timestamp
FROM scan_logs WHERE scan_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.ScanID, &e.Level, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveAnalysis stores the one-per-scan assessment.
func (r *ScanRepository) SaveAnalysis(ctx context.Context, a *analysis.Analysis) error {
	recs, err := json.Marshal(a.Recommendations)
	if err != nil {
		return fmt.Errorf("encoding recommendations: %w", err)
	}
	factors, err := json.Marshal(a.RiskFactors)
	if err != nil {
		return fmt.Errorf("encoding risk factors: %w", err)
	}
	const q = `
INSERT INTO ai_analyses (id, scan_id, summary, risk_score, recommendations, risk_factors, estimated_fix_time)
VALUES (?,?,?,?,?,?,?);`
	_, err = r.db.ExecContext(ctx, q,
		a.ID, a.ScanID, a.Summary, a.RiskScore, recs, factors, a.EstimatedFixTime,
	)
	return err
}

// GetAnalysis fetches the analysis for a scan; (nil, nil) when none exists.
func (r *ScanRepository) GetAnalysis(ctx context.Context, id domain.ScanID) (*analysis.Analysis, error) {
	const q = `
SELECT id, scan_id, summary, risk_score, recommendations, risk_factors, estimated_fix_time, created_at
FROM ai_analyses WHERE scan_id = ? LIMIT 1;`
	row := r.db.QueryRowContext(ctx, q, id)

	var a analysis.Analysis
	var recs, factors string
	err := row.Scan(&a.ID, &a.ScanID, &a.Summary, &a.RiskScore, &recs, &factors, &a.EstimatedFixTime, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recs), &a.Recommendations); err != nil {
		return nil, fmt.Errorf("decoding recommendations: %w", err)
	}
	if err := json.Unmarshal([]byte(factors), &a.RiskFactors); err != nil {
		return nil, fmt.Errorf("decoding risk factors: %w", err)
	}
	return &a, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*domain.Scan, error) {
	var s domain.Scan
	var targetName, tools, filter, errMsg, artifact sql.NullString
	var started, completed sql.NullTime
	if err := row.Scan(
		&s.ID, &s.Target.URL, &targetName, &s.Status, &tools, &filter, &s.TimeoutSeconds,
		&s.CreatedAt, &started, &completed, &s.DurationSecs, &errMsg, &artifact,
		&s.Stats.Total, &s.Stats.Critical, &s.Stats.High, &s.Stats.Medium, &s.Stats.Low, &s.Stats.Info,
	); err != nil {
		return nil, err
	}
	s.Target.Name = targetName.String
	s.ErrorMessage = errMsg.String
	s.ArtifactURL = artifact.String
	if started.Valid {
		t := started.Time
		s.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		s.CompletedAt = &t
	}
	if tools.Valid && tools.String != "" {
		if err := json.Unmarshal([]byte(tools.String), &s.Tools); err != nil {
			return nil, fmt.Errorf("decoding tools: %w", err)
		}
	}
	if filter.Valid && filter.String != "" && filter.String != "null" {
		if err := json.Unmarshal([]byte(filter.String), &s.SeverityFilter); err != nil {
			return nil, fmt.Errorf("decoding severity filter: %w", err)
		}
	}
	return &s, nil
}

func decodeTags(raw string) []string {
	if raw == "" || raw == "null" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return tags
}
