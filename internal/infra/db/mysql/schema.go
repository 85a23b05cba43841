package mysql

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the four scanner tables when they do not exist yet.
// Vulnerabilities, logs and analyses cascade on scan deletion; the scan row
// itself is never deleted by the service.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id VARCHAR(36) PRIMARY KEY,
			target_url TEXT NOT NULL,
			target_name VARCHAR(255),
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			tools TEXT NOT NULL,
			severity_filter TEXT,
			timeout_seconds INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME NULL,
			completed_at DATETIME NULL,
			duration INT NOT NULL DEFAULT 0,
			error_message TEXT,
			artifact_url TEXT,
			total_vulnerabilities INT NOT NULL DEFAULT 0,
			critical_count INT NOT NULL DEFAULT 0,
			high_count INT NOT NULL DEFAULT 0,
			medium_count INT NOT NULL DEFAULT 0,
			low_count INT NOT NULL DEFAULT 0,
			info_count INT NOT NULL DEFAULT 0,
			INDEX idx_scans_status (status),
			INDEX idx_scans_created_at (created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS vulnerabilities (
			id VARCHAR(36) PRIMARY KEY,
			scan_id VARCHAR(36) NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			severity VARCHAR(16) NOT NULL,
			cvss DOUBLE NOT NULL DEFAULT 0,
			cve VARCHAR(64),
			url TEXT NOT NULL,
			method VARCHAR(16),
			evidence TEXT,
			tags TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_vulnerabilities_scan_id (scan_id),
			INDEX idx_vulnerabilities_severity (severity),
			CONSTRAINT fk_vuln_scan FOREIGN KEY (scan_id) REFERENCES scans (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS ai_analyses (
			id VARCHAR(36) PRIMARY KEY,
			scan_id VARCHAR(36) NOT NULL UNIQUE,
			summary TEXT NOT NULL,
			risk_score INT NOT NULL,
			recommendations TEXT NOT NULL,
			risk_factors TEXT NOT NULL,
			estimated_fix_time VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT fk_analysis_scan FOREIGN KEY (scan_id) REFERENCES scans (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS scan_logs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			scan_id VARCHAR(36) NOT NULL,
			level VARCHAR(16) NOT NULL,
			message TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_scan_logs_scan_id (scan_id),
			CONSTRAINT fk_log_scan FOREIGN KEY (scan_id) REFERENCES scans (id) ON DELETE CASCADE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
