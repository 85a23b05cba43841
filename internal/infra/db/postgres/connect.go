package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the scanner tables when missing, Postgres dialect.
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
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			duration INT NOT NULL DEFAULT 0,
			error_message TEXT,
			artifact_url TEXT,
			total_vulnerabilities INT NOT NULL DEFAULT 0,
			critical_count INT NOT NULL DEFAULT 0,
			high_count INT NOT NULL DEFAULT 0,
			medium_count INT NOT NULL DEFAULT 0,
			low_count INT NOT NULL DEFAULT 0,
			info_count INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_status ON scans (status)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans (created_at)`,
		`CREATE TABLE IF NOT EXISTS vulnerabilities (
			id VARCHAR(36) PRIMARY KEY,
			scan_id VARCHAR(36) NOT NULL REFERENCES scans (id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT,
			severity VARCHAR(16) NOT NULL,
			cvss DOUBLE PRECISION NOT NULL DEFAULT 0,
			cve VARCHAR(64),
			url TEXT NOT NULL,
			method VARCHAR(16),
			evidence TEXT,
			tags TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vulnerabilities_scan_id ON vulnerabilities (scan_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vulnerabilities_severity ON vulnerabilities (severity)`,
		`CREATE TABLE IF NOT EXISTS ai_analyses (
			id VARCHAR(36) PRIMARY KEY,
			scan_id VARCHAR(36) NOT NULL UNIQUE REFERENCES scans (id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			risk_score INT NOT NULL,
			recommendations TEXT NOT NULL,
			risk_factors TEXT NOT NULL,
			estimated_fix_time VARCHAR(64) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS scan_logs (
			id BIGSERIAL PRIMARY KEY,
			scan_id VARCHAR(36) NOT NULL REFERENCES scans (id) ON DELETE CASCADE,
			level VARCHAR(16) NOT NULL,
			message TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_logs_scan_id ON scan_logs (scan_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
