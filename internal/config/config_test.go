package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Scanner.MaxConcurrent != 5 {
		t.Errorf("Scanner.MaxConcurrent = %d, want 5", cfg.Scanner.MaxConcurrent)
	}
	if cfg.Scanner.TimeoutSeconds != 300 {
		t.Errorf("Scanner.TimeoutSeconds = %d, want 300", cfg.Scanner.TimeoutSeconds)
	}
	if cfg.Nuclei.RateLimit != 150 || cfg.Nuclei.BulkSize != 25 {
		t.Errorf("nuclei defaults = %d/%d, want 150/25", cfg.Nuclei.RateLimit, cfg.Nuclei.BulkSize)
	}
	if cfg.Websocket.PingIntervalSeconds != 30 || cfg.Websocket.StaleAfterSeconds != 60 {
		t.Errorf("websocket defaults = %d/%d, want 30/60", cfg.Websocket.PingIntervalSeconds, cfg.Websocket.StaleAfterSeconds)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Errorf("AI.Model = %q, want gpt-4o", cfg.AI.Model)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "ai:\n  apiKey: from-file\ndatabase:\n  password: file-pass\n")

	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("DB_PASSWORD", "env-pass")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AI.APIKey != "from-env" {
		t.Errorf("AI.APIKey = %q, want env override", cfg.AI.APIKey)
	}
	if cfg.Database.Password != "env-pass" {
		t.Errorf("Database.Password = %q, want env override", cfg.Database.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDSNBuilders(t *testing.T) {
	var cfg Config
	cfg.Database.Host = "dbhost"
	cfg.Database.Port = 3306
	cfg.Database.User = "app"
	cfg.Database.Password = "secret"
	cfg.Database.Name = "vulnwatch"
	cfg.Database.SSLMode = "disable"

	mysql := cfg.MySQLDSN()
	if !strings.Contains(mysql, "app:secret@tcp(dbhost:3306)/vulnwatch") {
		t.Errorf("unexpected mysql dsn: %q", mysql)
	}
	if !strings.Contains(mysql, "parseTime=true") {
		t.Errorf("mysql dsn missing parseTime: %q", mysql)
	}

	pg := cfg.PostgresDSN()
	for _, part := range []string{"host=dbhost", "port=3306", "user=app", "dbname=vulnwatch", "sslmode=disable"} {
		if !strings.Contains(pg, part) {
			t.Errorf("postgres dsn missing %q: %q", part, pg)
		}
	}
}
