package middleware

import "testing"

func TestValidateURL(t *testing.T) {
	t.Parallel()
	valid := []string{
		"https://example.com",
		"http://example.com:8080/path?q=1",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}

	invalid := []string{
		"",
		"ftp://example.com",
		"http://localhost:3000",
		"http://127.0.0.1/admin",
		"http://192.168.1.10",
		"http://10.0.0.1",
	}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}

func TestValidateScanID(t *testing.T) {
	t.Parallel()
	if err := ValidateScanID("550e8400-e29b-41d4-a716-446655440000"); err != nil {
		t.Errorf("valid uuid rejected: %v", err)
	}
	for _, id := range []string{"", "not-a-uuid", "550e8400-e29b-41d4-a716"} {
		if err := ValidateScanID(id); err == nil {
			t.Errorf("ValidateScanID(%q) = nil, want error", id)
		}
	}
}

func TestValidateLimit(t *testing.T) {
	t.Parallel()
	if got := ValidateLimit(0); got != 20 {
		t.Errorf("ValidateLimit(0) = %d, want 20", got)
	}
	if got := ValidateLimit(-5); got != 20 {
		t.Errorf("ValidateLimit(-5) = %d, want 20", got)
	}
	if got := ValidateLimit(50); got != 50 {
		t.Errorf("ValidateLimit(50) = %d, want 50", got)
	}
	if got := ValidateLimit(500); got != 100 {
		t.Errorf("ValidateLimit(500) = %d, want 100", got)
	}
}

func TestSanitizeString(t *testing.T) {
	t.Parallel()
	if got := SanitizeString("hello\x00world"); got != "helloworld" {
		t.Errorf("null byte not stripped: %q", got)
	}
	if got := SanitizeString("  trimmed  "); got != "trimmed" {
		t.Errorf("whitespace not trimmed: %q", got)
	}
}

func TestTokenBucket(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(2, 1)
	if !tb.Allow() || !tb.Allow() {
		t.Fatal("bucket should allow up to capacity")
	}
	if tb.Allow() {
		t.Error("bucket should be empty")
	}
}
