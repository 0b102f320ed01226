package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Connect tests
// =============================================================================

func TestConnect_WhenValidFileURL_ShouldReturnDB(t *testing.T) {
	// Given: a valid in-memory libsql URL
	dbURL := "file:test.db?mode=memory&cache=shared"

	// When: connecting
	conn, err := Connect(dbURL)

	// Then: should succeed and be pingable
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer conn.Close()
	if pingErr := conn.Ping(); pingErr != nil {
		t.Fatalf("expected successful ping, got: %v", pingErr)
	}
}

func TestConnect_WhenNestedFilePath_ShouldCreateParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".scenewire")
	conn, err := Connect("file:" + filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("parent dir should exist: %v", err)
	}
}

func TestConnect_WhenEmptyURL_ShouldReturnError(t *testing.T) {
	if _, err := Connect(""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestConnect_WhenMkdirFails_ShouldReturnError(t *testing.T) {
	prev := mkdirAll
	defer func() { mkdirAll = prev }()
	mkdirAll = func(string, os.FileMode) error { return errors.New("injected") }

	if _, err := Connect("file:some/dir/journal.db"); err == nil {
		t.Fatal("expected mkdir error")
	}
}

func TestConnect_WhenInvalidURL_ShouldReturnError(t *testing.T) {
	// Given: a file URL under a path that cannot be a directory
	prev := mkdirAll
	defer func() { mkdirAll = prev }()
	mkdirAll = func(string, os.FileMode) error { return nil }

	conn, err := Connect("file:/dev/null/impossible.db")

	if err == nil {
		conn.Close()
		t.Fatal("expected error for invalid file URL, got nil")
	}
}

func TestLocalDir(t *testing.T) {
	tests := []struct{ url, want string }{
		{"file:.scenewire/journal.db", ".scenewire"},
		{"file:journal.db", ""},
		{"file:x.db?mode=memory&cache=shared", ""},
		{"file::memory:", ""},
		{"libsql://db.turso.io?authToken=x", ""},
		{"file:/var/lib/scenewire/j.db?_pragma=busy_timeout(500)", "/var/lib/scenewire"},
	}
	for _, tt := range tests {
		if got := localDir(tt.url); got != tt.want {
			t.Errorf("localDir(%q): want %q, got %q", tt.url, tt.want, got)
		}
	}
}

func TestConnect_WhenPingFailsPermanently_ShouldNotRetry(t *testing.T) {
	// Given: a retry budget large enough to hang the test if it were used
	prevRetry, prevMkdir := pingRetry, mkdirAll
	defer func() { pingRetry, mkdirAll = prevRetry, prevMkdir }()
	pingRetry.MaxRetries = 1000
	mkdirAll = func(string, os.FileMode) error { return nil }

	// When: the file path is impossible
	_, err := Connect("file:/dev/null/impossible.db")

	// Then: the error surfaces without the "retries exhausted" wrapper
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "retries exhausted") {
		t.Errorf("permanent error was retried: %v", err)
	}
}
