package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Registers "libsql" with database/sql for remote URLs (libsql://,
	// https://, wss://).
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	// Pure-Go SQLite driver; libsql-client-go delegates file: URLs to it.
	_ "modernc.org/sqlite"

	"scenewire/internal/retry"
)

// driverName is the database/sql driver to use. Tests may swap it.
var driverName = "libsql"

// pingRetry governs the connection check; remote databases may need a few
// attempts after a cold start.
var pingRetry = retry.DefaultConfig()

// Connect opens the call journal database and verifies it with a ping. For
// on-disk file: URLs the parent directory is created first.
//
// Supported URL schemes:
//
//	Local file:   "file:.scenewire/journal.db"
//	In memory:    "file:journal.db?mode=memory&cache=shared"
//	Remote Turso: "libsql://[db-name].turso.io?authToken=[token]"
func Connect(dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}
	if dir := localDir(dbURL); dir != "" {
		if err := mkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("db mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql: %w", err)
	}

	err = retry.Do(context.Background(), pingRetry, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// localDir returns the directory holding an on-disk file: database, or ""
// for remote and in-memory URLs.
func localDir(dbURL string) string {
	if !strings.HasPrefix(dbURL, "file:") {
		return ""
	}
	path, query, _ := strings.Cut(strings.TrimPrefix(dbURL, "file:"), "?")
	if strings.Contains(query, "mode=memory") || path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

var mkdirAll = os.MkdirAll
