// Package snapshot reads and writes the versioned template metadata file.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"scenewire/internal/domain"
)

// ErrNotFound is returned by Read when no snapshot has been written yet.
var ErrNotFound = errors.New("snapshot: not found")

// Hooks for tests to force error paths.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
	readFile      = os.ReadFile
	mkdirAll      = os.MkdirAll
	rename        = os.Rename
)

// Write replaces the snapshot at path. The document is written to a sibling
// temp file first so readers never observe a half-written snapshot.
func Write(path string, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot write: nil snapshot")
	}
	if err := mkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("snapshot write mkdir: %w", err)
	}
	data, err := marshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot write marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	if err := rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("snapshot write rename: %w", err)
	}
	return nil
}

// Read parses the snapshot at path without validating its version.
func Read(path string) (*domain.Snapshot, error) {
	data, err := readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("snapshot read: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot parse: %w", err)
	}
	return &snap, nil
}
