// Package selection persists which template categories the operator has
// enabled for schema generation.
package selection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// File is the on-disk form: {"selected": [...]}.
type File struct {
	Selected []string `json:"selected"`
}

// Store loads and saves the category selection from a JSON file. An empty
// selection is a valid state, not an error.
type Store struct {
	path string

	mu       sync.Mutex
	selected []string
}

// NewStore returns a store that reads/writes the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the selection file path.
func (s *Store) Path() string { return s.path }

// Load reads the selection from disk. A missing file yields an empty
// selection and no error.
func (s *Store) Load() error {
	data, err := readFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.selected = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("selection load: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("selection parse: %w", err)
	}
	s.mu.Lock()
	s.selected = normalize(f.Selected)
	s.mu.Unlock()
	return nil
}

// Selected returns a copy of the current selection, sorted.
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selected...)
}

// Set replaces the selection (deduplicated and sorted) and writes it to disk
// immediately.
func (s *Store) Set(tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = normalize(tags)
	return s.save()
}

// Toggle adds tag if absent or removes it if present, then saves. It reports
// whether the tag is selected afterwards.
func (s *Store) Toggle(tag string) (bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, fmt.Errorf("selection toggle: empty tag")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]string, 0, len(s.selected)+1)
	found := false
	for _, t := range s.selected {
		if t == tag {
			found = true
			continue
		}
		next = append(next, t)
	}
	if !found {
		next = append(next, tag)
	}
	s.selected = normalize(next)
	return !found, s.save()
}

func (s *Store) save() error {
	if err := mkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("selection save mkdir: %w", err)
	}
	data, err := marshalIndent(File{Selected: append([]string{}, s.selected...)}, "", "  ")
	if err != nil {
		return fmt.Errorf("selection save marshal: %w", err)
	}
	if err := writeFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("selection save write: %w", err)
	}
	return nil
}

func normalize(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Hooks for tests to force error paths.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
	readFile      = os.ReadFile
	mkdirAll      = os.MkdirAll
)
