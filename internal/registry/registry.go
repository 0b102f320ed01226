// Package registry loads the template metadata snapshot, checks its version,
// re-resolves runtime field handles and serves lookups over it.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"scenewire/internal/catalog"
	"scenewire/internal/domain"
	"scenewire/internal/snapshot"
)

var (
	// ErrNoSnapshot is returned by Load when the snapshot file does not exist.
	ErrNoSnapshot = errors.New("registry: no snapshot, run a scan first")

	// ErrVersionMismatch is returned by Load when the stored schema version
	// differs from the expected one.
	ErrVersionMismatch = errors.New("registry: snapshot version mismatch")

	// ErrTemplateNotFound is returned by FindByName and FindByPath.
	ErrTemplateNotFound = errors.New("registry: template not found")
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithExpectedVersion overrides the schema version Load accepts.
func WithExpectedVersion(v string) Option {
	return func(r *Registry) {
		if v != "" {
			r.expected = v
		}
	}
}

type handleKey struct {
	path      string
	parameter string
}

// Registry is the loaded, memoized view of one snapshot file. It is safe for
// concurrent use.
type Registry struct {
	path     string
	catalog  *catalog.Catalog
	expected string
	logger   *slog.Logger

	mu      sync.Mutex
	snap    *domain.Snapshot
	handles map[handleKey]*catalog.Handle
	reads   int
}

// New creates a registry over the snapshot at path. Handles are resolved
// against cat, which may be nil (every entry is then left without a handle).
func New(path string, cat *catalog.Catalog, opts ...Option) *Registry {
	r := &Registry{path: path, catalog: cat, expected: domain.SchemaVersion}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// Path returns the snapshot file this registry reads.
func (r *Registry) Path() string { return r.path }

// Load returns the snapshot, reading it from disk only on the first call
// after construction or Invalidate.
func (r *Registry) Load() (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) loadLocked() (*domain.Snapshot, error) {
	if r.snap != nil {
		return r.snap, nil
	}
	snap, err := snapshot.Read(r.path)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, r.path)
		}
		return nil, fmt.Errorf("registry load: %w", err)
	}
	r.reads++
	if snap.Version != r.expected {
		r.log().Error("snapshot version mismatch, rescan required",
			"path", r.path,
			"stored", snap.Version,
			"expected", r.expected,
			"direction", versionDirection(snap.Version, r.expected))
		return nil, fmt.Errorf("%w: stored %q, expected %q", ErrVersionMismatch, snap.Version, r.expected)
	}
	r.handles = r.resolveHandles(snap)
	r.snap = snap
	r.log().Debug("snapshot loaded", "path", r.path, "templates", len(snap.Templates), "handles", len(r.handles))
	return snap, nil
}

// versionDirection describes a stored version relative to the expected one.
func versionDirection(stored, expected string) string {
	sv, err := semver.NewVersion(stored)
	if err != nil {
		return "unparseable"
	}
	ev, err := semver.NewVersion(expected)
	if err != nil {
		return "unparseable"
	}
	switch sv.Compare(ev) {
	case -1:
		return "older"
	case 1:
		return "newer"
	}
	return "equivalent"
}

func (r *Registry) resolveHandles(snap *domain.Snapshot) map[handleKey]*catalog.Handle {
	handles := make(map[handleKey]*catalog.Handle)
	for _, tmpl := range snap.Templates {
		for _, comp := range tmpl.Components {
			for _, f := range comp.Fields {
				if r.catalog == nil {
					continue
				}
				h, err := r.catalog.Resolve(f.ComponentType, f.Field)
				if err != nil {
					r.log().Warn("field handle unresolvable",
						"template", tmpl.Path,
						"parameter", f.Parameter,
						"error", err)
					continue
				}
				handles[handleKey{tmpl.Path, f.Parameter}] = h
			}
		}
	}
	return handles
}

// Invalidate drops the cached snapshot and handles. The next Load re-reads
// the file.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = nil
	r.handles = nil
	r.log().Debug("registry invalidated", "path", r.path)
}

// Loaded reports whether a snapshot is currently cached.
func (r *Registry) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap != nil
}

// FindByName returns the template with the given symbolic name.
func (r *Registry) FindByName(symbolic string) (*domain.TemplateDescriptor, error) {
	snap, err := r.Load()
	if err != nil {
		return nil, err
	}
	for i := range snap.Templates {
		if snap.Templates[i].SymbolicName == symbolic {
			return &snap.Templates[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, symbolic)
}

// FindByPath returns the template at the given root-relative path.
func (r *Registry) FindByPath(path string) (*domain.TemplateDescriptor, error) {
	snap, err := r.Load()
	if err != nil {
		return nil, err
	}
	for i := range snap.Templates {
		if snap.Templates[i].Path == path {
			return &snap.Templates[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
}

// ByCategories returns the templates whose category is in tags, in snapshot
// order. An empty tag list returns every template. Matching is exact.
func (r *Registry) ByCategories(tags []string) ([]domain.TemplateDescriptor, error) {
	snap, err := r.Load()
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return append([]domain.TemplateDescriptor(nil), snap.Templates...), nil
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	var out []domain.TemplateDescriptor
	for _, tmpl := range snap.Templates {
		if want[tmpl.Category] {
			out = append(out, tmpl)
		}
	}
	return out, nil
}

// AllCategories returns the distinct categories in the snapshot, sorted.
func (r *Registry) AllCategories() ([]string, error) {
	snap, err := r.Load()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, tmpl := range snap.Templates {
		if !seen[tmpl.Category] {
			seen[tmpl.Category] = true
			out = append(out, tmpl.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Handle returns the resolved runtime handle for a template parameter,
// loading the snapshot first when the cache is empty. The second result is
// false when the snapshot cannot be loaded or the entry could not be resolved
// against the catalog.
func (r *Registry) Handle(path, parameter string) (*catalog.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.loadLocked(); err != nil {
		r.log().Warn("handle lookup without snapshot", "path", path, "parameter", parameter, "error", err)
		return nil, false
	}
	h, ok := r.handles[handleKey{path, parameter}]
	return h, ok
}

// Catalog returns the catalog handles are resolved against.
func (r *Registry) Catalog() *catalog.Catalog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalog
}

// SetCatalog swaps the catalog and invalidates, so handles are re-resolved
// against it on the next Load.
func (r *Registry) SetCatalog(cat *catalog.Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = cat
	r.snap = nil
	r.handles = nil
	r.log().Debug("registry catalog replaced", "path", r.path)
}

// Summary renders a short listing of loaded templates for CLI output.
func (r *Registry) Summary() (string, error) {
	snap, err := r.Load()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "snapshot %s: %d templates\n", snap.Version, len(snap.Templates))
	for _, tmpl := range snap.Templates {
		fmt.Fprintf(&b, "  %-32s %-16s %s (%d fields)\n", tmpl.SymbolicName, tmpl.Category, tmpl.Path, tmpl.FieldCount())
	}
	return b.String(), nil
}
