// Package scanner walks a template root, introspects each template's
// components through the type catalog and emits the metadata snapshot.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"scenewire/internal/catalog"
	"scenewire/internal/domain"
	"scenewire/internal/snapshot"
)

// Option is a functional option for configuring a Scanner.
type Option func(*Scanner)

// WithLogger sets a structured logger for the Scanner. If l is nil it is
// ignored and the default slog logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSnapshotPath makes Scan persist its result to path, replacing any
// previous snapshot. Without it Scan only returns the snapshot.
func WithSnapshotPath(path string) Option {
	return func(s *Scanner) { s.snapshotPath = path }
}

// WithVersion overrides the schema version stamped on the snapshot.
func WithVersion(v string) Option {
	return func(s *Scanner) {
		if v != "" {
			s.version = v
		}
	}
}

// ErrRootNotDir is returned when the template root is missing or not a directory.
var ErrRootNotDir = errors.New("scanner: template root is not a directory")

// Scanner extracts settable-field metadata from templates.
type Scanner struct {
	catalog      *catalog.Catalog
	logger       *slog.Logger
	snapshotPath string
	version      string
}

// New creates a Scanner over the given catalog. Panics if cat is nil.
func New(cat *catalog.Catalog, opts ...Option) *Scanner {
	if cat == nil {
		panic("scanner: catalog must not be nil")
	}
	s := &Scanner{catalog: cat, version: domain.SchemaVersion}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Scan processes every template under root in sorted path order. Problems
// with a single template, component or field are logged, recorded in the
// Report and skipped; only an unusable root, a cancelled context or a failed
// snapshot write abort the run.
func (s *Scanner) Scan(ctx context.Context, root string) (*domain.Snapshot, *Report, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}
	files, err := doublestar.Glob(os.DirFS(root), TemplatePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("scanner glob: %w", err)
	}
	sort.Strings(files)

	report := &Report{}
	snap := &domain.Snapshot{Version: s.version, Templates: []domain.TemplateDescriptor{}}
	names := newNamer()

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		report.Scanned++
		tmpl, ok := s.scanTemplate(root, rel, report)
		if !ok {
			continue
		}
		tmpl.SymbolicName = names.assign(tmpl.Category, tmpl.Name)
		snap.Templates = append(snap.Templates, *tmpl)
		report.Emitted++
	}

	s.log().Info("scan complete",
		"root", root,
		"scanned", report.Scanned,
		"emitted", report.Emitted,
		"issues", len(report.Issues))

	if s.snapshotPath != "" {
		if err := snapshot.Write(s.snapshotPath, snap); err != nil {
			return snap, report, err
		}
		s.log().Debug("snapshot written", "path", s.snapshotPath, "templates", len(snap.Templates))
	}
	return snap, report, nil
}

// scanTemplate returns the template descriptor without its symbolic name, or
// false when the template is unreadable or exposes nothing settable.
func (s *Scanner) scanTemplate(root, rel string, report *Report) (*domain.TemplateDescriptor, bool) {
	tf, err := loadTemplate(filepath.Join(root, filepath.FromSlash(rel)), rel)
	if err != nil {
		s.log().Warn("skipping template", "path", rel, "error", err)
		report.add(Issue{Path: rel, Reason: err.Error()})
		return nil, false
	}

	tmpl := &domain.TemplateDescriptor{
		Name:     tf.Name,
		Path:     rel,
		Category: resolveCategory(tf.Category, rel),
	}
	seen := make(map[string]bool, len(tf.Components))
	params := make(map[string]bool)
	for _, typeName := range tf.Components {
		if seen[typeName] {
			s.log().Warn("duplicate component on template", "path", rel, "component", typeName)
			report.add(Issue{Path: rel, Component: typeName, Reason: "duplicate component"})
			continue
		}
		seen[typeName] = true
		comp, ok := s.scanComponent(rel, typeName, params, report)
		if ok {
			tmpl.Components = append(tmpl.Components, comp)
		}
	}
	if len(tmpl.Components) == 0 {
		s.log().Debug("template has no settable fields", "path", rel)
		return nil, false
	}
	return tmpl, true
}

// scanComponent describes the settable fields of one component. params holds
// the parameter names already taken on the template; two types sharing a
// short name cannot both claim the same parameter.
func (s *Scanner) scanComponent(rel, typeName string, params map[string]bool, report *Report) (domain.ComponentDescriptor, bool) {
	td, ok := s.catalog.Lookup(typeName)
	if !ok {
		s.log().Warn("component type not in catalog", "path", rel, "component", typeName)
		report.add(Issue{Path: rel, Component: typeName, Reason: "component type not found"})
		return domain.ComponentDescriptor{}, false
	}
	comp := domain.ComponentDescriptor{TypeName: td.Name, ShortName: td.ShortName()}
	for _, f := range td.Fields {
		if !f.ExternallySettable() {
			continue
		}
		kind, ok := s.catalog.Classify(f.Declared)
		if !ok {
			s.log().Debug("unsupported field type", "path", rel, "component", typeName, "field", f.Name, "type", f.Declared)
			report.add(Issue{Path: rel, Component: typeName, Field: f.Name, Reason: "unsupported type " + f.Declared})
			continue
		}
		fd := s.describeField(td, f, kind)
		if params[fd.Parameter] {
			s.log().Warn("parameter already taken on template", "path", rel, "component", typeName, "parameter", fd.Parameter)
			report.add(Issue{Path: rel, Component: typeName, Field: f.Name, Reason: "duplicate parameter " + fd.Parameter})
			continue
		}
		params[fd.Parameter] = true
		comp.Fields = append(comp.Fields, fd)
	}
	if len(comp.Fields) == 0 {
		return domain.ComponentDescriptor{}, false
	}
	return comp, true
}

func (s *Scanner) describeField(td *catalog.TypeDescriptor, f *catalog.FieldSpec, kind domain.SemanticType) domain.FieldDescriptor {
	fd := domain.FieldDescriptor{
		Field:         f.Name,
		DisplayName:   f.DisplayName(),
		Type:          kind,
		ComponentType: td.Name,
		Parameter:     domain.ParameterName(td.ShortName(), f.Name),
		Description:   f.Description,
	}
	if fd.Description == "" {
		fd.Description = f.Name
	}
	if kind == domain.TypeEnum {
		values, _ := s.catalog.Enum(strings.TrimSpace(f.Declared))
		fd.EnumValues = append([]string(nil), values...)
	}
	return fd
}

// Report summarizes a scan run.
type Report struct {
	Scanned int
	Emitted int
	Issues  []Issue
}

// Issue is one skipped template, component or field.
type Issue struct {
	Path      string
	Component string
	Field     string
	Reason    string
}

func (r *Report) add(i Issue) { r.Issues = append(r.Issues, i) }

// String renders an issue as a single line for CLI output.
func (i Issue) String() string {
	where := i.Path
	if i.Component != "" {
		where += " " + i.Component
	}
	if i.Field != "" {
		where += "." + i.Field
	}
	return where + ": " + i.Reason
}

// HasTemplates reports whether any template file exists under root.
func HasTemplates(root string) (bool, error) {
	matches, err := doublestar.Glob(os.DirFS(root), TemplatePattern, doublestar.WithFilesOnly())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return len(matches) > 0, nil
}
