// Package catalog is the queryable type catalog: a mapping from a component's
// fully-qualified type name to the fields it declares, with typed accessors.
// Scanning and handle resolution are pure lookups against it.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrTypeNotFound  = errors.New("catalog: component type not found")
	ErrFieldNotFound = errors.New("catalog: field not found")
	ErrDuplicateType = errors.New("catalog: component type already registered")
)

// FieldSpec describes one declared field of a component type. Whether it was
// declared as a plain field or a property is irrelevant here: Name is the
// identifier values are set through, Display is what the agent sees.
type FieldSpec struct {
	Name        string
	Display     string
	Declared    string // declared type, e.g. "int32", "Vector3", "[]float64"
	Description string
	Public      bool
	Static      bool
	Exclude     bool
	Settable    bool // explicit opt-in for non-public fields
	Default     any
}

// DisplayName returns Display, or Name when no display name was declared.
func (f *FieldSpec) DisplayName() string {
	if f.Display != "" {
		return f.Display
	}
	return f.Name
}

// ExternallySettable reports whether an agent may set this field: not static,
// not excluded, and either public or explicitly annotated.
func (f *FieldSpec) ExternallySettable() bool {
	if f.Static || f.Exclude {
		return false
	}
	return f.Public || f.Settable
}

// TypeDescriptor is the structural description of one component type.
type TypeDescriptor struct {
	Name   string
	Fields []*FieldSpec
	byName map[string]*FieldSpec
}

// NewType builds a descriptor and indexes its fields by name.
func NewType(name string, fields ...*FieldSpec) *TypeDescriptor {
	t := &TypeDescriptor{Name: name, Fields: fields, byName: make(map[string]*FieldSpec, len(fields))}
	for _, f := range fields {
		t.byName[f.Name] = f
	}
	return t
}

// ShortName returns the last dotted or slashed segment of the type name.
func (t *TypeDescriptor) ShortName() string {
	return ShortName(t.Name)
}

// Field looks up a declared field by identifier.
func (t *TypeDescriptor) Field(name string) (*FieldSpec, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// ShortName strips package qualifiers: "game/props.Light" -> "Light".
func ShortName(typeName string) string {
	if i := strings.LastIndexAny(typeName, "./"); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}

// Catalog holds every component type and enum the host knows about. It is
// built once at startup and read-only afterwards.
type Catalog struct {
	types map[string]*TypeDescriptor
	enums map[string][]string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		types: make(map[string]*TypeDescriptor),
		enums: make(map[string][]string),
	}
}

// Add registers a component type.
func (c *Catalog) Add(t *TypeDescriptor) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("catalog: type must have a name")
	}
	if _, exists := c.types[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, t.Name)
	}
	if t.byName == nil {
		t = NewType(t.Name, t.Fields...)
	}
	c.types[t.Name] = t
	return nil
}

// AddEnum registers an enumeration type and its ordered values.
func (c *Catalog) AddEnum(name string, values []string) error {
	if name == "" {
		return fmt.Errorf("catalog: enum must have a name")
	}
	if len(values) == 0 {
		return fmt.Errorf("catalog: enum %s has no values", name)
	}
	c.enums[name] = append([]string(nil), values...)
	return nil
}

// Lookup returns the descriptor for a fully-qualified type name.
func (c *Catalog) Lookup(typeName string) (*TypeDescriptor, bool) {
	t, ok := c.types[typeName]
	return t, ok
}

// Enum returns the values of a registered enum.
func (c *Catalog) Enum(name string) ([]string, bool) {
	v, ok := c.enums[name]
	return v, ok
}

// Types returns all registered type names, sorted.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.types))
	for name := range c.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered component types.
func (c *Catalog) Len() int { return len(c.types) }

// Resolve builds the runtime handle for (type name, field identifier). It
// fails only when the type or field is not in the catalog, or the field's
// declared type is not a supported semantic type.
func (c *Catalog) Resolve(typeName, field string) (*Handle, error) {
	t, ok := c.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, typeName)
	}
	f, ok := t.Field(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrFieldNotFound, typeName, field)
	}
	return c.handleFor(typeName, f)
}

// =============================================================================
// YAML catalog file
// =============================================================================

type fileCatalog struct {
	Enums map[string][]string `yaml:"enums"`
	Types map[string]fileType `yaml:"types"`
}

type fileType struct {
	Fields []fileField `yaml:"fields"`
}

type fileField struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Display     string `yaml:"display"`
	Description string `yaml:"description"`
	Public      *bool  `yaml:"public"`
	Static      bool   `yaml:"static"`
	Exclude     bool   `yaml:"exclude"`
	Settable    bool   `yaml:"settable"`
	Default     any    `yaml:"default"`
}

// readFile is used by LoadFile; tests may replace it to force read errors.
var readFile = os.ReadFile

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog load: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document. Fields omitting `public` are public.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	c := New()
	for name, values := range fc.Enums {
		if err := c.AddEnum(name, values); err != nil {
			return nil, err
		}
	}
	for name, ft := range fc.Types {
		fields := make([]*FieldSpec, 0, len(ft.Fields))
		seen := make(map[string]bool, len(ft.Fields))
		for _, ff := range ft.Fields {
			if ff.Name == "" {
				return nil, fmt.Errorf("catalog parse: type %s has a field without a name", name)
			}
			if seen[ff.Name] {
				return nil, fmt.Errorf("catalog parse: type %s declares field %s twice", name, ff.Name)
			}
			seen[ff.Name] = true
			public := true
			if ff.Public != nil {
				public = *ff.Public
			}
			fields = append(fields, &FieldSpec{
				Name:        ff.Name,
				Display:     ff.Display,
				Declared:    ff.Type,
				Description: ff.Description,
				Public:      public,
				Static:      ff.Static,
				Exclude:     ff.Exclude,
				Settable:    ff.Settable,
				Default:     ff.Default,
			})
		}
		if err := c.Add(NewType(name, fields...)); err != nil {
			return nil, err
		}
	}
	return c, nil
}
