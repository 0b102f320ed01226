// Package schemagen turns registry templates into agent tool definitions.
package schemagen

import (
	"encoding/json"
	"fmt"
	"log/slog"

	invopopSchema "github.com/invopop/jsonschema"

	"scenewire/internal/domain"
	"scenewire/internal/tooling"
)

// Source is the registry view the generator needs.
type Source interface {
	ByCategories(tags []string) ([]domain.TemplateDescriptor, error)
}

// Fallback tool names and the primitive shapes they create.
const (
	FallbackCube   = "createCube"
	FallbackSphere = "createSphere"
)

// Primitives maps fallback tool names to shape names.
var Primitives = map[string]string{
	FallbackCube:   "cube",
	FallbackSphere: "sphere",
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// Generator builds tool schemas from a Source.
type Generator struct {
	source Source
	logger *slog.Logger
}

// New creates a Generator. Panics if src is nil.
func New(src Source, opts ...Option) *Generator {
	if src == nil {
		panic("schemagen: source must not be nil")
	}
	g := &Generator{source: src}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

// Generate returns the tools exposed for the selected categories. An empty
// selection, an unloadable registry or an empty filter result all yield the
// two-tool fallback.
func (g *Generator) Generate(selected []string) *Schema {
	if len(selected) == 0 {
		g.log().Debug("no categories selected, using fallback tools")
		return Fallback()
	}
	templates, err := g.source.ByCategories(selected)
	if err != nil {
		g.log().Warn("registry unavailable, using fallback tools", "error", err)
		return Fallback()
	}
	if len(templates) == 0 {
		g.log().Info("no templates in selected categories, using fallback tools", "selected", selected)
		return Fallback()
	}

	s := newSchema(false)
	for i := range templates {
		tmpl := &templates[i]
		def, err := g.toolFor(tmpl)
		if err != nil {
			g.log().Warn("skipping template tool", "template", tmpl.Path, "error", err)
			continue
		}
		if err := s.tools.Register(def); err != nil {
			g.log().Warn("skipping template tool", "template", tmpl.Path, "error", err)
			continue
		}
		s.templates[def.Name] = tmpl
	}
	if s.tools.Len() == 0 {
		return Fallback()
	}
	g.log().Debug("schema generated", "tools", s.tools.Len(), "selected", selected)
	return s
}

func (g *Generator) toolFor(tmpl *domain.TemplateDescriptor) (domain.ToolDefinition, error) {
	input := tooling.BaseSchema()
	for _, comp := range tmpl.Components {
		for _, f := range comp.Fields {
			input.Properties.Set(f.Parameter, g.fieldSchema(comp.ShortName, f))
		}
	}
	raw, err := tooling.MarshalSchema(input)
	if err != nil {
		return domain.ToolDefinition{}, err
	}
	return domain.ToolDefinition{
		Name:        tmpl.SymbolicName,
		Description: fmt.Sprintf("Create a %s from the %s category. Position is required; rotation, scale and component fields are optional.", tmpl.Name, tmpl.Category),
		InputSchema: raw,
	}, nil
}

// FieldDescription is "{Short}.{Display}", suffixed with ": {description}"
// when the description says more than the field identifier.
func FieldDescription(shortName string, f domain.FieldDescriptor) string {
	d := shortName + "." + f.DisplayName
	if f.Description != "" && f.Description != f.Field {
		d += ": " + f.Description
	}
	return d
}

func (g *Generator) fieldSchema(shortName string, f domain.FieldDescriptor) *invopopSchema.Schema {
	s := &invopopSchema.Schema{Description: FieldDescription(shortName, f)}
	switch f.Type {
	case domain.TypeInteger, domain.TypeFloat:
		s.Type = "number"
	case domain.TypeBoolean:
		s.Type = "boolean"
	case domain.TypeText:
		s.Type = "string"
	case domain.TypeVector2:
		vectorSchema(s, "x", "y")
	case domain.TypeVector3:
		vectorSchema(s, "x", "y", "z")
	case domain.TypeColor:
		s.Type = "string"
		s.Pattern = domain.HexColorPattern
	case domain.TypeEnum:
		s.Type = "string"
		for _, v := range f.EnumValues {
			s.Enum = append(s.Enum, v)
		}
	default:
		g.log().Warn("unknown field type, exposing as string", "parameter", f.Parameter, "type", f.Type)
		s.Type = "string"
	}
	return s
}

func vectorSchema(s *invopopSchema.Schema, axes ...string) {
	s.Type = "object"
	s.Properties = invopopSchema.NewProperties()
	for _, a := range axes {
		s.Properties.Set(a, &invopopSchema.Schema{Type: "number"})
	}
	s.Required = axes
}

// Schema is one generated tool document.
type Schema struct {
	Fallback  bool
	tools     *tooling.ToolSet
	templates map[string]*domain.TemplateDescriptor
}

func newSchema(fallback bool) *Schema {
	return &Schema{
		Fallback:  fallback,
		tools:     tooling.NewToolSet(),
		templates: make(map[string]*domain.TemplateDescriptor),
	}
}

// Fallback returns the fixed two-tool schema: createCube and createSphere,
// each taking only the transform arguments.
func Fallback() *Schema {
	s := newSchema(true)
	raw, err := tooling.MarshalSchema(tooling.BaseSchema())
	if err != nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	for _, name := range []string{FallbackCube, FallbackSphere} {
		_ = s.tools.Register(domain.ToolDefinition{
			Name:        name,
			Description: fmt.Sprintf("Create a primitive %s in the scene.", Primitives[name]),
			InputSchema: raw,
		})
	}
	return s
}

// Tools returns the tool definitions in order.
func (s *Schema) Tools() []domain.ToolDefinition { return s.tools.Definitions() }

// Names returns the tool names in order.
func (s *Schema) Names() []string { return s.tools.Names() }

// Has reports whether the schema exposes a tool called name.
func (s *Schema) Has(name string) bool { return s.tools.Has(name) }

// Template returns the template behind a tool. False for fallback tools and
// unknown names.
func (s *Schema) Template(name string) (*domain.TemplateDescriptor, bool) {
	t, ok := s.templates[name]
	return t, ok
}

// Primitive returns the shape behind a fallback tool.
func (s *Schema) Primitive(name string) (string, bool) {
	if !s.Fallback || !s.tools.Has(name) {
		return "", false
	}
	shape, ok := Primitives[name]
	return shape, ok
}

type document struct {
	Fallback bool                    `json:"fallback"`
	Tools    []domain.ToolDefinition `json:"tools"`
}

// MarshalJSON renders {"fallback": bool, "tools": [...]}.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{Fallback: s.Fallback, Tools: s.Tools()})
}

// Tokens estimates how many prompt tokens the tool document costs.
func (s *Schema) Tokens(tok domain.Tokenizer) (int, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("schemagen tokens: %w", err)
	}
	return tok.CountTokens(string(b))
}
