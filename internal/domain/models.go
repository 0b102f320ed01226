package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// =============================================================================
// Core Configuration
// =============================================================================

type Config struct {
	TemplateRoot  string        `json:"templateRoot"`  // Directory scanned for *.tmpl.yaml / *.tmpl.hcl files
	CatalogPath   string        `json:"catalogPath"`   // YAML type catalog describing component types
	SnapshotPath  string        `json:"snapshotPath"`  // Versioned metadata snapshot written by scan
	SelectionPath string        `json:"selectionPath"` // Operator category selection
	JournalURL    string        `json:"journalUrl,omitempty"`
	Gateway       GatewayConfig `json:"gateway"`
	Watch         WatchConfig   `json:"watch"`
	Infra         InfraConfig   `json:"infra"`
	Tokenizer     string        `json:"tokenizer,omitempty"` // tiktoken encoding used by `schema --tokens`
}

type GatewayConfig struct {
	Port      int    `json:"port"`
	AuthToken string `json:"authToken,omitempty"` // When set, gateway requires Authorization: Bearer <authToken>
}

// WatchConfig controls automatic rescans.
type WatchConfig struct {
	DebounceMillis int    `json:"debounceMillis"`
	Schedule       string `json:"schedule,omitempty"` // Optional cron spec for periodic rescans, e.g. "@every 10m"
}

type InfraConfig struct {
	LogFormat string `json:"logFormat"` // "json" | "text"
	LogLevel  string `json:"logLevel"`
}

// =============================================================================
// Template Metadata
// =============================================================================

// SchemaVersion is the snapshot layout this build reads and writes. Snapshots
// carrying any other version are rejected on load.
const SchemaVersion = "1.0.0"

// SemanticType is the abstract value kind a settable field is classified into.
type SemanticType string

const (
	TypeInteger SemanticType = "integer"
	TypeFloat   SemanticType = "float"
	TypeBoolean SemanticType = "boolean"
	TypeText    SemanticType = "text"
	TypeVector2 SemanticType = "vector2"
	TypeVector3 SemanticType = "vector3"
	TypeColor   SemanticType = "color"
	TypeEnum    SemanticType = "enum"
)

// SemanticTypes lists every supported tag in a stable order.
var SemanticTypes = []SemanticType{
	TypeInteger, TypeFloat, TypeBoolean, TypeText,
	TypeVector2, TypeVector3, TypeColor, TypeEnum,
}

// Valid reports whether t is one of the supported tags.
func (t SemanticType) Valid() bool {
	for _, s := range SemanticTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Snapshot is the persisted registry: a schema version plus every template
// that exposes at least one settable field.
type Snapshot struct {
	Version   string               `json:"version"`
	Templates []TemplateDescriptor `json:"templates"`
}

type TemplateDescriptor struct {
	Name         string                `json:"name"`
	Path         string                `json:"path"` // slash-separated, relative to the template root
	Category     string                `json:"category"`
	SymbolicName string                `json:"symbolicName"`
	Components   []ComponentDescriptor `json:"components"`
}

type ComponentDescriptor struct {
	TypeName  string            `json:"typeName"`
	ShortName string            `json:"shortName"`
	Fields    []FieldDescriptor `json:"fields"`
}

// FieldDescriptor is pure data. The handle used to set the value is rebuilt
// from (ComponentType, Field) whenever a snapshot is loaded.
type FieldDescriptor struct {
	Field         string       `json:"field"`
	DisplayName   string       `json:"displayName"`
	Type          SemanticType `json:"type"`
	ComponentType string       `json:"componentType"`
	Parameter     string       `json:"parameter"`
	Description   string       `json:"description"`
	EnumValues    []string     `json:"enumValues,omitempty"`
}

// ParameterName builds the namespaced parameter exposed to the agent.
func ParameterName(componentShortName, field string) string {
	return componentShortName + "_" + field
}

// Field returns the descriptor whose Parameter equals parameter, along with
// its owning component. Linear search: templates carry a handful of fields.
func (t *TemplateDescriptor) Field(parameter string) (*ComponentDescriptor, *FieldDescriptor, bool) {
	for ci := range t.Components {
		c := &t.Components[ci]
		for fi := range c.Fields {
			if c.Fields[fi].Parameter == parameter {
				return c, &c.Fields[fi], true
			}
		}
	}
	return nil, nil, false
}

// FieldCount returns the number of settable fields across all components.
func (t *TemplateDescriptor) FieldCount() int {
	n := 0
	for _, c := range t.Components {
		n += len(c.Fields)
	}
	return n
}

// =============================================================================
// Semantic Values
// =============================================================================

type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Color is an 8-bit RGBA color. Agents address it as "#RRGGBB"; alpha stays opaque.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Hex formats c as "#RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// HexColorPattern is the JSON Schema pattern advertised for color parameters.
const HexColorPattern = `^#[0-9A-Fa-f]{6}$`

var hexColor = regexp.MustCompile(HexColorPattern)

// ParseColor parses "#RRGGBB" into an opaque Color.
func ParseColor(s string) (Color, error) {
	if !hexColor.MatchString(s) {
		return Color{}, fmt.Errorf("%q is not a #RRGGBB color", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%q is not a #RRGGBB color: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, nil
}

// =============================================================================
// Tool Calling
// =============================================================================

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// CreateArgs are the transform arguments every creation tool accepts before
// any template-specific field parameters. Rotation and scale are optional and
// default to 0 and 1.
type CreateArgs struct {
	Name   string   `json:"name" jsonschema:"description=Name of the new object in the scene"`
	X      float64  `json:"x" jsonschema:"description=Position X"`
	Y      float64  `json:"y" jsonschema:"description=Position Y"`
	Z      float64  `json:"z" jsonschema:"description=Position Z"`
	RotX   *float64 `json:"rotX,omitempty" jsonschema:"description=Rotation X in degrees"`
	RotY   *float64 `json:"rotY,omitempty" jsonschema:"description=Rotation Y in degrees"`
	RotZ   *float64 `json:"rotZ,omitempty" jsonschema:"description=Rotation Z in degrees"`
	ScaleX *float64 `json:"scaleX,omitempty" jsonschema:"description=Scale X"`
	ScaleY *float64 `json:"scaleY,omitempty" jsonschema:"description=Scale Y"`
	ScaleZ *float64 `json:"scaleZ,omitempty" jsonschema:"description=Scale Z"`
}

// ReservedParameters are the CreateArgs keys. They are consumed by
// instantiation and never resolved as component fields.
var ReservedParameters = map[string]bool{
	"name": true, "x": true, "y": true, "z": true,
	"rotX": true, "rotY": true, "rotZ": true,
	"scaleX": true, "scaleY": true, "scaleZ": true,
}

// Position returns the requested position.
func (a CreateArgs) Position() Vector3 { return Vector3{X: a.X, Y: a.Y, Z: a.Z} }

// Rotation returns the requested rotation, 0 on unset axes.
func (a CreateArgs) Rotation() Vector3 {
	return Vector3{X: orDefault(a.RotX, 0), Y: orDefault(a.RotY, 0), Z: orDefault(a.RotZ, 0)}
}

// Scale returns the requested scale, 1 on unset axes.
func (a CreateArgs) Scale() Vector3 {
	return Vector3{X: orDefault(a.ScaleX, 1), Y: orDefault(a.ScaleY, 1), Z: orDefault(a.ScaleZ, 1)}
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// ToolCall is one function call decoded from the remote agent's payload.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParamError records why a single parameter could not be applied.
type ParamError struct {
	Parameter string `json:"parameter"`
	Reason    string `json:"reason"`
}

func (e ParamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Parameter, e.Reason)
}

// ToolReply is reported back to the agent keyed by the original call ID.
// OK means the object was created; Errors lists parameters that were not applied.
type ToolReply struct {
	CallID     string       `json:"callId"`
	Tool       string       `json:"tool"`
	OK         bool         `json:"ok"`
	InstanceID string       `json:"instanceId,omitempty"`
	Applied    int          `json:"applied"`
	Failed     int          `json:"failed"`
	Errors     []ParamError `json:"errors,omitempty"`
	Error      string       `json:"error,omitempty"`
}
