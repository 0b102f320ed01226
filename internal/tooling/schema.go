package tooling

import (
	"encoding/json"
	"fmt"
	"sync"

	invopopSchema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"scenewire/internal/domain"
)

// Transform defaults advertised on every creation tool.
const (
	DefaultRotation = 0.0
	DefaultScale    = 1.0
)

// marshalFunc is the JSON marshaler used by MarshalSchema. Package-level so
// tests can inject a failing marshaler.
var marshalFunc = json.Marshal

// GenerateSchema reflects a JSON Schema from a Go struct using
// invopop/jsonschema. Definitions are inlined and extra keys are allowed,
// because creation tools append per-template properties to the base.
func GenerateSchema(input interface{}) *invopopSchema.Schema {
	reflector := invopopSchema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	return reflector.Reflect(input)
}

// BaseSchema returns a fresh schema for the transform arguments shared by all
// creation tools: name, position, rotation and scale, with rotation
// defaulting to 0 and scale to 1.
func BaseSchema() *invopopSchema.Schema {
	s := GenerateSchema(domain.CreateArgs{})
	if s.Properties == nil {
		return s
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		switch pair.Key {
		case "rotX", "rotY", "rotZ":
			pair.Value.Default = DefaultRotation
		case "scaleX", "scaleY", "scaleZ":
			pair.Value.Default = DefaultScale
		}
	}
	return s
}

// MarshalSchema renders a schema as compact JSON.
func MarshalSchema(s *invopopSchema.Schema) (json.RawMessage, error) {
	b, err := marshalFunc(s)
	if err != nil {
		return nil, fmt.Errorf("tooling marshal schema: %w", err)
	}
	return b, nil
}

// compiled caches santhosh-tekuri schemas by their source text.
var compiled sync.Map

func compile(schemaStr string) (*jsonschema.Schema, error) {
	if s, ok := compiled.Load(schemaStr); ok {
		return s.(*jsonschema.Schema), nil
	}
	s, err := jsonschema.CompileString("schema.json", schemaStr)
	if err != nil {
		return nil, err
	}
	compiled.Store(schemaStr, s)
	return s, nil
}

// ValidateAgainstSchema validates JSON input against a JSON Schema string.
func ValidateAgainstSchema(input json.RawMessage, schemaStr string) error {
	schema, err := compile(schemaStr)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var inputData interface{}
	if err := json.Unmarshal(input, &inputData); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}

	if err := schema.Validate(inputData); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

var (
	baseOnce sync.Once
	baseText string
	baseErr  error
)

// ValidateCreateArgs checks raw tool arguments against BaseSchema. Keys the
// base does not declare (the per-template field parameters) are allowed and
// left for the applier.
func ValidateCreateArgs(input json.RawMessage) error {
	baseOnce.Do(func() {
		var raw json.RawMessage
		raw, baseErr = MarshalSchema(BaseSchema())
		baseText = string(raw)
	})
	if baseErr != nil {
		return baseErr
	}
	return ValidateAgainstSchema(input, baseText)
}
