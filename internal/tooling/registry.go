package tooling

import (
	"encoding/json"
	"errors"
	"fmt"

	"scenewire/internal/domain"
)

// ErrUnknownTool is returned by Get for names not in the set.
var ErrUnknownTool = errors.New("unknown tool")

// ToolSet holds tool definitions keyed by name, in registration order. The
// schema generator fills one per Generate call; the dispatcher resolves
// inbound calls against it.
type ToolSet struct {
	order []string
	tools map[string]domain.ToolDefinition
}

// NewToolSet returns an empty, ready-to-use set.
func NewToolSet() *ToolSet {
	return &ToolSet{tools: make(map[string]domain.ToolDefinition)}
}

// Register adds a definition. Returns an error if the name is empty or
// already registered.
func (s *ToolSet) Register(def domain.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool must have a name")
	}
	if _, exists := s.tools[def.Name]; exists {
		return fmt.Errorf("tool %q is already registered", def.Name)
	}
	s.order = append(s.order, def.Name)
	s.tools[def.Name] = def
	return nil
}

// Get returns the definition with the given name.
func (s *ToolSet) Get(name string) (domain.ToolDefinition, error) {
	def, ok := s.tools[name]
	if !ok {
		return domain.ToolDefinition{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return def, nil
}

// Has reports whether name is registered.
func (s *ToolSet) Has(name string) bool {
	_, ok := s.tools[name]
	return ok
}

// Names returns tool names in registration order.
func (s *ToolSet) Names() []string { return append([]string(nil), s.order...) }

// Len returns the number of registered tools.
func (s *ToolSet) Len() int { return len(s.order) }

// Definitions returns every definition in registration order, suitable for
// passing to an agent's function-calling API.
func (s *ToolSet) Definitions() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return out
}

// MarshalJSON renders the set as a JSON array of definitions.
func (s *ToolSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Definitions())
}
