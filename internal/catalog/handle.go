package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"scenewire/internal/domain"
)

// Handle gets and sets one field on component instances of one type. Set
// accepts only the canonical Go value of its semantic type; converting raw
// agent input into that value is the caller's job.
type Handle struct {
	TypeName   string
	Field      *FieldSpec
	Kind       domain.SemanticType
	EnumValues []string
	IntMin     int64
	IntMax     int64
	Float32    bool
}

// Get returns the current value of the field on ci.
func (h *Handle) Get(ci *ComponentInstance) (any, bool) {
	if ci == nil || ci.Type != h.TypeName {
		return nil, false
	}
	v, ok := ci.values[h.Field.Name]
	return v, ok
}

// Set stores v on ci after checking it against the field's semantic type.
func (h *Handle) Set(ci *ComponentInstance, v any) error {
	if ci == nil {
		return fmt.Errorf("set %s.%s: nil component", h.TypeName, h.Field.Name)
	}
	if ci.Type != h.TypeName {
		return fmt.Errorf("set %s.%s: component is %s", h.TypeName, h.Field.Name, ci.Type)
	}
	if err := h.check(v); err != nil {
		return fmt.Errorf("set %s.%s: %w", h.TypeName, h.Field.Name, err)
	}
	ci.values[h.Field.Name] = v
	return nil
}

func (h *Handle) check(v any) error {
	switch h.Kind {
	case domain.TypeInteger:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("want int64, got %T", v)
		}
		if n < h.IntMin || n > h.IntMax {
			return fmt.Errorf("%d overflows %s", n, h.Field.Declared)
		}
	case domain.TypeFloat:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("want float64, got %T", v)
		}
		if h.Float32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return fmt.Errorf("%g overflows %s", f, h.Field.Declared)
		}
	case domain.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
	case domain.TypeText:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("want string, got %T", v)
		}
	case domain.TypeEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		for _, e := range h.EnumValues {
			if e == s {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %v", s, h.EnumValues)
	case domain.TypeVector2:
		if _, ok := v.(domain.Vector2); !ok {
			return fmt.Errorf("want Vector2, got %T", v)
		}
	case domain.TypeVector3:
		if _, ok := v.(domain.Vector3); !ok {
			return fmt.Errorf("want Vector3, got %T", v)
		}
	case domain.TypeColor:
		if _, ok := v.(domain.Color); !ok {
			return fmt.Errorf("want Color, got %T", v)
		}
	default:
		return fmt.Errorf("unknown semantic type %q", h.Kind)
	}
	return nil
}

// zero returns the value a fresh component starts with when the catalog
// declares no usable default.
func (h *Handle) zero() any {
	switch h.Kind {
	case domain.TypeInteger:
		return int64(0)
	case domain.TypeFloat:
		return float64(0)
	case domain.TypeBoolean:
		return false
	case domain.TypeText:
		return ""
	case domain.TypeEnum:
		if len(h.EnumValues) > 0 {
			return h.EnumValues[0]
		}
		return ""
	case domain.TypeVector2:
		return domain.Vector2{}
	case domain.TypeVector3:
		return domain.Vector3{}
	case domain.TypeColor:
		return domain.Color{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	}
	return nil
}

// normalizeDefault converts a YAML-decoded default into the canonical value.
func (h *Handle) normalizeDefault(d any) (any, bool) {
	switch h.Kind {
	case domain.TypeInteger:
		switch n := d.(type) {
		case int:
			return int64(n), true
		case int64:
			return n, true
		case float64:
			if n == math.Trunc(n) {
				return int64(n), true
			}
		}
	case domain.TypeFloat:
		switch n := d.(type) {
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case float64:
			return n, true
		}
	case domain.TypeBoolean, domain.TypeText:
		return d, true
	case domain.TypeEnum:
		if s, ok := d.(string); ok {
			for _, e := range h.EnumValues {
				if strings.EqualFold(e, s) {
					return e, true
				}
			}
		}
	case domain.TypeColor:
		if s, ok := d.(string); ok {
			if c, err := domain.ParseColor(s); err == nil {
				return c, true
			}
		}
	case domain.TypeVector2, domain.TypeVector3:
		m, ok := d.(map[string]any)
		if !ok {
			return nil, false
		}
		axis := func(k string) float64 {
			switch n := m[k].(type) {
			case int:
				return float64(n)
			case float64:
				return n
			}
			return 0
		}
		if h.Kind == domain.TypeVector2 {
			return domain.Vector2{X: axis("x"), Y: axis("y")}, true
		}
		return domain.Vector3{X: axis("x"), Y: axis("y"), Z: axis("z")}, true
	}
	return nil, false
}

// ComponentInstance is the live value bag of one component attached to a
// scene object. Values are only written through Handles.
type ComponentInstance struct {
	Type   string
	values map[string]any
}

// Instantiate creates a component instance of typeName with every supported
// field at its declared default (or zero value).
func (c *Catalog) Instantiate(typeName string) (*ComponentInstance, error) {
	t, ok := c.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, typeName)
	}
	ci := &ComponentInstance{Type: typeName, values: make(map[string]any, len(t.Fields))}
	for _, f := range t.Fields {
		h, err := c.handleFor(typeName, f)
		if err != nil {
			continue
		}
		v := h.zero()
		if f.Default != nil {
			if d, ok := h.normalizeDefault(f.Default); ok && h.check(d) == nil {
				v = d
			}
		}
		ci.values[f.Name] = v
	}
	return ci, nil
}

// Value returns the current value of a field.
func (ci *ComponentInstance) Value(field string) (any, bool) {
	v, ok := ci.values[field]
	return v, ok
}

// Fields returns the names of all stored fields, sorted.
func (ci *ComponentInstance) Fields() []string {
	out := make([]string, 0, len(ci.values))
	for k := range ci.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot copies the stored values, for display and serialization.
func (ci *ComponentInstance) Snapshot() map[string]any {
	out := make(map[string]any, len(ci.values))
	for k, v := range ci.values {
		out[k] = v
	}
	return out
}
