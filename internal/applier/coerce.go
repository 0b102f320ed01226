package applier

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	"scenewire/internal/catalog"
	"scenewire/internal/domain"
)

// Coerce converts a raw agent value into the canonical value of h's semantic
// type. The result is always accepted by h.Set.
func Coerce(h *catalog.Handle, v any) (any, error) {
	v = normalizeNumber(v)
	switch h.Kind {
	case domain.TypeInteger:
		return toInteger(h, v)
	case domain.TypeFloat:
		return toFloat(h, v)
	case domain.TypeBoolean:
		if !isScalar(v) {
			return nil, conversionError(v, h)
		}
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, conversionError(v, h)
		}
		return b, nil
	case domain.TypeText:
		if !isScalar(v) {
			return nil, conversionError(v, h)
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, conversionError(v, h)
		}
		return s, nil
	case domain.TypeVector2:
		m, err := vectorMembers(v, h, "x", "y")
		if err != nil {
			return nil, err
		}
		return domain.Vector2{X: m[0], Y: m[1]}, nil
	case domain.TypeVector3:
		m, err := vectorMembers(v, h, "x", "y", "z")
		if err != nil {
			return nil, err
		}
		return domain.Vector3{X: m[0], Y: m[1], Z: m[2]}, nil
	case domain.TypeColor:
		s, ok := v.(string)
		if !ok {
			return nil, conversionError(v, h)
		}
		c, err := domain.ParseColor(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a #RRGGBB color", s)
		}
		return c, nil
	case domain.TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, conversionError(v, h)
		}
		for _, allowed := range h.EnumValues {
			if strings.EqualFold(strings.TrimSpace(s), allowed) {
				return allowed, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(h.EnumValues, ", "))
	}
	return nil, fmt.Errorf("unsupported field type %q", h.Kind)
}

func toInteger(h *catalog.Handle, v any) (any, error) {
	if !isScalar(v) || isBool(v) {
		return nil, conversionError(v, h)
	}
	if n, ok := v.(int64); ok {
		return checkIntRange(h, n)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, conversionError(v, h)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not a whole number for %s", v, h.Field.Declared)
	}
	if f < float64(h.IntMin) || f > float64(h.IntMax) || f >= 0x1p63 {
		return nil, fmt.Errorf("%v out of range for %s [%d, %d]", v, h.Field.Declared, h.IntMin, h.IntMax)
	}
	return checkIntRange(h, int64(f))
}

func checkIntRange(h *catalog.Handle, n int64) (any, error) {
	if n < h.IntMin || n > h.IntMax {
		return nil, fmt.Errorf("%d out of range for %s [%d, %d]", n, h.Field.Declared, h.IntMin, h.IntMax)
	}
	return n, nil
}

func toFloat(h *catalog.Handle, v any) (any, error) {
	if !isScalar(v) || isBool(v) {
		return nil, conversionError(v, h)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, conversionError(v, h)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a finite number", v)
	}
	if h.Float32 && math.Abs(f) > math.MaxFloat32 {
		return nil, fmt.Errorf("%v out of range for %s", v, h.Field.Declared)
	}
	return f, nil
}

func vectorMembers(v any, h *catalog.Handle, axes ...string) ([]float64, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, conversionError(v, h)
	}
	out := make([]float64, len(axes))
	for i, a := range axes {
		raw, ok := obj[a]
		if !ok {
			return nil, fmt.Errorf("%s member %q missing", h.Kind, a)
		}
		raw = normalizeNumber(raw)
		if !isNumber(raw) {
			return nil, fmt.Errorf("%s member %q is %s, want number", h.Kind, a, sourceType(raw))
		}
		out[i] = cast.ToFloat64(raw)
	}
	return out, nil
}

// normalizeNumber unwraps json.Number so cast sees plain Go numbers.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	return isNumber(v)
}

// sourceType names the JSON kind of a decoded value.
func sourceType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if isNumber(v) {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func conversionError(v any, h *catalog.Handle) error {
	return fmt.Errorf("cannot convert %s %s to %s (%s)", sourceType(v), preview(v), h.Kind, h.Field.Declared)
}

func preview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	s := string(b)
	if len(s) <= previewMax {
		return s
	}
	cut := 0
	for cut < len(s) {
		_, size := utf8.DecodeRuneInString(s[cut:])
		if cut+size > previewMax-3 {
			break
		}
		cut += size
	}
	return s[:cut] + "..."
}

// previewMax bounds the quoted value in conversion errors, in bytes.
const previewMax = 40
