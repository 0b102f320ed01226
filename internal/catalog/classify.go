package catalog

import (
	"math"
	"strings"

	"scenewire/internal/domain"
)

// integerRange bounds an integer field by its declared width.
type integerRange struct {
	min, max int64
}

var integerTypes = map[string]integerRange{
	"int":    {math.MinInt64, math.MaxInt64},
	"int64":  {math.MinInt64, math.MaxInt64},
	"long":   {math.MinInt64, math.MaxInt64},
	"int32":  {math.MinInt32, math.MaxInt32},
	"int16":  {math.MinInt16, math.MaxInt16},
	"short":  {math.MinInt16, math.MaxInt16},
	"int8":   {math.MinInt8, math.MaxInt8},
	"sbyte":  {math.MinInt8, math.MaxInt8},
	"uint32": {0, math.MaxUint32},
	"uint":   {0, math.MaxUint32},
	"uint16": {0, math.MaxUint16},
	"ushort": {0, math.MaxUint16},
	"uint8":  {0, math.MaxUint8},
	"byte":   {0, math.MaxUint8},
}

var scalarTypes = map[string]domain.SemanticType{
	"float32": domain.TypeFloat,
	"float":   domain.TypeFloat,
	"float64": domain.TypeFloat,
	"double":  domain.TypeFloat,
	"bool":    domain.TypeBoolean,
	"boolean": domain.TypeBoolean,
	"string":  domain.TypeText,
	"vector2": domain.TypeVector2,
	"vec2":    domain.TypeVector2,
	"vector3": domain.TypeVector3,
	"vec3":    domain.TypeVector3,
	"color":   domain.TypeColor,
	"color32": domain.TypeColor,
}

// Classify maps a declared type onto a semantic tag. Collections, pointers,
// maps, asset references and unknown structs are unsupported.
func (c *Catalog) Classify(declared string) (domain.SemanticType, bool) {
	d := strings.TrimSpace(declared)
	if d == "" || strings.HasPrefix(d, "[]") || strings.HasPrefix(d, "map[") ||
		strings.HasPrefix(d, "*") || strings.HasPrefix(d, "asset:") {
		return "", false
	}
	if _, ok := c.enums[d]; ok {
		return domain.TypeEnum, true
	}
	lower := strings.ToLower(d)
	if _, ok := integerTypes[lower]; ok {
		return domain.TypeInteger, true
	}
	if t, ok := scalarTypes[lower]; ok {
		return t, true
	}
	return "", false
}

func (c *Catalog) handleFor(typeName string, f *FieldSpec) (*Handle, error) {
	kind, ok := c.Classify(f.Declared)
	if !ok {
		return nil, &UnsupportedTypeError{TypeName: typeName, Field: f.Name, Declared: f.Declared}
	}
	h := &Handle{TypeName: typeName, Field: f, Kind: kind}
	switch kind {
	case domain.TypeInteger:
		r := integerTypes[strings.ToLower(strings.TrimSpace(f.Declared))]
		h.IntMin, h.IntMax = r.min, r.max
	case domain.TypeFloat:
		switch strings.ToLower(strings.TrimSpace(f.Declared)) {
		case "float32", "float":
			h.Float32 = true
		}
	case domain.TypeEnum:
		h.EnumValues, _ = c.Enum(strings.TrimSpace(f.Declared))
	}
	return h, nil
}

// UnsupportedTypeError reports a field whose declared type has no semantic tag.
type UnsupportedTypeError struct {
	TypeName string
	Field    string
	Declared string
}

func (e *UnsupportedTypeError) Error() string {
	return "catalog: unsupported type " + e.Declared + " for " + e.TypeName + "." + e.Field
}
