package catalog

import (
	"fmt"
	"reflect"
	"strings"
)

// FromStruct describes a Go struct as a component type. Exported fields are
// public, unexported ones are not. The `scene` tag refines each field:
//
//	scene:"-"                  excluded
//	scene:"settable"           non-public but settable
//	scene:"display=Intensity"  name shown to the agent
//	scene:"desc=Light power"   description
//
// Options combine with commas; desc must come last since it may contain commas.
func FromStruct(typeName string, v any) (*TypeDescriptor, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("catalog: %s must be a struct, got %v", typeName, t)
	}
	fields := make([]*FieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous {
			continue
		}
		f := &FieldSpec{
			Name:     sf.Name,
			Declared: declaredName(sf.Type),
			Public:   sf.IsExported(),
		}
		applyTag(f, sf.Tag.Get("scene"))
		fields = append(fields, f)
	}
	return NewType(typeName, fields...), nil
}

// MustFromStruct is FromStruct for static registration at init time.
func MustFromStruct(typeName string, v any) *TypeDescriptor {
	t, err := FromStruct(typeName, v)
	if err != nil {
		panic(err)
	}
	return t
}

func applyTag(f *FieldSpec, tag string) {
	if tag == "" {
		return
	}
	if tag == "-" {
		f.Exclude = true
		return
	}
	rest := tag
	for rest != "" {
		var opt string
		if strings.HasPrefix(rest, "desc=") {
			opt, rest = rest, ""
		} else if i := strings.IndexByte(rest, ','); i >= 0 {
			opt, rest = rest[:i], rest[i+1:]
		} else {
			opt, rest = rest, ""
		}
		switch {
		case opt == "settable":
			f.Settable = true
		case opt == "-":
			f.Exclude = true
		case strings.HasPrefix(opt, "display="):
			f.Display = strings.TrimPrefix(opt, "display=")
		case strings.HasPrefix(opt, "desc="):
			f.Description = strings.TrimPrefix(opt, "desc=")
		}
	}
}

// declaredName renders a Go type the way catalog files spell declared types:
// named types by their bare name, everything else by its Go syntax.
func declaredName(t reflect.Type) string {
	if t.Name() != "" && t.PkgPath() != "" {
		return t.Name()
	}
	return t.String()
}
