package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSnapshot_JSON_ShouldUseDocumentedFieldNames(t *testing.T) {
	snap := Snapshot{
		Version: SchemaVersion,
		Templates: []TemplateDescriptor{{
			Name:         "Lamp",
			Path:         "lights/lamp.tmpl.yaml",
			Category:     "lights",
			SymbolicName: "createLightsLamp",
			Components: []ComponentDescriptor{{
				TypeName:  "scene.Light",
				ShortName: "Light",
				Fields: []FieldDescriptor{{
					Field: "intensity", DisplayName: "intensity", Type: TypeFloat,
					ComponentType: "scene.Light", Parameter: "Light_intensity", Description: "intensity",
				}},
			}},
		}},
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["version"] != SchemaVersion {
		t.Errorf("version: want %q, got %v", SchemaVersion, raw["version"])
	}
	if _, ok := raw["templates"].([]any); !ok {
		t.Fatalf("templates: expected array, got %T", raw["templates"])
	}
	if strings.Contains(string(data), "enumValues") {
		t.Error("enumValues should be omitted for non-enum fields")
	}
}

func TestTemplateDescriptor_Field_WhenParameterExists_ShouldReturnOwner(t *testing.T) {
	tmpl := TemplateDescriptor{Components: []ComponentDescriptor{
		{TypeName: "a.A", ShortName: "A", Fields: []FieldDescriptor{{Field: "n", Parameter: "A_n"}}},
		{TypeName: "b.B", ShortName: "B", Fields: []FieldDescriptor{{Field: "n", Parameter: "B_n"}}},
	}}

	comp, field, ok := tmpl.Field("B_n")

	if !ok {
		t.Fatal("expected B_n to resolve")
	}
	if comp.TypeName != "b.B" || field.Field != "n" {
		t.Errorf("got component %q field %q", comp.TypeName, field.Field)
	}
	if _, _, ok := tmpl.Field("ghost"); ok {
		t.Error("ghost should not resolve")
	}
	if tmpl.FieldCount() != 2 {
		t.Errorf("FieldCount: want 2, got %d", tmpl.FieldCount())
	}
}

func TestCreateArgs_WhenOptionalAxesMissing_ShouldUseDefaults(t *testing.T) {
	var args CreateArgs
	if err := json.Unmarshal([]byte(`{"name":"Box","x":1,"y":2,"z":0,"scaleY":3}`), &args); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := args.Position(); got != (Vector3{X: 1, Y: 2, Z: 0}) {
		t.Errorf("position: got %+v", got)
	}
	if got := args.Rotation(); got != (Vector3{}) {
		t.Errorf("rotation: got %+v", got)
	}
	if got := args.Scale(); got != (Vector3{X: 1, Y: 3, Z: 1}) {
		t.Errorf("scale: got %+v", got)
	}
}

func TestReservedParameters_ShouldMatchCreateArgsJSONKeys(t *testing.T) {
	one := 1.0
	data, err := json.Marshal(CreateArgs{
		RotX: &one, RotY: &one, RotZ: &one, ScaleX: &one, ScaleY: &one, ScaleZ: &one,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var keys map[string]any
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(keys) != len(ReservedParameters) {
		t.Fatalf("want %d keys, got %d", len(ReservedParameters), len(keys))
	}
	for k := range keys {
		if !ReservedParameters[k] {
			t.Errorf("key %q missing from ReservedParameters", k)
		}
	}
}

func TestSemanticType_Valid(t *testing.T) {
	for _, s := range SemanticTypes {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if SemanticType("matrix").Valid() {
		t.Error("matrix should not be valid")
	}
}

func TestColor_Hex(t *testing.T) {
	if got := (Color{R: 0xFF, G: 0x00, B: 0xAA, A: 0xFF}).Hex(); got != "#FF00AA" {
		t.Errorf("want #FF00AA, got %s", got)
	}
}

func TestParamError_Error(t *testing.T) {
	err := ParamError{Parameter: "ghost", Reason: "unknown parameter"}
	if err.Error() != "ghost: unknown parameter" {
		t.Errorf("got %q", err.Error())
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{in: "#FF00AA", want: Color{R: 0xFF, G: 0x00, B: 0xAA, A: 0xFF}},
		{in: "#0a0B0c", want: Color{R: 0x0A, G: 0x0B, B: 0x0C, A: 0xFF}},
		{in: "not-a-color", wantErr: true},
		{in: "FF00AA", wantErr: true},
		{in: "#FF00AA00", wantErr: true},
		{in: "#GG0000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseColor(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseColor(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q): want %+v, got %+v", tt.in, tt.want, got)
		}
	}
}
