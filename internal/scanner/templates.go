package scanner

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// TemplatePattern matches template files under the scan root.
const TemplatePattern = "**/*.tmpl.{yaml,yml,hcl}"

var templateSuffixes = []string{".tmpl.yaml", ".tmpl.yml", ".tmpl.hcl"}

// templateFile is a template definition as read from disk, before any
// introspection against the catalog.
type templateFile struct {
	Name       string
	Category   string
	Components []string
}

// yamlTemplate is the YAML form:
//
//	name: Street Lamp
//	category: Lighting
//	components: [scene.Light, scene.Transform]
type yamlTemplate struct {
	Name       string   `yaml:"name"`
	Category   string   `yaml:"category"`
	Components []string `yaml:"components"`
}

// hclTemplate is the HCL form:
//
//	name     = "Street Lamp"
//	category = "Lighting"
//	component "scene.Light" {}
type hclTemplate struct {
	Name       string          `hcl:"name,optional"`
	Category   string          `hcl:"category,optional"`
	Components []*hclComponent `hcl:"component,block"`
}

type hclComponent struct {
	Type string `hcl:"type,label"`
}

// readTemplateFile is used by loadTemplate; tests may replace it to force read errors.
var readTemplateFile = os.ReadFile

// loadTemplate decodes one template file. rel is the slash path relative to
// the root and only used for the display-name fallback and messages.
func loadTemplate(abs, rel string) (*templateFile, error) {
	src, err := readTemplateFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	var tf *templateFile
	if strings.HasSuffix(rel, ".hcl") {
		tf, err = decodeHCL(src, rel)
	} else {
		tf, err = decodeYAML(src, rel)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tf.Name) == "" {
		tf.Name = baseName(rel)
	}
	return tf, nil
}

func decodeYAML(src []byte, rel string) (*templateFile, error) {
	var yt yamlTemplate
	if err := yaml.Unmarshal(src, &yt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", rel, err)
	}
	return &templateFile{Name: yt.Name, Category: yt.Category, Components: yt.Components}, nil
}

func decodeHCL(src []byte, rel string) (*templateFile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, rel)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", rel, diags)
	}
	var ht hclTemplate
	diags = gohcl.DecodeBody(file.Body, nil, &ht)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", rel, diags)
	}
	tf := &templateFile{Name: ht.Name, Category: ht.Category}
	for _, c := range ht.Components {
		tf.Components = append(tf.Components, c.Type)
	}
	return tf, nil
}

// baseName strips the directory and template suffix: "props/old_crate.tmpl.yaml" -> "old_crate".
func baseName(rel string) string {
	b := path.Base(rel)
	for _, s := range templateSuffixes {
		if strings.HasSuffix(b, s) {
			return strings.TrimSuffix(b, s)
		}
	}
	return strings.TrimSuffix(b, path.Ext(b))
}

// IsTemplateFile reports whether name carries one of the template suffixes.
func IsTemplateFile(name string) bool {
	b := path.Base(filepath.ToSlash(name))
	for _, s := range templateSuffixes {
		if strings.HasSuffix(b, s) {
			return true
		}
	}
	return false
}
