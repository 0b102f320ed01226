package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scenewire/internal/domain"
)

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	prev := getenv
	getenv = func(k string) string { return env[k] }
	t.Cleanup(func() { getenv = prev })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenewire.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_WhenFileDoesNotExist_ShouldReturnError(t *testing.T) {
	_, err := Load("/nonexistent/scenewire.json")
	if err == nil {
		t.Fatal("expected error when config file does not exist")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want wrapped ErrNotExist, got %v", err)
	}
}

func TestLoad_WhenFileIsInvalidJSON_ShouldReturnError(t *testing.T) {
	withEnv(t, nil)
	_, err := Load(writeConfig(t, `{ invalid }`))
	if err == nil || !strings.Contains(err.Error(), "config parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoad_WhenFileIsEmptyObject_ShouldFillDefaults(t *testing.T) {
	// Given: a config file with no fields
	withEnv(t, nil)
	path := writeConfig(t, `{}`)

	// When: loading
	got, err := Load(path)

	// Then: every field carries its default
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	CleanPaths(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoad_WhenFileIsValid_ShouldReturnConfigWithCleanedPaths(t *testing.T) {
	withEnv(t, nil)
	path := writeConfig(t, `{
		"templateRoot": "assets/../templates",
		"catalogPath": "./catalog.yaml",
		"snapshotPath": ".scenewire//templates.json",
		"selectionPath": ".scenewire/./categories.json",
		"journalUrl": "file:./journal.db"
	}`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TemplateRoot != "templates" {
		t.Errorf("templateRoot: want templates, got %q", got.TemplateRoot)
	}
	if got.CatalogPath != "catalog.yaml" {
		t.Errorf("catalogPath: got %q", got.CatalogPath)
	}
	if got.SnapshotPath != filepath.Join(".scenewire", "templates.json") {
		t.Errorf("snapshotPath: got %q", got.SnapshotPath)
	}
	if got.SelectionPath != filepath.Join(".scenewire", "categories.json") {
		t.Errorf("selectionPath: got %q", got.SelectionPath)
	}
	if got.JournalURL != "file:./journal.db" {
		t.Errorf("journal URL should not be cleaned, got %q", got.JournalURL)
	}
}

func TestLoad_WhenFileIsValid_ShouldPopulateAllSections(t *testing.T) {
	withEnv(t, nil)
	path := writeConfig(t, `{
		"templateRoot": "/srv/templates",
		"gateway": { "port": 3000, "authToken": "secret-gateway-token" },
		"watch": { "debounceMillis": 50, "schedule": "@every 10m" },
		"infra": { "logFormat": "json", "logLevel": "debug" },
		"tokenizer": "approx"
	}`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Gateway.Port != 3000 || got.Gateway.AuthToken != "secret-gateway-token" {
		t.Errorf("gateway: %+v", got.Gateway)
	}
	if got.Watch.DebounceMillis != 50 || got.Watch.Schedule != "@every 10m" {
		t.Errorf("watch: %+v", got.Watch)
	}
	if got.Infra.LogFormat != "json" || got.Infra.LogLevel != "debug" {
		t.Errorf("infra: %+v", got.Infra)
	}
	if got.TemplateRoot != "/srv/templates" || got.Tokenizer != "approx" {
		t.Errorf("templateRoot=%q tokenizer=%q", got.TemplateRoot, got.Tokenizer)
	}
}

func TestLoad_WhenEnvSet_ShouldOverrideFile(t *testing.T) {
	withEnv(t, map[string]string{
		"SCENEWIRE_PORT":          " 0 ",
		"SCENEWIRE_AUTH_TOKEN":    "from-env",
		"SCENEWIRE_LOG_LEVEL":     "warn",
		"SCENEWIRE_TEMPLATE_ROOT": "other/",
	})
	got, err := Load(writeConfig(t, `{"gateway": {"port": 3000, "authToken": "file"}}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := domain.GatewayConfig{Port: 0, AuthToken: "from-env"}
	if diff := cmp.Diff(want, got.Gateway); diff != "" {
		t.Errorf("gateway (-want +got):\n%s", diff)
	}
	if got.Infra.LogLevel != "warn" || got.TemplateRoot != "other" {
		t.Errorf("logLevel=%q templateRoot=%q", got.Infra.LogLevel, got.TemplateRoot)
	}
}

func TestLoad_WhenEnvPortInvalid_ShouldReturnError(t *testing.T) {
	withEnv(t, map[string]string{"SCENEWIRE_PORT": "eighty"})
	_, err := Load(writeConfig(t, `{}`))
	if err == nil || !strings.Contains(err.Error(), "SCENEWIRE_PORT") {
		t.Fatalf("want env error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.Config)
		wantErr string
	}{
		{"defaults", func(*domain.Config) {}, ""},
		{"port too high", func(c *domain.Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"negative port", func(c *domain.Config) { c.Gateway.Port = -1 }, "gateway.port"},
		{"negative debounce", func(c *domain.Config) { c.Watch.DebounceMillis = -5 }, "debounceMillis"},
		{"cron ok", func(c *domain.Config) { c.Watch.Schedule = "*/5 * * * *" }, ""},
		{"cron bad", func(c *domain.Config) { c.Watch.Schedule = "every now and then" }, "watch.schedule"},
		{"log format", func(c *domain.Config) { c.Infra.LogFormat = "xml" }, "logFormat"},
		{"log level", func(c *domain.Config) { c.Infra.LogLevel = "loud" }, "logLevel"},
		{"upper case level", func(c *domain.Config) { c.Infra.LogLevel = "DEBUG" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("want ErrInvalidConfig mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
	if err := Validate(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil config: got %v", err)
	}
}

func TestCleanPaths_WhenConfigIsNil_ShouldNotPanic(t *testing.T) {
	CleanPaths(nil)
	ApplyDefaults(nil)
	if err := ApplyEnv(nil); err != nil {
		t.Errorf("ApplyEnv(nil): %v", err)
	}
}

func TestCleanPaths_WhenGivenPathWithTraversal_ShouldReturnCleanedPath(t *testing.T) {
	cfg := &domain.Config{TemplateRoot: "a/b/../../../etc", CatalogPath: "x/./y.yaml"}
	CleanPaths(cfg)
	if cfg.TemplateRoot != filepath.Join("..", "etc") {
		t.Errorf("templateRoot: got %q", cfg.TemplateRoot)
	}
	if cfg.CatalogPath != filepath.Join("x", "y.yaml") {
		t.Errorf("catalogPath: got %q", cfg.CatalogPath)
	}
}

func TestWriteDefault_ShouldCreateLoadableConfigFile(t *testing.T) {
	withEnv(t, nil)
	path := filepath.Join(t.TempDir(), "scenewire.json")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load after WriteDefault: %v", err)
	}
	if got.Gateway.Port != DefaultPort || got.JournalURL != DefaultJournalURL {
		t.Errorf("got %+v", got)
	}
}

func TestWriteDefault_WhenParentDirMissing_ShouldReturnWriteError(t *testing.T) {
	// WriteDefault does not create parent dirs
	path := filepath.Join(t.TempDir(), "nonexistent", "scenewire.json")
	if err := WriteDefault(path); err == nil {
		t.Fatal("WriteDefault to path with missing parent: expected error")
	}
}

func TestWriteDefault_WhenMarshalFails_ShouldReturnError(t *testing.T) {
	prev := marshalIndent
	defer func() { marshalIndent = prev }()
	marshalIndent = func(any, string, string) ([]byte, error) {
		return nil, fmt.Errorf("injected marshal error")
	}
	err := WriteDefault(filepath.Join(t.TempDir(), "scenewire.json"))
	if err == nil || !strings.Contains(err.Error(), "marshal") {
		t.Fatalf("want marshal error, got %v", err)
	}
}

func TestSave_WhenConfigNil_ShouldReturnError(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "scenewire.json"), nil)
	if err == nil || !bytes.Contains([]byte(err.Error()), []byte("nil")) {
		t.Fatalf("Save(nil) should mention nil, got %v", err)
	}
}

func TestSave_WhenConfigValid_ShouldPersistAndReload(t *testing.T) {
	withEnv(t, nil)
	path := filepath.Join(t.TempDir(), "nested", "scenewire.json")
	cfg := Default()
	cfg.Gateway = domain.GatewayConfig{Port: 9000, AuthToken: "t"}
	cfg.Watch.Schedule = "@hourly"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	CleanPaths(cfg)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestSave_WhenParentDirIsFile_ShouldReturnMkdirError(t *testing.T) {
	dir := t.TempDir()
	fileAsParent := filepath.Join(dir, "file")
	if err := os.WriteFile(fileAsParent, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	err := Save(filepath.Join(fileAsParent, "scenewire.json"), Default())
	if err == nil || !strings.Contains(err.Error(), "mkdir") {
		t.Fatalf("want mkdir error, got %v", err)
	}
}

func TestSave_WhenMarshalFails_ShouldReturnError(t *testing.T) {
	prev := marshalIndent
	defer func() { marshalIndent = prev }()
	marshalIndent = func(any, string, string) ([]byte, error) {
		return nil, fmt.Errorf("injected marshal error")
	}
	err := Save(filepath.Join(t.TempDir(), "scenewire.json"), Default())
	if err == nil || !strings.Contains(err.Error(), "marshal") {
		t.Fatalf("want marshal error, got %v", err)
	}
}

func TestSave_WhenWriteFileFails_ShouldReturnError(t *testing.T) {
	prev := writeFile
	defer func() { writeFile = prev }()
	writeFile = func(string, []byte, os.FileMode) error {
		return fmt.Errorf("injected write error")
	}
	err := Save(filepath.Join(t.TempDir(), "scenewire.json"), Default())
	if err == nil || !strings.Contains(err.Error(), "write") {
		t.Fatalf("want write error, got %v", err)
	}
}
