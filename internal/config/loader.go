// Package config loads and persists scenewire.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"

	"scenewire/internal/domain"
)

// Defaults written by WriteDefault and filled in by Load for empty fields.
const (
	DefaultPath          = "scenewire.json"
	DefaultTemplateRoot  = "templates"
	DefaultCatalogPath   = "catalog.yaml"
	DefaultSnapshotPath  = ".scenewire/templates.json"
	DefaultSelectionPath = ".scenewire/categories.json"
	DefaultJournalURL    = "file:.scenewire/journal.db"
	DefaultPort          = 8080
	DefaultDebounce      = 300
	DefaultTokenizer     = "cl100k_base"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// marshalIndent and writeFile are used by WriteDefault and Save; tests may replace to force errors.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
	getenv        = os.Getenv
)

// Default returns a Config with every field at its default.
func Default() *domain.Config {
	return &domain.Config{
		TemplateRoot:  DefaultTemplateRoot,
		CatalogPath:   DefaultCatalogPath,
		SnapshotPath:  DefaultSnapshotPath,
		SelectionPath: DefaultSelectionPath,
		JournalURL:    DefaultJournalURL,
		Gateway:       domain.GatewayConfig{Port: DefaultPort},
		Watch:         domain.WatchConfig{DebounceMillis: DefaultDebounce},
		Infra:         domain.InfraConfig{LogFormat: "text", LogLevel: "info"},
		Tokenizer:     DefaultTokenizer,
	}
}

// WriteDefault writes a default Config to path (e.g. scenewire.json). Parent directories are not created.
func WriteDefault(path string) error {
	data, err := marshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path, unmarshals into domain.Config, fills empty fields with
// defaults, applies SCENEWIRE_* environment overrides and cleans all path
// fields. Returns error if file is missing, invalid JSON or fails Validate.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	var c domain.Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	ApplyDefaults(&c)
	if err := ApplyEnv(&c); err != nil {
		return nil, err
	}
	CleanPaths(&c)
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills zero-valued fields from Default. An explicit port 0
// cannot be expressed in the file; use SCENEWIRE_PORT=0 for a random port.
func ApplyDefaults(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	d := Default()
	setDefault(&cfg.TemplateRoot, d.TemplateRoot)
	setDefault(&cfg.CatalogPath, d.CatalogPath)
	setDefault(&cfg.SnapshotPath, d.SnapshotPath)
	setDefault(&cfg.SelectionPath, d.SelectionPath)
	setDefault(&cfg.JournalURL, d.JournalURL)
	setDefault(&cfg.Infra.LogFormat, d.Infra.LogFormat)
	setDefault(&cfg.Infra.LogLevel, d.Infra.LogLevel)
	setDefault(&cfg.Tokenizer, d.Tokenizer)
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = d.Watch.DebounceMillis
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// ApplyEnv overrides fields from SCENEWIRE_PORT, SCENEWIRE_AUTH_TOKEN,
// SCENEWIRE_LOG_LEVEL and SCENEWIRE_TEMPLATE_ROOT when they are set.
func ApplyEnv(cfg *domain.Config) error {
	if cfg == nil {
		return nil
	}
	if v := getenv("SCENEWIRE_PORT"); v != "" {
		port, err := cast.ToIntE(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config env SCENEWIRE_PORT: %w", err)
		}
		cfg.Gateway.Port = port
	}
	if v := getenv("SCENEWIRE_AUTH_TOKEN"); v != "" {
		cfg.Gateway.AuthToken = v
	}
	if v := getenv("SCENEWIRE_LOG_LEVEL"); v != "" {
		cfg.Infra.LogLevel = v
	}
	if v := getenv("SCENEWIRE_TEMPLATE_ROOT"); v != "" {
		cfg.TemplateRoot = v
	}
	return nil
}

// CleanPaths applies filepath.Clean to all path fields in cfg to prevent path traversal.
// The journal URL is left alone.
func CleanPaths(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	cfg.TemplateRoot = filepath.Clean(cfg.TemplateRoot)
	cfg.CatalogPath = filepath.Clean(cfg.CatalogPath)
	cfg.SnapshotPath = filepath.Clean(cfg.SnapshotPath)
	cfg.SelectionPath = filepath.Clean(cfg.SelectionPath)
}

// Validate checks ranges and enumerations that the JSON decoder cannot.
func Validate(cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		return fmt.Errorf("%w: gateway.port %d out of range", ErrInvalidConfig, cfg.Gateway.Port)
	}
	if cfg.Watch.DebounceMillis < 0 {
		return fmt.Errorf("%w: watch.debounceMillis must not be negative", ErrInvalidConfig)
	}
	if s := cfg.Watch.Schedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("%w: watch.schedule %q: %v", ErrInvalidConfig, s, err)
		}
	}
	switch strings.ToLower(cfg.Infra.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: infra.logFormat %q (want text or json)", ErrInvalidConfig, cfg.Infra.LogFormat)
	}
	switch strings.ToLower(cfg.Infra.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: infra.logLevel %q", ErrInvalidConfig, cfg.Infra.LogLevel)
	}
	return nil
}

// Save writes cfg to path as JSON, creating the parent directory.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := marshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err := writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}
