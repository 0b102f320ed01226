// Package cli holds command bodies that are more than wiring.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"scenewire/internal/catalog"
	"scenewire/internal/config"
	"scenewire/internal/domain"
	"scenewire/internal/scanner"
	"scenewire/internal/selection"
	"scenewire/internal/snapshot"
)

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Fix bool // write default config and create the template root when missing
}

// RunCheck checks config, gateway, template root, catalog, snapshot and
// selection, optionally repairing what it can. Returns the exit code: 1 when
// something would stop scan or serve from working.
func RunCheck(cfgPath string, opts CheckOptions, stdout, stderr io.Writer) int {
	note := func(section, message string) {
		fmt.Fprintf(stdout, "  [%s] %s\n", section, message)
	}
	failed := false

	// 1. Config
	cfg, err := config.Load(cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		note("Config", fmt.Sprintf("No config at %s.", cfgPath))
		if opts.Fix {
			if writeErr := writeDefaultConfig(cfgPath); writeErr != nil {
				fmt.Fprintf(stderr, "  failed to write default config: %v\n", writeErr)
				return 1
			}
			note("Config", fmt.Sprintf("Wrote default config to %s.", cfgPath))
		} else {
			note("Config", "Run with --fix to create a default scenewire.json. Using defaults.")
		}
		cfg = config.Default()
	case err != nil:
		note("Config", err.Error())
		return 1
	default:
		note("Config", fmt.Sprintf("Loaded %s.", cfgPath))
	}

	// 2. Gateway
	note("Gateway", fmt.Sprintf("port=%d auth=%t", cfg.Gateway.Port, cfg.Gateway.AuthToken != ""))
	if cfg.Gateway.AuthToken == "" {
		note("Gateway", "No auth token. Set gateway.authToken before exposing the gateway beyond localhost.")
	}

	// 3. Template root
	if err := ensureDir(cfg.TemplateRoot, "templateRoot", opts.Fix); err != nil {
		note("Templates", err.Error())
		failed = true
	} else if ok, err := scanner.HasTemplates(cfg.TemplateRoot); err != nil {
		note("Templates", err.Error())
		failed = true
	} else if !ok {
		note("Templates", fmt.Sprintf("%s has no template files (%s).", cfg.TemplateRoot, scanner.TemplatePattern))
	} else {
		note("Templates", fmt.Sprintf("templateRoot %s ok.", cfg.TemplateRoot))
	}

	// 4. Catalog
	if cat, err := catalog.LoadFile(cfg.CatalogPath); err != nil {
		note("Catalog", err.Error())
		failed = true
	} else {
		note("Catalog", fmt.Sprintf("%s: %d component types.", cfg.CatalogPath, cat.Len()))
	}

	// 5. Snapshot
	snap, err := snapshot.Read(cfg.SnapshotPath)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		note("Snapshot", fmt.Sprintf("No snapshot at %s. Run scenewire scan.", cfg.SnapshotPath))
	case err != nil:
		note("Snapshot", err.Error())
		failed = true
	case snap.Version != domain.SchemaVersion:
		note("Snapshot", fmt.Sprintf("version %q, this build expects %q. Run scenewire scan.", snap.Version, domain.SchemaVersion))
		failed = true
	default:
		note("Snapshot", fmt.Sprintf("version %s, %d templates.", snap.Version, len(snap.Templates)))
	}

	// 6. Selection
	store := selection.NewStore(cfg.SelectionPath)
	if err := store.Load(); err != nil {
		note("Selection", err.Error())
		failed = true
	} else if sel := store.Selected(); len(sel) == 0 {
		note("Selection", "No categories selected: agents see the primitive fallback tools only.")
	} else {
		note("Selection", strings.Join(sel, ", "))
	}

	fmt.Fprintln(stdout, "  Check complete.")
	if failed {
		return 1
	}
	return 0
}

func ensureDir(dir, label string, create bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			if !create {
				return fmt.Errorf("%s %q: missing (run with --fix to create)", label, abs)
			}
			if mkErr := os.MkdirAll(abs, 0755); mkErr != nil {
				return fmt.Errorf("%s %q: mkdir failed: %w", label, abs, mkErr)
			}
			return nil
		}
		return fmt.Errorf("%s %q: %w", label, abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %q: not a directory", label, abs)
	}
	return nil
}

// writeDefaultConfig is swapped by tests to force write failures.
var writeDefaultConfig = config.WriteDefault
