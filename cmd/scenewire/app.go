package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"scenewire/internal/applier"
	"scenewire/internal/catalog"
	"scenewire/internal/config"
	"scenewire/internal/db"
	"scenewire/internal/dispatch"
	"scenewire/internal/domain"
	"scenewire/internal/journal"
	"scenewire/internal/registry"
	"scenewire/internal/scanner"
	"scenewire/internal/scene"
	"scenewire/internal/schemagen"
	"scenewire/internal/selection"
)

// app is the wiring shared by every subcommand: config, logger and the
// core components built from them.
type app struct {
	cfgPath   string
	cfg       *domain.Config
	logger    *slog.Logger
	catalog   *catalog.Catalog
	registry  *registry.Registry
	selection *selection.Store
	scene     *scene.Scene
}

// notifyContext is swapped by tests to stop long-running commands without signals.
var notifyContext = signal.NotifyContext

// loadConfig reads the --config file. A missing file falls back to defaults.
func loadConfig(cmd *cobra.Command) (string, *domain.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		if err := config.ApplyEnv(cfg); err != nil {
			return cfgPath, nil, err
		}
		config.CleanPaths(cfg)
		return cfgPath, cfg, nil
	}
	if err != nil {
		return cfgPath, nil, err
	}
	return cfgPath, cfg, nil
}

// newApp loads config and catalog and builds the registry and selection store.
func newApp(cmd *cobra.Command) (*app, error) {
	cfgPath, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	infra := cfg.Infra
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		infra.LogLevel = "debug"
	}
	logger := newLogger(infra, cmd.ErrOrStderr())

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	sel := selection.NewStore(cfg.SelectionPath)
	if err := sel.Load(); err != nil {
		return nil, err
	}
	return &app{
		cfgPath:   cfgPath,
		cfg:       cfg,
		logger:    logger,
		catalog:   cat,
		registry:  registry.New(cfg.SnapshotPath, cat, registry.WithLogger(logger)),
		selection: sel,
		scene:     scene.New(cat, scene.WithLogger(logger)),
	}, nil
}

// reloadCatalog re-reads the catalog file and rebinds everything that
// resolves types against it.
func (a *app) reloadCatalog() error {
	cat, err := catalog.LoadFile(a.cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	a.catalog = cat
	a.registry.SetCatalog(cat)
	a.scene.SetCatalog(cat)
	a.logger.Info("catalog reloaded", "path", a.cfg.CatalogPath, "types", cat.Len())
	return nil
}

func (a *app) scanner() *scanner.Scanner {
	return scanner.New(a.catalog,
		scanner.WithSnapshotPath(a.cfg.SnapshotPath),
		scanner.WithLogger(a.logger))
}

// rescan rebuilds the snapshot and drops the registry cache so the next
// lookup sees it.
func (a *app) rescan(ctx context.Context) (*domain.Snapshot, *scanner.Report, error) {
	snap, report, err := a.scanner().Scan(ctx, a.cfg.TemplateRoot)
	if err != nil {
		return nil, report, err
	}
	a.registry.Invalidate()
	return snap, report, nil
}

func (a *app) generator() *schemagen.Generator {
	return schemagen.New(a.registry, schemagen.WithLogger(a.logger))
}

// openJournal connects the call journal. The returned close func is never nil.
func (a *app) openJournal() (*journal.Store, func(), error) {
	noop := func() {}
	if a.cfg.JournalURL == "" {
		return nil, noop, errors.New("journal disabled: journalUrl is empty")
	}
	conn, err := db.Connect(a.cfg.JournalURL)
	if err != nil {
		return nil, noop, err
	}
	store, err := journal.New(conn)
	if err != nil {
		conn.Close()
		return nil, noop, err
	}
	return store, func() { conn.Close() }, nil
}

// dispatcher wires the full call path. The journal is optional; when it
// cannot be opened calls still run and a warning is logged.
func (a *app) dispatcher() (*dispatch.Dispatcher, func()) {
	opts := []dispatch.Option{dispatch.WithLogger(a.logger)}
	store, closeJournal, err := a.openJournal()
	if err != nil {
		a.logger.Warn("call journal unavailable", "url", a.cfg.JournalURL, "error", err)
	} else {
		opts = append(opts, dispatch.WithJournal(store))
	}
	d := dispatch.NewDispatcher(
		a.generator(),
		liveSelection{store: a.selection, logger: a.logger},
		a.scene,
		applier.New(a.registry, applier.WithLogger(a.logger)),
		opts...,
	)
	return d, closeJournal
}

// liveSelection re-reads the selection file on every lookup so a running
// server picks up `categories set` from another process.
type liveSelection struct {
	store  *selection.Store
	logger *slog.Logger
}

func (l liveSelection) Selected() []string {
	if err := l.store.Load(); err != nil {
		l.logger.Warn("selection reload failed, keeping previous", "path", l.store.Path(), "error", err)
	}
	return l.store.Selected()
}

// newLogger builds the process logger from the infra config.
func newLogger(infra domain.InfraConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(infra.LogLevel)}
	if strings.EqualFold(infra.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
