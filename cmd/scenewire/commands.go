package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"scenewire/internal/cli"
	"scenewire/internal/domain"
	"scenewire/internal/gateway"
	"scenewire/internal/scanner"
	"scenewire/internal/tokenizer"
	"scenewire/internal/watch"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the template root and rewrite the metadata snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			snap, report, err := a.rescan(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scanned %d templates, emitted %d, %d issues\n", report.Scanned, report.Emitted, len(report.Issues))
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "  skipped %s\n", issue)
			}
			fmt.Fprintf(out, "snapshot %s written to %s (%d templates)\n", snap.Version, a.cfg.SnapshotPath, len(snap.Templates))
			return nil
		},
	}
}

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the tool schema for the current category selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			selected := a.selection.Selected()
			if cats, _ := cmd.Flags().GetStringSlice("categories"); len(cats) > 0 {
				selected = cats
			}
			schema := a.generator().Generate(selected)
			data, err := schema.MarshalJSON()
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, data, "", "  "); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, buf.String())

			if count, _ := cmd.Flags().GetBool("tokens"); count {
				tok, err := tokenizer.New(a.cfg.Tokenizer)
				if err != nil {
					return err
				}
				n, err := schema.Tokens(tok)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%d tools, %d tokens (%s)\n", len(schema.Names()), n, a.cfg.Tokenizer)
			}
			return nil
		},
	}
	cmd.Flags().Bool("tokens", false, "report the schema's token count on stderr")
	cmd.Flags().StringSlice("categories", nil, "override the saved selection")
	return cmd
}

func newCategoriesCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "categories", Short: "List and select template categories"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories in the snapshot; selected ones are starred",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			all, err := a.registry.AllCategories()
			if err != nil {
				return err
			}
			selected := make(map[string]bool)
			for _, c := range a.selection.Selected() {
				selected[c] = true
			}
			out := cmd.OutOrStdout()
			for _, c := range all {
				mark := " "
				if selected[c] {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s\n", mark, c)
			}
			return nil
		},
	}

	selected := &cobra.Command{
		Use:   "selected",
		Short: "Print the saved selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			for _, c := range a.selection.Selected() {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set [category...]",
		Short: "Replace the selection; no arguments clears it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.selection.Set(args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected: %s\n", strings.Join(a.selection.Selected(), ", "))
			return nil
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <category>",
		Short: "Add or remove one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			on, err := a.selection.Toggle(args[0])
			if err != nil {
				return err
			}
			state := "off"
			if on {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], state)
			return nil
		},
	}

	cmd.AddCommand(list, selected, set, toggle)
	return cmd
}

func newCallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [arguments-json]",
		Short: "Run one tool call locally and print the reply",
		Long: "Run one tool call against a fresh in-memory scene, as the gateway would. " +
			"Arguments default to {} and may be given as '-' to read stdin.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			raw := "{}"
			if len(args) == 2 {
				raw = args[1]
			}
			if raw == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = string(data)
			}
			if !json.Valid([]byte(raw)) {
				return fmt.Errorf("arguments are not valid JSON")
			}
			d, closeJournal := a.dispatcher()
			defer closeJournal()

			reply := d.Call(cmd.Context(), domain.ToolCall{
				ID:        "cli-" + time.Now().UTC().Format("20060102T150405.000"),
				Name:      args[0],
				Arguments: json.RawMessage(raw),
			})
			data, err := json.MarshalIndent(reply, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			if !reply.OK {
				return exitCodeErr(1)
			}
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tools to a remote agent over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx, stop := notifyContext(cmd.Context(), shutdownSignals()...)
			defer stop()

			if rescanFirst, _ := cmd.Flags().GetBool("scan"); rescanFirst {
				if _, _, err := a.rescan(ctx); err != nil {
					return err
				}
			}
			if _, err := a.registry.Load(); err != nil {
				// The fallback tools still work without a snapshot.
				a.logger.Warn("snapshot not loaded, serving fallback tools until the next scan", "error", err)
			}

			d, closeJournal := a.dispatcher()
			defer closeJournal()

			srv, err := gateway.NewServer(&a.cfg.Gateway, d, gateway.WithLogger(a.logger))
			if err != nil {
				return err
			}

			if noWatch, _ := cmd.Flags().GetBool("no-watch"); !noWatch {
				w := newWatcher(a)
				if err := w.Start(); err != nil {
					a.logger.Warn("watch disabled", "error", err)
				} else {
					defer w.Stop()
					go rescanLoop(ctx, a, w, d.Exclusive)
				}
			}

			shutdown := make(chan struct{})
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run(shutdown) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			close(shutdown)
			return <-errCh
		},
	}
	cmd.Flags().Bool("scan", false, "rescan before serving")
	cmd.Flags().Bool("no-watch", false, "do not rescan on template or catalog changes")
	return cmd
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rescan whenever templates or the catalog change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx, stop := notifyContext(cmd.Context(), shutdownSignals()...)
			defer stop()

			if _, _, err := a.rescan(ctx); err != nil {
				return err
			}
			w := newWatcher(a)
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
			rescanLoop(ctx, a, w, unguarded)
			return nil
		},
	}
}

func newJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent tool calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			store, closeJournal, err := a.openJournal()
			if err != nil {
				return err
			}
			defer closeJournal()

			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCALL\tTOOL\tOK\tAPPLIED\tFAILED\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%d\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.CallID, e.Tool, e.OK, e.Applied, e.Failed, e.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of entries")
	return cmd
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check config, templates, catalog, snapshot and selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			fix, _ := cmd.Flags().GetBool("fix")
			code := cli.RunCheck(cfgPath, cli.CheckOptions{Fix: fix}, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if code != 0 {
				return exitCodeErr(code)
			}
			return nil
		},
	}
	cmd.Flags().Bool("fix", false, "write default config and create the template root if missing")
	return cmd
}

func newWatcher(a *app) *watch.Watcher {
	return watch.New(a.cfg.TemplateRoot, a.cfg.CatalogPath,
		watch.WithLogger(a.logger),
		watch.WithDebounce(time.Duration(a.cfg.Watch.DebounceMillis)*time.Millisecond),
		watch.WithSchedule(a.cfg.Watch.Schedule))
}

// rescanLoop rescans on every watcher event until ctx is done. A catalog
// change reloads the catalog first; a broken catalog keeps the old one.
// Each reload and rescan runs inside exclusive, which serve binds to the
// dispatcher so calls and rescans never interleave.
func rescanLoop(ctx context.Context, a *app, w *watch.Watcher, exclusive func(func())) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			var (
				snap   *domain.Snapshot
				report *scanner.Report
				err    error
			)
			exclusive(func() {
				if ev.Reason == watch.ReasonCatalog {
					if rerr := a.reloadCatalog(); rerr != nil {
						a.logger.Error("catalog reload failed, keeping previous", "error", rerr)
					}
				}
				snap, report, err = a.rescan(ctx)
			})
			if err != nil {
				if !errors.Is(err, ctx.Err()) {
					a.logger.Error("rescan failed", "reason", ev.Reason, "error", err)
				}
				continue
			}
			a.logger.Info("rescanned",
				"reason", ev.Reason,
				"changed", len(ev.Paths),
				"templates", len(snap.Templates),
				"issues", len(report.Issues))
		}
	}
}

// unguarded runs fn directly; watch has no concurrent callers.
func unguarded(fn func()) { fn() }
