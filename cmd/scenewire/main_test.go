package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scenewire/internal/config"
	"scenewire/internal/domain"
)

const testCatalog = `
types:
  scene.Physics:
    fields:
      - {name: mass, type: float64, default: 1}
      - {name: layers, type: int32}
`

// project is a self-contained working directory with absolute paths.
type project struct {
	dir     string
	cfgPath string
	cfg     *domain.Config
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TemplateRoot = filepath.Join(dir, "templates")
	cfg.CatalogPath = filepath.Join(dir, "catalog.yaml")
	cfg.SnapshotPath = filepath.Join(dir, ".scenewire", "templates.json")
	cfg.SelectionPath = filepath.Join(dir, ".scenewire", "categories.json")
	cfg.JournalURL = "file:" + filepath.Join(dir, ".scenewire", "journal.db")
	cfg.Infra.LogLevel = "error"
	p := &project{dir: dir, cfgPath: filepath.Join(dir, "scenewire.json"), cfg: cfg}
	if err := config.Save(p.cfgPath, cfg); err != nil {
		t.Fatal(err)
	}
	p.write(t, "catalog.yaml", testCatalog)
	p.write(t, "templates/props/crate.tmpl.yaml", "name: Crate\ncomponents: [scene.Physics]\n")
	p.write(t, "templates/props/barrel.tmpl.yaml", "name: Barrel\ncomponents: [scene.Physics]\n")
	p.write(t, "templates/lights/lamp.tmpl.yaml", "name: Lamp\ncomponents: [scene.Physics]\n")
	return p
}

func (p *project) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(p.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// run executes the root command with --config pointing at the project.
func (p *project) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", p.cfgPath}, args...)...)
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCommand(newBuildMeta("1.2.3", "linux", "amd64"))
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestBuildMeta_String(t *testing.T) {
	if got := newBuildMeta("1.0.0", "linux", "arm64").String(); got != "scenewire 1.0.0 linux/arm64" {
		t.Errorf("got %q", got)
	}
	if bm := newBuildMeta("x", "", ""); bm.GoOS == "" || bm.GoArch == "" {
		t.Errorf("runtime defaults not applied: %+v", bm)
	}
}

func TestRoot_WhenVersionFlag_ShouldPrintBuildMeta(t *testing.T) {
	out, _, err := execute(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "scenewire 1.2.3 linux/amd64" {
		t.Errorf("got %q", out)
	}
}

func TestScan_ShouldWriteSnapshotAndReport(t *testing.T) {
	// Given: a project with three templates
	p := newProject(t)

	// When: scanning
	out, _, err := p.run(t, "scan")

	// Then: all three are emitted and the snapshot exists
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "scanned 3 templates, emitted 3, 0 issues") {
		t.Errorf("output: %s", out)
	}
	if _, err := os.Stat(p.cfg.SnapshotPath); err != nil {
		t.Errorf("snapshot missing: %v", err)
	}
}

func TestScan_WhenCatalogMissing_ShouldFail(t *testing.T) {
	p := newProject(t)
	if err := os.Remove(p.cfg.CatalogPath); err != nil {
		t.Fatal(err)
	}
	_, _, err := p.run(t, "scan")
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want not-exist error, got %v", err)
	}
}

func TestCategories_ListSetToggleSelected(t *testing.T) {
	p := newProject(t)
	if _, _, err := p.run(t, "scan"); err != nil {
		t.Fatal(err)
	}

	out, _, err := p.run(t, "categories", "list")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("  lights\n  props\n", out); diff != "" {
		t.Errorf("list before (-want +got):\n%s", diff)
	}

	if out, _, err = p.run(t, "categories", "set", "props"); err != nil || out != "selected: props\n" {
		t.Fatalf("set: %q %v", out, err)
	}
	out, _, _ = p.run(t, "categories", "list")
	if diff := cmp.Diff("  lights\n* props\n", out); diff != "" {
		t.Errorf("list after (-want +got):\n%s", diff)
	}

	if out, _, err = p.run(t, "categories", "toggle", "lights"); err != nil || out != "lights on\n" {
		t.Fatalf("toggle: %q %v", out, err)
	}
	out, _, _ = p.run(t, "categories", "selected")
	if diff := cmp.Diff("lights\nprops\n", out); diff != "" {
		t.Errorf("selected (-want +got):\n%s", diff)
	}
}

func TestSchema_WhenNothingSelected_ShouldPrintFallback(t *testing.T) {
	p := newProject(t)
	if _, _, err := p.run(t, "scan"); err != nil {
		t.Fatal(err)
	}
	out, _, err := p.run(t, "schema")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Fallback bool                    `json:"fallback"`
		Tools    []domain.ToolDefinition `json:"tools"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !got.Fallback || len(got.Tools) != 2 {
		t.Errorf("fallback=%v tools=%d", got.Fallback, len(got.Tools))
	}
}

func TestSchema_WithCategoriesAndTokens(t *testing.T) {
	p := newProject(t)
	p.cfg.Tokenizer = "approx"
	if err := config.Save(p.cfgPath, p.cfg); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.run(t, "scan"); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := p.run(t, "schema", "--categories", "props", "--tokens")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "createPropsCrate") || !strings.Contains(out, "createPropsBarrel") || strings.Contains(out, "createLightsLamp") {
		t.Errorf("schema: %s", out)
	}
	if !strings.Contains(errOut, "2 tools") || !strings.Contains(errOut, "(approx)") {
		t.Errorf("token report: %s", errOut)
	}
}

func TestCall_ShouldApplyFieldsReportGhostAndJournal(t *testing.T) {
	// Given: a scanned project with props selected
	p := newProject(t)
	if _, _, err := p.run(t, "scan"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.run(t, "categories", "set", "props"); err != nil {
		t.Fatal(err)
	}

	// When: calling a template tool with one field and one unknown key
	out, _, err := p.run(t, "call", "createPropsCrate", `{"name":"Box","x":1,"y":2,"z":0,"Physics_mass":3.5,"ghost":5}`)

	// Then: the object is created with one applied and one failed parameter
	if err != nil {
		t.Fatalf("call: %v\n%s", err, out)
	}
	var reply domain.ToolReply
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !reply.OK || reply.Applied != 1 || reply.Failed != 1 || reply.Errors[0].Parameter != "ghost" {
		t.Errorf("reply: %+v", reply)
	}

	// And: the journal lists the call
	out, _, err = p.run(t, "journal", "-n", "5")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if !strings.Contains(out, "createPropsCrate") || !strings.Contains(out, reply.CallID) {
		t.Errorf("journal: %s", out)
	}
}

func TestCall_WhenToolNotExposed_ShouldExitOne(t *testing.T) {
	p := newProject(t)
	if _, _, err := p.run(t, "scan"); err != nil {
		t.Fatal(err)
	}
	out, _, err := p.run(t, "call", "createPropsCrate", `{"name":"Box","x":0,"y":0,"z":0}`)
	var ec exitCodeErr
	if !errors.As(err, &ec) || ec.ExitCode() != 1 {
		t.Fatalf("want exit 1 (nothing selected), got %v", err)
	}
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("output: %s", out)
	}
}

func TestCall_WhenArgumentsNotJSON_ShouldFail(t *testing.T) {
	p := newProject(t)
	if _, _, err := p.run(t, "call", "createCube", "{oops"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCall_WhenArgumentsFromStdin_ShouldRead(t *testing.T) {
	p := newProject(t)
	root := newRootCommand(newBuildMeta("t", "", ""))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(`{"name":"Cube","x":0,"y":0,"z":0}`))
	root.SetArgs([]string{"--config", p.cfgPath, "call", "createCube", "-"})
	if err := root.Execute(); err != nil {
		t.Fatalf("call: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), `"ok": true`) {
		t.Errorf("output: %s", out.String())
	}
}

func TestCheck_WhenHealthy_ShouldReturnNil(t *testing.T) {
	p := newProject(t)
	if _, _, err := p.run(t, "scan"); err != nil {
		t.Fatal(err)
	}
	out, _, err := p.run(t, "check")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Check complete.") {
		t.Errorf("output: %s", out)
	}
}

func TestCheck_WhenBroken_ShouldReturnExitCode(t *testing.T) {
	p := newProject(t)
	os.Remove(p.cfg.CatalogPath)
	_, _, err := p.run(t, "check")
	var ec exitCodeErr
	if !errors.As(err, &ec) || ec.ExitCode() != 1 {
		t.Fatalf("want exit 1, got %v", err)
	}
}

func TestServe_ShouldStopOnSignalContext(t *testing.T) {
	t.Setenv("SCENEWIRE_PORT", "0")
	prev := notifyContext
	notifyContext = func(parent context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithTimeout(parent, 300*time.Millisecond)
	}
	defer func() { notifyContext = prev }()

	p := newProject(t)
	_, _, err := p.run(t, "serve", "--scan")
	if err != nil {
		if s := err.Error(); strings.Contains(s, "operation not permitted") || strings.Contains(s, "permission denied") {
			t.Skip("skipping: cannot bind in this environment (e.g. sandbox)")
		}
		t.Fatalf("serve: %v", err)
	}
	if _, err := os.Stat(p.cfg.SnapshotPath); err != nil {
		t.Errorf("--scan should write the snapshot: %v", err)
	}
}

func TestWatch_ShouldRescanOnTemplateChange(t *testing.T) {
	p := newProject(t)
	p.cfg.Watch.DebounceMillis = 20
	if err := config.Save(p.cfgPath, p.cfg); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := notifyContext
	notifyContext = func(parent context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return ctx, cancel
	}
	defer func() { notifyContext = prev }()

	done := make(chan error, 1)
	go func() {
		_, _, err := p.run(t, "watch")
		done <- err
	}()

	// The initial scan sees three templates; wait for it, then add a fourth.
	// The watcher starts after that scan, so the write is repeated until seen.
	waitFor(t, func() bool { return snapshotTemplates(p) == 3 })
	polls := 0
	waitFor(t, func() bool {
		if snapshotTemplates(p) == 4 {
			return true
		}
		if polls%10 == 0 {
			p.write(t, "templates/props/box.tmpl.yaml", "name: Box\ncomponents: [scene.Physics]\n")
		}
		polls++
		return false
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}

func snapshotTemplates(p *project) int {
	data, err := os.ReadFile(p.cfg.SnapshotPath)
	if err != nil {
		return -1
	}
	var snap domain.Snapshot
	if json.Unmarshal(data, &snap) != nil {
		return -1
	}
	return len(snap.Templates)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{"debug": "DEBUG", " WARN ": "WARN", "warning": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q): want %s, got %s", in, want, got)
		}
	}
}

func TestNewLogger_WhenJSON_ShouldWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(domain.InfraConfig{LogFormat: "JSON", LogLevel: "info"}, &buf).Info("hello", "k", 1)
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("got %s", buf.String())
	}
}

func TestRunApp_ExitCodes(t *testing.T) {
	var errOut bytes.Buffer
	prev := stderr
	stderr = &errOut
	defer func() { stderr = prev }()

	if code := runApp([]string{"scenewire", "--version"}); code != 0 {
		t.Errorf("--version: want 0, got %d", code)
	}
	if code := runApp([]string{"scenewire", "no-such-command"}); code != 1 {
		t.Errorf("unknown command: want 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "error:") {
		t.Errorf("stderr: %s", errOut.String())
	}
	cfg := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(cfg, []byte(`{"gateway":{"port":-5}}`), 0644)
	if code := runApp([]string{"scenewire", "--config", cfg, "check"}); code != 1 {
		t.Errorf("check with invalid config: want 1, got %d", code)
	}
}

func TestMain_ShouldExitWithRunAppCode(t *testing.T) {
	prevExit, prevArgs := exitFunc, os.Args
	defer func() { exitFunc, os.Args = prevExit, prevArgs }()
	got := -1
	exitFunc = func(code int) { got = code }
	os.Args = []string{"scenewire", "--version"}
	main()
	if got != 0 {
		t.Errorf("exit code: want 0, got %d", got)
	}
}
