// Package watch turns filesystem changes under the template root, edits to
// the type catalog and an optional cron schedule into rescan events.
package watch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scenewire/internal/scanner"
)

// Reason says what triggered an Event.
type Reason string

const (
	ReasonTemplates Reason = "templates"
	ReasonCatalog   Reason = "catalog"
	ReasonSchedule  Reason = "schedule"
)

// Event asks the consumer to rescan. Paths lists the changed files, if any.
type Event struct {
	Reason Reason
	Paths  []string
}

// DefaultDebounce coalesces bursts of writes (editor save, git checkout).
const DefaultDebounce = 300 * time.Millisecond

var (
	ErrAlreadyStarted = errors.New("watch: already started")
	ErrBadSchedule    = errors.New("watch: invalid schedule")
)

// newWatcher creates an fsnotify watcher; tests may replace it to inject errors.
var newWatcher = fsnotify.NewWatcher

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period before a change is reported. Values
// below zero are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithSchedule adds a periodic rescan on the given cron spec.
func WithSchedule(spec string) Option {
	return func(w *Watcher) { w.schedule = spec }
}

// WithCronEngine replaces the robfig engine used for WithSchedule.
func WithCronEngine(e CronEngine) Option {
	return func(w *Watcher) {
		if e != nil {
			w.engine = e
		}
	}
}

// Watcher reports template and catalog changes on Events. Events are
// coalesced: while one is waiting to be received, further changes merge
// into it rather than queueing.
type Watcher struct {
	root        string
	catalogPath string
	debounce    time.Duration
	schedule    string
	engine      CronEngine
	logger      *slog.Logger

	events chan Event

	mu      sync.Mutex
	running bool
	fsw     *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
	pending *Event
}

// New creates a watcher for the template root and the catalog file.
// catalogPath may be empty.
func New(root, catalogPath string, opts ...Option) *Watcher {
	w := &Watcher{
		root:        filepath.Clean(root),
		catalogPath: catalogPath,
		debounce:    DefaultDebounce,
		events:      make(chan Event, 1),
	}
	if catalogPath != "" {
		w.catalogPath = filepath.Clean(catalogPath)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}

// Events delivers rescan requests. The channel is never closed.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start adds watches on every directory under the root and on the catalog's
// directory, starts the cron schedule if one is configured and begins the
// event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyStarted
	}

	fsw, err := newWatcher()
	if err != nil {
		return err
	}
	if err := w.addTree(fsw, w.root); err != nil {
		fsw.Close()
		return err
	}
	if w.catalogPath != "" {
		if err := fsw.Add(filepath.Dir(w.catalogPath)); err != nil {
			fsw.Close()
			return err
		}
	}
	if w.schedule != "" {
		if w.engine == nil {
			w.engine = NewRobfigCronEngine()
		}
		if _, err := w.engine.AddFunc(w.schedule, func() { w.emit(Event{Reason: ReasonSchedule}) }); err != nil {
			fsw.Close()
			return errors.Join(ErrBadSchedule, err)
		}
		w.engine.Start()
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})
	w.running = true
	go w.loop(fsw, w.done, w.stopped)

	w.log().Info("watching",
		"root", w.root,
		"catalog", w.catalogPath,
		"debounce", w.debounce,
		"schedule", w.schedule)
	return nil
}

// Stop ceases watching and releases resources. Safe to call even if not started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.done)
	err := w.fsw.Close()
	stopped := w.stopped
	if w.schedule != "" && w.engine != nil {
		w.engine.Stop()
	}
	w.mu.Unlock()
	<-stopped
	return err
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
}

// classify maps a filesystem event to the reason it matters for, or "".
func (w *Watcher) classify(fsw *fsnotify.Watcher, ev fsnotify.Event) Reason {
	name := filepath.Clean(ev.Name)
	if w.catalogPath != "" && name == w.catalogPath {
		if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
			return ""
		}
		return ReasonCatalog
	}
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	if ev.Has(fsnotify.Create) && isDir(name) {
		if err := w.addTree(fsw, name); err != nil {
			w.log().Warn("watch new directory", "path", name, "error", err)
		}
		return ReasonTemplates
	}
	if !scanner.IsTemplateFile(name) {
		// A removed or renamed directory takes its templates with it.
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			return ReasonTemplates
		}
		return ""
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return ""
	}
	return ReasonTemplates
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		batch   Event
		changed = make(map[string]bool)
	)
	for {
		select {
		case <-done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			reason := w.classify(fsw, ev)
			if reason == "" {
				continue
			}
			w.log().Debug("change detected", "path", ev.Name, "op", ev.Op.String(), "reason", reason)
			if batch.Reason != ReasonCatalog {
				batch.Reason = reason
			}
			changed[filepath.Clean(ev.Name)] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			batch.Paths = sortedPaths(changed)
			w.emit(batch)
			batch = Event{}
			changed = make(map[string]bool)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log().Warn("fsnotify error", "error", err)
		}
	}
}

// emit delivers ev, merging it into an undelivered event if one is waiting.
func (w *Watcher) emit(ev Event) {
	for {
		select {
		case w.events <- ev:
			return
		default:
		}
		select {
		case prev := <-w.events:
			ev = merge(prev, ev)
			w.log().Debug("rescan already pending, merged", "reason", ev.Reason)
		default:
		}
	}
}

// merge combines two events; catalog beats templates beats schedule.
func merge(a, b Event) Event {
	out := Event{Reason: a.Reason}
	if rank(b.Reason) > rank(a.Reason) {
		out.Reason = b.Reason
	}
	seen := make(map[string]bool)
	for _, p := range append(append([]string(nil), a.Paths...), b.Paths...) {
		seen[p] = true
	}
	out.Paths = sortedPaths(seen)
	return out
}

func rank(r Reason) int {
	switch r {
	case ReasonCatalog:
		return 3
	case ReasonTemplates:
		return 2
	case ReasonSchedule:
		return 1
	}
	return 0
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func sortedPaths(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
