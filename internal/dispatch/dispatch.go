// Package dispatch executes inbound agent tool calls against the scene.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"scenewire/internal/applier"
	"scenewire/internal/domain"
	"scenewire/internal/scene"
	"scenewire/internal/schemagen"
	"scenewire/internal/tooling"
)

// Selection supplies the operator's current category selection.
type Selection interface {
	Selected() []string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithJournal records every reply. Journal failures are logged, never
// returned to the agent.
func WithJournal(j domain.CallJournal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// Dispatcher resolves a call to a creation tool, creates the instance,
// applies its field parameters and builds the reply. Calls are serialized.
type Dispatcher struct {
	generator *schemagen.Generator
	selection Selection
	scene     *scene.Scene
	applier   *applier.Applier
	journal   domain.CallJournal
	logger    *slog.Logger

	mu sync.Mutex
}

// NewDispatcher wires the core components. Panics if any is nil.
func NewDispatcher(gen *schemagen.Generator, sel Selection, sc *scene.Scene, ap *applier.Applier, opts ...Option) *Dispatcher {
	if gen == nil || sel == nil || sc == nil || ap == nil {
		panic("dispatch: generator, selection, scene and applier must not be nil")
	}
	d := &Dispatcher{generator: gen, selection: sel, scene: sc, applier: ap}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// Exclusive runs fn while no call is in flight. Rescans and catalog reloads
// go through it so a call never sees the registry change halfway.
func (d *Dispatcher) Exclusive(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Schema generates the tool document for the current selection.
func (d *Dispatcher) Schema() *schemagen.Schema {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generator.Generate(d.selection.Selected())
}

// Tools returns the tool definitions for the current selection.
func (d *Dispatcher) Tools() []domain.ToolDefinition {
	return d.Schema().Tools()
}

// Call executes one tool call. Only tools exposed by the current schema are
// callable. Failures are reported in the reply, never as a Go error.
func (d *Dispatcher) Call(ctx context.Context, call domain.ToolCall) domain.ToolReply {
	d.mu.Lock()
	reply := d.call(call)
	d.mu.Unlock()

	level := slog.LevelInfo
	if !reply.OK {
		level = slog.LevelWarn
	}
	d.log().Log(ctx, level, "tool call",
		"call_id", reply.CallID,
		"tool", reply.Tool,
		"ok", reply.OK,
		"applied", reply.Applied,
		"failed", reply.Failed,
		"error", reply.Error)

	if d.journal != nil {
		if err := d.journal.Record(ctx, reply); err != nil {
			d.log().Error("journal record failed", "call_id", reply.CallID, "error", err)
		}
	}
	return reply
}

func (d *Dispatcher) call(call domain.ToolCall) domain.ToolReply {
	reply := domain.ToolReply{CallID: call.ID, Tool: call.Name}
	fail := func(format string, args ...any) domain.ToolReply {
		reply.Error = fmt.Sprintf(format, args...)
		return reply
	}

	schema := d.generator.Generate(d.selection.Selected())
	if !schema.Has(call.Name) {
		return fail("unknown tool %q", call.Name)
	}
	args := call.Arguments
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := tooling.ValidateCreateArgs(args); err != nil {
		return fail("invalid arguments: %v", err)
	}
	var create domain.CreateArgs
	if err := json.Unmarshal(args, &create); err != nil {
		return fail("invalid arguments: %v", err)
	}
	raw, err := decodeRaw(args)
	if err != nil {
		return fail("invalid arguments: %v", err)
	}

	if shape, ok := schema.Primitive(call.Name); ok {
		inst, err := d.scene.Primitive(shape, create)
		if err != nil {
			return fail("%v", err)
		}
		reply.OK = true
		reply.InstanceID = inst.ID
		reply.Errors = unknownParameters(raw)
		reply.Failed = len(reply.Errors)
		return reply
	}

	tmpl, ok := schema.Template(call.Name)
	if !ok {
		return fail("unknown tool %q", call.Name)
	}
	inst, err := d.scene.Instantiate(tmpl, create)
	if err != nil {
		return fail("%v", err)
	}
	res := d.applier.Apply(inst, tmpl, raw)
	reply.OK = true
	reply.InstanceID = inst.ID
	reply.Applied = res.Applied
	reply.Failed = res.Failed()
	reply.Errors = res.Errors
	return reply
}

// decodeRaw keeps numbers as json.Number so integer parameters keep their
// full precision until coercion.
func decodeRaw(args json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// unknownParameters reports every non-transform key sent to a primitive tool,
// which has no fields.
func unknownParameters(raw map[string]any) []domain.ParamError {
	var out []domain.ParamError
	for _, k := range sortedKeys(raw) {
		if !domain.ReservedParameters[k] {
			out = append(out, domain.ParamError{Parameter: k, Reason: "unknown parameter"})
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
