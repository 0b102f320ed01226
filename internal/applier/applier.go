// Package applier coerces loosely typed agent arguments and sets them on the
// components of a freshly created scene instance.
package applier

import (
	"log/slog"
	"sort"

	"scenewire/internal/catalog"
	"scenewire/internal/domain"
)

// Target is an instance whose components can receive field values.
type Target interface {
	Component(typeName string) (*catalog.ComponentInstance, bool)
}

// Handles resolves the runtime handle for a template parameter.
type Handles interface {
	Handle(path, parameter string) (*catalog.Handle, bool)
}

// Result reports what one Apply call did. Errors are in parameter order.
type Result struct {
	Applied int
	Errors  []domain.ParamError
}

// Failed returns the number of parameters that could not be applied.
func (r Result) Failed() int { return len(r.Errors) }

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applier) {
		if l != nil {
			a.logger = l
		}
	}
}

// Applier applies raw parameters through registry handles.
type Applier struct {
	handles Handles
	logger  *slog.Logger
}

// New creates an Applier. Panics if handles is nil.
func New(handles Handles, opts ...Option) *Applier {
	if handles == nil {
		panic("applier: handles must not be nil")
	}
	a := &Applier{handles: handles}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Applier) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// Apply sets every non-reserved key of raw on target. A failing parameter is
// recorded and the rest continue; the call itself never fails. Keys are
// processed in sorted order.
func (a *Applier) Apply(target Target, tmpl *domain.TemplateDescriptor, raw map[string]any) Result {
	var res Result
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if !domain.ReservedParameters[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := a.applyOne(target, tmpl, key, raw[key]); err != nil {
			res.Errors = append(res.Errors, *err)
			continue
		}
		res.Applied++
	}
	if len(res.Errors) > 0 {
		a.log().Info("parameters not applied",
			"template", tmpl.Path,
			"applied", res.Applied,
			"failed", len(res.Errors))
	}
	return res
}

func (a *Applier) applyOne(target Target, tmpl *domain.TemplateDescriptor, key string, value any) *domain.ParamError {
	fail := func(reason string) *domain.ParamError {
		a.log().Debug("parameter rejected", "template", tmpl.Path, "parameter", key, "reason", reason)
		return &domain.ParamError{Parameter: key, Reason: reason}
	}
	comp, field, ok := tmpl.Field(key)
	if !ok {
		return fail("unknown parameter")
	}
	ci, ok := target.Component(comp.TypeName)
	if !ok {
		return fail("component " + comp.TypeName + " not present on instance")
	}
	h, ok := a.handles.Handle(tmpl.Path, key)
	if !ok {
		return fail("field " + comp.TypeName + "." + field.Field + " no longer exists")
	}
	v, err := Coerce(h, value)
	if err != nil {
		return fail(err.Error())
	}
	if err := h.Set(ci, v); err != nil {
		return fail(err.Error())
	}
	return nil
}
