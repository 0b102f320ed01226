// Package scene is the in-memory instance graph that creation tools write to.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"scenewire/internal/catalog"
	"scenewire/internal/domain"
)

// ErrInstanceNotFound is returned by Get for unknown ids.
var ErrInstanceNotFound = errors.New("scene: instance not found")

// Transform is an instance's placement.
type Transform struct {
	Position domain.Vector3 `json:"position"`
	Rotation domain.Vector3 `json:"rotation"`
	Scale    domain.Vector3 `json:"scale"`
}

// TransformFrom builds a Transform from creation arguments, applying the
// rotation and scale defaults.
func TransformFrom(args domain.CreateArgs) Transform {
	return Transform{Position: args.Position(), Rotation: args.Rotation(), Scale: args.Scale()}
}

// Instance is one object placed in the scene, created either from a template
// or as a primitive shape.
type Instance struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Template  string    `json:"template,omitempty"`
	Shape     string    `json:"shape,omitempty"`
	Transform Transform `json:"transform"`

	components map[string]*catalog.ComponentInstance
}

// Component returns the component of the given type attached to the instance.
func (i *Instance) Component(typeName string) (*catalog.ComponentInstance, bool) {
	ci, ok := i.components[typeName]
	return ci, ok
}

// ComponentTypes returns the attached component types, sorted.
func (i *Instance) ComponentTypes() []string {
	out := make([]string, 0, len(i.components))
	for t := range i.components {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Values copies every component's field values, keyed by component type.
func (i *Instance) Values() map[string]map[string]any {
	out := make(map[string]map[string]any, len(i.components))
	for t, ci := range i.components {
		out[t] = ci.Snapshot()
	}
	return out
}

// Option configures a Scene.
type Option func(*Scene)

// WithLogger sets a structured logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scene) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scene holds instances in creation order. It is safe for concurrent use.
type Scene struct {
	catalog *catalog.Catalog
	logger  *slog.Logger

	mu        sync.RWMutex
	instances map[string]*Instance
	order     []string
}

// New creates an empty scene whose template instances are built from cat.
// Panics if cat is nil.
func New(cat *catalog.Catalog, opts ...Option) *Scene {
	if cat == nil {
		panic("scene: catalog must not be nil")
	}
	s := &Scene{catalog: cat, instances: make(map[string]*Instance)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scene) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// newID is a hook so tests can use predictable ids.
var newID = func() string { return uuid.NewString() }

// Instantiate places a new instance of tmpl. Each component is created with
// its catalog defaults; a component type no longer in the catalog is left
// off the instance and logged.
func (s *Scene) Instantiate(tmpl *domain.TemplateDescriptor, args domain.CreateArgs) (*Instance, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("scene instantiate: nil template")
	}
	inst := &Instance{
		ID:         newID(),
		Name:       nameOr(args.Name, tmpl.Name),
		Template:   tmpl.Path,
		Transform:  TransformFrom(args),
		components: make(map[string]*catalog.ComponentInstance, len(tmpl.Components)),
	}
	s.mu.RLock()
	cat := s.catalog
	s.mu.RUnlock()
	for _, comp := range tmpl.Components {
		ci, err := cat.Instantiate(comp.TypeName)
		if err != nil {
			s.log().Warn("component not instantiated", "template", tmpl.Path, "component", comp.TypeName, "error", err)
			continue
		}
		inst.components[comp.TypeName] = ci
	}
	s.add(inst)
	return inst, nil
}

// SetCatalog swaps the catalog used for new instances. Existing instances
// keep their components. Nil is ignored.
func (s *Scene) SetCatalog(cat *catalog.Catalog) {
	if cat == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = cat
}

// Primitive places a bare shape with no components.
func (s *Scene) Primitive(shape string, args domain.CreateArgs) (*Instance, error) {
	if shape == "" {
		return nil, fmt.Errorf("scene primitive: empty shape")
	}
	inst := &Instance{
		ID:         newID(),
		Name:       nameOr(args.Name, shape),
		Shape:      shape,
		Transform:  TransformFrom(args),
		components: map[string]*catalog.ComponentInstance{},
	}
	s.add(inst)
	return inst, nil
}

func (s *Scene) add(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.ID] = inst
	s.order = append(s.order, inst.ID)
	s.log().Debug("instance created", "id", inst.ID, "name", inst.Name, "template", inst.Template, "shape", inst.Shape)
}

// Get returns the instance with the given id.
func (s *Scene) Get(id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst, nil
}

// List returns all instances in creation order.
func (s *Scene) List() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Instance, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.instances[id])
	}
	return out
}

// Len returns the number of instances.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
