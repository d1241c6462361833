package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
)

// Role is the position an entity takes in a tree.
type Role string

// Roles.
const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
	RoleSeam   Role = "seam"
)

// SourceFactory builds a Source from a validated spec. It must not perform
// I/O; that belongs in Source.Open.
type SourceFactory func(spec EndpointSpec, deps component.Dependencies) (Source, error)

// SinkFactory builds a Sink from a validated spec. It must not perform I/O.
type SinkFactory func(spec EndpointSpec, deps component.Dependencies) (Sink, error)

// ProcessorFactory builds a Processor from a validated seam spec.
type ProcessorFactory func(spec SeamSpec, deps component.Dependencies) (Processor, error)

// RegistrationConfig describes one kind. Exactly one of Source, Sink or
// Processor must be set; it decides the role the kind is registered under.
type RegistrationConfig struct {
	Kind        string   // Scheme for endpoints, processor name for seams
	Args        []string // Required arguments, in order
	Description string   // Human-readable description

	Source    SourceFactory
	Sink      SinkFactory
	Processor ProcessorFactory
}

// Registration is a registered kind.
type Registration struct {
	Kind        string   `json:"kind"`
	Role        Role     `json:"role"`
	Args        []string `json:"args"`
	Description string   `json:"description"`

	source    SourceFactory
	sink      SinkFactory
	processor ProcessorFactory
}

// Registry maps kinds to constructors. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Role]map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: map[Role]map[string]*Registration{
			RoleReader: {},
			RoleWriter: {},
			RoleSeam:   {},
		},
	}
}

// RegisterWithConfig adds a kind. Registering the same kind twice for the
// same role fails with errors.ErrDuplicateKind.
func (r *Registry) RegisterWithConfig(cfg RegistrationConfig) error {
	reg := &Registration{
		Kind:        cfg.Kind,
		Args:        append([]string(nil), cfg.Args...),
		Description: cfg.Description,
		source:      cfg.Source,
		sink:        cfg.Sink,
		processor:   cfg.Processor,
	}

	set := 0
	if cfg.Source != nil {
		reg.Role = RoleReader
		set++
	}
	if cfg.Sink != nil {
		reg.Role = RoleWriter
		set++
	}
	if cfg.Processor != nil {
		reg.Role = RoleSeam
		set++
	}
	if cfg.Kind == "" || set != 1 {
		return errors.Configf("Registry", "kind %q needs a name and exactly one factory", cfg.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[reg.Role][reg.Kind]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateKind, "Registry", "RegisterWithConfig",
			fmt.Sprintf("register %s kind %q", reg.Role, reg.Kind))
	}
	r.entries[reg.Role][reg.Kind] = reg
	return nil
}

// Lookup returns the registration for kind under role.
func (r *Registry) Lookup(role Role, kind string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[role][kind]
	return reg, ok
}

// List returns every registration for role, sorted by kind.
func (r *Registry) List(role Role) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.entries[role]))
	for _, reg := range r.entries[role] {
		out = append(out, *reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (r *Registry) resolve(role Role, kind, method string) (*Registration, error) {
	reg, ok := r.Lookup(role, kind)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrUnknownScheme, "Registry", method,
			fmt.Sprintf("resolve %s kind %q", role, kind))
	}
	return reg, nil
}

func (r *Registry) require(reg *Registration, method string, arg func(string) string) error {
	for _, name := range reg.Args {
		if arg(name) == "" {
			return errors.WrapInvalid(errors.ErrMalformedSpec, "Registry", method,
				fmt.Sprintf("read argument %q of %s kind %q", name, reg.Role, reg.Kind))
		}
	}
	return nil
}

// NewSource builds the source for spec.
func (r *Registry) NewSource(spec EndpointSpec, deps component.Dependencies) (Source, error) {
	reg, err := r.resolve(RoleReader, string(spec.Kind), "NewSource")
	if err != nil {
		return nil, err
	}
	if err := r.require(reg, "NewSource", spec.Arg); err != nil {
		return nil, err
	}
	return reg.source(spec, deps)
}

// NewSink builds the sink for spec.
func (r *Registry) NewSink(spec EndpointSpec, deps component.Dependencies) (Sink, error) {
	reg, err := r.resolve(RoleWriter, string(spec.Kind), "NewSink")
	if err != nil {
		return nil, err
	}
	if err := r.require(reg, "NewSink", spec.Arg); err != nil {
		return nil, err
	}
	return reg.sink(spec, deps)
}

// NewProcessor builds the processor for spec.
func (r *Registry) NewProcessor(spec SeamSpec, deps component.Dependencies) (Processor, error) {
	reg, err := r.resolve(RoleSeam, spec.Kind, "NewProcessor")
	if err != nil {
		return nil, err
	}
	if err := r.require(reg, "NewProcessor", func(name string) string { return spec.Args[name] }); err != nil {
		return nil, err
	}
	return reg.processor(spec, deps)
}
