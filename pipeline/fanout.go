package pipeline

import (
	"sync"

	"github.com/c360/splice/broadcast"
	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
)

// fanout is the part shared by readers and seams: a channel and the
// endpoints subscribed to it.
type fanout struct {
	owner    string
	registry *Registry
	deps     component.Dependencies
	machine  *component.Machine
	channel  *broadcast.Channel[Chunk]

	mu        sync.Mutex
	endpoints []component.LifecycleComponent
}

func newFanout(owner string, registry *Registry, deps component.Dependencies, machine *component.Machine) fanout {
	return fanout{
		owner:    owner,
		registry: registry,
		deps:     deps,
		machine:  machine,
		channel: broadcast.New(owner,
			broadcast.WithMetrics[Chunk](deps.MetricsRegistry),
			broadcast.WithSizer(chunkSize)),
	}
}

func (f *fanout) checkIdle(method string) error {
	if f.machine.State() != component.StateIdle {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, f.owner, method,
			"attach endpoint in state "+f.machine.State().String())
	}
	return nil
}

// AddWriter builds a writer for spec and attaches it. Endpoints can only be
// attached before Start.
func (f *fanout) AddWriter(spec EndpointSpec) (*Writer, error) {
	if err := f.checkIdle("AddWriter"); err != nil {
		return nil, err
	}
	sink, err := f.registry.NewSink(spec, f.deps)
	if err != nil {
		return nil, err
	}
	w := NewWriter(spec, sink, f.channel, f.deps)
	f.attach(w)
	return w, nil
}

// AddWriterURI parses uri and attaches a writer for it.
func (f *fanout) AddWriterURI(uri string) (*Writer, error) {
	spec, err := ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}
	return f.AddWriter(spec)
}

// AddSeam builds a seam for spec and attaches it.
func (f *fanout) AddSeam(spec SeamSpec) (*Seam, error) {
	if err := f.checkIdle("AddSeam"); err != nil {
		return nil, err
	}
	proc, err := f.registry.NewProcessor(spec, f.deps)
	if err != nil {
		return nil, err
	}
	s := NewSeam(spec, proc, f.channel, f.registry, f.deps)
	f.attach(s)
	return s, nil
}

func (f *fanout) attach(c component.LifecycleComponent) {
	f.mu.Lock()
	f.endpoints = append(f.endpoints, c)
	f.mu.Unlock()
}

// Endpoints returns the attached writers and seams in attach order.
func (f *fanout) Endpoints() []component.LifecycleComponent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]component.LifecycleComponent(nil), f.endpoints...)
}

// Writers returns the directly attached writers.
func (f *fanout) Writers() []*Writer {
	var out []*Writer
	for _, ep := range f.Endpoints() {
		if w, ok := ep.(*Writer); ok {
			out = append(out, w)
		}
	}
	return out
}

func (f *fanout) children() []Node {
	var nodes []Node
	for _, ep := range f.Endpoints() {
		switch e := ep.(type) {
		case *Writer:
			nodes = append(nodes, Node{Role: RoleWriter, Endpoint: e.spec})
		case *Seam:
			nodes = append(nodes, e.Topology())
		}
	}
	return nodes
}
