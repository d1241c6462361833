package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/splice/component"
)

// memSource emits a fixed list of chunks. An endless source then blocks
// until it is closed.
type memSource struct {
	name    string
	chunks  [][]byte
	endless bool
	openErr error

	opened    atomic.Bool
	emitted   atomic.Int64
	closed    chan struct{}
	closeOnce sync.Once
}

func newMemSource(name string, chunks [][]byte, endless bool) *memSource {
	return &memSource{name: name, chunks: chunks, endless: endless, closed: make(chan struct{})}
}

func (s *memSource) Open(context.Context) error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened.Store(true)
	return nil
}

func (s *memSource) Read(ctx context.Context) (Chunk, error) {
	if i := s.emitted.Load(); int(i) < len(s.chunks) {
		s.emitted.Add(1)
		return s.chunks[i], nil
	}
	if !s.endless {
		return nil, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.ErrClosedPipe
	}
}

func (s *memSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *memSource) Description() string { return "mem://" + s.name }

func (s *memSource) all() []byte { return bytes.Join(s.chunks, nil) }

// memSink records every chunk it is given.
type memSink struct {
	name       string
	openErr    error
	openGate   chan struct{}
	failAfter  int
	writeDelay time.Duration

	mu         sync.Mutex
	chunks     [][]byte
	opened     bool
	closed     bool
	afterClose bool
}

func (s *memSink) Open(ctx context.Context) error {
	if s.openGate != nil {
		select {
		case <-s.openGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.openErr != nil {
		return s.openErr
	}
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	return nil
}

func (s *memSink) Write(_ context.Context, chunk Chunk) error {
	if s.writeDelay > 0 {
		time.Sleep(s.writeDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.afterClose = true
	}
	if s.failAfter > 0 && len(s.chunks) >= s.failAfter {
		return errors.New("device full")
	}
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memSink) Description() string { return "mem://" + s.name }

func (s *memSink) snapshot() (data []byte, chunks int, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.chunks, nil), len(s.chunks), s.closed
}

// fixture is a registry whose file kind resolves to in-memory sources and
// sinks keyed by path.
type fixture struct {
	reg *Registry

	mu      sync.Mutex
	sources map[string]*memSource
	sinks   map[string]*memSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reg:     NewRegistry(),
		sources: map[string]*memSource{},
		sinks:   map[string]*memSink{},
	}
	must := func(err error) {
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(f.reg.RegisterWithConfig(RegistrationConfig{
		Kind: string(KindFile),
		Args: []string{"path"},
		Source: func(spec EndpointSpec, _ component.Dependencies) (Source, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			src, ok := f.sources[spec.Path]
			if !ok {
				return nil, errors.New("no such source " + spec.Path)
			}
			return src, nil
		},
	}))
	must(f.reg.RegisterWithConfig(RegistrationConfig{
		Kind: string(KindFile),
		Args: []string{"path"},
		Sink: func(spec EndpointSpec, _ component.Dependencies) (Sink, error) {
			return f.sink(spec.Path), nil
		},
	}))
	must(f.reg.RegisterWithConfig(RegistrationConfig{
		Kind: "passthrough",
		Processor: func(SeamSpec, component.Dependencies) (Processor, error) {
			return ProcessorFunc(func(_ context.Context, c Chunk, out Pusher) error {
				return out.Push(c)
			}), nil
		},
	}))
	must(f.reg.RegisterWithConfig(RegistrationConfig{
		Kind: "upper",
		Processor: func(SeamSpec, component.Dependencies) (Processor, error) {
			return ProcessorFunc(func(_ context.Context, c Chunk, out Pusher) error {
				return out.Push(Chunk(strings.ToUpper(string(c))))
			}), nil
		},
	}))
	must(f.reg.RegisterWithConfig(RegistrationConfig{
		Kind: "explode",
		Args: []string{"after"},
		Processor: func(spec SeamSpec, _ component.Dependencies) (Processor, error) {
			after, err := strconv.Atoi(spec.Args["after"])
			if err != nil {
				return nil, err
			}
			var n int
			return ProcessorFunc(func(_ context.Context, c Chunk, out Pusher) error {
				n++
				if n > after {
					return errors.New("processor exploded")
				}
				return out.Push(c)
			}), nil
		},
	}))
	must(f.reg.RegisterWithConfig(RegistrationConfig{
		Kind: "manual",
		Processor: func(SeamSpec, component.Dependencies) (Processor, error) {
			return nil, nil
		},
	}))
	return f
}

func (f *fixture) source(path string, src *memSource) EndpointSpec {
	f.mu.Lock()
	f.sources[path] = src
	f.mu.Unlock()
	return EndpointSpec{Kind: KindFile, Path: path}
}

func (f *fixture) sink(path string) *memSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sinks[path]
	if !ok {
		s = &memSink{name: path}
		f.sinks[path] = s
	}
	return s
}

func fileSpec(path string) EndpointSpec {
	return EndpointSpec{Kind: KindFile, Path: path}
}

func testChunks(n, size int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = bytes.Repeat([]byte{byte('a' + i%26)}, size+i%7)
	}
	return out
}

func waitDone(t *testing.T, c component.LifecycleComponent) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("%s never stopped (state %s)", c.Description(), c.State())
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
