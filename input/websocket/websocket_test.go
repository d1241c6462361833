package websocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pipeline"
)

// session is run once per accepted connection; n counts from 1.
type session func(n int, conn *websocket.Conn)

func newServer(t *testing.T, s session) *httptest.Server {
	t.Helper()
	return newLimitedServer(t, 0, s)
}

// newLimitedServer refuses the handshake once limit connections have been
// accepted. Zero means no limit.
func newLimitedServer(t *testing.T, limit int, s session) *httptest.Server {
	t.Helper()
	var count atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(count.Add(1))
		if s == nil || (limit > 0 && n > limit) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s(n, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func specFor(t *testing.T, srv *httptest.Server) pipeline.EndpointSpec {
	t.Helper()
	spec, err := pipeline.ParseEndpoint("ws" + strings.TrimPrefix(srv.URL, "http") + "/feed")
	require.NoError(t, err)
	return spec
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.MaxReconnects = 2
	cfg.ReconnectWait = 10 * time.Millisecond
	cfg.MaxReconnectWait = 50 * time.Millisecond
	return cfg
}

func send(conn *websocket.Conn, msgs ...string) {
	for _, m := range msgs {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(m))
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	// Let the client see the close frame before the socket goes away.
	_, _, _ = conn.ReadMessage()
	_ = conn.Close()
}

func readAll(t *testing.T, in *Input) ([]string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	for {
		chunk, err := in.Read(ctx)
		if err != nil {
			return got, err
		}
		got = append(got, string(chunk))
	}
}

func openInput(t *testing.T, srv *httptest.Server, cfg Config, deps component.Dependencies) *Input {
	t.Helper()
	in := NewInput(specFor(t, srv), cfg, deps)
	require.NoError(t, in.Open(context.Background()))
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func TestInput_MessagesThenNormalClose(t *testing.T) {
	srv := newServer(t, func(_ int, conn *websocket.Conn) {
		send(conn, "one", "two", strings.Repeat("x", 70_000))
		closeNormally(conn)
	})
	in := openInput(t, srv, fastConfig(), component.Dependencies{})

	got, err := readAll(t, in)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"one", "two", strings.Repeat("x", 70_000)}, got)
}

func TestInput_ReconnectsAfterDrop(t *testing.T) {
	srv := newServer(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			send(conn, "before")
			_ = conn.Close()
			return
		}
		send(conn, "after")
		closeNormally(conn)
	})
	in := openInput(t, srv, fastConfig(), component.Dependencies{})

	got, err := readAll(t, in)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"before", "after"}, got)
}

func TestInput_ReconnectExhausted(t *testing.T) {
	srv := newLimitedServer(t, 1, func(_ int, conn *websocket.Conn) {
		send(conn, "only")
		_ = conn.Close()
	})
	in := openInput(t, srv, fastConfig(), component.Dependencies{})

	got, err := readAll(t, in)
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.True(t, errors.IsTransient(err), "got %v", err)
	assert.Equal(t, []string{"only"}, got)
}

func TestInput_ReconnectDisabled(t *testing.T) {
	srv := newServer(t, func(_ int, conn *websocket.Conn) {
		_ = conn.Close()
	})
	cfg := fastConfig()
	cfg.MaxReconnects = 0
	in := openInput(t, srv, cfg, component.Dependencies{})

	_, err := readAll(t, in)
	assert.True(t, errors.IsTransient(err), "got %v", err)
}

func TestInput_OpenRejected(t *testing.T) {
	srv := newServer(t, nil)
	in := NewInput(specFor(t, srv), fastConfig(), component.Dependencies{})
	assert.Error(t, in.Open(context.Background()))

	_, err := in.Read(context.Background())
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.NoError(t, in.Close())
}

func TestInput_CloseUnblocksRead(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, func(_ int, conn *websocket.Conn) {
		<-release
		_ = conn.Close()
	})
	t.Cleanup(func() { close(release) })

	registry := metric.NewMetricsRegistry()
	in := NewInput(specFor(t, srv), fastConfig(), component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, in.Open(context.Background()))

	errc := make(chan error, 1)
	go func() {
		_, err := in.Read(context.Background())
		errc <- err
	}()
	require.NoError(t, in.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("Read still blocked after Close")
	}
	assert.False(t, registry.Unregister(metricService(in.spec.String()), "messages"))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"handshake", func(c *Config) { c.HandshakeTimeout = 0 }},
		{"read limit", func(c *Config) { c.ReadLimit = 0 }},
		{"reconnects", func(c *Config) { c.MaxReconnects = -1 }},
		{"wait order", func(c *Config) { c.MaxReconnectWait = c.ReconnectWait - 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.True(t, errors.IsConfiguration(cfg.Validate()))
		})
	}
}

func TestRegister(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))
	r, ok := reg.Lookup(pipeline.RoleReader, "ws")
	require.True(t, ok)
	assert.Equal(t, pipeline.RoleReader, r.Role)
}
