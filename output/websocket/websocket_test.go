package websocket

import (
	"context"
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

func openOutput(t *testing.T, deps component.Dependencies) *Output {
	t.Helper()
	spec := pipeline.EndpointSpec{Kind: pipeline.KindWebSocket, Host: "127.0.0.1", Port: 0, Path: "/live"}
	out := NewOutput(spec, DefaultConfig(), deps)
	require.NoError(t, out.Open(context.Background()))
	t.Cleanup(func() { _ = out.Close() })
	return out
}

func dial(t *testing.T, out *Output) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+out.Addr().String()+"/live", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return out.Clients() > 0 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func TestOutput_BroadcastsBinaryChunks(t *testing.T) {
	out := openOutput(t, component.Dependencies{})
	a := dial(t, out)
	b := dial(t, out)
	require.Eventually(t, func() bool { return out.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	chunks := []string{"first", "second", string(make([]byte, 100_000))}
	for _, c := range chunks {
		require.NoError(t, out.Write(context.Background(), pipeline.Chunk(c)))
	}

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for _, want := range chunks {
			kind, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, websocket.BinaryMessage, kind)
			assert.Equal(t, want, string(data))
		}
	}
}

func TestOutput_WriteWithoutClients(t *testing.T) {
	out := openOutput(t, component.Dependencies{})
	assert.NoError(t, out.Write(context.Background(), pipeline.Chunk("nobody listening")))
	assert.Equal(t, 0, out.Clients())
}

func TestOutput_CloseDisconnectsClients(t *testing.T) {
	out := openOutput(t, component.Dependencies{})
	conn := dial(t, out)

	require.NoError(t, out.Close())
	assert.Equal(t, 0, out.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.NoError(t, out.Close())
}

func TestOutput_ClientDisconnectIsNoticed(t *testing.T) {
	out := openOutput(t, component.Dependencies{})
	conn := dial(t, out)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return out.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, out.Write(context.Background(), pipeline.Chunk("after leave")))
}

func TestOutput_MetricsSurviveReopen(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	deps := component.Dependencies{MetricsRegistry: registry}
	spec := pipeline.EndpointSpec{Kind: pipeline.KindWebSocket, Host: "127.0.0.1", Port: 0, Path: "/"}

	for i := 0; i < 2; i++ {
		out := NewOutput(spec, DefaultConfig(), deps)
		require.NoError(t, out.Open(context.Background()))
		require.NotNil(t, out.metrics)
		require.NoError(t, out.Close())
	}
	assert.False(t, registry.Unregister("ws_0", "messages_sent"))
}

func TestRegister(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))

	spec, err := pipeline.ParseEndpoint("ws://0.0.0.0:8081/live")
	require.NoError(t, err)
	sink, err := reg.NewSink(spec, component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, spec.String(), sink.Description())

	_, err = reg.NewSource(spec, component.Dependencies{})
	assert.Error(t, err)

	assert.True(t, errors.IsConfiguration(RegisterWithConfig(pipeline.NewRegistry(), Config{})))
}
