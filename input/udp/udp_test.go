package udp

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/pipeline"
)

func openLoopback(t *testing.T, deps component.Dependencies) *Input {
	t.Helper()
	in := NewInput("127.0.0.1", 0, DefaultConfig(), deps)
	require.NoError(t, in.Open(context.Background()))
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func send(t *testing.T, to net.Addr, payloads ...string) {
	t.Helper()
	conn, err := net.Dial("udp", to.String())
	require.NoError(t, err)
	defer conn.Close()
	for _, p := range payloads {
		_, err := conn.Write([]byte(p))
		require.NoError(t, err)
	}
}

func TestInput_OneDatagramPerChunk(t *testing.T) {
	in := openLoopback(t, component.Dependencies{})
	send(t, in.LocalAddr(), "first", "second", "third")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, want := range []string{"first", "second", "third"} {
		got, err := in.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestInput_CloseUnblocksRead(t *testing.T) {
	in := NewInput("127.0.0.1", 0, DefaultConfig(), component.Dependencies{})
	require.NoError(t, in.Open(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := in.Read(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, in.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}
	assert.NoError(t, in.Close(), "second Close is a no-op")
}

func TestInput_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	in := openLoopback(t, component.Dependencies{MetricsRegistry: reg})
	send(t, in.LocalAddr(), "abcd", "ef")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		_, err := in.Read(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(in.metrics.packetsReceived))
	assert.Equal(t, 6.0, testutil.ToFloat64(in.metrics.bytesReceived))

	require.NoError(t, in.Close())
	assert.False(t, reg.Unregister(serviceName(0), "packets_received"), "Close unregisters metrics")
}

func TestInput_BindConflict(t *testing.T) {
	first := openLoopback(t, component.Dependencies{})
	port := first.LocalAddr().(*net.UDPAddr).Port

	second := NewInput("127.0.0.1", port, DefaultConfig(), component.Dependencies{})
	assert.Error(t, second.Open(context.Background()))
}

func TestInput_Multicast(t *testing.T) {
	in := NewInput("239.255.42.99", 0, DefaultConfig(), component.Dependencies{})
	if err := in.Open(context.Background()); err != nil {
		t.Skipf("multicast not available here: %v", err)
	}
	defer in.Close()
	assert.Equal(t, fmt.Sprintf("udp://239.255.42.99:%d", 0), in.Description())
}

func TestRegister(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))

	_, err := reg.NewSource(pipeline.EndpointSpec{Kind: pipeline.KindUDP, Host: "127.0.0.1"}, component.Dependencies{})
	assert.ErrorIs(t, err, errors.ErrMalformedSpec)

	src, err := reg.NewSource(pipeline.EndpointSpec{Kind: pipeline.KindUDP, Host: "127.0.0.1", Port: 5000}, component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "udp://127.0.0.1:5000", src.Description())

	assert.True(t, errors.IsConfiguration(RegisterWithConfig(pipeline.NewRegistry(), Config{MaxDatagramSize: 0})))
}
