package natsclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/natsclient"
	"github.com/c360/splice/pkg/retry"
	"github.com/c360/splice/testutil"
)

func TestAcquire_SharedIsNotClosed(t *testing.T) {
	bus := testutil.NewMockNATSClient()
	lease, err := natsclient.Acquire(context.Background(), bus, "nats://unused:4222")
	require.NoError(t, err)
	assert.False(t, lease.Owned())
	assert.NoError(t, lease.Release(context.Background()))

	got := make(chan []byte, 1)
	_, err = bus.Subscribe(context.Background(), "s", func(_ context.Context, b []byte) { got <- b })
	require.NoError(t, err)
	require.NoError(t, lease.Publish(context.Background(), "s", []byte("still usable")))
	assert.Equal(t, "still usable", string(<-got))
}

func TestAcquire_DialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := natsclient.Acquire(ctx, nil, "nats://127.0.0.1:1",
		natsclient.WithTimeout(100*time.Millisecond),
		natsclient.WithConnectRetry(retry.Config{MaxAttempts: 1}))
	assert.Error(t, err)
}

func TestMockNATSClient_ExactSubjects(t *testing.T) {
	bus := testutil.NewMockNATSClient()
	ctx := context.Background()

	var a, b []string
	subA, err := bus.Subscribe(ctx, "x", func(_ context.Context, d []byte) { a = append(a, string(d)) })
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "x", func(_ context.Context, d []byte) { b = append(b, string(d)) })
	require.NoError(t, err)
	assert.Equal(t, 2, bus.Subscribers("x"))

	require.NoError(t, bus.Publish(ctx, "x", []byte("1")))
	require.NoError(t, bus.Publish(ctx, "other", []byte("ignored")))
	require.NoError(t, subA.Unsubscribe())
	require.NoError(t, bus.Publish(ctx, "x", []byte("2")))

	assert.Equal(t, []string{"1"}, a)
	assert.Equal(t, []string{"1", "2"}, b)
	assert.Equal(t, 1, bus.Subscribers("x"))
	assert.Len(t, bus.Messages("x"), 2)
}
