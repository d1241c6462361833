package natsclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	requireIntegration(t)
	tc := NewTestClient(t)
	ctx := context.Background()

	assert.True(t, tc.Client.IsHealthy())

	got := make(chan []byte, 3)
	sub, err := tc.Client.Subscribe(ctx, "splice.test", func(_ context.Context, data []byte) {
		got <- data
	})
	require.NoError(t, err)

	for _, msg := range []string{"a", "bb", "ccc"} {
		require.NoError(t, tc.Client.Publish(ctx, "splice.test", []byte(msg)))
	}
	require.NoError(t, tc.Client.Flush(ctx))

	for _, want := range []string{"a", "bb", "ccc"} {
		select {
		case data := <-got:
			assert.Equal(t, want, string(data))
		case <-time.After(5 * time.Second):
			t.Fatal("message not delivered")
		}
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe(), "second unsubscribe is a no-op")
}
