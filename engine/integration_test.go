package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/component"
	"github.com/c360/splice/componentregistry"
	"github.com/c360/splice/natsclient"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/testutil"
)

func TestIntegration_FileThroughNATS(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
	tc := natsclient.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg := pipeline.NewRegistry()
	require.NoError(t, componentregistry.Register(reg))
	deps := component.Dependencies{NATSClient: tc.Client}
	subject := tc.URL + "/splice.integration"

	// The subscribing side has to be running before anything is published.
	out := testutil.TempPath(t, "out.bin")
	sub := New(reg, deps)
	r, err := sub.AddReaderURI(subject)
	require.NoError(t, err)
	_, err = r.AddWriterURI(out)
	require.NoError(t, err)
	require.NoError(t, sub.Run(ctx))

	payload := testutil.RandomBytes(t, 200*1024)
	src := testutil.TempFileWithData(t, "in.bin", payload)
	require.NoError(t, Read(ctx, src, func(r *pipeline.Reader) error {
		_, err := r.AddWriterURI(subject)
		return err
	}, deps))

	testutil.WaitForFileSize(t, out, int64(len(payload)), 10*time.Second)
	require.NoError(t, sub.Stop(ctx))
	require.NoError(t, sub.Wait(ctx))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
