package pipe

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func drain(t *testing.T, in *Input) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	for {
		c, err := in.Read(ctx)
		out.Write(c)
		if err == io.EOF {
			return out.Bytes()
		}
		require.NoError(t, err)
	}
}

func TestInput_ReadsCommandOutput(t *testing.T) {
	requireShell(t)
	in := NewInput("printf 'hello'; printf ' world'", DefaultConfig(), component.Dependencies{})
	require.NoError(t, in.Open(context.Background()))
	defer in.Close()

	assert.Equal(t, "hello world", string(drain(t, in)))
}

func TestInput_LargeOutputInBoundedReads(t *testing.T) {
	requireShell(t)
	cfg := DefaultConfig()
	cfg.ReadSize = 1000
	in := NewInput("head -c 100000 /dev/zero", cfg, component.Dependencies{})
	require.NoError(t, in.Open(context.Background()))
	defer in.Close()

	ctx := context.Background()
	total := 0
	for {
		c, err := in.Read(ctx)
		assert.LessOrEqual(t, len(c), 1000)
		total += len(c)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, 100000, total)
}

func TestInput_FailingCommandStillEnds(t *testing.T) {
	requireShell(t)
	in := NewInput("echo oops >&2; exit 3", DefaultConfig(), component.Dependencies{})
	require.NoError(t, in.Open(context.Background()))
	defer in.Close()

	assert.Empty(t, drain(t, in))
	assert.Error(t, in.wait())
	assert.Contains(t, in.stderr.String(), "oops")
}

func TestInput_CloseAfterExitDoesNotKill(t *testing.T) {
	requireShell(t)
	in := NewInput("printf done", DefaultConfig(), component.Dependencies{})
	require.NoError(t, in.Open(context.Background()))

	assert.Equal(t, "done", string(drain(t, in)))
	assert.True(t, in.exited.Load())
	require.NoError(t, in.Close())
	assert.NoError(t, in.wait(), "a reaped command keeps its clean exit status")
}

func TestInput_CloseWhileReaping(t *testing.T) {
	requireShell(t)
	for i := 0; i < 20; i++ {
		in := NewInput("printf x", DefaultConfig(), component.Dependencies{})
		require.NoError(t, in.Open(context.Background()))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, err := in.Read(context.Background()); err != nil {
					return
				}
			}
		}()
		require.NoError(t, in.Close())
		<-done
		_ = in.wait()
		assert.True(t, in.exited.Load())
	}
}

func TestInput_CloseKillsEndlessCommand(t *testing.T) {
	requireShell(t)
	in := NewInput("exec sleep 30", DefaultConfig(), component.Dependencies{})
	require.NoError(t, in.Open(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := in.Read(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	require.NoError(t, in.Close())
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after Close")
	}
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NoError(t, in.Close())
}

func TestInput_MissingShell(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shell = "/nonexistent/shell"
	in := NewInput("true", cfg, component.Dependencies{})
	assert.Error(t, in.Open(context.Background()))
}

func TestRegister(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))

	_, err := reg.NewSource(pipeline.EndpointSpec{Kind: pipeline.KindPipe}, component.Dependencies{})
	assert.ErrorIs(t, err, errors.ErrMalformedSpec)

	src, err := reg.NewSource(pipeline.EndpointSpec{Kind: pipeline.KindPipe, Command: "echo hi"}, component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "pipe:echo hi", src.Description())

	assert.True(t, errors.IsConfiguration(RegisterWithConfig(pipeline.NewRegistry(), Config{ReadSize: 1})))
}
