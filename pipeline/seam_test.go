package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/broadcast"
	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/metric"
)

func TestSeam_PassThroughIdentity(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("in", testChunks(300, 1500), false)
	reg := metric.NewMetricsRegistry()
	r, err := NewReader(f.source("/in", src), f.reg, component.Dependencies{MetricsRegistry: reg})
	require.NoError(t, err)

	seam, err := r.AddSeam(SeamSpec{Kind: "passthrough"})
	require.NoError(t, err)
	_, err = seam.AddWriter(fileSpec("/out"))
	require.NoError(t, err)

	require.NoError(t, r.Start(testCtx(t)))
	waitDone(t, r)

	data, chunks, closed := f.sink("/out").snapshot()
	assert.Equal(t, src.all(), data)
	assert.Equal(t, 300, chunks)
	assert.True(t, closed)

	total := int64(len(src.all()))
	assert.Equal(t, SeamStats{Received: total, Read: total, Written: total, Sent: total}, seam.Stats())
	assert.Equal(t, component.StateStopped, seam.State())

	sent := testutil.ToFloat64(reg.CoreMetrics().SeamBytes.WithLabelValues(seam.ID(), "sent"))
	assert.Equal(t, float64(total), sent)
}

func TestSeam_NestedTransform(t *testing.T) {
	f := newFixture(t)
	chunks := [][]byte{[]byte("hello "), []byte("splice "), []byte("world")}
	src := newMemSource("in", chunks, false)
	r, err := NewReader(f.source("/in", src), f.reg, component.Dependencies{})
	require.NoError(t, err)

	_, err = r.AddWriter(fileSpec("/raw"))
	require.NoError(t, err)
	outer, err := r.AddSeam(SeamSpec{Kind: "passthrough"})
	require.NoError(t, err)
	inner, err := outer.AddSeam(SeamSpec{Kind: "upper"})
	require.NoError(t, err)
	_, err = inner.AddWriter(fileSpec("/upper"))
	require.NoError(t, err)
	_, err = outer.AddWriter(fileSpec("/copy"))
	require.NoError(t, err)

	require.NoError(t, r.Start(testCtx(t)))
	waitDone(t, r)

	raw, _, _ := f.sink("/raw").snapshot()
	cp, _, _ := f.sink("/copy").snapshot()
	up, _, _ := f.sink("/upper").snapshot()
	assert.Equal(t, "hello splice world", string(raw))
	assert.Equal(t, "hello splice world", string(cp))
	assert.Equal(t, "HELLO SPLICE WORLD", string(up))
	assert.Equal(t, component.StateStopped, inner.State())
}

func TestSeam_ProcessorFailureAbortsBranch(t *testing.T) {
	f := newFixture(t)
	src := newMemSource("in", testChunks(20, 10), false)
	r, err := NewReader(f.source("/in", src), f.reg, component.Dependencies{})
	require.NoError(t, err)

	_, err = r.AddWriter(fileSpec("/direct"))
	require.NoError(t, err)
	seam, err := r.AddSeam(SeamSpec{Kind: "explode", Args: map[string]string{"after": "3"}})
	require.NoError(t, err)
	_, err = seam.AddWriter(fileSpec("/behind"))
	require.NoError(t, err)

	require.NoError(t, r.Start(testCtx(t)))
	waitDone(t, r)

	direct, _, _ := f.sink("/direct").snapshot()
	assert.Equal(t, src.all(), direct, "sibling branch is unaffected")

	_, behind, closed := f.sink("/behind").snapshot()
	assert.Equal(t, 3, behind)
	assert.True(t, closed)
	assert.Equal(t, component.StateStopped, seam.State())
}

func TestSeam_ProcessorFailureSendsPushedChunks(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.RegisterWithConfig(RegistrationConfig{
		Kind: "burst-then-fail",
		Processor: func(SeamSpec, component.Dependencies) (Processor, error) {
			return ProcessorFunc(func(_ context.Context, c Chunk, out Pusher) error {
				for i := 0; i < 500; i++ {
					if err := out.Push(c); err != nil {
						return err
					}
				}
				return errors.New("burst done")
			}), nil
		},
	}))

	src := newMemSource("in", testChunks(5, 10), false)
	r, err := NewReader(f.source("/in", src), f.reg, component.Dependencies{})
	require.NoError(t, err)
	seam, err := r.AddSeam(SeamSpec{Kind: "burst-then-fail"})
	require.NoError(t, err)
	_, err = seam.AddWriter(fileSpec("/behind"))
	require.NoError(t, err)

	require.NoError(t, r.Start(testCtx(t)))
	waitDone(t, r)

	_, n, closed := f.sink("/behind").snapshot()
	assert.Equal(t, 500, n, "chunks pushed before the failure still reach the writer")
	assert.True(t, closed)
	assert.Equal(t, int64(500*10), seam.Stats().Sent)
	assert.ErrorIs(t, seam.Err(), errors.ErrProcess)
}

func TestSeam_MissingArgRejected(t *testing.T) {
	f := newFixture(t)
	r, err := NewReader(f.source("/in", newMemSource("in", nil, false)), f.reg, component.Dependencies{})
	require.NoError(t, err)

	_, err = r.AddSeam(SeamSpec{Kind: "explode"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedSpec)
	assert.True(t, errors.IsConfiguration(err))
}

func TestSeam_ManualPullPush(t *testing.T) {
	f := newFixture(t)
	chunks := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	src := newMemSource("in", chunks, false)
	r, err := NewReader(f.source("/in", src), f.reg, component.Dependencies{})
	require.NoError(t, err)

	seam, err := r.AddSeam(SeamSpec{Kind: "manual"})
	require.NoError(t, err)
	_, err = seam.AddWriter(fileSpec("/out"))
	require.NoError(t, err)

	ctx := testCtx(t)
	require.NoError(t, r.Start(ctx))

	go func() {
		for {
			c, ok := seam.Pull(ctx)
			if !ok {
				return
			}
			_ = seam.Push(Chunk(strings.Repeat(string(c), 2)))
		}
	}()
	waitDone(t, r)

	data, _, _ := f.sink("/out").snapshot()
	assert.Equal(t, "aabbcc", string(data))
	st := seam.Stats()
	assert.Equal(t, int64(3), st.Read)
	assert.Equal(t, int64(6), st.Sent)
}

func TestSeam_PushBeforeStart(t *testing.T) {
	seam := NewSeam(SeamSpec{Kind: "manual"}, nil, broadcast.New[Chunk]("up"), NewRegistry(), component.Dependencies{})
	assert.ErrorIs(t, seam.Push(Chunk("x")), errors.ErrNotRunning)
	_, ok := seam.Pull(context.Background())
	assert.False(t, ok)
}

func TestSeam_StandardLifecycle(t *testing.T) {
	component.StandardLifecycleTests(t, func(t *testing.T) component.LifecycleComponent {
		f := newFixture(t)
		identity := ProcessorFunc(func(_ context.Context, c Chunk, out Pusher) error { return out.Push(c) })
		seam := NewSeam(SeamSpec{Kind: "passthrough"}, identity, broadcast.New[Chunk]("up"), f.reg, component.Dependencies{})
		_, err := seam.AddWriter(fileSpec("/out"))
		require.NoError(t, err)
		return seam
	})
}

func TestWriter_StandardLifecycle(t *testing.T) {
	component.StandardLifecycleTests(t, func(t *testing.T) component.LifecycleComponent {
		return NewWriter(fileSpec("/out"), &memSink{name: "out"}, broadcast.New[Chunk]("up"), component.Dependencies{})
	})
}

func TestWriter_SubscribesOnlyWhileRunning(t *testing.T) {
	ch := broadcast.New[Chunk]("up")
	sink := &memSink{name: "out"}
	w := NewWriter(fileSpec("/out"), sink, ch, component.Dependencies{})

	ch.Publish(Chunk("before"))
	ctx := testCtx(t)
	require.NoError(t, w.Start(ctx))
	assert.Equal(t, 1, ch.Subscribers())

	ch.Publish(Chunk("during"))
	require.NoError(t, w.Stop(ctx))
	ch.Publish(Chunk("after"))

	data, _, closed := sink.snapshot()
	assert.True(t, bytes.Equal([]byte("during"), data), "got %q", data)
	assert.True(t, closed)
	assert.Equal(t, 0, ch.Subscribers())

	chunks, n := w.Written()
	assert.Equal(t, int64(1), chunks)
	assert.Equal(t, int64(6), n)
}
