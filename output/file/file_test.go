package file

import (
	"bytes"
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/testutil"
)

// flakyHandle writes at most limit bytes, then fails with err.
type flakyHandle struct {
	buf    *bytes.Buffer
	limit  int
	err    error
	closed bool
}

func (h *flakyHandle) Write(p []byte) (int, error) {
	if h.err == nil || h.limit >= len(p) {
		h.limit -= len(p)
		return h.buf.Write(p)
	}
	n, _ := h.buf.Write(p[:max(h.limit, 0)])
	h.limit = 0
	return n, h.err
}

func (h *flakyHandle) Sync() error { return nil }

func (h *flakyHandle) Close() error {
	h.closed = true
	return nil
}

type scriptedOpener struct {
	buf     bytes.Buffer
	handles []*flakyHandle
	flags   []int
}

func (s *scriptedOpener) open(_ string, flag int, _ os.FileMode) (handle, error) {
	s.flags = append(s.flags, flag)
	if len(s.handles) == 0 {
		return nil, os.ErrPermission
	}
	h := s.handles[0]
	s.handles = s.handles[1:]
	h.buf = &s.buf
	return h, nil
}

func newTestOutput(s *scriptedOpener) *Output {
	o := NewOutput("/virtual/out.bin", DefaultConfig(), component.Dependencies{})
	o.open = s.open
	return o
}

func TestOutput_WritesAndTruncates(t *testing.T) {
	path := testutil.TempFileWithData(t, "out.bin", []byte("stale contents that must vanish"))
	o := NewOutput(path, DefaultConfig(), component.Dependencies{})
	ctx := context.Background()

	require.NoError(t, o.Open(ctx))
	payload := testutil.RandomBytes(t, 64*1024)
	for off := 0; off < len(payload); off += 1000 {
		require.NoError(t, o.Write(ctx, payload[off:min(off+1000, len(payload))]))
	}
	require.NoError(t, o.Close())
	require.NoError(t, o.Close(), "second Close is a no-op")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "file://"+path, o.Description())
}

func TestOutput_OpenFailure(t *testing.T) {
	o := NewOutput(testutil.TempPath(t, "missing/dir/out.bin"), DefaultConfig(), component.Dependencies{})
	err := o.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOutput_TransientErrorReopensInAppendMode(t *testing.T) {
	s := &scriptedOpener{handles: []*flakyHandle{
		{limit: 4, err: syscall.EAGAIN},
		{},
	}}
	o := newTestOutput(s)
	ctx := context.Background()
	require.NoError(t, o.Open(ctx))

	require.NoError(t, o.Write(ctx, []byte("hello world")))
	require.NoError(t, o.Close())

	assert.Equal(t, "hello world", s.buf.String(), "the remainder is written after reopening")
	require.Len(t, s.flags, 2)
	assert.NotZero(t, s.flags[0]&os.O_TRUNC)
	assert.NotZero(t, s.flags[1]&os.O_APPEND)
	assert.Zero(t, s.flags[1]&os.O_TRUNC)
	assert.Equal(t, int64(1), o.reopens.Load())
}

func TestOutput_ClosedDescriptorReopens(t *testing.T) {
	path := testutil.TempPath(t, "out.bin")
	o := NewOutput(path, DefaultConfig(), component.Dependencies{})
	ctx := context.Background()
	require.NoError(t, o.Open(ctx))
	require.NoError(t, o.Write(ctx, []byte("first ")))

	// Pull the descriptor out from under the writer.
	require.NoError(t, o.file.Close())

	require.NoError(t, o.Write(ctx, []byte("hello")))
	require.NoError(t, o.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first hello", string(got))
	assert.Equal(t, int64(1), o.reopens.Load())
}

func TestOutput_IOErrorReopens(t *testing.T) {
	s := &scriptedOpener{handles: []*flakyHandle{
		{limit: 2, err: syscall.EIO},
		{},
	}}
	o := newTestOutput(s)
	ctx := context.Background()
	require.NoError(t, o.Open(ctx))

	require.NoError(t, o.Write(ctx, []byte("payload")))
	assert.Equal(t, "payload", s.buf.String())
	assert.Len(t, s.flags, 2)
}

func TestOutput_SecondFailureIsFatal(t *testing.T) {
	s := &scriptedOpener{handles: []*flakyHandle{
		{limit: 0, err: syscall.EAGAIN},
		{limit: 0, err: syscall.EAGAIN},
	}}
	o := newTestOutput(s)
	ctx := context.Background()
	require.NoError(t, o.Open(ctx))

	err := o.Write(ctx, []byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrWriteFailed)
	assert.True(t, errors.IsFatal(err))
	assert.Len(t, s.flags, 2, "only one recovery attempt")
}

func TestOutput_NonTransientErrorIsFatalImmediately(t *testing.T) {
	s := &scriptedOpener{handles: []*flakyHandle{
		{limit: 0, err: syscall.ENOSPC},
	}}
	o := newTestOutput(s)
	ctx := context.Background()
	require.NoError(t, o.Open(ctx))

	err := o.Write(ctx, []byte("data"))
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, syscall.ENOSPC)
	assert.Len(t, s.flags, 1, "no reopen for non-transient errors")
}

func TestOutput_ReopenFailureIsFatal(t *testing.T) {
	s := &scriptedOpener{handles: []*flakyHandle{
		{limit: 0, err: syscall.EINTR},
	}}
	o := newTestOutput(s)
	ctx := context.Background()
	require.NoError(t, o.Open(ctx))

	err := o.Write(ctx, []byte("data"))
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestRegister(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))
	assert.ErrorIs(t, Register(reg), errors.ErrDuplicateKind)

	_, err := reg.NewSink(pipeline.EndpointSpec{Kind: pipeline.KindFile}, component.Dependencies{})
	assert.ErrorIs(t, err, errors.ErrMalformedSpec, "path is required")

	sink, err := reg.NewSink(pipeline.EndpointSpec{Kind: pipeline.KindFile, Path: "/tmp/x"}, component.Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/x", sink.Description())

	assert.True(t, errors.IsConfiguration(RegisterWithConfig(pipeline.NewRegistry(), Config{Mode: os.ModeDir | 0o755})))
}
