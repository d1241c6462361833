package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

type collect struct{ got []pipeline.Chunk }

func (c *collect) Push(chunk pipeline.Chunk) error {
	c.got = append(c.got, chunk)
	return nil
}

func TestConfigFromArgs(t *testing.T) {
	cfg, err := ConfigFromArgs(map[string]string{ArgBytesPerSecond: "1000"})
	require.NoError(t, err)
	assert.Equal(t, Config{BytesPerSecond: 1000, Burst: MinBurst}, cfg)

	cfg, err = ConfigFromArgs(map[string]string{ArgBytesPerSecond: "1000000", ArgBurst: "500"})
	require.NoError(t, err)
	assert.Equal(t, Config{BytesPerSecond: 1000000, Burst: 500}, cfg)

	_, err = ConfigFromArgs(map[string]string{ArgBytesPerSecond: "fast"})
	assert.True(t, errors.IsConfiguration(err))
	_, err = ConfigFromArgs(map[string]string{ArgBytesPerSecond: "0"})
	assert.True(t, errors.IsConfiguration(err))
	_, err = ConfigFromArgs(map[string]string{ArgBytesPerSecond: "10", ArgBurst: "-1"})
	assert.True(t, errors.IsConfiguration(err))
}

func TestProcessor_PacesBytes(t *testing.T) {
	p, err := New(Config{BytesPerSecond: 10_000, Burst: 1_000})
	require.NoError(t, err)
	out := &collect{}

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Process(context.Background(), make(pipeline.Chunk, 1_000), out))
	}
	// The first chunk spends the initial burst; the next two need 200ms.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Len(t, out.got, 3)
}

func TestProcessor_ChunkLargerThanBurst(t *testing.T) {
	p, err := New(Config{BytesPerSecond: 1_000_000, Burst: 100})
	require.NoError(t, err)
	out := &collect{}

	require.NoError(t, p.Process(context.Background(), make(pipeline.Chunk, 1_050), out))
	require.Len(t, out.got, 1)
	assert.Len(t, out.got[0], 1_050)
}

func TestProcessor_EmptyChunkPassesImmediately(t *testing.T) {
	p, err := New(Config{BytesPerSecond: 1, Burst: 1})
	require.NoError(t, err)
	out := &collect{}
	require.NoError(t, p.Process(context.Background(), pipeline.Chunk{}, out))
	assert.Len(t, out.got, 1)
}

func TestProcessor_CancelledWait(t *testing.T) {
	p, err := New(Config{BytesPerSecond: 1, Burst: 10})
	require.NoError(t, err)
	out := &collect{}
	require.NoError(t, p.Process(context.Background(), make(pipeline.Chunk, 10), out))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Process(ctx, make(pipeline.Chunk, 10), out))
	assert.Len(t, out.got, 1)
}

func TestRegister(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))
	deps := component.Dependencies{}

	_, err := reg.NewProcessor(pipeline.SeamSpec{Kind: Kind}, deps)
	assert.ErrorIs(t, err, errors.ErrMalformedSpec)

	p, err := reg.NewProcessor(pipeline.SeamSpec{Kind: Kind, Args: map[string]string{ArgBytesPerSecond: "2048"}}, deps)
	require.NoError(t, err)
	assert.IsType(t, &Processor{}, p)
}
