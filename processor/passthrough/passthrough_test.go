package passthrough

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/component"
	"github.com/c360/splice/pipeline"
)

type collect struct{ got []pipeline.Chunk }

func (c *collect) Push(chunk pipeline.Chunk) error {
	c.got = append(c.got, chunk)
	return nil
}

func TestProcessor_Identity(t *testing.T) {
	out := &collect{}
	for _, s := range []string{"a", "", "ccc"} {
		require.NoError(t, Processor{}.Process(context.Background(), pipeline.Chunk(s), out))
	}
	assert.Equal(t, []pipeline.Chunk{pipeline.Chunk("a"), pipeline.Chunk(""), pipeline.Chunk("ccc")}, out.got)
}

func TestRegister(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))

	p, err := reg.NewProcessor(pipeline.SeamSpec{Kind: Kind}, component.Dependencies{})
	require.NoError(t, err)
	assert.IsType(t, Processor{}, p)
	assert.Error(t, Register(reg))
}
