package componentregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

func TestRegister_AllKinds(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))

	kinds := func(role pipeline.Role) []string {
		var out []string
		for _, r := range reg.List(role) {
			out = append(out, r.Kind)
		}
		return out
	}
	assert.Equal(t, []string{"file", "nats", "pipe", "udp", "ws"}, kinds(pipeline.RoleReader))
	assert.Equal(t, []string{"file", "http", "nats", "udp", "ws"}, kinds(pipeline.RoleWriter))
	assert.Equal(t, []string{"passthrough", "ratelimit"}, kinds(pipeline.RoleSeam))
}

func TestRegister_Twice(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))
	err := Register(reg)
	assert.ErrorIs(t, err, errors.ErrDuplicateKind)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegister_NilRegistry(t *testing.T) {
	assert.True(t, errors.IsFatal(Register(nil)))
}

func TestRegisterWithTuning_InvalidKindConfig(t *testing.T) {
	tuning := DefaultTuning()
	tuning.UDPOutput.SegmentSize = tuning.UDPOutput.Threshold + 1
	err := RegisterWithTuning(pipeline.NewRegistry(), tuning)
	assert.True(t, errors.IsConfiguration(err))
}

func TestRegister_EveryURIResolves(t *testing.T) {
	reg := pipeline.NewRegistry()
	require.NoError(t, Register(reg))

	for _, uri := range []string{"/tmp/in.ts", "udp://239.1.1.1:5000", "pipe:cat /dev/zero", "nats://localhost:4222/in",
		"wss://feed.example.com/live"} {
		spec, err := pipeline.ParseEndpoint(uri)
		require.NoError(t, err, uri)
		_, ok := reg.Lookup(pipeline.RoleReader, string(spec.Kind))
		assert.True(t, ok, uri)
	}
	for _, uri := range []string{"file:///tmp/out.ts", "udp://127.0.0.1:5000", "nats://localhost:4222/out",
		"ws://0.0.0.0:8081/live", "https://collector.example.com/ingest"} {
		spec, err := pipeline.ParseEndpoint(uri)
		require.NoError(t, err, uri)
		_, ok := reg.Lookup(pipeline.RoleWriter, string(spec.Kind))
		assert.True(t, ok, uri)
	}
}
