package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const yamlPipeline = `
runtime:
  workers: 8
  read_size: 1316
metrics:
  port: 9100
nats:
  url: nats://bus:4222
  reconnect_wait: 500ms
readers:
  - uri: udp://239.1.1.1:5000
    writers:
      - /tmp/capture.ts
    seams:
      - kind: ratelimit
        args:
          bytes_per_second: "1048576"
        writers:
          - udp://10.0.0.2:6000
`

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "pipeline.yaml", yamlPipeline))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Runtime.Workers)
	assert.Equal(t, 64, cfg.Runtime.QueueSize, "unset keys keep their defaults")
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "nats://bus:4222", cfg.NATS.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait)

	nodes, err := cfg.Topologies()
	require.NoError(t, err)
	want := []pipeline.Node{{
		Role:     pipeline.RoleReader,
		Endpoint: pipeline.EndpointSpec{Kind: pipeline.KindUDP, Host: "239.1.1.1", Port: 5000},
		Children: []pipeline.Node{
			{Role: pipeline.RoleWriter, Endpoint: pipeline.EndpointSpec{Kind: pipeline.KindFile, Path: "/tmp/capture.ts"}},
			{
				Role: pipeline.RoleSeam,
				Seam: pipeline.SeamSpec{Kind: "ratelimit", Args: map[string]string{"bytes_per_second": "1048576"}},
				Children: []pipeline.Node{
					{Role: pipeline.RoleWriter, Endpoint: pipeline.EndpointSpec{Kind: pipeline.KindUDP, Host: "10.0.0.2", Port: 6000}},
				},
			},
		},
	}}
	assert.Empty(t, cmp.Diff(want, nodes))
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "pipeline.json", `{
		"runtime": {"udp_threshold": 1400, "udp_segment": 1316},
		"nats": {"connect_timeout": "2s"},
		"readers": [{"uri": "pipe:cat /dev/zero", "writers": ["ws://0.0.0.0:8080/live"]}]
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.NATS.ConnectTimeout)
	tuning := cfg.Tuning()
	assert.Equal(t, 1400, tuning.UDPOutput.Threshold)
	assert.Equal(t, 1316, tuning.UDPOutput.SegmentSize)
	assert.Equal(t, 2*time.Second, tuning.NATSInput.ConnectTimeout)
	assert.Equal(t, cfg.Runtime.ReadSize, tuning.PipeInput.ReadSize)

	nodes, err := cfg.Topologies()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, pipeline.KindPipe, nodes[0].Endpoint.Kind)
	assert.Equal(t, "cat /dev/zero", nodes[0].Endpoint.Command)
}

func TestLoad_Layers(t *testing.T) {
	base := writeFile(t, "base.yaml", yamlPipeline)
	site := writeFile(t, "site.json", `{"runtime": {"workers": 2}, "readers": [{"uri": "in.ts"}]}`)

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(site)
	l.EnableValidation(true)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Runtime.Workers)
	assert.Equal(t, 1316, cfg.Runtime.ReadSize, "keys absent from the later layer survive")
	require.Len(t, cfg.Readers, 1, "lists are replaced, not merged")
	assert.Equal(t, "in.ts", cfg.Readers[0].URI)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SPLICE_METRICS_PORT", "9300")
	t.Setenv("SPLICE_NATS_URL", "nats://override:4222")

	cfg, err := Load(writeFile(t, "pipeline.yaml", yamlPipeline))
	require.NoError(t, err)
	assert.Equal(t, 9300, cfg.Metrics.Port)
	assert.Equal(t, "nats://override:4222", cfg.NATS.URL)
}

func TestLoad_BadEnvOverride(t *testing.T) {
	t.Setenv("SPLICE_WORKERS", "many")
	_, err := Load(writeFile(t, "pipeline.yaml", yamlPipeline))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		is      error
	}{
		{"unknown scheme", "p.yaml", "readers:\n  - uri: gopher://h:70/x\n", errors.ErrUnknownScheme},
		{"bad writer", "p.yaml", "readers:\n  - uri: in.ts\n    writers: ['udp://nohost']\n", errors.ErrMalformedSpec},
		{"zero workers", "p.json", `{"runtime": {"workers": 0}}`, nil},
		{"seam without kind", "p.yaml", "readers:\n  - uri: in.ts\n    seams:\n      - writers: [out.ts]\n", nil},
		{"metrics port", "p.json", `{"metrics": {"port": 70000}}`, nil},
		{"nats url", "p.json", `{"nats": {"url": "http://bus"}}`, nil},
		{"bad duration", "p.json", `{"nats": {"reconnect_wait": "soon"}}`, nil},
		{"bad json", "p.json", `{"runtime": `, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}
}

func TestLoad_RejectsUnsafePaths(t *testing.T) {
	_, err := Load(writeFile(t, "pipeline.toml", "x = 1"))
	assert.Error(t, err)

	_, err = Load("../../etc/pipeline.json")
	assert.Error(t, err)

	deep := strings.Repeat("[", maxNesting+1) + strings.Repeat("]", maxNesting+1)
	_, err = Load(writeFile(t, "deep.json", `{"readers": `+deep+`}`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "deep.yaml", "readers: "+deep+"\n"))
	assert.Error(t, err, "flow sequences in YAML are bounded too")
}

func TestCheckEnvValue(t *testing.T) {
	assert.NoError(t, checkEnvValue("SPLICE_NATS_URL", "nats://bus:4222"))
	assert.Error(t, checkEnvValue("SPLICE_NATS_URL", "nats://bus\x00:4222"))
	assert.Error(t, checkEnvValue("SPLICE_NATS_URL", strings.Repeat("a", maxEnvLength+1)))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Readers)
	assert.Zero(t, cfg.Metrics.Port)
}
