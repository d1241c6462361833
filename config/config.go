package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/splice/componentregistry"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

// Config represents a complete splice pipeline file: runtime tuning, the
// optional shared NATS connection, the metrics endpoint and the reader trees.
type Config struct {
	Version string         `json:"version,omitempty" yaml:"version,omitempty"`
	Runtime RuntimeConfig  `json:"runtime" yaml:"runtime"`
	NATS    NATSConfig     `json:"nats" yaml:"nats"`
	Metrics MetricsConfig  `json:"metrics" yaml:"metrics"`
	Readers []ReaderConfig `json:"readers" yaml:"readers"`
}

// RuntimeConfig tunes the worker pool and the built-in endpoint kinds.
type RuntimeConfig struct {
	Workers      int `json:"workers" yaml:"workers"`             // Pool size for blocking opens
	QueueSize    int `json:"queue_size" yaml:"queue_size"`       // Pending offload tasks
	ReadSize     int `json:"read_size" yaml:"read_size"`         // Largest chunk from file and pipe readers
	UDPThreshold int `json:"udp_threshold" yaml:"udp_threshold"` // Largest chunk a UDP writer sends unsplit
	UDPSegment   int `json:"udp_segment" yaml:"udp_segment"`     // Datagram size for split chunks
}

// NATSConfig holds NATS connection settings. When URL is set all nats://
// endpoints share one connection to it.
type NATSConfig struct {
	URL            string        `json:"url,omitempty" yaml:"url,omitempty"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReconnectWait  time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	MaxReconnects  int           `json:"max_reconnects" yaml:"max_reconnects"` // -1 for unlimited
	MaxPayload     int           `json:"max_payload" yaml:"max_payload"`
}

// MetricsConfig controls the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`
}

// ReaderConfig is one reader with the writers and seams attached to it.
// Endpoints use the URI forms pipeline.ParseEndpoint accepts.
type ReaderConfig struct {
	URI     string       `json:"uri" yaml:"uri"`
	Writers []string     `json:"writers,omitempty" yaml:"writers,omitempty"`
	Seams   []SeamConfig `json:"seams,omitempty" yaml:"seams,omitempty"`
}

// SeamConfig is a seam and the endpoints below it.
type SeamConfig struct {
	Kind    string            `json:"kind" yaml:"kind"`
	Args    map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
	Writers []string          `json:"writers,omitempty" yaml:"writers,omitempty"`
	Seams   []SeamConfig      `json:"seams,omitempty" yaml:"seams,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	tuning := componentregistry.DefaultTuning()
	return &Config{
		Runtime: RuntimeConfig{
			Workers:      4,
			QueueSize:    64,
			ReadSize:     tuning.FileInput.ReadSize,
			UDPThreshold: tuning.UDPOutput.Threshold,
			UDPSegment:   tuning.UDPOutput.SegmentSize,
		},
		NATS: NATSConfig{
			ConnectTimeout: tuning.NATSOutput.ConnectTimeout,
			ReconnectWait:  tuning.NATSOutput.ReconnectWait,
			MaxReconnects:  tuning.NATSOutput.MaxReconnects,
			MaxPayload:     tuning.NATSOutput.MaxPayload,
		},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// Validate checks the configuration for errors. Every error is of the
// invalid class.
func (c *Config) Validate() error {
	if c.Runtime.Workers <= 0 {
		return errors.Configf("config", "runtime.workers must be positive, got %d", c.Runtime.Workers)
	}
	if c.Runtime.QueueSize <= 0 {
		return errors.Configf("config", "runtime.queue_size must be positive, got %d", c.Runtime.QueueSize)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.Configf("config", "metrics.port out of range: %d", c.Metrics.Port)
	}
	if c.Metrics.Port > 0 && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.Configf("config", "metrics.path must start with /, got %q", c.Metrics.Path)
	}
	if c.NATS.URL != "" && !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return errors.Configf("config", "nats.url must be a nats:// or tls:// URL, got %q", c.NATS.URL)
	}

	t := c.Tuning()
	for name, v := range map[string]interface{ Validate() error }{
		"file reader": t.FileInput,
		"pipe reader": t.PipeInput,
		"udp writer":  t.UDPOutput,
		"nats reader": t.NATSInput,
		"nats writer": t.NATSOutput,
	} {
		if err := v.Validate(); err != nil {
			return errors.WrapInvalid(err, "config", "Validate", "check "+name+" tuning")
		}
	}

	if _, err := c.Topologies(); err != nil {
		return err
	}
	return nil
}

// Tuning maps the runtime and NATS sections onto the per-kind configs the
// component registry applies.
func (c *Config) Tuning() componentregistry.Tuning {
	t := componentregistry.DefaultTuning()
	t.FileInput.ReadSize = c.Runtime.ReadSize
	t.PipeInput.ReadSize = c.Runtime.ReadSize
	t.UDPOutput.Threshold = c.Runtime.UDPThreshold
	t.UDPOutput.SegmentSize = c.Runtime.UDPSegment

	t.NATSInput.ConnectTimeout = c.NATS.ConnectTimeout
	t.NATSInput.ReconnectWait = c.NATS.ReconnectWait
	t.NATSInput.MaxReconnects = c.NATS.MaxReconnects
	t.NATSOutput.ConnectTimeout = c.NATS.ConnectTimeout
	t.NATSOutput.ReconnectWait = c.NATS.ReconnectWait
	t.NATSOutput.MaxReconnects = c.NATS.MaxReconnects
	t.NATSOutput.MaxPayload = c.NATS.MaxPayload
	return t
}

// Topologies parses every reader into a pipeline tree.
func (c *Config) Topologies() ([]pipeline.Node, error) {
	nodes := make([]pipeline.Node, 0, len(c.Readers))
	for i, r := range c.Readers {
		n, err := r.Node()
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Topologies", fmt.Sprintf("parse readers[%d]", i))
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Node parses the reader and everything below it.
func (r ReaderConfig) Node() (pipeline.Node, error) {
	spec, err := pipeline.ParseEndpoint(r.URI)
	if err != nil {
		return pipeline.Node{}, err
	}
	children, err := childNodes(r.Writers, r.Seams)
	if err != nil {
		return pipeline.Node{}, err
	}
	return pipeline.Node{Role: pipeline.RoleReader, Endpoint: spec, Children: children}, nil
}

func childNodes(writers []string, seams []SeamConfig) ([]pipeline.Node, error) {
	var nodes []pipeline.Node
	for _, w := range writers {
		spec, err := pipeline.ParseEndpoint(w)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, pipeline.Node{Role: pipeline.RoleWriter, Endpoint: spec})
	}
	for _, s := range seams {
		if s.Kind == "" {
			return nil, errors.Configf("config", "seam kind is required")
		}
		children, err := childNodes(s.Writers, s.Seams)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, pipeline.Node{
			Role:     pipeline.RoleSeam,
			Seam:     pipeline.SeamSpec{Kind: s.Kind, Args: s.Args},
			Children: children,
		})
	}
	return nodes, nil
}

// Load reads a single pipeline file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	l := NewLoader()
	l.AddLayer(path)
	l.EnableValidation(true)
	return l.Load()
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: "SPLICE"}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones key by key; lists are replaced, not merged.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load loads and merges all configuration layers over the defaults
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged config")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode merged config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw decodes one file into a generic map, choosing the decoder by
// extension.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readPipelineFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	if err := checkNesting(raw); err != nil {
		return nil, err
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// applyEnvOverrides applies SPLICE_* variables on top of the files.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	ints := []struct {
		key    string
		target *int
	}{
		{"METRICS_PORT", &cfg.Metrics.Port},
		{"WORKERS", &cfg.Runtime.Workers},
		{"QUEUE_SIZE", &cfg.Runtime.QueueSize},
	}
	for _, e := range ints {
		name := l.envPrefix + "_" + e.key
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := checkEnvValue(name, v); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read "+name)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Configf("config", "%s must be an integer, got %q", name, v)
		}
		*e.target = n
	}

	name := l.envPrefix + "_NATS_URL"
	if v := os.Getenv(name); v != "" {
		if err := checkEnvValue(name, v); err != nil {
			return errors.WrapInvalid(err, "Loader", "applyEnvOverrides", "read "+name)
		}
		cfg.NATS.URL = v
	}
	return nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations converts duration strings in the nats section to
// nanoseconds so they decode into time.Duration.
func parseDurations(raw map[string]any) error {
	nats, ok := raw["nats"].(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"connect_timeout", "reconnect_wait"} {
		s, ok := nats[key].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("nats.%s: %w", key, err)
		}
		nats[key] = d.Nanoseconds()
	}
	return nil
}
