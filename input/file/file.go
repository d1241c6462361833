// Package file provides the file reader: the file is read front to back and
// every read becomes one chunk.
package file

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

// DefaultReadSize is the largest chunk a file reader produces.
const DefaultReadSize = 16 * 1024

// Config holds configuration for file readers
type Config struct {
	ReadSize int `json:"read_size" yaml:"read_size"` // Bytes per read
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.ReadSize <= 0 {
		return errors.Configf("file-input", "read_size must be positive, got %d", c.ReadSize)
	}
	return nil
}

// DefaultConfig returns default configuration for file readers
func DefaultConfig() Config {
	return Config{ReadSize: DefaultReadSize}
}

// Input reads a file to EOF.
type Input struct {
	path   string
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
	read int64
}

var _ pipeline.Source = (*Input)(nil)

// NewInput creates a file reader for path.
func NewInput(path string, config Config, deps component.Dependencies) *Input {
	return &Input{
		path:   path,
		config: config,
		logger: deps.GetLoggerWithComponent("file-input").With("path", path),
	}
}

// Description implements pipeline.Source.
func (i *Input) Description() string { return "file://" + i.path }

// Open opens the file for reading.
func (i *Input) Open(_ context.Context) error {
	f, err := os.Open(i.path)
	if err != nil {
		return errors.Wrap(err, "Input", "Open", "open "+i.path)
	}
	i.mu.Lock()
	i.file = f
	i.mu.Unlock()
	return nil
}

// Read returns the next chunk of at most ReadSize bytes, and io.EOF at the
// end of the file.
func (i *Input) Read(ctx context.Context) (pipeline.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.Lock()
	f := i.file
	i.mu.Unlock()
	if f == nil {
		return nil, os.ErrClosed
	}

	buf := make([]byte, i.config.ReadSize)
	n, err := f.Read(buf)
	i.mu.Lock()
	i.read += int64(n)
	i.mu.Unlock()
	return buf[:n], err
}

// Close closes the file. It is safe to call more than once.
func (i *Input) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.file == nil {
		return nil
	}
	err := i.file.Close()
	i.file = nil
	i.logger.Debug("File input closed", "bytes", i.read)
	return errors.Wrap(err, "Input", "Close", "close "+i.path)
}

// Register registers the file reader with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the file reader using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindFile),
		Args:        []string{"path"},
		Description: "Reads a file to the end, one chunk per read",
		Source: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Source, error) {
			return NewInput(spec.Path, config, deps), nil
		},
	})
}
