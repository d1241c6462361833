// Package file provides the file writer: every chunk is appended to a file
// that is truncated when the writer starts.
package file

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/pkg/retry"
)

// Config holds configuration for file writers
type Config struct {
	Mode os.FileMode `json:"mode" yaml:"mode"` // Permissions for created files
	Sync bool        `json:"sync" yaml:"sync"` // fsync before close
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Mode&^os.ModePerm != 0 {
		return errors.Configf("file-output", "mode %o has non-permission bits", c.Mode)
	}
	return nil
}

// DefaultConfig returns default configuration for file writers
func DefaultConfig() Config {
	return Config{Mode: 0o644, Sync: true}
}

type handle interface {
	io.Writer
	Sync() error
	Close() error
}

type opener func(path string, flag int, perm os.FileMode) (handle, error)

func osOpen(path string, flag int, perm os.FileMode) (handle, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Output writes chunks to a file. A transient write error, or one that
// leaves the descriptor unusable, reopens the file in append mode and
// retries the rest of the chunk once; a second failure is fatal.
type Output struct {
	path   string
	config Config
	logger *slog.Logger
	open   opener

	fileMu sync.Mutex
	file   handle

	bytesWritten atomic.Int64
	reopens      atomic.Int64
}

var _ pipeline.Sink = (*Output)(nil)

// NewOutput creates a file writer for path. Nothing is opened until Open.
func NewOutput(path string, config Config, deps component.Dependencies) *Output {
	return &Output{
		path:   path,
		config: config,
		logger: deps.GetLoggerWithComponent("file-output").With("path", path),
		open:   osOpen,
	}
}

// Description implements pipeline.Sink.
func (o *Output) Description() string { return "file://" + o.path }

// Open creates or truncates the file.
func (o *Output) Open(_ context.Context) error {
	f, err := o.open(o.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, o.config.Mode)
	if err != nil {
		return errors.Wrap(err, "Output", "Open", "open "+o.path)
	}
	o.fileMu.Lock()
	o.file = f
	o.fileMu.Unlock()
	o.logger.Debug("File output opened")
	return nil
}

// Write appends chunk.
func (o *Output) Write(ctx context.Context, chunk pipeline.Chunk) error {
	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	off := 0
	cfg := retry.Once()
	cfg.Retryable = reopenable
	cfg.BeforeRetry = func(_ context.Context, _ int, err error) error {
		o.logger.Warn("Write failed, reopening in append mode",
			"error", errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrWriteFailed, err),
				"Output", "Write", "write "+o.path),
			"remaining", len(chunk)-off)
		return o.reopenLocked()
	}

	err := retry.Do(ctx, cfg, func() error {
		n, err := o.file.Write(chunk[off:])
		off += n
		return err
	})
	o.bytesWritten.Add(int64(off))
	if err != nil {
		return errors.Escalate(fmt.Errorf("%w: %w", errors.ErrWriteFailed, err), "Output", "Write")
	}
	return nil
}

// reopenable reports whether a fresh descriptor may succeed where the old
// one failed. A full or read-only disk is not.
func reopenable(err error) bool {
	switch {
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EPERM), errors.Is(err, syscall.EROFS):
		return false
	case errors.Is(err, os.ErrClosed), errors.Is(err, syscall.EBADF), errors.Is(err, syscall.EIO):
		return true
	}
	return errors.IsTransient(err)
}

func (o *Output) reopenLocked() error {
	_ = o.file.Close()
	f, err := o.open(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, o.config.Mode)
	if err != nil {
		return errors.Wrap(err, "Output", "Write", "reopen "+o.path)
	}
	o.file = f
	o.reopens.Add(1)
	return nil
}

// Close flushes to disk when configured and closes the file.
func (o *Output) Close() error {
	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	if o.file == nil {
		return nil
	}
	var syncErr error
	if o.config.Sync {
		syncErr = o.file.Sync()
	}
	err := errors.Join(syncErr, o.file.Close())
	o.file = nil

	o.logger.Debug("File output closed", "bytes", o.bytesWritten.Load(), "reopens", o.reopens.Load())
	return errors.Wrap(err, "Output", "Close", "close "+o.path)
}

// Register registers the file writer with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the file writer using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindFile),
		Args:        []string{"path"},
		Description: "Writes chunks to a file, truncating it on start",
		Sink: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Sink, error) {
			return NewOutput(spec.Path, config, deps), nil
		},
	})
}
