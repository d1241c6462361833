// Package pipe provides the pipe reader: a shell command is spawned and
// its standard output becomes the chunk stream.
package pipe

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

// Config holds configuration for pipe readers
type Config struct {
	Shell     string        `json:"shell" yaml:"shell"`           // Interpreter run with -c
	ReadSize  int           `json:"read_size" yaml:"read_size"`   // Bytes per read
	WaitDelay time.Duration `json:"wait_delay" yaml:"wait_delay"` // Grace period for output after exit
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Shell == "" {
		return errors.Configf("pipe-input", "shell is required")
	}
	if c.ReadSize <= 0 {
		return errors.Configf("pipe-input", "read_size must be positive, got %d", c.ReadSize)
	}
	return nil
}

// DefaultConfig returns default configuration for pipe readers
func DefaultConfig() Config {
	return Config{Shell: "/bin/sh", ReadSize: 16 * 1024, WaitDelay: time.Second}
}

// Input runs a command and reads its standard output until the command
// exits.
type Input struct {
	command string
	config  Config
	logger  *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	waitOnce sync.Once
	waitErr  error
	exited   atomic.Bool
}

var _ pipeline.Source = (*Input)(nil)

// NewInput creates a pipe reader for command. Nothing runs until Open.
func NewInput(command string, config Config, deps component.Dependencies) *Input {
	return &Input{
		command: command,
		config:  config,
		logger:  deps.GetLoggerWithComponent("pipe-input").With("command", command),
	}
}

// Description implements pipeline.Source.
func (p *Input) Description() string { return "pipe:" + p.command }

// Open starts the command.
func (p *Input) Open(_ context.Context) error {
	cmd := exec.Command(p.config.Shell, "-c", p.command)
	cmd.WaitDelay = p.config.WaitDelay
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "Input", "Open", "create stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "Input", "Open", "start "+p.Description())
	}

	p.mu.Lock()
	p.cmd, p.stdout, p.stderr = cmd, stdout, stderr
	p.mu.Unlock()
	p.logger.Debug("Command started", "pid", cmd.Process.Pid)
	return nil
}

// Read returns the next piece of output. io.EOF means the command closed
// its output and has been reaped.
func (p *Input) Read(ctx context.Context) (pipeline.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	stdout := p.stdout
	p.mu.Unlock()
	if stdout == nil {
		return nil, io.ErrClosedPipe
	}

	buf := make([]byte, p.config.ReadSize)
	n, err := stdout.Read(buf)
	if err == io.EOF {
		if werr := p.wait(); werr != nil {
			p.logger.Warn("Command exited with error", "error", werr, "stderr", p.stderr.String())
		} else {
			p.logger.Debug("Command exited")
		}
	}
	return buf[:n], err
}

func (p *Input) wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.exited.Store(true)
	})
	return p.waitErr
}

// Close kills the command if it is still running and reaps it.
func (p *Input) Close() error {
	p.mu.Lock()
	cmd, stdout := p.cmd, p.stdout
	p.stdout = nil
	p.mu.Unlock()
	if cmd == nil || stdout == nil {
		return nil
	}

	_ = stdout.Close()
	if !p.exited.Load() {
		_ = cmd.Process.Kill()
	}
	_ = p.wait()
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// Register registers the pipe reader with the given registry
func Register(registry *pipeline.Registry) error {
	return RegisterWithConfig(registry, DefaultConfig())
}

// RegisterWithConfig registers the pipe reader using config for every
// instance.
func RegisterWithConfig(registry *pipeline.Registry, config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        string(pipeline.KindPipe),
		Args:        []string{"command"},
		Description: "Runs a shell command and reads its standard output",
		Source: func(spec pipeline.EndpointSpec, deps component.Dependencies) (pipeline.Source, error) {
			return NewInput(spec.Command, config, deps), nil
		},
	})
}
