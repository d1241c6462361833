// Package ratelimit provides a seam that paces chunks to a byte rate.
package ratelimit

import (
	"context"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/c360/splice/component"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

// Kind is the seam kind name.
const Kind = "ratelimit"

// Seam arguments.
const (
	ArgBytesPerSecond = "bytes_per_second"
	ArgBurst          = "burst"
)

// MinBurst is the smallest bucket used when no burst is given.
const MinBurst = 64 * 1024

// Config holds the pacing parameters
type Config struct {
	BytesPerSecond int
	Burst          int
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.BytesPerSecond <= 0 {
		return errors.Configf("ratelimit", "%s must be positive, got %d", ArgBytesPerSecond, c.BytesPerSecond)
	}
	if c.Burst <= 0 {
		return errors.Configf("ratelimit", "%s must be positive, got %d", ArgBurst, c.Burst)
	}
	return nil
}

// ConfigFromArgs reads seam arguments. burst defaults to one second of
// data, at least MinBurst.
func ConfigFromArgs(args map[string]string) (Config, error) {
	var c Config
	bps, err := strconv.Atoi(args[ArgBytesPerSecond])
	if err != nil {
		return c, errors.Configf("ratelimit", "%s: %q is not an integer", ArgBytesPerSecond, args[ArgBytesPerSecond])
	}
	c.BytesPerSecond = bps
	c.Burst = max(bps, MinBurst)
	if raw, ok := args[ArgBurst]; ok {
		if c.Burst, err = strconv.Atoi(raw); err != nil {
			return c, errors.Configf("ratelimit", "%s: %q is not an integer", ArgBurst, raw)
		}
	}
	return c, c.Validate()
}

// Processor delays each chunk until the byte budget allows it, then pushes
// it whole. Chunks are never split or dropped.
type Processor struct {
	limiter *rate.Limiter
}

// New creates a rate limiting processor.
func New(config Config) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Processor{limiter: rate.NewLimiter(rate.Limit(config.BytesPerSecond), config.Burst)}, nil
}

// Process implements pipeline.Processor. A chunk larger than the burst
// waits for its bytes in burst-sized installments.
func (p *Processor) Process(ctx context.Context, chunk pipeline.Chunk, out pipeline.Pusher) error {
	burst := p.limiter.Burst()
	for remaining := len(chunk); remaining > 0; remaining -= burst {
		if err := p.limiter.WaitN(ctx, min(remaining, burst)); err != nil {
			return err
		}
	}
	return out.Push(chunk)
}

// Register registers the ratelimit seam with the given registry
func Register(registry *pipeline.Registry) error {
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        Kind,
		Args:        []string{ArgBytesPerSecond},
		Description: "Paces chunks to a byte rate",
		Processor: func(spec pipeline.SeamSpec, _ component.Dependencies) (pipeline.Processor, error) {
			cfg, err := ConfigFromArgs(spec.Args)
			if err != nil {
				return nil, err
			}
			return New(cfg)
		},
	})
}
