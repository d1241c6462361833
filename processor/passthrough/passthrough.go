// Package passthrough provides the identity seam: every chunk is pushed
// on unchanged.
package passthrough

import (
	"context"

	"github.com/c360/splice/component"
	"github.com/c360/splice/pipeline"
)

// Kind is the seam kind name.
const Kind = "passthrough"

// Processor pushes each chunk as received.
type Processor struct{}

// Process implements pipeline.Processor.
func (Processor) Process(_ context.Context, chunk pipeline.Chunk, out pipeline.Pusher) error {
	return out.Push(chunk)
}

// Register registers the passthrough seam with the given registry
func Register(registry *pipeline.Registry) error {
	return registry.RegisterWithConfig(pipeline.RegistrationConfig{
		Kind:        Kind,
		Description: "Forwards chunks unchanged",
		Processor: func(pipeline.SeamSpec, component.Dependencies) (pipeline.Processor, error) {
			return Processor{}, nil
		},
	})
}
