// Package componentregistry registers every built-in reader, writer and
// seam kind with a pipeline.Registry.
package componentregistry

import (
	"errors"

	pkgerrors "github.com/c360/splice/errors"
	fileinput "github.com/c360/splice/input/file"
	natsinput "github.com/c360/splice/input/nats"
	"github.com/c360/splice/input/pipe"
	udpinput "github.com/c360/splice/input/udp"
	wsinput "github.com/c360/splice/input/websocket"
	fileoutput "github.com/c360/splice/output/file"
	"github.com/c360/splice/output/httppost"
	natsoutput "github.com/c360/splice/output/nats"
	udpoutput "github.com/c360/splice/output/udp"
	"github.com/c360/splice/output/websocket"
	"github.com/c360/splice/pipeline"
	"github.com/c360/splice/processor/passthrough"
	"github.com/c360/splice/processor/ratelimit"
)

// Tuning carries the per-kind configuration applied to every instance of
// that kind.
type Tuning struct {
	FileInput  fileinput.Config
	UDPInput   udpinput.Config
	PipeInput  pipe.Config
	NATSInput  natsinput.Config
	WSInput    wsinput.Config
	FileOutput fileoutput.Config
	UDPOutput  udpoutput.Config
	NATSOutput natsoutput.Config
	WebSocket  websocket.Config
	HTTPPost   httppost.Config
}

// DefaultTuning returns each kind's DefaultConfig.
func DefaultTuning() Tuning {
	return Tuning{
		FileInput:  fileinput.DefaultConfig(),
		UDPInput:   udpinput.DefaultConfig(),
		PipeInput:  pipe.DefaultConfig(),
		NATSInput:  natsinput.DefaultConfig(),
		WSInput:    wsinput.DefaultConfig(),
		FileOutput: fileoutput.DefaultConfig(),
		UDPOutput:  udpoutput.DefaultConfig(),
		NATSOutput: natsoutput.DefaultConfig(),
		WebSocket:  websocket.DefaultConfig(),
		HTTPPost:   httppost.DefaultConfig(),
	}
}

// Register registers all built-in kinds with default tuning:
//
// Readers:
//   - file, udp, pipe, nats, ws
//
// Writers:
//   - file, udp, nats, ws, http
//
// Seams:
//   - passthrough, ratelimit
func Register(registry *pipeline.Registry) error {
	return RegisterWithTuning(registry, DefaultTuning())
}

// RegisterWithTuning registers all built-in kinds using t.
func RegisterWithTuning(registry *pipeline.Registry, t Tuning) error {
	// Nil registry is a programming error, not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	steps := []struct {
		what string
		fn   func() error
	}{
		{"file reader", func() error { return fileinput.RegisterWithConfig(registry, t.FileInput) }},
		{"UDP reader", func() error { return udpinput.RegisterWithConfig(registry, t.UDPInput) }},
		{"pipe reader", func() error { return pipe.RegisterWithConfig(registry, t.PipeInput) }},
		{"NATS reader", func() error { return natsinput.RegisterWithConfig(registry, t.NATSInput) }},
		{"WebSocket reader", func() error { return wsinput.RegisterWithConfig(registry, t.WSInput) }},
		{"file writer", func() error { return fileoutput.RegisterWithConfig(registry, t.FileOutput) }},
		{"UDP writer", func() error { return udpoutput.RegisterWithConfig(registry, t.UDPOutput) }},
		{"NATS writer", func() error { return natsoutput.RegisterWithConfig(registry, t.NATSOutput) }},
		{"WebSocket writer", func() error { return websocket.RegisterWithConfig(registry, t.WebSocket) }},
		{"HTTP writer", func() error { return httppost.RegisterWithConfig(registry, t.HTTPPost) }},
		{"passthrough seam", func() error { return passthrough.Register(registry) }},
		{"ratelimit seam", func() error { return ratelimit.Register(registry) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", s.what+" registration")
		}
	}
	return nil
}
