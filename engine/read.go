package engine

import (
	"context"

	"github.com/c360/splice/component"
	"github.com/c360/splice/componentregistry"
	"github.com/c360/splice/errors"
	"github.com/c360/splice/pipeline"
)

// Read is the one-shot form: it builds a reader for uri with the built-in
// kinds, hands it to build to attach writers and seams, runs it and waits
// until it has stopped. If ctx ends first the reader is stopped and drained
// before Read returns ctx.Err().
//
//	err := engine.Read(ctx, "capture.ts", func(r *pipeline.Reader) error {
//		_, err := r.AddWriterURI("udp://239.0.0.1:1234")
//		return err
//	}, component.Dependencies{Logger: logger})
func Read(ctx context.Context, uri string, build func(*pipeline.Reader) error, deps component.Dependencies) error {
	registry := pipeline.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return err
	}
	if deps.Runtime == nil {
		deps.Runtime = component.NewRuntime(4, 64, deps.Logger, deps.MetricsRegistry)
	}

	o := New(registry, deps)
	r, err := o.AddReaderURI(uri)
	if err != nil {
		return err
	}
	if build != nil {
		if err := build(r); err != nil {
			return errors.Wrap(err, "engine", "Read", "attach endpoints to "+uri)
		}
	}
	if err := o.Run(ctx); err != nil {
		return err
	}

	if err := o.Wait(ctx); err != nil {
		_ = o.Stop(context.WithoutCancel(ctx))
		<-o.Done()
		return err
	}
	return r.Err()
}
