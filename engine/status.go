package engine

import (
	"github.com/c360/splice/component"
	"github.com/c360/splice/health"
	"github.com/c360/splice/pipeline"
)

// Status reports the health of every reader and everything attached to it.
// The process is unhealthy only when every reader is.
func (o *Orchestrator) Status() health.Status {
	readers := o.Readers()
	subs := make([]health.Status, len(readers))
	for i, r := range readers {
		subs[i] = readerStatus(r)
	}
	return health.Aggregate("splice", subs)
}

func readerStatus(r *pipeline.Reader) health.Status {
	s := health.FromEntity(health.Entity{
		Name:    r.Description(),
		Role:    string(pipeline.RoleReader),
		State:   r.State(),
		Err:     r.Err(),
		Metrics: &health.Metrics{Chunks: r.Published()},
	})
	return withEndpoints(s, r.Endpoints())
}

func withEndpoints(s health.Status, endpoints []component.LifecycleComponent) health.Status {
	for _, ep := range endpoints {
		switch e := ep.(type) {
		case *pipeline.Writer:
			chunks, bytes := e.Written()
			s = s.WithSubStatus(health.FromEntity(health.Entity{
				Name:    e.Description(),
				Role:    string(pipeline.RoleWriter),
				State:   e.State(),
				Err:     e.Err(),
				Metrics: &health.Metrics{Chunks: chunks, Bytes: bytes},
			}))
		case *pipeline.Seam:
			st := e.Stats()
			sub := health.FromEntity(health.Entity{
				Name:    e.Description(),
				Role:    string(pipeline.RoleSeam),
				State:   e.State(),
				Err:     e.Err(),
				Metrics: &health.Metrics{Bytes: st.Sent},
			})
			s = s.WithSubStatus(withEndpoints(sub, e.Endpoints()))
		}
	}
	return s
}
