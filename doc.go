// Package splice copies one stream of bytes to many destinations at once.
//
// A reader pulls chunks from a source (a file, a UDP socket, a shell
// command, a NATS subject or a WebSocket server) and publishes them on an
// in-process broadcast channel. Every writer attached to the reader gets its
// own unbounded queue on that channel and drains it into a sink. A seam sits
// in between: it consumes a reader's chunks, runs them through a processor
// and republishes the result to writers of its own.
//
// # Architecture
//
//	┌──────────────────────────────────────────┐
//	│            engine.Orchestrator           │  Run / Stop / Restart
//	└──────────────────────────────────────────┘
//	           ↓ starts
//	┌──────────────────────────────────────────┐
//	│  pipeline.Reader ──▶ broadcast.Channel   │  one per source
//	└──────────────────────────────────────────┘
//	           ↓ fans out to
//	┌──────────────────┐  ┌────────────────────┐
//	│ pipeline.Writer  │  │   pipeline.Seam    │──▶ writers, seams
//	└──────────────────┘  └────────────────────┘
//
// Every reader, writer and seam runs the same state machine from package
// component. A reader publishes only after all of its writers are Running,
// and reports Stopped only after all of them have drained and closed, so no
// chunk is lost between a source and its sinks.
//
// # Packages
//
// Core:
//   - broadcast: ordered, non-blocking fan-out to per-subscriber queues
//   - component: lifecycle state machine and the shared worker runtime
//   - pipeline: Reader, Writer, Seam, endpoint parsing and the kind registry
//   - engine: top-level readers, completion detection, restart
//
// Endpoint kinds:
//   - input/file, input/udp, input/pipe, input/nats, input/websocket
//   - output/file, output/udp, output/nats, output/websocket, output/httppost
//   - processor/passthrough, processor/ratelimit
//   - componentregistry: registers all of the above
//
// Support:
//   - config: JSON or YAML pipeline files
//   - errors: classified errors (invalid, transient, fatal)
//   - metric, health: Prometheus metrics and health aggregation
//   - natsclient: shared NATS connection handling
//   - pkg/buffer, pkg/retry, pkg/udputil, pkg/worker: building blocks
//
// # Quick Start
//
// Copy a multicast stream to a file and to a second host:
//
//	splice udp://239.1.1.1:5000 /var/capture/feed.ts udp://10.0.0.2:6000
//
// The same from Go:
//
//	err := engine.Read(ctx, "udp://239.1.1.1:5000", func(r *pipeline.Reader) error {
//		if _, err := r.AddWriterURI("/var/capture/feed.ts"); err != nil {
//			return err
//		}
//		_, err := r.AddWriterURI("udp://10.0.0.2:6000")
//		return err
//	}, component.Dependencies{})
//
// Larger trees, with seams and several readers, are described in a
// configuration file; see package config.
//
// # Failure model
//
// A failure stays in its branch. A writer whose sink cannot be opened or
// written is stopped and unsubscribed while its siblings keep receiving. A
// reader whose source cannot be opened ends Stopped; the process keeps
// running as long as any reader does. Queues are unbounded: a slow writer
// grows its own backlog, visible in the splice_queue_depth metric, without
// slowing anyone else.
package splice
