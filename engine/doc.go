// Package engine runs the top-level readers of a splice process.
//
// # Overview
//
// An Orchestrator holds every reader the process was configured with. Run
// starts the shared component.Runtime, then starts all readers at once; each
// reader only begins publishing after its own writers and seams are
// Running. The orchestrator counts readers down as they reach Stopped and,
// when none are left, stops the runtime and closes Done.
//
//	            ┌──────────────┐
//	            │ Orchestrator │ Run / Stop / Restart / Status
//	            └──────┬───────┘
//	       ┌───────────┴───────────┐
//	       ▼                       ▼
//	┌─────────────┐         ┌─────────────┐
//	│ Reader file │         │ Reader udp  │
//	└──────┬──────┘         └──────┬──────┘
//	   ┌───┴────┐                  │
//	   ▼        ▼                  ▼
//	Writer    Seam ──▶ Writer    Writer
//
// # Failure handling
//
// A reader whose source cannot be opened is logged and left Stopped. Run
// fails only when no reader could start. Writer and seam failures abort
// their own branch; Status reports them without affecting the rest of the
// tree.
//
// # Restart
//
// Restart stops every reader, waits for the runtime to wind down, rebuilds
// each reader from its Topology and runs the fresh tree. Endpoints are new
// instances: files are reopened (and truncated), sockets rebound.
//
// # One-shot use
//
// Read wraps the whole sequence for a single reader:
//
//	err := engine.Read(ctx, "udp://0.0.0.0:5000", func(r *pipeline.Reader) error {
//		_, err := r.AddWriterURI("capture.ts")
//		return err
//	}, component.Dependencies{})
package engine
