// Package component provides the lifecycle shared by every reader, writer and
// seam in a splice tree, plus the dependencies handed to them.
//
// # Lifecycle
//
// Each entity embeds a Machine that walks one way through
//
//	Idle -> Starting -> Running -> Stopping -> Stopped
//
// Stopped is terminal; an entity is never restarted, a new one is built
// instead. Start and Stop take Hooks:
//
//   - Dependents lists the entities fed by this one.
//   - Open runs once every dependent is Running. A reader may therefore
//     publish as soon as Open returns without losing a chunk.
//   - Close runs on Stop, before the dependents are stopped, so queued chunks
//     drain downstream first.
//
// A failure in Open, or in any dependent's Start, ends the entity in Stopped
// with the error recorded. Siblings are unaffected. OnStopped callbacks run
// exactly once, even for a machine that never started.
//
//	m := component.NewMachine("file:/tmp/out.ts", "writer", logger, registry)
//	err := m.Start(ctx, component.Hooks{Open: w.open})
//
// StartAll and StopAll operate on groups of LifecycleComponent values and
// are what a reader uses on its own writers and seams.
//
// # Runtime
//
// Runtime is a bounded worker pool for blocking opens such as dialing a NATS
// server or spawning a pipe command. Readers and writers offload their
// source or sink Open to the Runtime in Dependencies; a nil Runtime runs it
// inline.
//
// # Testing
//
// StandardLifecycleTests checks the state machine contract against any
// LifecycleComponent factory:
//
//	func TestWriter_StandardLifecycle(t *testing.T) {
//		component.StandardLifecycleTests(t, newTestWriter)
//	}
package component
