// Package errors classifies failures in a splice topology.
//
// # Classes
//
// Every error that crosses a package boundary is one of three classes:
//
//   - Invalid: configuration problems (unknown scheme, malformed endpoint spec,
//     no readers). Raised synchronously before the runtime starts.
//   - Fatal: failures that end a branch, such as a source that cannot be
//     opened or a sink write that failed again after recovery.
//   - Transient: failures that get one recovery attempt, such as an
//     interrupted write.
//
// Classification uses ClassifiedError when present and otherwise falls back
// to the sentinel errors and a handful of well-known system errors.
//
// # Wrapping
//
// All wrapping follows "component.method: action failed: cause":
//
//	if err := sink.Open(ctx); err != nil {
//	    return errors.WrapFatal(err, "FileSink", "Open", "open file")
//	}
//
// A transient error that survives its retry is promoted with Escalate so
// the writer treats it as fatal:
//
//	if err := retry.Do(ctx, retry.Once(), write); err != nil {
//	    return errors.Escalate(err, "FileSink", "Write")
//	}
package errors
