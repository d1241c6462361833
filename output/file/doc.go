// Package file provides the file writer.
//
// The file is opened with O_TRUNC when the writer starts, so a run always
// produces a fresh copy of the reader's data. Writes go straight to the
// file without buffering; Close calls fsync unless Config.Sync is false.
//
// # Recovery
//
// A write that fails with a transient error (EAGAIN, EINTR, timeouts) is
// recovered once: the file is closed, reopened with O_APPEND, and the
// unwritten remainder of the chunk is written again. If that also fails, or
// the first error is not transient, Write returns a fatal error wrapping
// errors.ErrWriteFailed and the writer's branch stops.
//
// # Usage
//
//	reg := pipeline.NewRegistry()
//	_ = file.Register(reg)
//	w, err := reader.AddWriterURI("file:///var/capture/out.ts")
package file
