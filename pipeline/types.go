package pipeline

import (
	"context"
)

// Chunk is one opaque unit of data as produced by a Source. Chunks are
// shared between every subscriber of a channel and must not be modified.
type Chunk []byte

// Source produces chunks for a Reader.
type Source interface {
	// Open acquires the underlying resource. It may block.
	Open(ctx context.Context) error
	// Read returns the next chunk. io.EOF marks the natural end of the
	// source; a chunk may accompany it. Read must return promptly once ctx
	// ends or Close is called.
	Read(ctx context.Context) (Chunk, error)
	// Close releases the resource and unblocks a pending Read.
	Close() error
	// Description names the source for operators.
	Description() string
}

// Sink consumes chunks for a Writer. Write is never called concurrently.
type Sink interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, chunk Chunk) error
	// Close flushes and releases the resource. It is called once, after the
	// last Write.
	Close() error
	Description() string
}

// Pusher accepts processed chunks from a Processor.
type Pusher interface {
	Push(chunk Chunk) error
}

// Processor transforms the chunks flowing through a Seam. Process is called
// once per chunk, in order, and the next chunk is not delivered until it
// returns. It may push any number of chunks, including none. A returned
// error aborts the seam's branch; chunks pushed before it are still sent.
type Processor interface {
	Process(ctx context.Context, chunk Chunk, out Pusher) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, chunk Chunk, out Pusher) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, chunk Chunk, out Pusher) error {
	return f(ctx, chunk, out)
}

func chunkSize(c Chunk) int { return len(c) }
