// Package buffer provides the unbounded queue behind every broadcast
// subscription and every seam write queue.
//
// A Queue never blocks producers and never drops items: a slow consumer
// simply accumulates a backlog, which is visible through Statistics and,
// when a registry is supplied, the splice_queue_depth gauge.
//
// Consumers block in Pop until an item arrives:
//
//	q := buffer.NewQueue[[]byte](buffer.WithMetrics[[]byte](reg, "file:/tmp/out"))
//	for {
//	    chunk, err := q.Pop(ctx)
//	    if err != nil {
//	        return // buffer.ErrClosed after Close and drain, or ctx.Err()
//	    }
//	    write(chunk)
//	}
//
// Close stops new pushes but keeps what is queued, so the consumer above
// keeps receiving until the backlog is empty.
package buffer
