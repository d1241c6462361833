// Package worker provides a generic bounded worker pool.
//
// The pipeline runtime uses one Pool to run blocking opens (files, sockets,
// processes) away from the goroutines that drive lifecycle transitions:
//
//	pool := worker.NewPool(4, 64, func(ctx context.Context, t task) error {
//	    return t.run(ctx)
//	})
//	_ = pool.Start(ctx)
//	defer pool.Stop(ctx)
//
// Submit never blocks. A full queue returns ErrQueueFull and the caller
// decides whether to retry. Stop drains what is already queued.
package worker
