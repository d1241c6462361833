// Package natsclient wraps a nats.go connection for the nats:// reader and
// writer kinds.
//
// Connect retries with the backoff from pkg/retry, so a pipeline can start
// before the server is reachable:
//
//	client, _ := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry))
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// Readers and writers depend on the PubSub interface rather than *Client so
// tests can substitute an in-memory implementation.
//
// Integration tests start a real server with testcontainers and only run
// when INTEGRATION_TESTS is set.
package natsclient
