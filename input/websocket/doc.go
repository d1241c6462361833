// Package websocket provides the WebSocket reader: a client that dials a
// ws:// or wss:// URL and yields every received message as one chunk.
//
// Text and binary messages are treated alike. A close frame with a normal
// or going-away code ends the stream with io.EOF. Any other disconnect is
// retried with exponential backoff up to Config.MaxReconnects times;
// messages the server sends while the client is away are lost.
//
// Usage:
//
//	in := websocket.NewInput(spec, websocket.DefaultConfig(), deps)
//	if err := in.Open(ctx); err != nil {
//		return err
//	}
//	defer in.Close()
//	for {
//		chunk, err := in.Read(ctx)
//		...
//	}
package websocket
