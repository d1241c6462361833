// Package websocket provides the WebSocket writer.
//
//	ws://0.0.0.0:8081/live
//
// The writer listens on host:port and upgrades requests to the URI path.
// Each chunk goes to every connected client as one binary message, in
// order. Clients joining mid-stream see only chunks written after they
// connect. Every client has its own bounded queue (Config.ClientQueue); when
// it is full further chunks are dropped for that client and counted in
// splice_websocket_messages_dropped_total, so one stalled viewer never holds
// up the reader.
//
// Messages sent by clients are read and discarded; pings keep idle
// connections alive. Stopping the writer sends a normal-closure frame to
// every client before the server shuts down. TLS termination (wss) is left
// to a fronting proxy.
package websocket
