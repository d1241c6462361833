// Package pipeline wires readers, writers and seams into a fan-out tree.
//
// A Reader owns a Source and a broadcast channel. Every Writer or Seam added
// to it subscribes to that channel when it starts, so each endpoint receives
// every chunk the reader publishes after the endpoint attached, in order.
// A Seam is both an endpoint and a new channel: it runs each chunk through a
// Processor and republishes the result to its own writers and seams.
//
//	reader(file:///in) ──┬── writer(udp://239.0.0.1:5000)
//	                     └── seam(ratelimit) ── writer(file:///out)
//
// All three entity kinds share component.Machine, so a parent only publishes
// once every endpoint below it is Running and only reports Stopped once every
// endpoint below it has drained and Stopped.
//
// Kinds are resolved through a Registry. Endpoint strings are parsed with
// ParseEndpoint:
//
//	/tmp/out.bin, file:///tmp/out.bin   file
//	udp://239.0.0.1:5000                udp
//	pipe:ffmpeg -i x -f mpegts -        pipe
//	nats://localhost:4222/raw.video     nats
//	ws://0.0.0.0:8080/stream            ws
//	http://collector:9000/ingest        http
package pipeline
