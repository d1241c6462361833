// Package nats provides the NATS writer.
//
//	nats://host:4222/subject
//
// Each chunk is published as one message. Chunks larger than
// Config.MaxPayload fail the writer rather than being split, since NATS
// subscribers have no way to reassemble them. Close flushes so nothing
// published before stop is lost on a clean shutdown.
package nats
