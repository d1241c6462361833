// Package nats provides the NATS reader.
//
//	nats://host:4222/subject
//
// Every message on the subject becomes one chunk. Messages are buffered
// between the subscription callback and the pump without bound, so a slow
// set of writers shows up as queue depth rather than dropped messages. The
// reader never ends on its own; it runs until stopped.
//
// When component.Dependencies carries a NATS connection it is shared by
// every nats:// endpoint and the URL host is ignored.
package nats
