// Package testutil holds helpers shared by splice tests: random payloads,
// temporary files, a loopback UDP collector and an in-memory NATS client.
package testutil
