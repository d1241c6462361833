// Package health turns the lifecycle state of a pipeline into a Status tree.
//
// Every reader, writer and seam maps to one Status through FromEntity; the
// tree mirrors the pipeline topology through SubStatuses. Aggregate rolls a
// set of reader trees into one process-level status:
//
//	splice            degraded
//	├─ reader file    healthy
//	│  ├─ writer udp  healthy
//	│  └─ writer ws   unhealthy  listen tcp :8081: address already in use
//	└─ reader udp     healthy
//
// A failed branch only degrades the process. Handler serves the tree as
// JSON on /health, answering 503 when everything has failed.
package health
