// Package httppost provides the HTTP writer.
//
//	http://collector.local:8080/ingest
//	https://collector.example.com/ingest
//
// Every chunk is the body of one POST with Content-Type
// application/octet-stream unless configured otherwise. Network errors and
// 408, 429 and 5xx responses are retried with exponential backoff up to
// Config.RetryCount times; other 4xx responses fail immediately. A chunk
// that cannot be delivered stops the writer, leaving its siblings running.
//
// Requests are sequential, so the receiver sees chunks in stream order.
package httppost
