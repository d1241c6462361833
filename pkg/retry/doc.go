// Package retry provides exponential backoff for operations that can fail
// transiently.
//
// Presets:
//
//   - DefaultConfig: three attempts, 100ms doubling to 5s.
//   - Once: a single immediate retry. The file sink uses it with a
//     BeforeRetry hook that reopens the file in append mode.
//   - Quick: short jittered retries for in-process contention such as a full
//     worker queue.
//
// Errors wrapped with NonRetryable, or rejected by Config.Retryable, end the
// loop immediately and are returned unwrapped.
package retry
