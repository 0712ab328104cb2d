// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Relay connection state, connects and disconnects
//   - Inbound message and decode-error rates
//   - Listener panics during event dispatch
//   - Archive throughput, failures and dropped payloads
package metrics
