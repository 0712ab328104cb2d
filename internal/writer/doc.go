// Package writer archives relay subscription payloads.
//
// Payloads are queued without blocking the dispatch path, batched, and
// inserted append-only into relay_messages. Row ids are derived from the
// payload bytes so a frame re-delivered after a reconnect is stored once.
package writer
