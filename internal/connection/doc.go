// Package connection implements the relay transport.
//
// A Socket is one websocket attempt with its own lifecycle:
//   - connecting: Dial returned, handshake in flight
//   - open: handshake done, read loop running
//   - closing/closed: terminated locally or dropped by the relay
//
// Notifications (open, message, error, close) are delivered through
// Handlers from the socket's own goroutine.
package connection
