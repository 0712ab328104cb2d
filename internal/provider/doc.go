// Package provider exposes a 0x Mesh relay connection through a
// blockchain-provider shaped interface.
//
// MeshProvider owns exactly one relay socket at a time and translates its
// notifications into named events:
//   - "connect" when the socket opens
//   - "subscription" with each decoded relay envelope
//   - "error" for transport, decode and connect-timeout failures
//   - "close" when the relay drops the current connection
//
// Block number, chain id and network name are fixed placeholders; the relay
// has no notion of block height or chain at this layer.
package provider
