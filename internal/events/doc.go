// Package events implements the listener registry behind the provider.
//
// Listeners are registered per event type with either repeat or once
// frequency. Dispatch is synchronous and runs in registration order:
//   - once entries are removed immediately before they are invoked
//   - each invocation is isolated, a panicking listener does not stop the pass
//   - listeners added during a pass are not visited by that pass
package events
