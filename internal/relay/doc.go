// Package relay decodes inbound relay envelopes.
//
// The envelope is treated as opaque JSON: it is decoded into generic Go
// values (maps, slices, strings, json.Number, bools, nil) and handed to
// subscribers unchanged. No topic or order semantics live here.
package relay
