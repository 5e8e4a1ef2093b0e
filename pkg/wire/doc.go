// Package wire defines the CBOR wire format used between a statlink client
// and a stat platform.
//
// All messages are CBOR (RFC 8949) maps with integer keys and are carried in
// length-prefixed frames by the transport package.
//
// # Message Kinds
//
// Key 1 of every message identifies its kind:
//   - Request: client to platform (LogOnAnonymous, LogOff, QueryStat)
//   - Response: platform to client, correlated by message ID
//   - Control: either direction (ping, pong, close)
//
// # Payloads
//
// Operation payloads are carried as raw CBOR and decoded on demand with
// DecodePayload, so the envelope can be routed without knowing the
// operation-specific types.
package wire
