// Package transport carries statlink frames over TCP, optionally wrapped in TLS.
//
//	┌────────────────────────────────┐
//	│      CBOR messages (wire)      │
//	├────────────────────────────────┤
//	│   Length-prefix framing (4B)   │
//	├────────────────────────────────┤
//	│        TLS (optional)          │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// Client connections are opened with a Dialer and monitored by a ping/pong
// KeepAlive. Server accepts connections, assigns each a UUID and answers
// control messages itself, handing everything else to its OnMessage hook.
package transport
