// Package session owns the connection to the stat platform.
//
// Transport is the capability the rest of the service depends on: connect,
// disconnect, anonymous logon and stat queries. Client implements it over
// the statlink CBOR protocol and reports asynchronous outcomes (connected,
// disconnected, logon result, stat value) on an event bus.
//
// State is the shared view of the logical session (connected flag and
// identity) that event handlers mutate and the poller reads.
package session
