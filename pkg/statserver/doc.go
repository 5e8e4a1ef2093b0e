// Package statserver implements a statlink platform: it hands out anonymous
// identities and answers stat queries over the CBOR frame protocol.
//
// It backs cmd/statlink-server and the integration tests of the client.
// Logon denial, result codes and query failures can be scripted so that
// every client reaction can be exercised against a real socket.
package statserver
