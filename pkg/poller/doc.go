// Package poller runs the repeating stat query of an authenticated session.
//
// A Poller owns at most one active Task. Each iteration checks that the
// transport is connected and the session holds an identity, queries the
// stat, records the value and waits for the next interval. A failed query
// ends the task; it is never restarted automatically.
package poller
