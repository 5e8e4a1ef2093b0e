// Package service drives a statlink session for its whole lifetime.
//
// StatService opens the transport, then drains the event bus on the
// calling goroutine until its context is cancelled. The auth handler and
// the stat poller it wires react to the events the transport publishes:
//
//	Connect -> Connected -> LogOnAnonymous -> LoginResult(OK) -> poll loop
//
// Stop cancels the loop and waits, bounded by its context, for the drain
// loop and the poll task to observe the cancellation.
package service
