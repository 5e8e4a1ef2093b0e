package session

import (
	"errors"
	"fmt"

	"github.com/statlink/statlink-go/pkg/event"
)

var (
	// ErrConnection matches any *ConnectionError.
	ErrConnection = errors.New("connection failed")

	// ErrNotConnected is returned by operations that need an open session.
	ErrNotConnected = errors.New("not connected")

	// ErrRemoteQuery matches any *RemoteQueryError.
	ErrRemoteQuery = errors.New("remote query failed")

	// ErrNoAddress is returned when no address is configured and discovery
	// found no platform.
	ErrNoAddress = errors.New("no platform address")
)

// ConnectionError reports a failure to open the transport.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// RemoteQueryError reports a failed stat query. Result is ResultInvalid
// when the request never got a response.
type RemoteQueryError struct {
	StatID uint32
	Result event.Result
	Err    error
}

func (e *RemoteQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query stat %d: %v", e.StatID, e.Err)
	}
	return fmt.Sprintf("query stat %d: result %s", e.StatID, e.Result)
}

func (e *RemoteQueryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRemoteQuery}
	}
	return []error{ErrRemoteQuery, e.Err}
}
