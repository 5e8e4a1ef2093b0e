package session

import (
	"context"

	"github.com/statlink/statlink-go/pkg/event"
)

// Transport is the capability interface to the remote platform.
type Transport interface {
	// Connect opens the session. A failure to reach the platform returns a
	// *ConnectionError. Success is also reported as event.Connected.
	Connect(ctx context.Context) error

	// Disconnect closes the session and reports event.Disconnected once.
	// It is a no-op when already disconnected and always returns nil.
	Disconnect() error

	IsConnected() bool

	// LogOnAnonymous starts an anonymous logon. The outcome arrives as
	// event.LoginResult. Returns ErrNotConnected when not connected.
	LogOnAnonymous() error

	// QueryStat reads a statistic. Failures are *RemoteQueryError.
	QueryStat(ctx context.Context, statID uint32) (uint32, error)
}

// Publisher receives events from a Transport.
type Publisher interface {
	Publish(ev event.Event)
}
