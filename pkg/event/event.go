// Package event provides the callback bus that carries session events from
// the transport goroutines to the single goroutine running the service loop.
package event

import "fmt"

// Tag identifies an event variant.
type Tag uint8

const (
	// TagConnected marks a Connected event.
	TagConnected Tag = iota + 1

	// TagDisconnected marks a Disconnected event.
	TagDisconnected

	// TagLoginResult marks a LoginResult event.
	TagLoginResult

	// TagStatResult marks a StatResult event.
	TagStatResult
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagConnected:
		return "CONNECTED"
	case TagDisconnected:
		return "DISCONNECTED"
	case TagLoginResult:
		return "LOGIN_RESULT"
	case TagStatResult:
		return "STAT_RESULT"
	default:
		return fmt.Sprintf("TAG(%d)", uint8(t))
	}
}

// Event is one of Connected, Disconnected, LoginResult or StatResult.
type Event interface {
	Tag() Tag
}

// Connected is published once the transport session is open.
type Connected struct{}

// Disconnected is published once per connection when it ends.
type Disconnected struct {
	// UserInitiated is true when the local side asked to disconnect.
	UserInitiated bool

	// Err is the cause of an unrequested disconnect.
	Err error
}

// LoginResult carries the outcome of an anonymous logon.
type LoginResult struct {
	Result   Result
	Extended Result

	// Identity is set only when Result is ResultOK.
	Identity uint64
}

// StatResult carries a successfully queried statistic.
type StatResult struct {
	StatID uint32
	Value  uint32
}

func (Connected) Tag() Tag    { return TagConnected }
func (Disconnected) Tag() Tag { return TagDisconnected }
func (LoginResult) Tag() Tag  { return TagLoginResult }
func (StatResult) Tag() Tag   { return TagStatResult }

// Result is the platform's result code as seen by the core.
type Result uint8

const (
	ResultInvalid Result = iota
	ResultOK
	ResultFail
	ResultLogonDenied
	ResultNotLoggedOn
	ResultBusy
	ResultRateLimited
	ResultServiceUnavailable
	ResultInvalidParam
	ResultTimeout
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultInvalid:
		return "INVALID"
	case ResultOK:
		return "OK"
	case ResultFail:
		return "FAIL"
	case ResultLogonDenied:
		return "LOGON_DENIED"
	case ResultNotLoggedOn:
		return "NOT_LOGGED_ON"
	case ResultBusy:
		return "BUSY"
	case ResultRateLimited:
		return "RATE_LIMITED"
	case ResultServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case ResultInvalidParam:
		return "INVALID_PARAM"
	case ResultTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}
