package log

import (
	"time"

	"github.com/statlink/statlink-go/pkg/wire"
)

// Event is a single protocol capture record. Exactly one of the payload
// pointers is set.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	LocalRole    Role      `cbor:"6,keyasint,omitempty"`
	RemoteAddr   string    `cbor:"7,keyasint,omitempty"`

	// Identity is the anonymous session identity, once assigned.
	Identity uint64 `cbor:"8,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates message flow relative to the local endpoint.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer is the protocol layer that captured the event.
type Layer uint8

const (
	// LayerTransport sees raw frames.
	LayerTransport Layer = 0
	// LayerWire sees decoded CBOR messages.
	LayerWire Layer = 1
	// LayerService sees session, auth and poller state.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role says which side of the session recorded the event.
type Role uint8

const (
	RoleClient   Role = 0
	RolePlatform Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RolePlatform:
		return "PLATFORM"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw frame at the transport layer.
type FrameEvent struct {
	// Size includes the length prefix.
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MaxFrameCapture is the number of frame bytes kept in a FrameEvent.
const MaxFrameCapture = 256

// NewFrameEvent builds a FrameEvent, truncating data to MaxFrameCapture.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data) + 4}
	if len(data) > MaxFrameCapture {
		fe.Data = append([]byte(nil), data[:MaxFrameCapture]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// MessageEvent captures a decoded request or response.
type MessageEvent struct {
	Kind      wire.Kind       `cbor:"1,keyasint"`
	MessageID uint32          `cbor:"2,keyasint"`
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`
	Result    *wire.Result    `cbor:"4,keyasint,omitempty"`
	Extended  *wire.Result    `cbor:"5,keyasint,omitempty"`

	// Decoded stat query fields, when the message carries them.
	StatID *uint32 `cbor:"6,keyasint,omitempty"`
	Value  *uint32 `cbor:"7,keyasint,omitempty"`

	// RoundTrip is the time from request send to response receipt (responses only).
	RoundTrip *time.Duration `cbor:"8,keyasint,omitempty"`
}

// StateChangeEvent captures a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity identifies what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntitySession    StateEntity = 1
	StateEntityAuth       StateEntity = 2
	StateEntityPoller     StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityAuth:
		return "AUTH"
	case StateEntityPoller:
		return "POLLER"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures a ping, pong or close.
type ControlMsgEvent struct {
	Type     wire.ControlMessageType `cbor:"1,keyasint"`
	Sequence uint32                  `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context names the operation being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

// StateEvent is a convenience constructor for a service-layer state change.
func StateEvent(connID string, entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        LayerService,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// ErrorEvent is a convenience constructor for an error event.
func ErrorEvent(connID string, layer Layer, err error, context string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        layer,
		Category:     CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: context,
		},
	}
}
