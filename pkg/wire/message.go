package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind identifies the message kind (CBOR key 1 of every message).
type Kind uint8

const (
	// KindUnknown is never sent on the wire.
	KindUnknown Kind = 0

	// KindRequest is a client request.
	KindRequest Kind = 1

	// KindResponse is a response to a request.
	KindResponse Kind = 2

	// KindControl is a transport control message.
	KindControl Kind = 3
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Request represents a request from client to platform.
//
// CBOR encoding:
//
//	{
//	  1: kind,         // uint8: 1
//	  2: messageId,    // uint32, never 0
//	  3: operation,    // uint8
//	  4: payload       // operation-specific, optional
//	}
type Request struct {
	Kind      Kind            `cbor:"1,keyasint"`
	MessageID uint32          `cbor:"2,keyasint"`
	Operation Operation       `cbor:"3,keyasint"`
	Payload   cbor.RawMessage `cbor:"4,keyasint,omitempty"`
}

// NewRequest builds a request, encoding payload when non-nil.
func NewRequest(messageID uint32, op Operation, payload any) (*Request, error) {
	req := &Request{
		Kind:      KindRequest,
		MessageID: messageID,
		Operation: op,
	}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		req.Payload = raw
	}
	return req, nil
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.Kind != KindRequest {
		return fmt.Errorf("not a request: kind=%s", r.Kind)
	}
	if r.MessageID == 0 {
		return fmt.Errorf("messageId 0 is reserved")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	return nil
}

// Response represents a response from platform to client.
//
// CBOR encoding:
//
//	{
//	  1: kind,         // uint8: 2
//	  2: messageId,    // uint32: matches request
//	  3: result,       // uint8
//	  4: extended,     // uint8: optional detail code
//	  5: payload       // operation-specific, optional
//	}
type Response struct {
	Kind      Kind            `cbor:"1,keyasint"`
	MessageID uint32          `cbor:"2,keyasint"`
	Result    Result          `cbor:"3,keyasint"`
	Extended  Result          `cbor:"4,keyasint,omitempty"`
	Payload   cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

// NewResponse builds a response, encoding payload when non-nil.
func NewResponse(messageID uint32, result Result, payload any) (*Response, error) {
	resp := &Response{
		Kind:      KindResponse,
		MessageID: messageID,
		Result:    result,
	}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode response payload: %w", err)
		}
		resp.Payload = raw
	}
	return resp, nil
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Result.IsSuccess()
}

// LogOnPayload is the payload of an OpLogOnAnonymous request.
type LogOnPayload struct {
	// ProtocolVersion is the client's "major.minor" protocol version.
	ProtocolVersion string `cbor:"1,keyasint"`

	// ClientName is an optional free-form client identifier.
	ClientName string `cbor:"2,keyasint,omitempty"`
}

// LogOnResponsePayload is the payload of a successful logon response.
type LogOnResponsePayload struct {
	// Identity is the anonymous identity assigned to the session.
	Identity uint64 `cbor:"1,keyasint"`

	// HeartbeatSeconds is the ping interval requested by the platform.
	HeartbeatSeconds uint32 `cbor:"2,keyasint,omitempty"`
}

// QueryStatPayload is the payload of an OpQueryStat request.
type QueryStatPayload struct {
	StatID uint32 `cbor:"1,keyasint"`
}

// QueryStatResponsePayload is the payload of a successful stat response.
type QueryStatResponsePayload struct {
	StatID uint32 `cbor:"1,keyasint"`
	Value  uint32 `cbor:"2,keyasint"`
}

// ControlMessage represents a transport-level control message.
// These are separate from the request/response model.
type ControlMessage struct {
	Kind     Kind               `cbor:"1,keyasint"`
	Type     ControlMessageType `cbor:"2,keyasint"`
	Sequence uint32             `cbor:"3,keyasint,omitempty"`
}

// ControlMessageType represents the type of control message.
type ControlMessageType uint8

const (
	// ControlPing is sent to check connection liveness.
	ControlPing ControlMessageType = 1

	// ControlPong is the response to a ping.
	ControlPong ControlMessageType = 2

	// ControlClose initiates graceful connection close.
	ControlClose ControlMessageType = 3
)

// String returns the control message type name.
func (t ControlMessageType) String() string {
	switch t {
	case ControlPing:
		return "ping"
	case ControlPong:
		return "pong"
	case ControlClose:
		return "close"
	default:
		return "unknown"
	}
}
