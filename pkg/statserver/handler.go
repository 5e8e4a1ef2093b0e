package statserver

import (
	"sync"

	"github.com/statlink/statlink-go/pkg/version"
	"github.com/statlink/statlink-go/pkg/wire"
)

// AnonymousIdentityBase is the first identity handed out. Identities are
// allocated sequentially from it and never reused within a process.
const AnonymousIdentityBase uint64 = 0x01A0_0000_0000_0001

// Counters are request totals since the handler was created.
type Counters struct {
	Logons       uint64
	LogonsDenied uint64
	Queries      uint64
	QueryErrors  uint64
}

// Handler answers statlink requests. Sessions are keyed by connection id.
type Handler struct {
	mu sync.Mutex

	logonResult   wire.Result
	logonExtended wire.Result
	heartbeat     uint32

	source   StatSource
	script   []wire.Result
	sessions map[string]uint64
	next     uint64
	counters Counters
}

// NewHandler creates a handler that accepts every logon and serves stats
// from source. A nil source knows no stats.
func NewHandler(source StatSource) *Handler {
	if source == nil {
		source = NewStatTable(nil)
	}
	return &Handler{
		logonResult: wire.ResultOK,
		source:      source,
		sessions:    make(map[string]uint64),
		next:        AnonymousIdentityBase,
	}
}

// SetLogonResult makes every following logon answer with result and
// extended. ResultOK restores normal logons.
func (h *Handler) SetLogonResult(result, extended wire.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logonResult = result
	h.logonExtended = extended
}

// SetHeartbeat sets the ping interval advertised in logon responses.
func (h *Handler) SetHeartbeat(seconds uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heartbeat = seconds
}

// FailNextQueries answers the next len(results) stat queries from logged-on
// sessions with the given codes, in order.
func (h *Handler) FailNextQueries(results ...wire.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.script = append(h.script, results...)
}

// Identity returns the identity of a logged-on connection.
func (h *Handler) Identity(connID string) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.sessions[connID]
	return id, ok
}

// Forget drops the session of a closed connection.
func (h *Handler) Forget(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, connID)
}

// Counters returns a snapshot of the request totals.
func (h *Handler) Counters() Counters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counters
}

// HandleRequest processes one request from connID and returns its response.
func (h *Handler) HandleRequest(connID string, req *wire.Request) *wire.Response {
	switch req.Operation {
	case wire.OpLogOnAnonymous:
		return h.handleLogOn(connID, req)
	case wire.OpLogOff:
		h.Forget(connID)
		return respond(req.MessageID, wire.ResultOK, nil)
	case wire.OpQueryStat:
		return h.handleQueryStat(connID, req)
	default:
		return respond(req.MessageID, wire.ResultInvalidParam, nil)
	}
}

func (h *Handler) handleLogOn(connID string, req *wire.Request) *wire.Response {
	var p wire.LogOnPayload
	if err := wire.DecodePayload(req.Payload, &p); err != nil {
		return respond(req.MessageID, wire.ResultInvalidParam, nil)
	}
	if !version.Compatible(version.Current, p.ProtocolVersion) {
		return respond(req.MessageID, wire.ResultInvalidParam, nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.counters.Logons++

	if h.logonResult != wire.ResultOK {
		h.counters.LogonsDenied++
		resp := respond(req.MessageID, h.logonResult, nil)
		resp.Extended = h.logonExtended
		return resp
	}

	id, ok := h.sessions[connID]
	if !ok {
		id = h.next
		h.next++
		h.sessions[connID] = id
	}
	return respond(req.MessageID, wire.ResultOK, wire.LogOnResponsePayload{
		Identity:         id,
		HeartbeatSeconds: h.heartbeat,
	})
}

func (h *Handler) handleQueryStat(connID string, req *wire.Request) *wire.Response {
	h.mu.Lock()
	h.counters.Queries++
	_, loggedOn := h.sessions[connID]
	var scripted wire.Result
	if loggedOn && len(h.script) > 0 {
		scripted = h.script[0]
		h.script = h.script[1:]
	}
	h.mu.Unlock()

	result := wire.ResultOK
	var payload any
	switch {
	case !loggedOn:
		result = wire.ResultNotLoggedOn
	case scripted != wire.ResultInvalid:
		result = scripted
	default:
		var p wire.QueryStatPayload
		if err := wire.DecodePayload(req.Payload, &p); err != nil {
			result = wire.ResultInvalidParam
			break
		}
		value, ok := h.source.Stat(p.StatID)
		if !ok {
			result = wire.ResultInvalidParam
			break
		}
		payload = wire.QueryStatResponsePayload{StatID: p.StatID, Value: value}
	}

	if result != wire.ResultOK {
		h.mu.Lock()
		h.counters.QueryErrors++
		h.mu.Unlock()
	}
	return respond(req.MessageID, result, payload)
}

func respond(id uint32, result wire.Result, payload any) *wire.Response {
	resp, err := wire.NewResponse(id, result, payload)
	if err != nil {
		return &wire.Response{Kind: wire.KindResponse, MessageID: id, Result: wire.ResultFail}
	}
	return resp
}
