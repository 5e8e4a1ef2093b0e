package session

import "sync"

// State is the logical session shared between event handlers and the poller.
// Identity is only ever set while connected.
type State struct {
	mu        sync.RWMutex
	connected bool
	identity  *uint64
}

// NewState returns a disconnected, unauthenticated session.
func NewState() *State {
	return &State{}
}

// SetConnected updates the connected flag. Disconnecting clears the identity.
func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	if !connected {
		s.identity = nil
	}
}

// SetIdentity records the identity assigned at logon. It is ignored while
// disconnected and reports whether the identity was stored.
func (s *State) SetIdentity(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.identity = &id
	return true
}

// Connected reports the connected flag.
func (s *State) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Identity returns a copy of the identity, or nil when unauthenticated.
func (s *State) Identity() *uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}
