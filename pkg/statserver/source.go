package statserver

import "sync"

// StatSource supplies stat values. ok is false for unknown stats.
type StatSource interface {
	Stat(statID uint32) (value uint32, ok bool)
}

// StatFunc adapts a function to StatSource.
type StatFunc func(statID uint32) (uint32, bool)

// Stat calls f.
func (f StatFunc) Stat(statID uint32) (uint32, bool) { return f(statID) }

// StatTable is a mutable, concurrency-safe set of fixed values.
type StatTable struct {
	mu     sync.RWMutex
	values map[uint32]uint32
}

// NewStatTable returns a table holding a copy of values.
func NewStatTable(values map[uint32]uint32) *StatTable {
	t := &StatTable{values: make(map[uint32]uint32, len(values))}
	for k, v := range values {
		t.values[k] = v
	}
	return t
}

// Set stores a value.
func (t *StatTable) Set(statID, value uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[statID] = value
}

// Stat returns a stored value.
func (t *StatTable) Stat(statID uint32) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[statID]
	return v, ok
}
