package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateIdentityRequiresConnection(t *testing.T) {
	s := NewState()
	assert.False(t, s.Connected())
	assert.Nil(t, s.Identity())

	assert.False(t, s.SetIdentity(7), "identity stored while disconnected")
	assert.Nil(t, s.Identity())

	s.SetConnected(true)
	require.True(t, s.SetIdentity(7))
	require.NotNil(t, s.Identity())
	assert.Equal(t, uint64(7), *s.Identity())

	s.SetConnected(false)
	assert.False(t, s.Connected())
	assert.Nil(t, s.Identity())
}

func TestStateIdentityIsCopied(t *testing.T) {
	s := NewState()
	s.SetConnected(true)
	s.SetIdentity(1)

	id := s.Identity()
	*id = 99
	assert.Equal(t, uint64(1), *s.Identity())
}

func TestStateConcurrentAccess(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.SetConnected(i%2 == 0)
			s.SetIdentity(uint64(i))
		}(i)
		go func() {
			defer wg.Done()
			if id := s.Identity(); id != nil {
				_ = *id
			}
			_ = s.Connected()
		}()
	}
	wg.Wait()
}
