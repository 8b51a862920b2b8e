package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateConnecting, StateAuthenticated, true},
		{StateConnecting, StateSubscribed, false},
		{StateAuthenticated, StateSubscribed, true},
		{StateSubscribed, StateActive, true},
		{StateSubscribed, StateIdle, true},
		{StateActive, StateIdle, true},
		{StateIdle, StateActive, true},
		{StateIdle, StateAuthenticated, false},
		{StateActive, StateConnecting, false},
		{StateClosed, StateActive, false},
		{StateClosed, StateConnecting, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}

	// Every state can close except Closed itself.
	for _, from := range []State{StateConnecting, StateAuthenticated, StateSubscribed, StateActive, StateIdle} {
		assert.True(t, from.CanTransition(StateClosed), "%s -> closed", from)
	}
}

func TestSession_Lifecycle(t *testing.T) {
	t.Parallel()

	s := newSession("user-1", 8)
	assert.Equal(t, StateConnecting, s.State())

	require.NoError(t, s.transition(StateAuthenticated))
	require.NoError(t, s.addTopic("user.user-1"))
	assert.Equal(t, StateSubscribed, s.State())
	assert.ElementsMatch(t, []string{"user.user-1"}, s.Topics())

	s.heartbeat()
	assert.Equal(t, StateActive, s.State())

	// One miss demotes to idle, the second crosses the eviction line.
	assert.False(t, s.missHeartbeat())
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, s.missHeartbeat())

	// A heartbeat resets the miss counter.
	s.heartbeat()
	assert.Equal(t, StateActive, s.State())
	assert.False(t, s.missHeartbeat())

	s.close()
	assert.Equal(t, StateClosed, s.State())
	assert.Error(t, s.transition(StateActive))

	// Closing twice is safe.
	s.close()
}

func TestSession_EnqueueAfterCloseIsRejected(t *testing.T) {
	t.Parallel()

	s := newSession("user-1", 1)
	assert.True(t, s.enqueue(ServerMessage{Type: ServerHeartbeatAck}))

	// Buffer full: non-blocking send fails.
	assert.False(t, s.enqueue(ServerMessage{Type: ServerHeartbeatAck}))

	s.close()
	assert.False(t, s.enqueue(ServerMessage{Type: ServerHeartbeatAck}))
}

func TestSession_InvalidTransition(t *testing.T) {
	t.Parallel()

	s := newSession("user-1", 1)
	err := s.transition(StateActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
