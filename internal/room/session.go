package room

import (
	"github.com/google/uuid"
)

// Session is one live, authenticated connection attached to a room. The send
// channel is drained by the transport's write loop; the engine never blocks
// on it.
type Session struct {
	ID     string
	UserID string

	send   chan []byte
	closed bool
}

func NewSession(userID string) *Session {
	return &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		send:   make(chan []byte, 256),
	}
}

// Outbound returns the channel the transport should drain. It is closed when
// the session is removed from its room.
func (s *Session) Outbound() <-chan []byte { return s.send }

// closeLocked must only be called under the owning arena's lock.
func (s *Session) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}
