package room

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Live event types carried over the fan-out router. Chat and the live
// whiteboard/music signals are best-effort: the persisted room document, not
// event replay, is the source of truth on reconnect.
type EventType string

const (
	EventWhiteboardUpdate EventType = "whiteboard-update"
	EventMusicControl     EventType = "music-control"
	EventPomodoroUpdate   EventType = "pomodoro-update"
	EventChatMessage      EventType = "chat-message"
	EventUserConnected    EventType = "user-connected"
	EventUserDisconnected EventType = "user-disconnected"
)

// Event is the wire envelope for everything fanned out to live sessions.
type Event struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"roomId"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Publish delivers an event from one live session to every other live session
// in the same room. Delivery is fire-and-forget: no acknowledgment, no retry.
// Per-session FIFO is preserved by each receiver's buffered channel; a
// receiver that cannot keep up is dropped and recovers state on reconnect.
func (d *Directory) Publish(ctx context.Context, roomID string, sess *Session, eventType EventType, payload json.RawMessage) error {
	switch eventType {
	case EventWhiteboardUpdate, EventMusicControl, EventPomodoroUpdate, EventChatMessage:
	default:
		return &ValidationError{Field: "type", Reason: "unknown event type"}
	}

	a, err := d.arena(ctx, roomID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.sessions[sess.ID]; !ok {
		return ErrNotAuthorized
	}

	a.fanoutLocked(Event{
		Type:    eventType,
		RoomID:  roomID,
		UserID:  sess.UserID,
		Payload: payload,
	}, sess)
	return nil
}

// notifyLocked emits an engine-originated event (presence, pomodoro ticks) to
// every live session except the given one.
func (a *arena) notifyLocked(eventType EventType, userID string, exclude *Session) {
	a.fanoutLocked(Event{
		Type:   eventType,
		RoomID: a.doc.ID,
		UserID: userID,
	}, exclude)
}

func (a *arena) fanoutLocked(evt Event, exclude *Session) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("room", a.doc.ID).Msg("failed to encode event")
		return
	}

	for id, sess := range a.sessions {
		if sess == exclude {
			continue
		}
		select {
		case sess.send <- data:
		default:
			// Slow consumer: drop the session rather than block the room.
			sess.closeLocked()
			delete(a.sessions, id)
			log.Warn().Str("room", a.doc.ID).Str("session", id).Msg("dropped slow session")
		}
	}
}
