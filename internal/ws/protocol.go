package ws

import (
	"encoding/json"
	"fmt"

	"github.com/studyden/backend/internal/room"
)

// Inbound is what a connected client may send: a typed live event to fan out
// to the rest of the room. Payloads are opaque to the server.
type Inbound struct {
	Type    room.EventType  `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func parseInbound(data []byte) (*Inbound, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch msg.Type {
	case room.EventWhiteboardUpdate, room.EventMusicControl, room.EventPomodoroUpdate, room.EventChatMessage:
		return &msg, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", msg.Type)
	}
}
