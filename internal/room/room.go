package room

import (
	"strings"
	"time"
)

const DefaultCapacity = 10

// Pomodoro phase names, stored as-is in the room document
type Phase string

const (
	PhaseWork      Phase = "work"
	PhaseBreak     Phase = "break"
	PhaseLongBreak Phase = "longBreak"
)

// Shared music transport state
type MusicState struct {
	Track    string  `json:"track"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
}

// Shared pomodoro timer state. CompletedWork counts finished work phases so
// the timer knows when the next break is a long one.
type PomodoroState struct {
	Active        bool  `json:"active"`
	Phase         Phase `json:"phase"`
	Remaining     int   `json:"remaining"`
	CompletedWork int   `json:"completedWork"`
}

// The durable study-room document. The whole document is persisted as one
// unit; partial writes never hit the store.
type Room struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	CreatorID    string        `json:"creatorId"`
	Participants []string      `json:"participants"`
	Capacity     int           `json:"capacity"`
	Private      bool          `json:"private"`
	PasswordHash string        `json:"passwordHash,omitempty"`
	Whiteboard   string        `json:"whiteboard"`
	Music        MusicState    `json:"music"`
	Pomodoro     PomodoroState `json:"pomodoro"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActive   time.Time     `json:"lastActive"`
}

// Returns a deep copy so callers can read it without holding the room's lock
func (r *Room) Clone() *Room {
	c := *r
	c.Participants = make([]string, len(r.Participants))
	copy(c.Participants, r.Participants)
	return &c
}

func (r *Room) HasParticipant(userID string) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Room) removeParticipant(userID string) {
	kept := r.Participants[:0]
	for _, id := range r.Participants {
		if id != userID {
			kept = append(kept, id)
		}
	}
	r.Participants = kept
}

// CreateSpec carries the creator-supplied fields for a new room. Password is
// plaintext here; it is hashed before the document is persisted. A zero
// Capacity selects DefaultCapacity.
type CreateSpec struct {
	Name        string
	Description string
	CreatorID   string
	Capacity    int
	Private     bool
	Password    string
}

func (s *CreateSpec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	if s.Capacity < 0 {
		return &ValidationError{Field: "capacity", Reason: "capacity must not be negative"}
	}
	if s.Private && s.Password == "" {
		return &ValidationError{Field: "password", Reason: "private rooms require a password"}
	}
	return nil
}

func (p *PomodoroState) validate() error {
	switch p.Phase {
	case PhaseWork, PhaseBreak, PhaseLongBreak:
	default:
		return &ValidationError{Field: "pomodoro.phase", Reason: "unknown phase"}
	}
	if p.Remaining < 0 {
		return &ValidationError{Field: "pomodoro.remaining", Reason: "remaining seconds must not be negative"}
	}
	return nil
}

func (m *MusicState) validate() error {
	if m.Position < 0 {
		return &ValidationError{Field: "music.position", Reason: "position must not be negative"}
	}
	return nil
}
