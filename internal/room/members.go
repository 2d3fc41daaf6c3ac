package room

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Join adds userID to the room's durable participant set. Rejoining an
// existing participant is an idempotent no-op and never fails on capacity.
// For private rooms the password is checked before capacity.
func (d *Directory) Join(ctx context.Context, roomID, userID, password string) (*Room, error) {
	a, err := d.arena(ctx, roomID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.doc.Private {
		if err := bcrypt.CompareHashAndPassword([]byte(a.doc.PasswordHash), []byte(password)); err != nil {
			return nil, ErrWrongPassword
		}
	}

	if a.doc.HasParticipant(userID) {
		return a.doc.Clone(), nil
	}
	if len(a.doc.Participants) >= a.doc.Capacity {
		return nil, ErrRoomFull
	}

	updated, err := a.mutateLocked(ctx, "join", func(r *Room) error {
		r.Participants = append(r.Participants, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("room", roomID).Str("user", userID).Int("participants", len(updated.Participants)).Msg("user joined room")
	return updated, nil
}

// Leave removes userID from the durable participant set and drops every live
// session that user holds. Leaving is a user-level action: it applies even
// when other connections for the same user are still open. Leaving a room the
// user is not in is a no-op.
func (d *Directory) Leave(ctx context.Context, roomID, userID string) (*Room, error) {
	a, err := d.arena(ctx, roomID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.doc.HasParticipant(userID) {
		return a.doc.Clone(), nil
	}

	updated, err := a.mutateLocked(ctx, "leave", func(r *Room) error {
		r.removeParticipant(userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Teardown only after the store write sticks; a failed leave must not
	// drop the user's live sessions.
	for id, sess := range a.sessions {
		if sess.UserID == userID {
			sess.closeLocked()
			delete(a.sessions, id)
		}
	}

	a.notifyLocked(EventUserDisconnected, userID, nil)
	a.suspendIfEmptyLocked()
	log.Info().Str("room", roomID).Str("user", userID).Msg("user left room")
	return updated, nil
}

// Attach registers a live session for an existing participant and notifies
// the other live members. A live session always implies participant-set
// membership, so non-participants are rejected rather than silently joined.
func (d *Directory) Attach(ctx context.Context, roomID string, sess *Session) (*Room, error) {
	a, err := d.arena(ctx, roomID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.doc.HasParticipant(sess.UserID) {
		return nil, ErrNotAuthorized
	}

	a.sessions[sess.ID] = sess
	a.notifyLocked(EventUserConnected, sess.UserID, sess)
	a.resumeTickerLocked()

	log.Info().Str("room", roomID).Str("user", sess.UserID).Str("session", sess.ID).Int("live", len(a.sessions)).Msg("session attached")
	return a.doc.Clone(), nil
}

// Detach removes a single live session without touching the durable
// participant set. Transport disconnects land here unconditionally.
func (d *Directory) Detach(ctx context.Context, roomID string, sess *Session) {
	a, err := d.arena(ctx, roomID)
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			log.Error().Err(err).Str("room", roomID).Msg("detach failed to resolve room")
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.sessions[sess.ID]; !ok {
		return
	}
	sess.closeLocked()
	delete(a.sessions, sess.ID)

	if !a.isLiveLocked(sess.UserID) {
		a.notifyLocked(EventUserDisconnected, sess.UserID, nil)
	}
	a.suspendIfEmptyLocked()

	log.Info().Str("room", roomID).Str("user", sess.UserID).Str("session", sess.ID).Int("live", len(a.sessions)).Msg("session detached")
}

// IsLiveMember reports whether userID currently holds at least one open
// session in the room. This is the authorization gate for broadcast and for
// whiteboard/music/pomodoro updates.
func (d *Directory) IsLiveMember(roomID, userID string) bool {
	d.mu.Lock()
	a, ok := d.arenas[roomID]
	d.mu.Unlock()
	if !ok {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isLiveLocked(userID)
}

func (a *arena) isLiveLocked(userID string) bool {
	for _, sess := range a.sessions {
		if sess.UserID == userID {
			return true
		}
	}
	return false
}
