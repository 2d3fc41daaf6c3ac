package room

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MetadataUpdate holds creator-only settings changes. Nil fields are left
// untouched; set fields fully replace the current value.
type MetadataUpdate struct {
	Name        *string
	Description *string
	Private     *bool
	Password    *string
	Capacity    *int
}

// UpdateWhiteboard replaces the room's whiteboard snapshot. The previous
// snapshot is discarded whole: concurrent snapshots are not merged, the last
// accepted write wins.
func (d *Directory) UpdateWhiteboard(ctx context.Context, roomID, userID, snapshot string) (*Room, error) {
	return d.applyUpdate(ctx, roomID, userID, "whiteboard", func(r *Room) error {
		r.Whiteboard = snapshot
		return nil
	})
}

// UpdateMusic replaces the room's music transport state.
func (d *Directory) UpdateMusic(ctx context.Context, roomID, userID string, state MusicState) (*Room, error) {
	if err := state.validate(); err != nil {
		return nil, err
	}
	return d.applyUpdate(ctx, roomID, userID, "music", func(r *Room) error {
		r.Music = state
		return nil
	})
}

// UpdatePomodoro replaces the room's pomodoro state and reconciles the ticker
// with it: activating starts ticking (a no-op when already running),
// deactivating freezes the remaining seconds where they are.
func (d *Directory) UpdatePomodoro(ctx context.Context, roomID, userID string, state PomodoroState) (*Room, error) {
	if err := state.validate(); err != nil {
		return nil, err
	}

	a, err := d.arena(ctx, roomID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isLiveLocked(userID) {
		return nil, ErrNotAuthorized
	}

	updated, err := a.mutateLocked(ctx, "pomodoro", func(r *Room) error {
		// Keep the long-break cadence when the caller doesn't know it.
		if state.CompletedWork == 0 {
			state.CompletedWork = r.Pomodoro.CompletedWork
		}
		r.Pomodoro = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Pomodoro.Active {
		a.resumeTickerLocked()
	} else {
		a.stopTickerLocked()
	}
	return updated, nil
}

// UpdateMetadata applies creator-only settings changes, re-validated against
// the same invariants as room creation.
func (d *Directory) UpdateMetadata(ctx context.Context, roomID, userID string, update MetadataUpdate) (*Room, error) {
	a, err := d.arena(ctx, roomID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.doc.CreatorID != userID {
		return nil, ErrNotAuthorized
	}

	return a.mutateLocked(ctx, "metadata", func(r *Room) error {
		if update.Name != nil {
			if strings.TrimSpace(*update.Name) == "" {
				return &ValidationError{Field: "name", Reason: "name is required"}
			}
			r.Name = *update.Name
		}
		if update.Description != nil {
			r.Description = *update.Description
		}
		if update.Capacity != nil {
			if *update.Capacity <= 0 {
				return &ValidationError{Field: "capacity", Reason: "capacity must be positive"}
			}
			if *update.Capacity < len(r.Participants) {
				return &ValidationError{Field: "capacity", Reason: "capacity below current participant count"}
			}
			r.Capacity = *update.Capacity
		}
		if update.Private != nil {
			r.Private = *update.Private
		}
		if update.Password != nil && *update.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(*update.Password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			r.PasswordHash = string(hash)
		}
		if r.Private && r.PasswordHash == "" {
			return &ValidationError{Field: "password", Reason: "private rooms require a password"}
		}
		return nil
	})
}

// applyUpdate is the shared member-gated write path: authorize, replace the
// field in arrival order under the room lock, persist before acknowledging.
func (d *Directory) applyUpdate(ctx context.Context, roomID, userID, op string, fn func(*Room) error) (*Room, error) {
	a, err := d.arena(ctx, roomID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isLiveLocked(userID) {
		return nil, ErrNotAuthorized
	}
	return a.mutateLocked(ctx, op, fn)
}
