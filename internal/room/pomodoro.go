package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// advance moves the pomodoro one tick forward. On reaching zero the phase
// rotates work -> break -> work, with every Nth work phase followed by a long
// break instead, and the countdown resets to the new phase's duration.
func advance(p *PomodoroState, cfg Config) {
	p.Remaining--
	if p.Remaining > 0 {
		return
	}

	switch p.Phase {
	case PhaseWork:
		p.CompletedWork++
		if p.CompletedWork%cfg.LongBreakEvery == 0 {
			p.Phase = PhaseLongBreak
			p.Remaining = cfg.LongBreakSeconds
		} else {
			p.Phase = PhaseBreak
			p.Remaining = cfg.BreakSeconds
		}
	default:
		p.Phase = PhaseWork
		p.Remaining = cfg.WorkSeconds
	}
}

// resumeTickerLocked starts the tick loop if the timer is active and the room
// has live sessions. Starting an already-running ticker is a no-op.
func (a *arena) resumeTickerLocked() {
	if a.ticking || !a.doc.Pomodoro.Active || len(a.sessions) == 0 {
		return
	}
	a.ticking = true
	a.tickStop = make(chan struct{})
	go a.runTicker(a.tickStop)
	log.Debug().Str("room", a.doc.ID).Msg("pomodoro ticking")
}

// stopTickerLocked halts the tick loop, freezing the remaining seconds at
// their current (already persisted) value.
func (a *arena) stopTickerLocked() {
	if !a.ticking {
		return
	}
	a.ticking = false
	close(a.tickStop)
	log.Debug().Str("room", a.doc.ID).Msg("pomodoro ticker stopped")
}

// suspendIfEmptyLocked suspends tick work when the last live session goes
// away. The timer state stays in the document, so the next attach resumes
// exactly where the room left off.
func (a *arena) suspendIfEmptyLocked() {
	if len(a.sessions) == 0 {
		a.stopTickerLocked()
	}
}

func (a *arena) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(a.dir.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !a.tick(stop) {
				return
			}
		}
	}
}

// tick advances the countdown by one interval, persists the new state, and
// fans the update out to every live member. Returns false once ticking should
// stop.
func (a *arena) tick(stop chan struct{}) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	// A stale loop that raced a stop/resume must not double-advance.
	if !a.ticking || stop != a.tickStop {
		return false
	}
	if !a.doc.Pomodoro.Active || len(a.sessions) == 0 {
		a.ticking = false
		return false
	}

	updated, err := a.mutateLocked(context.Background(), "pomodoro tick", func(r *Room) error {
		advance(&r.Pomodoro, a.dir.cfg)
		return nil
	})
	if err != nil {
		// Keep ticking; the next persisted tick supersedes this one.
		return true
	}

	payload, err := json.Marshal(updated.Pomodoro)
	if err != nil {
		return true
	}
	a.fanoutLocked(Event{
		Type:    EventPomodoroUpdate,
		RoomID:  a.doc.ID,
		Payload: payload,
	}, nil)
	return true
}
