package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Store is the durable-document boundary: keyed read/replace of whole room
// documents. The engine reads, mutates in memory, and writes back the full
// document under the room's lock; no partial-field updates are assumed.
type Store interface {
	InsertRoom(ctx context.Context, r *Room) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	ReplaceRoom(ctx context.Context, r *Room) error
	ListPublicRooms(ctx context.Context, limit, offset int) ([]*Room, error)
}

// Config holds the pomodoro schedule.
type Config struct {
	WorkSeconds      int
	BreakSeconds     int
	LongBreakSeconds int
	LongBreakEvery   int
	TickInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		WorkSeconds:      25 * 60,
		BreakSeconds:     5 * 60,
		LongBreakSeconds: 15 * 60,
		LongBreakEvery:   4,
		TickInterval:     time.Second,
	}
}

// Directory is the room registry and the single entry point for every room
// mutation. Each room gets its own arena with its own lock, so operations on
// different rooms never contend and no operation ever holds two rooms' locks.
type Directory struct {
	store Store
	cfg   Config

	mu     sync.Mutex
	arenas map[string]*arena
}

func NewDirectory(store Store, cfg Config) *Directory {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.LongBreakEvery <= 0 {
		cfg.LongBreakEvery = 4
	}
	return &Directory{
		store:  store,
		cfg:    cfg,
		arenas: make(map[string]*arena),
	}
}

// arena owns the authoritative in-memory copy of one room plus its live
// session set and ticker state. All of it is guarded by one mutex.
type arena struct {
	dir *Directory

	mu       sync.Mutex
	doc      *Room
	sessions map[string]*Session

	ticking  bool
	tickStop chan struct{}
}

// arena returns the per-room arena, loading the document from the store on
// first access. Arenas live for the process lifetime; dropping one while
// another goroutine still holds it would fork the room's serialization.
func (d *Directory) arena(ctx context.Context, roomID string) (*arena, error) {
	d.mu.Lock()
	if a, ok := d.arenas[roomID]; ok {
		d.mu.Unlock()
		return a, nil
	}
	d.mu.Unlock()

	doc, err := d.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, &PersistenceError{Op: "load room", Err: err}
	}
	if doc == nil {
		return nil, ErrRoomNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.arenas[roomID]; ok {
		// Lost the race; the winner's copy is authoritative.
		return a, nil
	}
	a := &arena{
		dir:      d,
		doc:      doc,
		sessions: make(map[string]*Session),
	}
	d.arenas[roomID] = a
	return a, nil
}

// mutate applies fn to the room document under the arena lock, persists the
// whole document, and returns a clone of the post-update state. On any
// failure the in-memory document is restored so readers never observe an
// un-persisted change.
func (a *arena) mutate(ctx context.Context, op string, fn func(*Room) error) (*Room, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mutateLocked(ctx, op, fn)
}

func (a *arena) mutateLocked(ctx context.Context, op string, fn func(*Room) error) (*Room, error) {
	prev := a.doc
	next := prev.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.LastActive = time.Now().UTC()
	if err := a.dir.store.ReplaceRoom(ctx, next); err != nil {
		log.Error().Err(err).Str("room", prev.ID).Str("op", op).Msg("store write failed, rolling back")
		return nil, &PersistenceError{Op: op, Err: err}
	}
	a.doc = next
	return next.Clone(), nil
}

// CreateRoom validates the request, persists a new room with the creator as its
// only participant, and returns the stored document.
func (d *Directory) CreateRoom(ctx context.Context, spec CreateSpec) (*Room, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	capacity := spec.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}

	var passwordHash string
	if spec.Private {
		hash, err := bcrypt.GenerateFromPassword([]byte(spec.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		passwordHash = string(hash)
	}

	now := time.Now().UTC()
	r := &Room{
		ID:           uuid.New().String(),
		Name:         spec.Name,
		Description:  spec.Description,
		CreatorID:    spec.CreatorID,
		Participants: []string{spec.CreatorID},
		Capacity:     capacity,
		Private:      spec.Private,
		PasswordHash: passwordHash,
		Pomodoro: PomodoroState{
			Phase:     PhaseWork,
			Remaining: d.cfg.WorkSeconds,
		},
		CreatedAt:  now,
		LastActive: now,
	}

	if err := d.store.InsertRoom(ctx, r); err != nil {
		return nil, &PersistenceError{Op: "create room", Err: err}
	}

	log.Info().Str("room", r.ID).Str("creator", r.CreatorID).Bool("private", r.Private).Msg("room created")
	return r.Clone(), nil
}

// GetRoom returns the current room state. Rooms with an arena are read from
// memory under the room lock; everything else comes straight from the store.
func (d *Directory) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	d.mu.Lock()
	a, ok := d.arenas[roomID]
	d.mu.Unlock()

	if ok {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.doc.Clone(), nil
	}

	doc, err := d.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, &PersistenceError{Op: "load room", Err: err}
	}
	if doc == nil {
		return nil, ErrRoomNotFound
	}
	return doc, nil
}

// ListPublicRooms returns public rooms ordered by last activity, newest first.
func (d *Directory) ListPublicRooms(ctx context.Context, limit, offset int) ([]*Room, error) {
	rooms, err := d.store.ListPublicRooms(ctx, limit, offset)
	if err != nil {
		return nil, &PersistenceError{Op: "list rooms", Err: err}
	}
	return rooms, nil
}

// LiveCounts reports how many rooms currently have live sessions and the
// total session count, for the stats endpoint.
func (d *Directory) LiveCounts() (rooms, sessions int) {
	d.mu.Lock()
	arenas := make([]*arena, 0, len(d.arenas))
	for _, a := range d.arenas {
		arenas = append(arenas, a)
	}
	d.mu.Unlock()

	for _, a := range arenas {
		a.mu.Lock()
		if n := len(a.sessions); n > 0 {
			rooms++
			sessions += n
		}
		a.mu.Unlock()
	}
	return rooms, sessions
}
