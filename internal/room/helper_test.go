package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// In-memory store standing in for the sqlite document store.
type memStore struct {
	mu           sync.Mutex
	rooms        map[string]*Room
	replaceErr   error
	replaceCount int
}

func newMemStore() *memStore {
	return &memStore{rooms: make(map[string]*Room)}
}

func (s *memStore) InsertRoom(_ context.Context, r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r.Clone()
	return nil
}

func (s *memStore) GetRoom(_ context.Context, id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s *memStore) ReplaceRoom(_ context.Context, r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	if _, ok := s.rooms[r.ID]; !ok {
		return errors.New("room does not exist")
	}
	s.replaceCount++
	s.rooms[r.ID] = r.Clone()
	return nil
}

func (s *memStore) ListPublicRooms(_ context.Context, limit, offset int) ([]*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var public []*Room
	for _, r := range s.rooms {
		if !r.Private {
			public = append(public, r.Clone())
		}
	}
	sort.Slice(public, func(i, j int) bool {
		return public[i].LastActive.After(public[j].LastActive)
	})
	if offset >= len(public) {
		return nil, nil
	}
	public = public[offset:]
	if limit < len(public) {
		public = public[:limit]
	}
	return public, nil
}

func (s *memStore) failReplaces(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceErr = err
}

func (s *memStore) replaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceCount
}

func testConfig() Config {
	return Config{
		WorkSeconds:      1500,
		BreakSeconds:     300,
		LongBreakSeconds: 900,
		LongBreakEvery:   4,
		TickInterval:     5 * time.Millisecond,
	}
}

func newTestDirectory() (*Directory, *memStore) {
	store := newMemStore()
	return NewDirectory(store, testConfig()), store
}

func mustCreate(t *testing.T, d *Directory, spec CreateSpec) *Room {
	t.Helper()
	r, err := d.CreateRoom(context.Background(), spec)
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	return r
}

// mustAttach joins the user (when needed) and registers a live session.
func mustAttach(t *testing.T, d *Directory, roomID, userID, password string) *Session {
	t.Helper()
	if _, err := d.Join(context.Background(), roomID, userID, password); err != nil {
		t.Fatalf("Join failed for %s: %v", userID, err)
	}
	sess := NewSession(userID)
	if _, err := d.Attach(context.Background(), roomID, sess); err != nil {
		t.Fatalf("Attach failed for %s: %v", userID, err)
	}
	return sess
}

func drain(sess *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case data, ok := <-sess.Outbound():
			if !ok {
				return out
			}
			out = append(out, data)
		default:
			return out
		}
	}
}
