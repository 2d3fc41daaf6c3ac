package room

import (
	"context"
	"errors"
	"testing"
)

func TestUpdateWhiteboardLastWriterWins(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	mustAttach(t, d, r.ID, "alice", "")
	mustAttach(t, d, r.ID, "bob", "")

	if _, err := d.UpdateWhiteboard(ctx, r.ID, "alice", "snapshot A"); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	updated, err := d.UpdateWhiteboard(ctx, r.ID, "bob", "snapshot B")
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	if updated.Whiteboard != "snapshot B" {
		t.Errorf("expected last writer to win, got %q", updated.Whiteboard)
	}

	// Read-your-writes: an immediate read observes the acknowledged update.
	got, err := d.GetRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Whiteboard != "snapshot B" {
		t.Errorf("read after acknowledged update returned %q", got.Whiteboard)
	}
}

func TestUpdateMusicLastWriterWins(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	mustAttach(t, d, r.ID, "alice", "")

	first := MusicState{Track: "lofi-1", Playing: true, Position: 10}
	second := MusicState{Track: "lofi-2", Playing: false, Position: 0}

	if _, err := d.UpdateMusic(ctx, r.ID, "alice", first); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	updated, err := d.UpdateMusic(ctx, r.ID, "alice", second)
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}

	if updated.Music != second {
		t.Errorf("expected %+v, got %+v", second, updated.Music)
	}
}

func TestUpdateRequiresLiveMember(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	// alice is a durable participant but holds no live session.

	_, err := d.UpdateWhiteboard(ctx, r.ID, "alice", "snapshot")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized for non-live member, got %v", err)
	}
}

func TestDurableParticipantSeesPersistedUpdate(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	mustAttach(t, d, r.ID, "alice", "")
	// bob joins durably but never connects.
	if _, err := d.Join(ctx, r.ID, "bob", ""); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if _, err := d.UpdateWhiteboard(ctx, r.ID, "alice", "latest snapshot"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := d.GetRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Whiteboard != "latest snapshot" {
		t.Errorf("offline participant's later read must see the snapshot, got %q", got.Whiteboard)
	}
}

func TestUpdateMetadataCreatorOnly(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	mustAttach(t, d, r.ID, "bob", "")

	name := "renamed"
	if _, err := d.UpdateMetadata(ctx, r.ID, "bob", MetadataUpdate{Name: &name}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-creator, got %v", err)
	}

	updated, err := d.UpdateMetadata(ctx, r.ID, "alice", MetadataUpdate{Name: &name})
	if err != nil {
		t.Fatalf("creator metadata update failed: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("expected renamed, got %q", updated.Name)
	}
}

func TestUpdateMetadataValidation(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice", Capacity: 3})
	if _, err := d.Join(ctx, r.ID, "bob", ""); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	var validation *ValidationError

	empty := "   "
	if _, err := d.UpdateMetadata(ctx, r.ID, "alice", MetadataUpdate{Name: &empty}); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for empty name, got %v", err)
	}

	tooSmall := 1
	if _, err := d.UpdateMetadata(ctx, r.ID, "alice", MetadataUpdate{Capacity: &tooSmall}); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for capacity below participants, got %v", err)
	}

	private := true
	if _, err := d.UpdateMetadata(ctx, r.ID, "alice", MetadataUpdate{Private: &private}); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError when going private without a password, got %v", err)
	}

	password := "sekrit99"
	updated, err := d.UpdateMetadata(ctx, r.ID, "alice", MetadataUpdate{Private: &private, Password: &password})
	if err != nil {
		t.Fatalf("going private with a password failed: %v", err)
	}
	if !updated.Private || updated.PasswordHash == "" {
		t.Error("room should now be private with a stored hash")
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	d, store := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	mustAttach(t, d, r.ID, "alice", "")

	if _, err := d.UpdateWhiteboard(ctx, r.ID, "alice", "good snapshot"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	store.failReplaces(errors.New("disk full"))
	_, err := d.UpdateWhiteboard(ctx, r.ID, "alice", "lost snapshot")
	var persistence *PersistenceError
	if !errors.As(err, &persistence) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	store.failReplaces(nil)

	got, err := d.GetRoom(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Whiteboard != "good snapshot" {
		t.Errorf("in-memory state must roll back to the persisted value, got %q", got.Whiteboard)
	}
}
