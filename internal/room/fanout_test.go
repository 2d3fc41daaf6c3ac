package room

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// Events from one sender must arrive at each receiver in publish order.
func TestPublishPreservesSenderOrder(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	aliceSess := mustAttach(t, d, r.ID, "alice", "")
	bobSess := mustAttach(t, d, r.ID, "bob", "")
	drain(bobSess)

	const count = 50
	for i := 0; i < count; i++ {
		payload, err := json.Marshal(map[string]int{"seq": i})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if err := d.Publish(ctx, r.ID, aliceSess, EventChatMessage, payload); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	msgs := drain(bobSess)
	if len(msgs) != count {
		t.Fatalf("expected %d events, got %d", count, len(msgs))
	}
	for i, data := range msgs {
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("bad event %d: %v", i, err)
		}
		var body struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(evt.Payload, &body); err != nil {
			t.Fatalf("bad payload %d: %v", i, err)
		}
		if body.Seq != i {
			t.Fatalf("event %d arrived out of order: seq %d", i, body.Seq)
		}
	}
}

func TestPublishDeliversToOthersOnly(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	aliceSess := mustAttach(t, d, r.ID, "alice", "")
	bobSess := mustAttach(t, d, r.ID, "bob", "")
	carolSess := mustAttach(t, d, r.ID, "carol", "")
	// Clear the presence events from attaching.
	drain(aliceSess)
	drain(bobSess)
	drain(carolSess)

	payload := json.RawMessage(`{"text":"hello"}`)
	if err := d.Publish(ctx, r.ID, aliceSess, EventChatMessage, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := drain(aliceSess); len(got) != 0 {
		t.Errorf("originator must not receive its own event, got %d", len(got))
	}

	for name, sess := range map[string]*Session{"bob": bobSess, "carol": carolSess} {
		msgs := drain(sess)
		if len(msgs) != 1 {
			t.Fatalf("%s expected 1 event, got %d", name, len(msgs))
		}
		var evt Event
		if err := json.Unmarshal(msgs[0], &evt); err != nil {
			t.Fatalf("%s received invalid event: %v", name, err)
		}
		if evt.Type != EventChatMessage {
			t.Errorf("%s expected chat-message, got %s", name, evt.Type)
		}
		if evt.UserID != "alice" {
			t.Errorf("%s expected sender alice, got %s", name, evt.UserID)
		}
	}
}

func TestPublishByNonMemberRejected(t *testing.T) {
	d, _ := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	aliceSess := mustAttach(t, d, r.ID, "alice", "")
	drain(aliceSess)

	intruder := NewSession("mallory")
	err := d.Publish(ctx, r.ID, intruder, EventChatMessage, json.RawMessage(`{"text":"hi"}`))
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}

	if got := drain(aliceSess); len(got) != 0 {
		t.Errorf("rejected event must be delivered to nobody, got %d", len(got))
	}
}

func TestPublishUnknownTypeRejected(t *testing.T) {
	d, _ := newTestDirectory()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	sess := mustAttach(t, d, r.ID, "alice", "")

	err := d.Publish(context.Background(), r.ID, sess, EventType("shutdown"), nil)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestChatIsNeverPersisted(t *testing.T) {
	d, store := newTestDirectory()
	ctx := context.Background()

	r := mustCreate(t, d, CreateSpec{Name: "study", CreatorID: "alice"})
	sess := mustAttach(t, d, r.ID, "alice", "")
	mustAttach(t, d, r.ID, "bob", "")

	before := store.replaces()
	if err := d.Publish(ctx, r.ID, sess, EventChatMessage, json.RawMessage(`{"text":"hi"}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if store.replaces() != before {
		t.Error("fan-out must not touch the durable store")
	}
}
