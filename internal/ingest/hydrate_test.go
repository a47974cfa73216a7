package ingest

import (
	"testing"

	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"go.uber.org/zap"
)

func seedMessage(t *testing.T, db *store.DB, convKey string, ref uint64, outgoing bool, status string) {
	t.Helper()
	err := db.UpsertMessage(&store.Message{
		ConvKey:     convKey,
		Ref:         ref,
		Sender:      "someone",
		Body:        "body",
		MessageType: "text",
		Outgoing:    outgoing,
		Status:      status,
		Stamp:       "12:00",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHydrateRestoresConversations(t *testing.T) {
	archive := testArchive(t)
	seedMessage(t, archive, "a1b2c3", 1, true, "sent")
	seedMessage(t, archive, "a1b2c3", 2, false, "sent")
	seedMessage(t, archive, "a1b2c3", 3, true, "pending")
	seedMessage(t, archive, "group:7", 1, false, "sent")

	convs := conversation.NewStore()
	if err := Hydrate(convs, archive, zap.NewNop()); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}

	direct := conversation.DirectKey("a1b2c3")
	msgs := convs.Snapshot(direct)
	if len(msgs) != 3 {
		t.Fatalf("got %d direct messages, want 3", len(msgs))
	}
	if msgs[0].Ref != 1 || msgs[2].Ref != 3 {
		t.Errorf("refs = %d..%d, want 1..3", msgs[0].Ref, msgs[2].Ref)
	}

	// The process that owned the pending job is gone, so hydration lands it
	// at failed where the user can retry it.
	if msgs[2].Status != conversation.StatusFailed {
		t.Errorf("stale pending status = %s, want failed", msgs[2].Status)
	}
	archived, err := archive.ListMessages("a1b2c3", 10)
	if err != nil {
		t.Fatal(err)
	}
	if archived[2].Status != "failed" {
		t.Errorf("archived stale status = %q, want failed", archived[2].Status)
	}

	group := conversation.GroupKey("7")
	if got := len(convs.Snapshot(group)); got != 1 {
		t.Errorf("got %d group messages, want 1", got)
	}

	// The ref counter continues past the restored history.
	next := convs.Append(direct, conversation.Message{
		Sender: "me", Content: "new", Outgoing: true,
		Status: conversation.StatusPending, Type: conversation.TypeText,
	})
	if next != 4 {
		t.Errorf("next ref = %d, want 4", next)
	}
}

func TestHydrateEmptyArchive(t *testing.T) {
	archive := testArchive(t)
	convs := conversation.NewStore()
	if err := Hydrate(convs, archive, zap.NewNop()); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	if got := len(convs.Conversations()); got != 0 {
		t.Errorf("got %d conversations, want 0", got)
	}
}

func TestHydrateKeepsInboundUntouched(t *testing.T) {
	archive := testArchive(t)
	seedMessage(t, archive, "a1b2c3", 1, false, "sent")

	convs := conversation.NewStore()
	if err := Hydrate(convs, archive, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	m := convs.Snapshot(conversation.DirectKey("a1b2c3"))[0]
	if m.Outgoing || m.Status != conversation.StatusSent {
		t.Errorf("inbound message = %+v, want untouched sent", m)
	}
}
