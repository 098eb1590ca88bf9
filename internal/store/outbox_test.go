package store

import (
	"context"
	"testing"

	"github.com/ryakosh/brain-box/internal/note"
)

func TestOutbox_FIFOAcrossNotes(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	var ids []string
	for _, title := range []string{"One", "Two", "Three"} {
		n, err := st.CreateNote(ctx, 1, title, "")
		if err != nil {
			t.Fatalf("CreateNote() failed: %v", err)
		}
		ids = append(ids, n.ID)
	}

	for _, want := range ids {
		entry, err := st.PeekNext(ctx)
		if err != nil {
			t.Fatalf("PeekNext() failed: %v", err)
		}
		if entry == nil || entry.NoteID != want {
			t.Fatalf("head of queue = %v, want %s", entry, want)
		}
		if err := st.BeginSend(ctx, want); err != nil {
			t.Fatalf("BeginSend() failed: %v", err)
		}
		if err := st.CompleteSend(ctx, entry, 1); err != nil {
			t.Fatalf("CompleteSend() failed: %v", err)
		}
	}
	if n, _ := st.OutboxLen(ctx); n != 0 {
		t.Errorf("outbox len = %d after draining, want 0", n)
	}
}

func TestBeginSend_RejectsDoubleSend(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	n, err := st.CreateNote(ctx, 1, "Once", "")
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	if err := st.BeginSend(ctx, n.ID); err != nil {
		t.Fatalf("BeginSend() failed: %v", err)
	}
	if err := st.BeginSend(ctx, n.ID); err == nil {
		t.Error("second BeginSend() succeeded, want error")
	}
}

func TestReleaseSend_KeepsPositionAndAttempts(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	a, _ := st.CreateNote(ctx, 1, "First", "")
	if _, err := st.CreateNote(ctx, 1, "Second", ""); err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	if _, err := st.FailSend(ctx, a.ID); err != nil {
		t.Fatalf("FailSend() failed: %v", err)
	}
	// a is now at the tail with one attempt recorded; abandon a send.
	entry, _ := st.PeekNext(ctx)
	if err := st.BeginSend(ctx, entry.NoteID); err != nil {
		t.Fatalf("BeginSend() failed: %v", err)
	}
	if err := st.ReleaseSend(ctx, entry.NoteID); err != nil {
		t.Fatalf("ReleaseSend() failed: %v", err)
	}

	again, err := st.PeekNext(ctx)
	if err != nil {
		t.Fatalf("PeekNext() failed: %v", err)
	}
	if again == nil || again.NoteID != entry.NoteID {
		t.Fatalf("released entry lost its position: got %v", again)
	}

	queued, _ := st.ListOutbox(ctx)
	for _, e := range queued {
		if e.NoteID == a.ID && e.Attempts != 1 {
			t.Errorf("attempts = %d after release, want 1", e.Attempts)
		}
	}
}

// TestCompleteSend_KeepsCoalescedEdit verifies the in-flight race: an
// edit made while its entry is on the wire survives the acknowledgement
// as a rebased update at the queue tail.
func TestCompleteSend_KeepsCoalescedEdit(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	n, err := st.CreateNote(ctx, 1, "Racy", "v1")
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	sent, _ := st.PeekNext(ctx)
	if err := st.BeginSend(ctx, n.ID); err != nil {
		t.Fatalf("BeginSend() failed: %v", err)
	}

	// Edit lands while the create is in flight.
	if _, err := st.UpdateNote(ctx, n.ID, "Racy", "v2"); err != nil {
		t.Fatalf("UpdateNote() failed: %v", err)
	}

	if err := st.CompleteSend(ctx, sent, 1); err != nil {
		t.Fatalf("CompleteSend() failed: %v", err)
	}

	entry, err := st.PeekNext(ctx)
	if err != nil {
		t.Fatalf("PeekNext() failed: %v", err)
	}
	if entry == nil {
		t.Fatal("coalesced edit dropped on acknowledgement")
	}
	if entry.Op != note.OpUpdate {
		t.Errorf("op = %s, want %s (create succeeded, edit remains)", entry.Op, note.OpUpdate)
	}
	if entry.BasedOnServerRevision != 1 {
		t.Errorf("based on = %d, want 1", entry.BasedOnServerRevision)
	}
	if entry.Payload.Body != "v2" {
		t.Errorf("payload body = %q, want v2", entry.Payload.Body)
	}
	// The acknowledged create consumed sent.ChangeID as its dedup key;
	// reusing it would make the backend drop the rebased update as a
	// duplicate.
	if entry.ChangeID == sent.ChangeID {
		t.Errorf("rebased entry reuses change id %d of the acknowledged send", sent.ChangeID)
	}

	got, _ := st.GetNote(ctx, n.ID)
	if got.ServerRevision != 1 || got.LocalRevision != 2 {
		t.Errorf("revisions = local %d server %d, want 2/1", got.LocalRevision, got.ServerRevision)
	}
	if got.Status != note.StatusPendingUpdate {
		t.Errorf("status = %s, want %s", got.Status, note.StatusPendingUpdate)
	}
}

func TestFailSend_MovesEntryToTail(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	a, _ := st.CreateNote(ctx, 1, "Flaky", "")
	b, _ := st.CreateNote(ctx, 1, "Healthy", "")

	if err := st.BeginSend(ctx, a.ID); err != nil {
		t.Fatalf("BeginSend() failed: %v", err)
	}
	attempts, err := st.FailSend(ctx, a.ID)
	if err != nil {
		t.Fatalf("FailSend() failed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}

	entry, _ := st.PeekNext(ctx)
	if entry == nil || entry.NoteID != b.ID {
		t.Errorf("head of queue = %v, want %s (failed entry moves back)", entry, b.ID)
	}
}

func TestMarkConflicted_RetainsBothVersions(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	n := cleanNote(t, st, "Contested")
	if _, err := st.UpdateNote(ctx, n.ID, "Mine", "local body"); err != nil {
		t.Fatalf("UpdateNote() failed: %v", err)
	}
	if err := st.MarkConflicted(ctx, n.ID, 4, "Theirs", "server body"); err != nil {
		t.Fatalf("MarkConflicted() failed: %v", err)
	}

	got, err := st.GetNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	if got.Status != note.StatusConflicted {
		t.Errorf("status = %s, want %s", got.Status, note.StatusConflicted)
	}
	if got.Title != "Mine" || got.Body != "local body" {
		t.Errorf("local version lost: %q / %q", got.Title, got.Body)
	}
	if got.RemoteTitle != "Theirs" || got.RemoteRevision != 4 {
		t.Errorf("server version lost: %q rev %d", got.RemoteTitle, got.RemoteRevision)
	}
	if count, _ := st.OutboxLen(ctx); count != 0 {
		t.Errorf("outbox len = %d, want 0 (no automatic retry)", count)
	}
}

func TestDeleteSatisfied_RemovesEverything(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	n := cleanNote(t, st, "Going")
	if _, err := st.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("DeleteNote() failed: %v", err)
	}
	if err := st.DeleteSatisfied(ctx, n.ID); err != nil {
		t.Fatalf("DeleteSatisfied() failed: %v", err)
	}
	if count, _ := st.OutboxLen(ctx); count != 0 {
		t.Errorf("outbox len = %d, want 0", count)
	}
	if notes, _ := st.ListNotes(ctx, 0); len(notes) != 0 {
		t.Errorf("notes = %d, want 0", len(notes))
	}
}

func TestRebaseDelete_RearmsAgainstNewRevision(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	n := cleanNote(t, st, "Stubborn")
	if _, err := st.DeleteNote(ctx, n.ID); err != nil {
		t.Fatalf("DeleteNote() failed: %v", err)
	}
	if err := st.BeginSend(ctx, n.ID); err != nil {
		t.Fatalf("BeginSend() failed: %v", err)
	}
	if err := st.RebaseDelete(ctx, n.ID, 8); err != nil {
		t.Fatalf("RebaseDelete() failed: %v", err)
	}

	entry, err := st.PeekNext(ctx)
	if err != nil {
		t.Fatalf("PeekNext() failed: %v", err)
	}
	if entry == nil {
		t.Fatal("rebased delete not retryable")
	}
	if entry.Op != note.OpDelete || entry.BasedOnServerRevision != 8 {
		t.Errorf("entry = op %s basedOn %d, want delete/8", entry.Op, entry.BasedOnServerRevision)
	}
}
