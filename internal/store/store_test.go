package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ryakosh/brain-box/internal/note"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// openAt opens a store at path and seeds the topic cache.
func openAt(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	parent := int64(1)
	err = st.ReplaceTopics(context.Background(), []note.Topic{
		{ID: 1, Name: "Go"},
		{ID: 2, Name: "Concurrency", ParentID: &parent},
	})
	if err != nil {
		t.Fatalf("ReplaceTopics() failed: %v", err)
	}
	return st
}

// testStore opens a fresh seeded store that closes with the test.
func testStore(t *testing.T) *Store {
	t.Helper()
	st := openAt(t, testDBPath(t))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_CreatesSchema(t *testing.T) {
	st := testStore(t)

	tables := []string{"notes", "topics", "outbox", "sync_state"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := st.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := testDBPath(t)
	st := openAt(t, path)
	st.Close()

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer st2.Close()

	n, err := st2.TopicCount(context.Background())
	if err != nil {
		t.Fatalf("TopicCount() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("TopicCount() = %d, want 2", n)
	}
}

func TestCheckIntegrity_Healthy(t *testing.T) {
	st := testStore(t)
	if err := st.CheckIntegrity(context.Background()); err != nil {
		t.Errorf("CheckIntegrity() failed on healthy database: %v", err)
	}
}

// TestReopen_PreservesQueuedWork verifies that notes created offline and
// their queued operations survive a full restart.
func TestReopen_PreservesQueuedWork(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)
	st := openAt(t, path)

	first, err := st.CreateNote(ctx, 1, "Goroutines", "go func()")
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	second, err := st.CreateNote(ctx, 2, "Channels", "")
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st2.Close()

	queued, err := st2.ListOutbox(ctx)
	if err != nil {
		t.Fatalf("ListOutbox() failed: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("queued = %d entries, want 2", len(queued))
	}
	if queued[0].NoteID != first.ID || queued[1].NoteID != second.ID {
		t.Errorf("queue order = [%s, %s], want [%s, %s]",
			queued[0].NoteID, queued[1].NoteID, first.ID, second.ID)
	}

	got, err := st2.GetNote(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	if got.Status != note.StatusPendingCreate {
		t.Errorf("status = %s, want %s", got.Status, note.StatusPendingCreate)
	}
}

// TestReopen_ClearsInFlightMarkers verifies that a send interrupted by a
// crash is retried: the in-flight marker does not survive a reopen.
func TestReopen_ClearsInFlightMarkers(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)
	st := openAt(t, path)

	n, err := st.CreateNote(ctx, 1, "Interfaces", "")
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	if err := st.BeginSend(ctx, n.ID); err != nil {
		t.Fatalf("BeginSend() failed: %v", err)
	}
	if entry, _ := st.PeekNext(ctx); entry != nil {
		t.Fatal("PeekNext() returned an in-flight entry")
	}
	st.Close()

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st2.Close()

	entry, err := st2.PeekNext(ctx)
	if err != nil {
		t.Fatalf("PeekNext() failed: %v", err)
	}
	if entry == nil {
		t.Fatal("entry still marked in-flight after reopen")
	}
	if entry.NoteID != n.ID {
		t.Errorf("NoteID = %s, want %s", entry.NoteID, n.ID)
	}
}

func TestLastPullAt_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)

	got, err := st.LastPullAt(ctx)
	if err != nil {
		t.Fatalf("LastPullAt() failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("initial LastPullAt = %v, want zero", got)
	}

	want := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if err := st.SetLastPullAt(ctx, want); err != nil {
		t.Fatalf("SetLastPullAt() failed: %v", err)
	}
	got, err = st.LastPullAt(ctx)
	if err != nil {
		t.Fatalf("LastPullAt() failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("LastPullAt = %v, want %v", got, want)
	}
}
