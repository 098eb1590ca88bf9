// Package note provides the domain types shared by the Brain Box sync core:
// notes, the cached topic tree, sync status, and pending outbox operations.
package note

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks where a note stands relative to the backend.
type SyncStatus string

const (
	// StatusClean means the note matches the last state the backend
	// acknowledged and no outbox entry references it.
	StatusClean SyncStatus = "clean"
	// StatusPendingCreate means the note was created locally and the
	// backend has never seen it.
	StatusPendingCreate SyncStatus = "pending_create"
	// StatusPendingUpdate means the note has local edits not yet
	// acknowledged by the backend.
	StatusPendingUpdate SyncStatus = "pending_update"
	// StatusPendingDelete means a local delete is queued for the backend.
	StatusPendingDelete SyncStatus = "pending_delete"
	// StatusConflicted means the note needs user attention: either the
	// backend holds a diverged version, or a mutation failed permanently.
	// Conflicted notes are never resynced automatically.
	StatusConflicted SyncStatus = "conflicted"
)

// Valid reports whether s is one of the known sync statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusClean, StatusPendingCreate, StatusPendingUpdate,
		StatusPendingDelete, StatusConflicted:
		return true
	}
	return false
}

// Pending reports whether the status implies an unconfirmed mutation.
func (s SyncStatus) Pending() bool {
	switch s {
	case StatusPendingCreate, StatusPendingUpdate, StatusPendingDelete:
		return true
	}
	return false
}

// Operation is the kind of mutation queued in the outbox.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation kind.
func (op Operation) Valid() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// Note is a learning note attached to a topic or sub-topic.
//
// Identity is a client-generated UUID so notes can be created offline
// without a server round-trip. LocalRevision is a monotonic counter
// bumped on every local edit; ServerRevision is the last revision the
// backend acknowledged (0 if it never has). A note is clean exactly when
// the two are equal and nothing for it sits in the outbox.
type Note struct {
	ID      string `json:"id"`
	TopicID int64  `json:"topic_id"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`

	LocalRevision  int64      `json:"local_revision"`
	ServerRevision int64      `json:"server_revision"`
	Status         SyncStatus `json:"sync_status"`

	// Server-side version retained next to the local one while the note
	// is conflicted, so neither edit is lost.
	RemoteRevision int64  `json:"remote_revision,omitempty"`
	RemoteTitle    string `json:"remote_title,omitempty"`
	RemoteBody     string `json:"remote_body,omitempty"`

	// AttentionReason is set when a mutation failed permanently and the
	// note needs user attention.
	AttentionReason string `json:"attention_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the note's field values.
func (n *Note) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := uuid.Parse(n.ID); err != nil {
		return fmt.Errorf("id must be a UUID: %w", err)
	}
	if n.TopicID <= 0 {
		return fmt.Errorf("topic_id is required")
	}
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(n.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(n.Title))
	}
	if n.LocalRevision < 1 {
		return fmt.Errorf("local_revision must be at least 1 (got %d)", n.LocalRevision)
	}
	if !n.Status.Valid() {
		return fmt.Errorf("unknown sync status %q", n.Status)
	}
	return nil
}

// Conflicted reports whether the note needs attention before it can sync.
func (n *Note) Conflicted() bool {
	return n.Status == StatusConflicted
}

// NewID returns a fresh client-generated note identity.
func NewID() string {
	return uuid.NewString()
}

// Topic is a server-authoritative topic or sub-topic, cached locally as
// read-only reference data. Topics are never created or edited offline
// and never enter the outbox.
type Topic struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// Validate checks the topic's field values.
func (t *Topic) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.ParentID != nil && *t.ParentID <= 0 {
		return fmt.Errorf("parent_id must be positive when set")
	}
	return nil
}

// Remote is a note state as reported by the backend, delivered by the
// pull endpoint for topic-cache refresh and conflict pre-detection.
type Remote struct {
	ID             string `json:"id"`
	TopicID        int64  `json:"topic_id"`
	Title          string `json:"title"`
	Body           string `json:"body,omitempty"`
	ServerRevision int64  `json:"server_revision"`
	Deleted        bool   `json:"deleted,omitempty"`
}

// Payload is the note content snapshot captured when a mutation is
// enqueued. The outbox sends this snapshot, not the live note row, so a
// send is unaffected by edits made while it is in flight.
type Payload struct {
	TopicID int64  `json:"topic_id"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
}

// PendingOp is a single outbox entry: one unconfirmed mutation for one
// note. At most one entry exists per note id; coalescing keeps that
// invariant when edits stack up before a sync run.
type PendingOp struct {
	NoteID  string    `json:"note_id"`
	Op      Operation `json:"op"`
	Payload Payload   `json:"payload"`

	// LocalRevision is the note revision this entry carries.
	LocalRevision int64 `json:"local_revision"`
	// BasedOnServerRevision is the server revision the mutation was
	// computed against (0 for creates).
	BasedOnServerRevision int64 `json:"based_on_server_revision"`
	// ChangeID is the client-monotonic sequence number that, together
	// with the note id, forms the backend's idempotency key.
	ChangeID int64 `json:"change_id"`

	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Position orders entries FIFO across distinct note ids. Enqueue
	// timestamps are for humans only; position is authoritative.
	Position int64 `json:"position"`
}

// Validate checks the entry's field values.
func (p *PendingOp) Validate() error {
	if p.NoteID == "" {
		return fmt.Errorf("note_id is required")
	}
	if !p.Op.Valid() {
		return fmt.Errorf("unknown operation %q", p.Op)
	}
	if p.Op != OpDelete && p.Payload.Title == "" {
		return fmt.Errorf("payload title is required for %s", p.Op)
	}
	if p.ChangeID < 1 {
		return fmt.Errorf("change_id must be at least 1 (got %d)", p.ChangeID)
	}
	return nil
}
