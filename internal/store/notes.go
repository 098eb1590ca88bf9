package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ryakosh/brain-box/internal/note"
)

// CreateNote creates a note locally with a fresh client-generated id and
// queues the create for the backend. The note row and the outbox entry
// are written in one transaction.
//
// The referenced topic must already be in the local cache; topics are
// server-only, so an id the cache has never seen cannot become valid by
// waiting.
func (s *Store) CreateNote(ctx context.Context, topicID int64, title, body string) (*note.Note, error) {
	now := time.Now().UTC()
	n := &note.Note{
		ID:            note.NewID(),
		TopicID:       topicID,
		Title:         title,
		Body:          body,
		LocalRevision: 1,
		Status:        note.StatusPendingCreate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid note: %w", err)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow("SELECT 1 FROM topics WHERE id = ?", topicID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %d", ErrUnknownTopic, topicID)
			}
			return fmt.Errorf("failed to check topic: %w", err)
		}

		if err := insertNote(tx, n); err != nil {
			return err
		}

		return insertOutboxEntry(tx, n.ID, note.OpCreate, note.Payload{
			TopicID: topicID,
			Title:   title,
			Body:    body,
		}, n.LocalRevision, 0, now)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// UpdateNote applies a local edit and coalesces it into the outbox.
//
// Coalescing rules:
//   - an unsent update is replaced in place (latest payload wins, the
//     original queue position is kept)
//   - an unsent create absorbs the edit and stays a create
//   - an entry that is mid-send is updated too, but the sync engine
//     detects the newer revision when the send completes and keeps the
//     entry queued instead of dropping it
func (s *Store) UpdateNote(ctx context.Context, id, title, body string) (*note.Note, error) {
	var updated *note.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := getNoteTx(tx, id)
		if err != nil {
			return err
		}
		switch n.Status {
		case note.StatusConflicted:
			return fmt.Errorf("%w: %s", ErrConflicted, id)
		case note.StatusPendingDelete:
			return fmt.Errorf("%w: %s", ErrPendingDelete, id)
		}

		now := time.Now().UTC()
		n.Title = title
		n.Body = body
		n.LocalRevision++
		n.UpdatedAt = now
		if n.Status == note.StatusClean {
			n.Status = note.StatusPendingUpdate
		}

		if err := updateNoteRow(tx, n); err != nil {
			return err
		}

		entry, err := getOutboxEntryTx(tx, id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		payload := note.Payload{TopicID: n.TopicID, Title: title, Body: body}
		updated = n
		if entry == nil {
			return insertOutboxEntry(tx, id, note.OpUpdate, payload, n.LocalRevision, n.ServerRevision, now)
		}

		// Coalesce: latest payload, original op and position. A pending
		// create stays a create so the backend still sees one insert.
		_, err = tx.Exec(`
			UPDATE outbox
			SET topic_id = ?, title = ?, body = ?, local_revision = ?
			WHERE note_id = ?`,
			payload.TopicID, payload.Title, payload.Body, n.LocalRevision, id)
		if err != nil {
			return fmt.Errorf("failed to coalesce outbox entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteNote queues a delete for the backend, or cancels locally when
// nothing was ever sent.
//
// A delete cancels an unsent update (only the delete goes out) and
// annihilates an unsent create (nothing goes out at all; the note row
// disappears immediately). The returned flag reports whether a network
// operation was queued.
func (s *Store) DeleteNote(ctx context.Context, id string) (queued bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := getNoteTx(tx, id)
		if err != nil {
			return err
		}
		if n.Status == note.StatusPendingDelete {
			queued = true // already queued, nothing to do
			return nil
		}

		entry, err := getOutboxEntryTx(tx, id)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		// Unsent create: the backend never saw this note. Cancel both
		// sides locally.
		if entry != nil && !entry.inFlight && entry.Op == note.OpCreate {
			if _, err := tx.Exec("DELETE FROM outbox WHERE note_id = ?", id); err != nil {
				return fmt.Errorf("failed to cancel pending create: %w", err)
			}
			if _, err := tx.Exec("DELETE FROM notes WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to delete note: %w", err)
			}
			queued = false
			return nil
		}

		now := time.Now().UTC()
		basedOn := n.ServerRevision
		if n.RemoteRevision > basedOn {
			// Deleting a conflicted note: base the delete on the newest
			// revision we know the server holds. Deletes are terminal.
			basedOn = n.RemoteRevision
		}
		n.LocalRevision++
		n.Status = note.StatusPendingDelete
		n.UpdatedAt = now
		if err := updateNoteRow(tx, n); err != nil {
			return err
		}

		if entry == nil {
			queued = true
			return insertOutboxEntry(tx, id, note.OpDelete, note.Payload{}, n.LocalRevision, basedOn, now)
		}

		// Replace the pending (or in-flight) entry with the delete,
		// keeping its queue position. If the old entry is mid-send the
		// engine rebases this row once the outcome is known.
		_, err = tx.Exec(`
			UPDATE outbox
			SET op = 'delete', topic_id = 0, title = '', body = '',
			    local_revision = ?, based_on_server_revision = ?
			WHERE note_id = ?`,
			n.LocalRevision, basedOn, id)
		if err != nil {
			return fmt.Errorf("failed to coalesce delete: %w", err)
		}
		queued = true
		return nil
	})
	return queued, err
}

// GetNote retrieves a single note by id.
func (s *Store) GetNote(ctx context.Context, id string) (*note.Note, error) {
	row := s.conn.QueryRowContext(ctx, noteColumns+" WHERE id = ?", id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, err
}

// ListNotes returns all notes, optionally filtered by topic (0 = all),
// ordered by creation time.
func (s *Store) ListNotes(ctx context.Context, topicID int64) ([]*note.Note, error) {
	query := noteColumns
	var args []interface{}
	if topicID > 0 {
		query += " WHERE topic_id = ?"
		args = append(args, topicID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// ListByStatus returns all notes with the given sync status.
func (s *Store) ListByStatus(ctx context.Context, status note.SyncStatus) ([]*note.Note, error) {
	rows, err := s.conn.QueryContext(ctx,
		noteColumns+" WHERE sync_status = ? ORDER BY updated_at ASC", string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list notes by status: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// CountByStatus returns note counts keyed by sync status.
func (s *Store) CountByStatus(ctx context.Context) (map[note.SyncStatus]int, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT sync_status, COUNT(*) FROM notes GROUP BY sync_status")
	if err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}
	defer rows.Close()

	counts := make(map[note.SyncStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[note.SyncStatus(status)] = count
	}
	return counts, rows.Err()
}

// ResolveConflict finishes a conflicted note with the chosen content and
// queues a fresh mutation built from it. The new local revision is one
// past the newest server revision we know about, so the backend accepts
// it as the successor of its own current state.
//
// The chosen content may equal the local version (accept-local), the
// server version (accept-remote), or a manual merge; the store does not
// distinguish.
func (s *Store) ResolveConflict(ctx context.Context, id, title, body string) (*note.Note, error) {
	var resolved *note.Note
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := getNoteTx(tx, id)
		if err != nil {
			return err
		}
		if n.Status != note.StatusConflicted {
			return fmt.Errorf("%w: %s", ErrNotConflicted, id)
		}

		now := time.Now().UTC()
		base := n.ServerRevision
		if n.RemoteRevision > base {
			base = n.RemoteRevision
		}

		op := note.OpUpdate
		if base == 0 {
			// The backend never stored this note (the create failed
			// permanently); try the create again with the new content.
			op = note.OpCreate
		}

		n.Title = title
		n.Body = body
		if base > 0 {
			n.LocalRevision = base + 1
			n.ServerRevision = base
			n.Status = note.StatusPendingUpdate
		} else {
			n.LocalRevision++
			n.Status = note.StatusPendingCreate
		}
		n.RemoteRevision = 0
		n.RemoteTitle = ""
		n.RemoteBody = ""
		n.AttentionReason = ""
		n.UpdatedAt = now

		if err := updateNoteRow(tx, n); err != nil {
			return err
		}

		resolved = n
		return insertOutboxEntry(tx, id, op, note.Payload{
			TopicID: n.TopicID,
			Title:   title,
			Body:    body,
		}, n.LocalRevision, base, now)
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// UpsertRemoteNote applies a server-side note state received from a
// pull. Clean local copies adopt the server state; notes with pending
// local work are left alone, their divergence surfaces when the pending
// mutation is pushed.
func (s *Store) UpsertRemoteNote(ctx context.Context, r note.Remote) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := getNoteTx(tx, r.ID)
		if errors.Is(err, ErrNotFound) {
			if r.Deleted {
				return nil
			}
			now := time.Now().UTC()
			fresh := &note.Note{
				ID:             r.ID,
				TopicID:        r.TopicID,
				Title:          r.Title,
				Body:           r.Body,
				LocalRevision:  r.ServerRevision,
				ServerRevision: r.ServerRevision,
				Status:         note.StatusClean,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			return insertNote(tx, fresh)
		}
		if err != nil {
			return err
		}
		if n.Status != note.StatusClean {
			return nil
		}

		if r.Deleted {
			if _, err := tx.Exec("DELETE FROM notes WHERE id = ?", r.ID); err != nil {
				return fmt.Errorf("failed to apply server delete: %w", err)
			}
			return nil
		}
		if r.ServerRevision <= n.ServerRevision {
			return nil
		}

		n.TopicID = r.TopicID
		n.Title = r.Title
		n.Body = r.Body
		n.LocalRevision = r.ServerRevision
		n.ServerRevision = r.ServerRevision
		n.UpdatedAt = time.Now().UTC()
		return updateNoteRow(tx, n)
	})
}

// ImportNote inserts a note row (and optional outbox entry) verbatim,
// preserving revisions and counters. Used by the export/import recovery
// path; regular creation goes through CreateNote.
func (s *Store) ImportNote(ctx context.Context, n *note.Note, pending *note.PendingOp) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid note: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertNote(tx, n); err != nil {
			return err
		}
		if pending == nil {
			return nil
		}
		if err := pending.Validate(); err != nil {
			return fmt.Errorf("invalid outbox entry: %w", err)
		}
		pos, err := nextPosition(tx)
		if err != nil {
			return err
		}
		changeID, err := nextChangeID(tx)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO outbox (
				note_id, op, topic_id, title, body,
				local_revision, based_on_server_revision, change_id,
				attempts, in_flight, enqueued_at, position
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			pending.NoteID, string(pending.Op),
			pending.Payload.TopicID, pending.Payload.Title, pending.Payload.Body,
			pending.LocalRevision, pending.BasedOnServerRevision, changeID,
			pending.Attempts, pending.EnqueuedAt.UTC().Format(time.RFC3339Nano), pos)
		if err != nil {
			return fmt.Errorf("failed to import outbox entry: %w", err)
		}
		return nil
	})
}

const noteColumns = `
	SELECT id, topic_id, title, body,
	       local_revision, server_revision, sync_status,
	       remote_revision, remote_title, remote_body,
	       attention_reason, created_at, updated_at
	FROM notes`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row rowScanner) (*note.Note, error) {
	var n note.Note
	var status, createdAt, updatedAt string
	err := row.Scan(
		&n.ID, &n.TopicID, &n.Title, &n.Body,
		&n.LocalRevision, &n.ServerRevision, &status,
		&n.RemoteRevision, &n.RemoteTitle, &n.RemoteBody,
		&n.AttentionReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Status = note.SyncStatus(status)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		n.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		n.UpdatedAt = t
	}
	return &n, nil
}

func scanNotes(rows *sql.Rows) ([]*note.Note, error) {
	var notes []*note.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

func getNoteTx(tx *sql.Tx, id string) (*note.Note, error) {
	n, err := scanNote(tx.QueryRow(noteColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	return n, nil
}

func insertNote(tx *sql.Tx, n *note.Note) error {
	_, err := tx.Exec(`
		INSERT INTO notes (
			id, topic_id, title, body,
			local_revision, server_revision, sync_status,
			remote_revision, remote_title, remote_body,
			attention_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.TopicID, n.Title, n.Body,
		n.LocalRevision, n.ServerRevision, string(n.Status),
		n.RemoteRevision, n.RemoteTitle, n.RemoteBody,
		n.AttentionReason,
		n.CreatedAt.UTC().Format(time.RFC3339Nano),
		n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

func updateNoteRow(tx *sql.Tx, n *note.Note) error {
	_, err := tx.Exec(`
		UPDATE notes
		SET topic_id = ?, title = ?, body = ?,
		    local_revision = ?, server_revision = ?, sync_status = ?,
		    remote_revision = ?, remote_title = ?, remote_body = ?,
		    attention_reason = ?, updated_at = ?
		WHERE id = ?`,
		n.TopicID, n.Title, n.Body,
		n.LocalRevision, n.ServerRevision, string(n.Status),
		n.RemoteRevision, n.RemoteTitle, n.RemoteBody,
		n.AttentionReason,
		n.UpdatedAt.UTC().Format(time.RFC3339Nano),
		n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return nil
}
