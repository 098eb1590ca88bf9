package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ryakosh/brain-box/internal/note"
)

// outboxRow is the internal shape of an outbox entry, including the
// transient in-flight marker the engine uses to fence mid-send edits.
type outboxRow struct {
	note.PendingOp
	inFlight bool
}

const outboxColumns = `
	SELECT note_id, op, topic_id, title, body,
	       local_revision, based_on_server_revision, change_id,
	       attempts, in_flight, enqueued_at, position
	FROM outbox`

func scanOutboxRow(row rowScanner) (*outboxRow, error) {
	var e outboxRow
	var op, enqueuedAt string
	var inFlight int
	err := row.Scan(
		&e.NoteID, &op, &e.Payload.TopicID, &e.Payload.Title, &e.Payload.Body,
		&e.LocalRevision, &e.BasedOnServerRevision, &e.ChangeID,
		&e.Attempts, &inFlight, &enqueuedAt, &e.Position,
	)
	if err != nil {
		return nil, err
	}
	e.Op = note.Operation(op)
	e.inFlight = inFlight != 0
	if t, err := time.Parse(time.RFC3339Nano, enqueuedAt); err == nil {
		e.EnqueuedAt = t
	}
	return &e, nil
}

func getOutboxEntryTx(tx *sql.Tx, noteID string) (*outboxRow, error) {
	return scanOutboxRow(tx.QueryRow(outboxColumns+" WHERE note_id = ?", noteID))
}

// insertOutboxEntry appends a fresh entry at the queue tail with a new
// change id. Must run inside the same transaction as the note mutation
// it belongs to.
func insertOutboxEntry(tx *sql.Tx, noteID string, op note.Operation, payload note.Payload, localRev, basedOn int64, now time.Time) error {
	changeID, err := nextChangeID(tx)
	if err != nil {
		return err
	}
	pos, err := nextPosition(tx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO outbox (
			note_id, op, topic_id, title, body,
			local_revision, based_on_server_revision, change_id,
			attempts, in_flight, enqueued_at, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		noteID, string(op), payload.TopicID, payload.Title, payload.Body,
		localRev, basedOn, changeID,
		now.Format(time.RFC3339Nano), pos)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	return nil
}

// PeekNext returns the oldest entry that is not currently being sent,
// or nil if the outbox has nothing ready.
func (s *Store) PeekNext(ctx context.Context) (*note.PendingOp, error) {
	row := s.conn.QueryRowContext(ctx,
		outboxColumns+" WHERE in_flight = 0 ORDER BY position ASC LIMIT 1")
	e, err := scanOutboxRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to peek outbox: %w", err)
	}
	op := e.PendingOp
	return &op, nil
}

// OutboxLen returns the number of queued entries.
func (s *Store) OutboxLen(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

// ListOutbox returns all queued entries in FIFO order.
func (s *Store) ListOutbox(ctx context.Context) ([]*note.PendingOp, error) {
	rows, err := s.conn.QueryContext(ctx, outboxColumns+" ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}
	defer rows.Close()

	var entries []*note.PendingOp
	for rows.Next() {
		e, err := scanOutboxRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		op := e.PendingOp
		entries = append(entries, &op)
	}
	return entries, rows.Err()
}

// BeginSend marks an entry as in flight. While the marker is set a
// concurrent local edit coalesces into the row but cannot cause a second
// concurrent send, and a delete cannot cancel the operation already on
// the wire.
func (s *Store) BeginSend(ctx context.Context, noteID string) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE outbox SET in_flight = 1 WHERE note_id = ? AND in_flight = 0", noteID)
	if err != nil {
		return fmt.Errorf("failed to mark entry in flight: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark entry in flight: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("outbox entry for %s is missing or already in flight", noteID)
	}
	return nil
}

// ReleaseSend clears the in-flight marker without recording an outcome.
// Used when a run is abandoned (connectivity lost mid-send); the entry
// keeps its position and attempt counter and is retried on the next run.
func (s *Store) ReleaseSend(ctx context.Context, noteID string) error {
	if _, err := s.conn.ExecContext(ctx,
		"UPDATE outbox SET in_flight = 0 WHERE note_id = ?", noteID); err != nil {
		return fmt.Errorf("failed to release in-flight entry: %w", err)
	}
	return nil
}

// CompleteSend records a successful backend acknowledgement for the
// revision that was actually sent.
//
// If the note was edited while the send was in flight the entry carries
// a newer revision than the one acknowledged; in that case the entry
// stays queued (rebased onto the acknowledged server revision, moved to
// the tail) instead of being dropped, so the newer edit is not lost.
func (s *Store) CompleteSend(ctx context.Context, sent *note.PendingOp, serverRev int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getOutboxEntryTx(tx, sent.NoteID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("outbox entry for %s vanished mid-send", sent.NoteID)
			}
			return fmt.Errorf("failed to load outbox entry: %w", err)
		}

		if entry.LocalRevision == sent.LocalRevision {
			// No edits raced the send; the entry is fully confirmed.
			if _, err := tx.Exec("DELETE FROM outbox WHERE note_id = ?", sent.NoteID); err != nil {
				return fmt.Errorf("failed to remove confirmed entry: %w", err)
			}
			if sent.Op == note.OpDelete {
				if _, err := tx.Exec("DELETE FROM notes WHERE id = ?", sent.NoteID); err != nil {
					return fmt.Errorf("failed to remove deleted note: %w", err)
				}
				return nil
			}
			n, err := getNoteTx(tx, sent.NoteID)
			if err != nil {
				return err
			}
			n.ServerRevision = serverRev
			n.LocalRevision = serverRev
			n.Status = note.StatusClean
			n.UpdatedAt = time.Now().UTC()
			return updateNoteRow(tx, n)
		}

		// A newer local revision landed in the row while this one was on
		// the wire. Keep the entry, now based on the revision the server
		// just stored, and requeue it at the tail. The acknowledged send
		// consumed the old change id, so the rebased entry needs a fresh
		// one or the backend would deduplicate it away.
		pos, err := nextPosition(tx)
		if err != nil {
			return err
		}
		changeID, err := nextChangeID(tx)
		if err != nil {
			return err
		}
		newOp := entry.Op
		if entry.Op == note.OpCreate {
			// The create just succeeded; what remains is an update.
			newOp = note.OpUpdate
		}
		_, err = tx.Exec(`
			UPDATE outbox
			SET op = ?, based_on_server_revision = ?, change_id = ?,
			    in_flight = 0, attempts = 0, position = ?
			WHERE note_id = ?`,
			string(newOp), serverRev, changeID, pos, sent.NoteID)
		if err != nil {
			return fmt.Errorf("failed to rebase coalesced entry: %w", err)
		}

		// Nothing can coalesce over a pending delete (edits to a
		// pending_delete note are rejected), so the acknowledged op here
		// is always a create or an update and the survivor is an update
		// or a delete.
		status := note.StatusPendingUpdate
		if newOp == note.OpDelete {
			status = note.StatusPendingDelete
		}

		n, err := getNoteTx(tx, sent.NoteID)
		if err != nil {
			return err
		}
		n.ServerRevision = serverRev
		n.Status = status
		n.UpdatedAt = time.Now().UTC()
		return updateNoteRow(tx, n)
	})
}

// FailSend records a retryable failure: the attempt counter goes up and
// the entry moves to the queue tail so one pathological entry cannot
// block the rest of the outbox.
func (s *Store) FailSend(ctx context.Context, noteID string) (attempts int, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getOutboxEntryTx(tx, noteID)
		if err != nil {
			return fmt.Errorf("failed to load outbox entry: %w", err)
		}
		pos, err := nextPosition(tx)
		if err != nil {
			return err
		}
		attempts = entry.Attempts + 1
		_, err = tx.Exec(
			"UPDATE outbox SET attempts = ?, in_flight = 0, position = ? WHERE note_id = ?",
			attempts, pos, noteID)
		if err != nil {
			return fmt.Errorf("failed to record failed attempt: %w", err)
		}
		return nil
	})
	return attempts, err
}

// MarkConflicted parks a note in the conflicted state, retaining the
// server's current version next to the local pending one, and removes
// its outbox entry. No automatic retry happens after this; resolution
// goes through ResolveConflict.
func (s *Store) MarkConflicted(ctx context.Context, noteID string, remoteRev int64, remoteTitle, remoteBody string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM outbox WHERE note_id = ?", noteID); err != nil {
			return fmt.Errorf("failed to remove outbox entry: %w", err)
		}
		n, err := getNoteTx(tx, noteID)
		if err != nil {
			return err
		}
		n.Status = note.StatusConflicted
		n.RemoteRevision = remoteRev
		n.RemoteTitle = remoteTitle
		n.RemoteBody = remoteBody
		n.UpdatedAt = time.Now().UTC()
		return updateNoteRow(tx, n)
	})
}

// MarkFailedPermanently parks a note as needing attention after a
// permanent failure (validation rejection, retry limit, id collision)
// and removes its outbox entry.
func (s *Store) MarkFailedPermanently(ctx context.Context, noteID, reason string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM outbox WHERE note_id = ?", noteID); err != nil {
			return fmt.Errorf("failed to remove outbox entry: %w", err)
		}
		n, err := getNoteTx(tx, noteID)
		if err != nil {
			return err
		}
		n.Status = note.StatusConflicted
		n.AttentionReason = reason
		n.UpdatedAt = time.Now().UTC()
		return updateNoteRow(tx, n)
	})
}

// DeleteSatisfied finishes a delete the backend confirmed (or reported
// as already gone): both the outbox entry and the note row disappear.
func (s *Store) DeleteSatisfied(ctx context.Context, noteID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM outbox WHERE note_id = ?", noteID); err != nil {
			return fmt.Errorf("failed to remove outbox entry: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM notes WHERE id = ?", noteID); err != nil {
			return fmt.Errorf("failed to remove note: %w", err)
		}
		return nil
	})
}

// RebaseDelete re-arms a conflicted delete against the server's moved
// revision. Deletes win unconditionally, so the entry is simply retried
// with the newer base instead of going through conflict resolution.
func (s *Store) RebaseDelete(ctx context.Context, noteID string, serverRev int64) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE outbox
		SET based_on_server_revision = ?, in_flight = 0
		WHERE note_id = ? AND op = 'delete'`,
		serverRev, noteID)
	if err != nil {
		return fmt.Errorf("failed to rebase delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to rebase delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no pending delete for %s", noteID)
	}
	return nil
}
