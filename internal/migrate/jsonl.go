// Package migrate implements the JSONL export/import path used to
// recover from local database corruption: export what is readable,
// recreate the database, import the snapshot. Pending outbox entries
// survive the round-trip so unsynced work is not lost.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ryakosh/brain-box/internal/note"
	"github.com/ryakosh/brain-box/internal/store"
)

// line is one JSONL record. Exactly one of Topic and Note is set;
// Pending rides along with the note it belongs to.
type line struct {
	Kind    string          `json:"kind"`
	Topic   *note.Topic     `json:"topic,omitempty"`
	Note    *note.Note      `json:"note,omitempty"`
	Pending *note.PendingOp `json:"pending,omitempty"`
}

const (
	kindTopic = "topic"
	kindNote  = "note"
)

// Result contains statistics about an export or import.
type Result struct {
	Topics  int
	Notes   int
	Pending int
	Errors  []string
}

// Export writes the store's topics, notes, and pending operations as
// JSONL. Notes go out in outbox order-independent creation order; the
// pending entries carry their own positions, and Import re-enqueues
// them FIFO by that order.
func Export(ctx context.Context, st *store.Store, w io.Writer) (*Result, error) {
	res := &Result{}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	topics, err := st.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read topics: %w", err)
	}
	for i := range topics {
		if err := enc.Encode(line{Kind: kindTopic, Topic: &topics[i]}); err != nil {
			return nil, fmt.Errorf("failed to write topic: %w", err)
		}
		res.Topics++
	}

	pending, err := st.ListOutbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	byNote := make(map[string]*note.PendingOp, len(pending))
	for _, p := range pending {
		byNote[p.NoteID] = p
	}

	notes, err := st.ListNotes(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	for _, n := range notes {
		l := line{Kind: kindNote, Note: n}
		if p, ok := byNote[n.ID]; ok {
			l.Pending = p
			res.Pending++
		}
		if err := enc.Encode(l); err != nil {
			return nil, fmt.Errorf("failed to write note: %w", err)
		}
		res.Notes++
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	return res, nil
}

// ExportFile exports to path, creating parent directories as needed.
func ExportFile(ctx context.Context, st *store.Store, path string) (*Result, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	res, err := Export(ctx, st, f)
	if err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync export file: %w", err)
	}
	return res, nil
}

// Import reads a JSONL snapshot into a fresh store. Pending entries are
// sorted by their exported position so the outbox keeps its FIFO order;
// change ids are reassigned on insert, which is safe because the backend
// dedup key is per note and the old ids died with the old database.
//
// Malformed lines are skipped and reported in Result.Errors rather than
// aborting, since the snapshot may itself come from a damaged database.
func Import(ctx context.Context, st *store.Store, r io.Reader) (*Result, error) {
	res := &Result{}
	var topics []note.Topic
	type noteLine struct {
		n       *note.Note
		pending *note.PendingOp
	}
	var notes []noteLine

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
			continue
		}
		switch l.Kind {
		case kindTopic:
			if l.Topic == nil {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: topic record without topic", lineNum))
				continue
			}
			topics = append(topics, *l.Topic)
		case kindNote:
			if l.Note == nil {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: note record without note", lineNum))
				continue
			}
			notes = append(notes, noteLine{n: l.Note, pending: l.Pending})
		default:
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: unknown record kind %q", lineNum, l.Kind))
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if len(topics) > 0 {
		if err := st.ReplaceTopics(ctx, topics); err != nil {
			return res, fmt.Errorf("failed to import topics: %w", err)
		}
		res.Topics = len(topics)
	}

	// Pending-free notes first, then pending ones in original queue
	// order, so re-enqueued entries come out FIFO.
	var queued []noteLine
	for _, nl := range notes {
		if nl.pending != nil {
			queued = append(queued, nl)
			continue
		}
		if err := st.ImportNote(ctx, nl.n, nil); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("note %s: %v", nl.n.ID, err))
			continue
		}
		res.Notes++
	}
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].pending.Position < queued[j].pending.Position
	})
	for _, nl := range queued {
		if err := st.ImportNote(ctx, nl.n, nl.pending); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("note %s: %v", nl.n.ID, err))
			continue
		}
		res.Notes++
		res.Pending++
	}
	return res, nil
}

// ImportFile imports the snapshot at path.
func ImportFile(ctx context.Context, st *store.Store, path string) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Import(ctx, st, f)
}
