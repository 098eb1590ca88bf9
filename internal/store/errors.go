package store

import "errors"

var (
	// ErrNotFound is returned when a note id does not exist locally.
	ErrNotFound = errors.New("note not found")

	// ErrUnknownTopic is returned when a note references a topic id that
	// is not in the local cache. Topics are server-only; they cannot be
	// created offline, so an unknown id fails fast.
	ErrUnknownTopic = errors.New("unknown topic")

	// ErrConflicted is returned when an edit targets a conflicted note.
	// Conflicted notes must be resolved before further edits.
	ErrConflicted = errors.New("note is conflicted and needs resolution")

	// ErrNotConflicted is returned when conflict resolution is requested
	// for a note that is not conflicted.
	ErrNotConflicted = errors.New("note is not conflicted")

	// ErrPendingDelete is returned when an edit targets a note whose
	// delete is already queued.
	ErrPendingDelete = errors.New("note has a pending delete")

	// ErrCorrupt marks local storage corruption. Sync halts; the user
	// should export what is readable and re-import into a fresh store.
	ErrCorrupt = errors.New("local store is corrupted")
)
