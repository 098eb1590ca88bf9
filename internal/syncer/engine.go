// Package syncer implements the sync engine: a single-writer loop that
// drains the outbox to the backend in FIFO order, one operation at a
// time, with exponential backoff on transient failures.
//
// The engine is a small state machine. Idle means nothing to do or no
// connectivity. Draining means operations are being sent. AwaitingBackoff
// means the last send failed transiently and the engine is waiting out
// the retry delay. Waits run on an injectable Clock so tests can drive
// the engine deterministically.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ryakosh/brain-box/internal/api"
	"github.com/ryakosh/brain-box/internal/note"
	"github.com/ryakosh/brain-box/internal/reconcile"
	"github.com/ryakosh/brain-box/internal/store"
)

// State is the engine's current phase.
type State int

const (
	// StateIdle means the outbox is drained or connectivity is down.
	StateIdle State = iota
	// StateDraining means queued operations are being sent.
	StateDraining
	// StateAwaitingBackoff means the engine is waiting out a retry delay.
	StateAwaitingBackoff
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateAwaitingBackoff:
		return "awaiting-backoff"
	default:
		return "unknown"
	}
}

// Backend is the surface of the HTTP client the engine drives. It is an
// interface so tests can substitute a scripted fake.
type Backend interface {
	CreateNote(ctx context.Context, req api.CreateRequest) (int64, error)
	UpdateNote(ctx context.Context, id string, req api.UpdateRequest) (int64, error)
	DeleteNote(ctx context.Context, id string, req api.DeleteRequest) error
	Pull(ctx context.Context, since time.Time) (*api.PullResult, error)
}

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the number of sends tried for one entry before it is
	// parked as needing attention.
	MaxAttempts int
	// BackoffBase is the delay after the first failed attempt; each
	// further failure doubles it up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// SendTimeout bounds each individual send.
	SendTimeout time.Duration
}

// DefaultConfig returns the standard retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BackoffBase: 1 * time.Second,
		BackoffCap:  60 * time.Second,
		SendTimeout: 10 * time.Second,
	}
}

// Engine drains the outbox. One engine runs per store; the outbox
// in-flight marker assumes a single concurrent sender.
type Engine struct {
	store   *store.Store
	backend Backend
	cfg     Config
	clock   Clock
	logger  *log.Logger

	mu     sync.Mutex
	state  State
	online bool

	// wake coalesces triggers: a buffered single-slot channel, so any
	// number of local edits while a run is in progress collapse into one
	// follow-up run.
	wake chan struct{}
}

// New creates an engine. If clock is nil the system clock is used; if
// logger is nil a default stderr logger is used.
func New(st *store.Store, backend Backend, cfg Config, clock Clock, logger *log.Logger) *Engine {
	if clock == nil {
		clock = NewClock()
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Engine{
		store:   st,
		backend: backend,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Trigger requests a sync run. Safe to call from any goroutine; calls
// made while a run is pending coalesce.
func (e *Engine) Trigger() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// SetOnline records a connectivity transition. Going online triggers a
// run. Going offline also signals the wake channel so a run parked in
// a backoff wait notices immediately instead of sleeping out the delay;
// the run's own connectivity check then sends it back to idle.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	changed := e.online != online
	e.online = online
	e.mu.Unlock()
	if changed {
		e.Trigger()
	}
}

// Online reports the last recorded connectivity state.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// State returns the engine's current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run services triggers until ctx is canceled. Connectivity transitions
// arrive via SetOnline, local mutations via Trigger.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Printf("Sync engine started")
	for {
		select {
		case <-ctx.Done():
			e.setState(StateIdle)
			e.logger.Printf("Sync engine stopped")
			return
		case <-e.wake:
			if !e.Online() {
				continue
			}
			if err := e.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Printf("Error: sync run failed: %v", err)
			}
		}
	}
}

// SyncOnce performs one full run: pull remote changes, then drain the
// outbox until it is empty, connectivity drops, or ctx is canceled.
// Returns nil when the run simply stopped early; errors are storage
// failures that make continuing unsafe.
func (e *Engine) SyncOnce(ctx context.Context) error {
	if !e.Online() {
		return nil
	}
	e.setState(StateDraining)
	defer e.setState(StateIdle)

	e.pull(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Online() {
			e.logger.Printf("Connectivity lost, stopping run")
			return nil
		}
		entry, err := e.store.PeekNext(ctx)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		wait, stop, err := e.sendOne(ctx, entry)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		if wait > 0 {
			if ok := e.awaitBackoff(ctx, wait); !ok {
				return ctx.Err()
			}
			e.setState(StateDraining)
		}
	}
}

// awaitBackoff waits out a retry delay. A trigger (local edit or
// connectivity transition) cuts the wait short; the drain loop then
// re-checks connectivity before the next send. Returns false only when
// ctx was canceled.
func (e *Engine) awaitBackoff(ctx context.Context, d time.Duration) bool {
	e.setState(StateAwaitingBackoff)
	e.logger.Printf("Backing off %s before retry", d.Round(time.Millisecond))
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(d):
		return true
	case <-e.wake:
		return true
	}
}

// sendOne sends a single outbox entry and settles its outcome. The
// returned wait, when positive, asks the drain loop to back off before
// the next send; stop aborts the run (connectivity loss or cancellation);
// err reports a storage failure.
func (e *Engine) sendOne(ctx context.Context, entry *note.PendingOp) (wait time.Duration, stop bool, err error) {
	if err := e.store.BeginSend(ctx, entry.NoteID); err != nil {
		return 0, false, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	serverRev, sendErr := e.dispatch(sendCtx, entry)
	cancel()

	if sendErr == nil {
		if err := e.store.CompleteSend(ctx, entry, serverRev); err != nil {
			return 0, false, err
		}
		e.logger.Printf("Sent %s for note %s (server revision %d)", entry.Op, entry.NoteID, serverRev)
		return 0, false, nil
	}

	// Run-level interruptions first: a canceled parent context or a
	// connectivity drop abandons the entry untouched so it is retried on
	// the next run with its attempt counter intact.
	if ctx.Err() != nil || !e.Online() {
		if err := e.store.ReleaseSend(ctx, entry.NoteID); err != nil {
			e.logger.Printf("Warning: failed to release entry for %s: %v", entry.NoteID, err)
		}
		return 0, true, nil
	}

	// A 404 on a delete means the note is already gone; on anything else
	// it means the server deleted the note out from under a local edit,
	// which the policy treats as a deletion conflict.
	conflict := conflictFor(sendErr, entry.Op)
	if conflict != nil {
		return 0, false, e.applyVerdict(ctx, entry, reconcile.Decide(entry.Op, conflict))
	}

	var validation *api.ValidationError
	if errors.As(sendErr, &validation) {
		e.logger.Printf("Error: backend rejected %s for note %s: %v", entry.Op, entry.NoteID, sendErr)
		return 0, false, e.store.MarkFailedPermanently(ctx, entry.NoteID, sendErr.Error())
	}

	if api.IsRetryable(sendErr) {
		attempts, err := e.store.FailSend(ctx, entry.NoteID)
		if err != nil {
			return 0, false, err
		}
		if attempts >= e.cfg.MaxAttempts {
			e.logger.Printf("Error: giving up on %s for note %s after %d attempts: %v",
				entry.Op, entry.NoteID, attempts, sendErr)
			reason := fmt.Sprintf("gave up after %d attempts: %v", attempts, sendErr)
			return 0, false, e.store.MarkFailedPermanently(ctx, entry.NoteID, reason)
		}
		e.logger.Printf("Warning: %s for note %s failed (attempt %d/%d): %v",
			entry.Op, entry.NoteID, attempts, e.cfg.MaxAttempts, sendErr)
		return e.backoffDelay(attempts), false, nil
	}

	e.logger.Printf("Error: unclassified failure for note %s: %v", entry.NoteID, sendErr)
	return 0, false, e.store.MarkFailedPermanently(ctx, entry.NoteID, sendErr.Error())
}

// dispatch performs the actual backend call for one entry. Deletes have
// no revision response; zero is returned.
func (e *Engine) dispatch(ctx context.Context, entry *note.PendingOp) (int64, error) {
	switch entry.Op {
	case note.OpCreate:
		return e.backend.CreateNote(ctx, api.CreateRequest{
			ID:            entry.NoteID,
			TopicID:       entry.Payload.TopicID,
			Title:         entry.Payload.Title,
			Body:          entry.Payload.Body,
			LocalRevision: entry.LocalRevision,
			ChangeID:      entry.ChangeID,
		})
	case note.OpUpdate:
		return e.backend.UpdateNote(ctx, entry.NoteID, api.UpdateRequest{
			Title:                 entry.Payload.Title,
			Body:                  entry.Payload.Body,
			BasedOnServerRevision: entry.BasedOnServerRevision,
			ChangeID:              entry.ChangeID,
		})
	case note.OpDelete:
		err := e.backend.DeleteNote(ctx, entry.NoteID, api.DeleteRequest{
			BasedOnServerRevision: entry.BasedOnServerRevision,
			ChangeID:              entry.ChangeID,
		})
		return 0, err
	default:
		return 0, fmt.Errorf("unknown operation %q", entry.Op)
	}
}

// conflictFor extracts the conflict, if any, out of a send error. A 404
// is folded into a deletion conflict so one policy handles both shapes.
func conflictFor(err error, op note.Operation) *api.ConflictError {
	var conflict *api.ConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	if errors.Is(err, api.ErrNotFound) && op != note.OpCreate {
		return &api.ConflictError{Deleted: true}
	}
	return nil
}

// applyVerdict carries out the reconciliation policy's decision.
func (e *Engine) applyVerdict(ctx context.Context, entry *note.PendingOp, v reconcile.Verdict) error {
	switch v.Action {
	case reconcile.ActionRetryDelete:
		e.logger.Printf("Delete for note %s conflicted, retrying against revision %d",
			entry.NoteID, v.ServerRevision)
		return e.store.RebaseDelete(ctx, entry.NoteID, v.ServerRevision)

	case reconcile.ActionDeleteSatisfied:
		e.logger.Printf("Delete for note %s already satisfied server-side", entry.NoteID)
		return e.store.DeleteSatisfied(ctx, entry.NoteID)

	case reconcile.ActionMarkConflicted:
		e.logger.Printf("Note %s conflicted with server revision %d, parking for resolution",
			entry.NoteID, v.ServerRevision)
		return e.store.MarkConflicted(ctx, entry.NoteID, v.ServerRevision, v.RemoteTitle, v.RemoteBody)

	case reconcile.ActionPermanentFailure:
		e.logger.Printf("Error: note %s failed permanently: %s", entry.NoteID, v.Reason)
		return e.store.MarkFailedPermanently(ctx, entry.NoteID, v.Reason)

	default:
		return fmt.Errorf("unknown verdict action %v", v.Action)
	}
}

// pull refreshes the topic cache and folds in notes changed remotely
// since the last pull. Best-effort: a failed pull is logged and the
// drain proceeds on the cached state.
func (e *Engine) pull(ctx context.Context) {
	since, err := e.store.LastPullAt(ctx)
	if err != nil {
		e.logger.Printf("Warning: failed to read last pull time: %v", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()
	res, err := e.backend.Pull(pullCtx, since)
	if err != nil {
		e.logger.Printf("Warning: pull failed: %v", err)
		return
	}

	if len(res.Topics) > 0 {
		if err := e.store.ReplaceTopics(ctx, res.Topics); err != nil {
			e.logger.Printf("Warning: failed to refresh topic cache: %v", err)
		}
	}
	for _, r := range res.ChangedNotes {
		if err := e.store.UpsertRemoteNote(ctx, r); err != nil {
			e.logger.Printf("Warning: failed to apply remote change for %s: %v", r.ID, err)
		}
	}
	if err := e.store.SetLastPullAt(ctx, e.clock.Now()); err != nil {
		e.logger.Printf("Warning: failed to record pull time: %v", err)
	}
	e.logger.Printf("Pulled %d topics, %d changed notes", len(res.Topics), len(res.ChangedNotes))
}
