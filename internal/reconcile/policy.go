// Package reconcile holds the pure decision logic applied when the
// backend reports a revision conflict. It owns no state and performs no
// I/O; the sync engine asks it for a verdict and carries it out.
//
// The policy never auto-merges field content. Deletes are terminal and
// win unconditionally; update conflicts park the note with both versions
// retained until an explicit resolution choice is made.
package reconcile

import (
	"fmt"

	"github.com/ryakosh/brain-box/internal/api"
	"github.com/ryakosh/brain-box/internal/note"
)

// Action is what the sync engine must do with a conflicted operation.
type Action int

const (
	// ActionRetryDelete re-sends the delete based on the server's moved
	// revision. Deletes win; the server's concurrent edit does not
	// resurrect the note.
	ActionRetryDelete Action = iota
	// ActionDeleteSatisfied drops the delete: the server reports the
	// note already gone, so the intent is fulfilled.
	ActionDeleteSatisfied
	// ActionMarkConflicted parks the note with both versions retained;
	// no automatic retry until the user resolves it.
	ActionMarkConflicted
	// ActionPermanentFailure surfaces the operation as needing
	// attention (create conflicts, which only happen on a true id
	// collision).
	ActionPermanentFailure
)

// String returns a human-readable representation of the action.
func (a Action) String() string {
	switch a {
	case ActionRetryDelete:
		return "retry-delete"
	case ActionDeleteSatisfied:
		return "delete-satisfied"
	case ActionMarkConflicted:
		return "mark-conflicted"
	case ActionPermanentFailure:
		return "permanent-failure"
	default:
		return "unknown"
	}
}

// Verdict is the policy's decision for one conflicting operation.
type Verdict struct {
	Action Action

	// ServerRevision is the server's current revision, used to rebase a
	// retried delete or to store alongside a conflicted note.
	ServerRevision int64
	// RemoteTitle and RemoteBody carry the server's current content for
	// ActionMarkConflicted so neither side of the divergence is lost.
	RemoteTitle string
	RemoteBody  string
	// Reason explains a permanent failure to the user.
	Reason string
}

// Decide maps a backend revision conflict onto a verdict.
func Decide(op note.Operation, conflict *api.ConflictError) Verdict {
	switch op {
	case note.OpDelete:
		if conflict.Deleted {
			return Verdict{Action: ActionDeleteSatisfied}
		}
		return Verdict{
			Action:         ActionRetryDelete,
			ServerRevision: conflict.ServerRevision,
		}

	case note.OpUpdate:
		if conflict.Deleted {
			// The server deleted the note out from under a local edit.
			// Both "versions" still need a human: the local edit is kept
			// and the deletion is the remote side of the conflict.
			return Verdict{
				Action:         ActionMarkConflicted,
				ServerRevision: conflict.ServerRevision,
			}
		}
		return Verdict{
			Action:         ActionMarkConflicted,
			ServerRevision: conflict.ServerRevision,
			RemoteTitle:    conflict.Title,
			RemoteBody:     conflict.Body,
		}

	case note.OpCreate:
		// Client ids are generated UUIDs checked for prior local
		// existence; a create conflict means a true collision.
		return Verdict{
			Action: ActionPermanentFailure,
			Reason: fmt.Sprintf("note id collision (server revision %d)", conflict.ServerRevision),
		}

	default:
		return Verdict{
			Action: ActionPermanentFailure,
			Reason: fmt.Sprintf("unknown operation %q", op),
		}
	}
}

// Choice is the user's resolution of a conflicted note.
type Choice string

const (
	// ChoiceAcceptLocal keeps the local pending content.
	ChoiceAcceptLocal Choice = "accept-local"
	// ChoiceAcceptRemote adopts the server's content.
	ChoiceAcceptRemote Choice = "accept-remote"
	// ChoiceMerge supplies manually merged content.
	ChoiceMerge Choice = "merge"
)

// Resolution computes the content a resolution choice produces. For
// ChoiceMerge the merged title and body must be supplied by the caller;
// the policy performs no field-level merging of its own.
func Resolution(choice Choice, n *note.Note, mergedTitle, mergedBody string) (title, body string, err error) {
	switch choice {
	case ChoiceAcceptLocal:
		return n.Title, n.Body, nil
	case ChoiceAcceptRemote:
		if n.RemoteRevision == 0 && n.RemoteTitle == "" {
			return "", "", fmt.Errorf("no server version retained for %s", n.ID)
		}
		return n.RemoteTitle, n.RemoteBody, nil
	case ChoiceMerge:
		if mergedTitle == "" {
			return "", "", fmt.Errorf("merged title is required")
		}
		return mergedTitle, mergedBody, nil
	default:
		return "", "", fmt.Errorf("unknown resolution choice %q", choice)
	}
}
