package reconcile

import (
	"testing"

	"github.com/ryakosh/brain-box/internal/api"
	"github.com/ryakosh/brain-box/internal/note"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		op       note.Operation
		conflict *api.ConflictError
		want     Action
	}{
		{
			name:     "delete wins over concurrent edit",
			op:       note.OpDelete,
			conflict: &api.ConflictError{ServerRevision: 7, Title: "Edited meanwhile"},
			want:     ActionRetryDelete,
		},
		{
			name:     "delete already satisfied",
			op:       note.OpDelete,
			conflict: &api.ConflictError{Deleted: true},
			want:     ActionDeleteSatisfied,
		},
		{
			name:     "update conflict parks the note",
			op:       note.OpUpdate,
			conflict: &api.ConflictError{ServerRevision: 4, Title: "Server title", Body: "server body"},
			want:     ActionMarkConflicted,
		},
		{
			name:     "update against deleted note parks the note",
			op:       note.OpUpdate,
			conflict: &api.ConflictError{Deleted: true},
			want:     ActionMarkConflicted,
		},
		{
			name:     "create conflict is permanent",
			op:       note.OpCreate,
			conflict: &api.ConflictError{ServerRevision: 1},
			want:     ActionPermanentFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Decide(tt.op, tt.conflict)
			if v.Action != tt.want {
				t.Errorf("Decide(%s) = %s, want %s", tt.op, v.Action, tt.want)
			}
		})
	}
}

// TestDecide_ConflictCarriesServerVersion verifies that an update
// conflict's verdict retains the server content so nothing is lost.
func TestDecide_ConflictCarriesServerVersion(t *testing.T) {
	v := Decide(note.OpUpdate, &api.ConflictError{
		ServerRevision: 9, Title: "Theirs", Body: "their body",
	})
	if v.ServerRevision != 9 || v.RemoteTitle != "Theirs" || v.RemoteBody != "their body" {
		t.Errorf("verdict dropped server version: %+v", v)
	}
}

func TestDecide_RetryDeleteCarriesRevision(t *testing.T) {
	v := Decide(note.OpDelete, &api.ConflictError{ServerRevision: 12})
	if v.ServerRevision != 12 {
		t.Errorf("ServerRevision = %d, want 12", v.ServerRevision)
	}
}

func TestResolution(t *testing.T) {
	n := &note.Note{
		ID:             note.NewID(),
		Title:          "Local",
		Body:           "local body",
		RemoteRevision: 3,
		RemoteTitle:    "Remote",
		RemoteBody:     "remote body",
		Status:         note.StatusConflicted,
	}

	title, body, err := Resolution(ChoiceAcceptLocal, n, "", "")
	if err != nil || title != "Local" || body != "local body" {
		t.Errorf("accept-local = %q/%q (%v)", title, body, err)
	}

	title, body, err = Resolution(ChoiceAcceptRemote, n, "", "")
	if err != nil || title != "Remote" || body != "remote body" {
		t.Errorf("accept-remote = %q/%q (%v)", title, body, err)
	}

	title, body, err = Resolution(ChoiceMerge, n, "Merged", "merged body")
	if err != nil || title != "Merged" || body != "merged body" {
		t.Errorf("merge = %q/%q (%v)", title, body, err)
	}
}

func TestResolution_RejectsBadInput(t *testing.T) {
	n := &note.Note{ID: note.NewID(), Title: "Local", Status: note.StatusConflicted}

	if _, _, err := Resolution(ChoiceAcceptRemote, n, "", ""); err == nil {
		t.Error("accept-remote with no retained server version succeeded")
	}
	if _, _, err := Resolution(ChoiceMerge, n, "", "body"); err == nil {
		t.Error("merge with empty title succeeded")
	}
	if _, _, err := Resolution(Choice("coin-flip"), n, "", ""); err == nil {
		t.Error("unknown choice succeeded")
	}
}
