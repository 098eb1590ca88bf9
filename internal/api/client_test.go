package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, nil)
}

func TestCreateNote_ReturnsServerRevision(t *testing.T) {
	var got CreateRequest
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/notes" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"serverRevision": 1})
	})

	rev, err := client.CreateNote(context.Background(), CreateRequest{
		ID: "d7c0f2aa-0000-4000-8000-000000000001", TopicID: 3,
		Title: "Slices", LocalRevision: 1, ChangeID: 42,
	})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	if rev != 1 {
		t.Errorf("server revision = %d, want 1", rev)
	}
	// The idempotency key must travel with the request.
	if got.ID == "" || got.ChangeID != 42 {
		t.Errorf("request missing idempotency fields: %+v", got)
	}
}

func TestUpdateNote_DecodesConflict(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"currentServerRevision": 6,
			"currentTitle":          "Server title",
			"currentBody":           "server body",
		})
	})

	_, err := client.UpdateNote(context.Background(), "id", UpdateRequest{
		Title: "Mine", BasedOnServerRevision: 5, ChangeID: 7,
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.ServerRevision != 6 || conflict.Title != "Server title" || conflict.Body != "server body" {
		t.Errorf("conflict = %+v", conflict)
	}
	if IsRetryable(err) {
		t.Error("conflict classified as retryable")
	}
}

// TestDo_UndecodableConflictIsRetryable verifies that a 409 with a
// garbage body does not surface as a zero-valued conflict; without the
// server's revision there is nothing to reconcile against, so the send
// must go back through the backoff path.
func TestDo_UndecodableConflictIsRetryable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("<html>gateway error</html>"))
	})

	err := client.DeleteNote(context.Background(), "id", DeleteRequest{
		BasedOnServerRevision: 3, ChangeID: 8,
	})
	if err == nil {
		t.Fatal("DeleteNote() succeeded on a 409")
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		t.Fatalf("err = %+v, want no conflict for an undecodable body", conflict)
	}
	if !IsRetryable(err) {
		t.Errorf("undecodable 409 classified as permanent: %v", err)
	}
}

func TestDeleteNote_NotFoundMeansSatisfied(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := client.DeleteNote(context.Background(), "id", DeleteRequest{ChangeID: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if IsRetryable(err) {
		t.Error("404 classified as retryable")
	}
}

func TestDo_ClassifiesServerErrors(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Ping(context.Background())
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("err = %v, want *ServerError", err)
	}
	if !IsRetryable(err) {
		t.Error("5xx classified as permanent")
	}
}

func TestDo_ClassifiesValidationErrors(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "title too long"})
	})

	_, err := client.CreateNote(context.Background(), CreateRequest{ID: "x", ChangeID: 1})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if validation.Message != "title too long" {
		t.Errorf("message = %q", validation.Message)
	}
	if IsRetryable(err) {
		t.Error("validation failure classified as retryable")
	}
}

func TestIsRetryable_TransportFailure(t *testing.T) {
	// Closed port: connection refused is a transport failure.
	client := New("http://127.0.0.1:1", time.Second, nil)
	err := client.Ping(context.Background())
	if err == nil {
		t.Skip("unexpectedly connected")
	}
	if !IsRetryable(err) {
		t.Errorf("transport failure classified as permanent: %v", err)
	}
}

func TestPull_SendsSinceParameter(t *testing.T) {
	var gotSince string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		json.NewEncoder(w).Encode(PullResult{})
	})

	since := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if _, err := client.Pull(context.Background(), since); err != nil {
		t.Fatalf("Pull() failed: %v", err)
	}
	if gotSince != since.Format(time.RFC3339Nano) {
		t.Errorf("since = %q, want %q", gotSince, since.Format(time.RFC3339Nano))
	}
}
