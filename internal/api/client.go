// Package api implements the HTTP client for the Brain Box backend's
// idempotent note-mutation endpoints.
//
// Every mutation carries the client-generated note id and a
// client-monotonic change id; the pair is the backend's dedup key, so a
// retried send after a dropped response cannot double-apply.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ryakosh/brain-box/internal/note"
)

// Client talks to the Brain Box backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// New creates a backend client. timeout bounds each individual request;
// per-send deadlines are layered on top by the caller's context. If
// logger is nil, a default logger writing to stderr is used.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// CreateRequest is the payload for creating a note server-side.
type CreateRequest struct {
	ID            string `json:"id"`
	TopicID       int64  `json:"topicId"`
	Title         string `json:"title"`
	Body          string `json:"body,omitempty"`
	LocalRevision int64  `json:"localRevision"`
	ChangeID      int64  `json:"changeId"`
}

// UpdateRequest is the payload for updating a note server-side.
type UpdateRequest struct {
	Title                 string `json:"title"`
	Body                  string `json:"body,omitempty"`
	BasedOnServerRevision int64  `json:"basedOnServerRevision"`
	ChangeID              int64  `json:"changeId"`
}

// DeleteRequest is the payload for deleting a note server-side.
type DeleteRequest struct {
	BasedOnServerRevision int64 `json:"basedOnServerRevision"`
	ChangeID              int64 `json:"changeId"`
}

// PullResult is the response of the pull endpoint: the authoritative
// topic tree plus notes changed since the requested time.
type PullResult struct {
	Topics       []note.Topic  `json:"topics"`
	ChangedNotes []note.Remote `json:"changedNotes,omitempty"`
}

type revisionResponse struct {
	ServerRevision int64 `json:"serverRevision"`
}

// CreateNote sends a note create and returns the server revision.
func (c *Client) CreateNote(ctx context.Context, req CreateRequest) (int64, error) {
	var resp revisionResponse
	if err := c.do(ctx, http.MethodPost, "/api/notes", req, &resp); err != nil {
		return 0, err
	}
	return resp.ServerRevision, nil
}

// UpdateNote sends a note update and returns the new server revision.
func (c *Client) UpdateNote(ctx context.Context, id string, req UpdateRequest) (int64, error) {
	var resp revisionResponse
	if err := c.do(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), req, &resp); err != nil {
		return 0, err
	}
	return resp.ServerRevision, nil
}

// DeleteNote sends a note delete. A 404 from the backend is reported as
// ErrNotFound; callers treat it as the delete being already satisfied.
func (c *Client) DeleteNote(ctx context.Context, id string, req DeleteRequest) error {
	return c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), req, nil)
}

// TopicRequest is the payload for creating a topic. Topics are
// server-authoritative; this call only works online and never enters
// the outbox.
type TopicRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId,omitempty"`
}

// CreateTopic creates a topic server-side and returns the stored topic.
func (c *Client) CreateTopic(ctx context.Context, req TopicRequest) (*note.Topic, error) {
	var resp note.Topic
	if err := c.do(ctx, http.MethodPost, "/api/topics", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches the topic tree and the notes changed since the given
// time (zero time = everything).
func (c *Client) Pull(ctx context.Context, since time.Time) (*PullResult, error) {
	path := "/api/pull"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var resp PullResult
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping probes the backend health endpoint. Used as the connectivity
// signal.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// do performs one request and maps non-2xx responses onto the error
// taxonomy. Transport-level failures come back wrapped so IsRetryable
// can classify them.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return c.mapError(resp.StatusCode, data)
}

// mapError converts a non-2xx response into a typed error.
func (c *Client) mapError(status int, body []byte) error {
	switch {
	case status == http.StatusConflict:
		var conflict ConflictError
		if err := json.Unmarshal(body, &conflict); err != nil {
			// Without the server's revision and content the conflict
			// cannot be reconciled; treat it as transient and retry with
			// backoff rather than rebasing onto a zero revision.
			c.logger.Printf("Warning: undecodable 409 body: %v", err)
			return fmt.Errorf("undecodable conflict response: %w", err)
		}
		return &conflict

	case status == http.StatusNotFound:
		return ErrNotFound

	case status >= 500:
		return &ServerError{Status: status}

	case status >= 400:
		msg := strings.TrimSpace(string(body))
		var parsed struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil {
			if parsed.Message != "" {
				msg = parsed.Message
			} else if parsed.Detail != "" {
				msg = parsed.Detail
			}
		}
		return &ValidationError{Status: status, Message: msg}

	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}
