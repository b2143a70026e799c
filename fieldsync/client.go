package fieldsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Replayer sends one queued operation to the backend. A nil return means
// the operation is durably applied remotely. A *RemoteError return carries
// the retryable/terminal distinction; any other error is treated as a
// transient transport fault.
type Replayer interface {
	Replay(ctx context.Context, op *QueuedOperation) error
}

type route struct {
	method string
	path   string
}

// Client replays operations over HTTP against the backend's sync API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	routes  map[string]route
}

// NewClient builds the replay client from the environment. SYNC_API_BASE_URL
// points at the backend; SYNC_API_TOKEN is the device's bearer token.
func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("SYNC_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("SYNC_API_BASE_URL is empty")
	}
	token := strings.TrimSpace(os.Getenv("SYNC_API_TOKEN"))
	if token == "" {
		return nil, errors.New("SYNC_API_TOKEN is empty")
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		routes: map[string]route{
			routeKey("payment", OperationCreate):  {http.MethodPost, "/v1/sync/payments"},
			routeKey("refund", OperationCreate):   {http.MethodPost, "/v1/sync/refunds"},
			routeKey("job_note", OperationCreate): {http.MethodPost, "/v1/sync/job-notes"},
			routeKey("job_note", OperationUpdate): {http.MethodPut, "/v1/sync/job-notes"},
			routeKey("job_note", OperationDelete): {http.MethodDelete, "/v1/sync/job-notes"},
		},
	}, nil
}

func routeKey(entity string, kind OperationKind) string {
	return entity + ":" + string(kind)
}

// Replay maps the operation to its backend route and posts the payload.
// 5xx responses and transport faults come back as plain errors (transient);
// 4xx responses come back as terminal *RemoteError unless the body says
// otherwise.
func (c *Client) Replay(ctx context.Context, op *QueuedOperation) error {
	r, ok := c.routes[routeKey(op.Entity, op.Kind)]
	if !ok {
		return &RemoteError{
			Code:      "unroutable_operation",
			Message:   fmt.Sprintf("no route for %s %s", op.Kind, op.Entity),
			Retryable: false,
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bytes.NewReader(op.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Operation-Id", op.ID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("sync api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	remote := &RemoteError{
		Code:      "rejected",
		Message:   strings.TrimSpace(string(body)),
		Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusConflict,
	}
	var parsed struct {
		Code      string `json:"code"`
		Error     string `json:"error"`
		Message   string `json:"message"`
		Retryable *bool  `json:"retryable"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Code != "" {
			remote.Code = parsed.Code
		}
		switch {
		case parsed.Message != "":
			remote.Message = parsed.Message
		case parsed.Error != "":
			remote.Message = parsed.Error
		}
		if parsed.Retryable != nil {
			remote.Retryable = *parsed.Retryable
		}
	}
	return remote
}
