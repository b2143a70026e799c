package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("SYNC_API_BASE_URL", srv.URL)
	t.Setenv("SYNC_API_TOKEN", "test-token")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func paymentOp(id string) *QueuedOperation {
	return &QueuedOperation{
		ID:      id,
		Entity:  "payment",
		Kind:    OperationCreate,
		Payload: json.RawMessage(`{"client_id":"op-1"}`),
	}
}

func TestClientReplaySuccess(t *testing.T) {
	var gotPath, gotAuth, gotOpId string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotOpId = r.Header.Get("X-Client-Operation-Id")
		w.WriteHeader(http.StatusCreated)
	})

	if err := client.Replay(context.Background(), paymentOp("op-a")); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if gotPath != "/v1/sync/payments" {
		t.Fatalf("expected payment route, got %s", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotOpId != "op-a" {
		t.Fatalf("expected operation id header, got %q", gotOpId)
	}
}

func TestClientServerErrorIsTransient(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Replay(context.Background(), paymentOp("op-a"))
	if err == nil {
		t.Fatal("expected error on 503")
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		t.Fatal("expected a plain transient error, not a RemoteError")
	}
}

func TestClientRejectionIsTerminal(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "refund_exceeds_balance", "error": "refund amount exceeds remaining balance", "retryable": false,
		})
	})

	err := client.Replay(context.Background(), paymentOp("op-a"))
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Retryable {
		t.Fatal("expected terminal rejection")
	}
	if remote.Code != "refund_exceeds_balance" {
		t.Fatalf("expected code from body, got %q", remote.Code)
	}
}

func TestClientHonorsRetryableFlag(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "offline payment submission in progress", "retryable": true,
		})
	})

	err := client.Replay(context.Background(), paymentOp("op-a"))
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !remote.Retryable {
		t.Fatal("expected in-progress conflict to be retryable")
	}
}

func TestClientUnroutableOperation(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an unroutable operation")
	})

	err := client.Replay(context.Background(), &QueuedOperation{
		ID: "op-x", Entity: "invoice", Kind: OperationDelete,
	})
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Retryable {
		t.Fatalf("expected terminal RemoteError for unroutable operation, got %v", err)
	}
}
