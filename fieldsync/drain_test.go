package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeReplayer scripts per-operation outcomes and records call order.
type fakeReplayer struct {
	mu       sync.Mutex
	outcomes map[string]error
	calls    []string
}

func newFakeReplayer() *fakeReplayer {
	return &fakeReplayer{outcomes: map[string]error{}}
}

func (f *fakeReplayer) fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[id] = err
}

func (f *fakeReplayer) Replay(_ context.Context, op *QueuedOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op.ID)
	return f.outcomes[op.ID]
}

func (f *fakeReplayer) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEngine(t *testing.T) (*Engine, *Store, *fakeReplayer) {
	t.Helper()
	store := openTestStore(t)
	replayer := newFakeReplayer()
	return NewEngine(store, replayer, testLogger()), store, replayer
}

func enqueueOp(t *testing.T, store *Store, entity, id string) string {
	t.Helper()
	opId, err := store.Enqueue(&QueuedOperation{
		ID:      id,
		Entity:  entity,
		Kind:    OperationCreate,
		Payload: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return opId
}

func TestDrainRemovesReplayedOperations(t *testing.T) {
	engine, store, _ := testEngine(t)
	enqueueOp(t, store, "payment", "a")
	enqueueOp(t, store, "payment", "b")

	if err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	ops, _ := store.ListAll()
	if len(ops) != 0 {
		t.Fatalf("expected empty queue after drain, got %d operations", len(ops))
	}
}

func TestDrainPreservesPerEntityOrder(t *testing.T) {
	engine, store, replayer := testEngine(t)
	enqueueOp(t, store, "payment", "p1")
	enqueueOp(t, store, "payment", "p2")
	enqueueOp(t, store, "payment", "p3")

	if err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	calls := replayer.callList()
	want := []string{"p1", "p2", "p3"}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(calls))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected call order %v, got %v", want, calls)
		}
	}
}

func TestDrainTransientFailureStopsEntityChain(t *testing.T) {
	engine, store, replayer := testEngine(t)
	enqueueOp(t, store, "payment", "p1")
	enqueueOp(t, store, "payment", "p2")
	enqueueOp(t, store, "job_note", "n1")
	replayer.fail("p1", errors.New("sync api error 503"))

	if err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	// p2 must not replay behind a transiently failed p1; the other entity's
	// chain is unaffected.
	for _, id := range replayer.callList() {
		if id == "p2" {
			t.Fatal("p2 replayed behind a failed dependency")
		}
	}

	op, _ := store.Get("p1")
	if op == nil || op.RetryCount != 1 {
		t.Fatalf("expected p1 retry count 1, got %+v", op)
	}
	if op.LastError == nil {
		t.Fatal("expected p1 last error to be recorded")
	}
	if n, _ := store.Get("n1"); n != nil {
		t.Fatal("expected job_note chain to drain despite payment chain failure")
	}
}

func TestDrainTerminalFailureExhaustsRetries(t *testing.T) {
	engine, store, replayer := testEngine(t)
	enqueueOp(t, store, "payment", "p1")
	enqueueOp(t, store, "payment", "p2")
	replayer.fail("p1", &RemoteError{Code: "rejected", Message: "bad payload", Retryable: false})

	if err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	op, _ := store.Get("p1")
	if op == nil || !op.Failed() {
		t.Fatalf("expected terminal rejection to exhaust retries, got %+v", op)
	}
	// The chain continues past a terminal failure.
	if p2, _ := store.Get("p2"); p2 != nil {
		t.Fatal("expected p2 to replay past a terminally failed p1")
	}
}

func TestDrainRespectsRetryCeiling(t *testing.T) {
	engine, store, replayer := testEngine(t)
	enqueueOp(t, store, "payment", "p1")
	replayer.fail("p1", errors.New("sync api error 503"))

	for i := 0; i < RetryCeiling; i++ {
		if err := engine.Drain(context.Background()); err != nil {
			t.Fatalf("Drain pass %d: %v", i, err)
		}
	}
	callsAtCeiling := len(replayer.callList())
	if callsAtCeiling != RetryCeiling {
		t.Fatalf("expected %d attempts, got %d", RetryCeiling, callsAtCeiling)
	}

	// A fourth pass must not touch the exhausted operation.
	if err := engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(replayer.callList()) != callsAtCeiling {
		t.Fatal("expected no further attempts past the retry ceiling")
	}

	op, _ := store.Get("p1")
	if op == nil || !op.Failed() {
		t.Fatal("expected operation in failed set")
	}
}

func TestManualRetryReplaysExhaustedOperation(t *testing.T) {
	engine, store, replayer := testEngine(t)
	enqueueOp(t, store, "payment", "p1")
	replayer.fail("p1", errors.New("sync api error 503"))

	for i := 0; i < RetryCeiling; i++ {
		_ = engine.Drain(context.Background())
	}

	// Server recovers; a manual retry goes through despite the ceiling.
	replayer.fail("p1", nil)
	if err := engine.RetryOperation(context.Background(), "p1"); err != nil {
		t.Fatalf("RetryOperation: %v", err)
	}
	if op, _ := store.Get("p1"); op != nil {
		t.Fatal("expected manually retried operation to be removed after success")
	}
}

func TestClearFailedOperations(t *testing.T) {
	engine, store, replayer := testEngine(t)
	enqueueOp(t, store, "payment", "p1")
	enqueueOp(t, store, "payment", "p2")
	replayer.fail("p1", &RemoteError{Code: "rejected", Message: "bad", Retryable: false})
	replayer.fail("p2", errors.New("sync api error 503"))

	_ = engine.Drain(context.Background())

	n, err := engine.ClearFailedOperations()
	if err != nil {
		t.Fatalf("ClearFailedOperations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the terminally failed operation cleared, got %d", n)
	}
	if op, _ := store.Get("p2"); op == nil {
		t.Fatal("expected transiently failed operation to remain queued")
	}
}
