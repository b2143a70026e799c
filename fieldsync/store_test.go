package fieldsync

import (
	"encoding/json"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueue(t *testing.T, store *Store, entity string, payload string) string {
	t.Helper()
	id, err := store.Enqueue(&QueuedOperation{
		Entity:  entity,
		Kind:    OperationCreate,
		Payload: json.RawMessage(payload),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func TestStoreEnqueueAndList(t *testing.T) {
	store := openTestStore(t)

	first := enqueue(t, store, "payment", `{"client_id":"op-1"}`)
	second := enqueue(t, store, "job_note", `{"note":"done"}`)

	ops, err := store.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(ops))
	}
	if ops[0].ID != first || ops[1].ID != second {
		t.Fatal("expected insertion order to be preserved")
	}
	if string(ops[0].Payload) != `{"client_id":"op-1"}` {
		t.Fatalf("payload round trip failed: %s", ops[0].Payload)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	id := enqueue(t, store, "payment", `{"client_id":"op-1"}`)
	store.Close()

	reopened, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	op, err := reopened.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if op == nil {
		t.Fatal("expected operation to survive process restart")
	}
}

func TestStoreRetryAccounting(t *testing.T) {
	store := openTestStore(t)
	id := enqueue(t, store, "payment", `{}`)

	msg := "sync api error 503"
	if err := store.Update(id, 2, &msg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pending, err := store.PendingCount()
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 pending below ceiling, got %d", pending)
	}

	if err := store.Update(id, RetryCeiling, &msg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	pending, _ = store.PendingCount()
	if pending != 0 {
		t.Fatalf("expected 0 pending at ceiling, got %d", pending)
	}

	failed, err := store.FailedOperations()
	if err != nil {
		t.Fatalf("FailedOperations: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != id {
		t.Fatalf("expected the exhausted operation in the failed set, got %v", failed)
	}
	if failed[0].LastError == nil || *failed[0].LastError != msg {
		t.Fatal("expected last error to be recorded")
	}
}

func TestStoreClearFailed(t *testing.T) {
	store := openTestStore(t)
	healthy := enqueue(t, store, "payment", `{}`)
	exhausted := enqueue(t, store, "payment", `{}`)

	msg := "rejected"
	if err := store.Update(exhausted, RetryCeiling, &msg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	n, err := store.ClearFailed()
	if err != nil {
		t.Fatalf("ClearFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cleared, got %d", n)
	}

	ops, _ := store.ListAll()
	if len(ops) != 1 || ops[0].ID != healthy {
		t.Fatal("expected only the healthy operation to remain")
	}
}

func TestStoreUpdateMissingOperation(t *testing.T) {
	store := openTestStore(t)
	if err := store.Update("no-such-id", 1, nil); err == nil {
		t.Fatal("expected updating a missing operation to error")
	}
}
