package workflow

import (
	"encoding/json"
	"testing"

	"github.com/byronwade/Thorbis-sub040/models"
	"github.com/byronwade/Thorbis-sub040/payments"
)

func TestNormalizeProcessorStatus(t *testing.T) {
	cases := map[string]payments.ProcessStatus{
		"approved":        payments.ProcessStatusSucceeded,
		"captured":        payments.ProcessStatusSucceeded,
		"settled":         payments.ProcessStatusSucceeded,
		"paid":            payments.ProcessStatusSucceeded,
		"declined":        payments.ProcessStatusFailed,
		"rejected":        payments.ProcessStatusFailed,
		"returned":        payments.ProcessStatusFailed,
		"reversed":        payments.ProcessStatusFailed,
		"requires_action": payments.ProcessStatusRequiresAction,
		"redirect":        payments.ProcessStatusRequiresAction,
		"pending":         payments.ProcessStatusProcessing,
		"":                payments.ProcessStatusProcessing,
		"something_new":   payments.ProcessStatusProcessing,
	}
	for raw, want := range cases {
		if got := normalizeProcessorStatus(raw); got != want {
			t.Fatalf("status %q: expected %s, got %s", raw, want, got)
		}
	}
}

// fakeQueueRecord mirrors the status rules of the queue models: a failure
// notification flips PENDING/FAILED records to FAILED, while a SUCCEEDED
// record keeps its status (the claim stays burned) and only records the
// error trail. See applyProcessorStatus.
type fakeQueueRecord struct {
	syncStatus string
	lastError  string
}

func (r *fakeQueueRecord) applyFailure(message string) {
	if r.syncStatus == models.QueueSyncStatusSucceeded {
		r.lastError = message
		return
	}
	r.syncStatus = models.QueueSyncStatusFailed
	r.lastError = message
}

func (r *fakeQueueRecord) reclaimable() bool {
	return r.syncStatus != models.QueueSyncStatusSucceeded
}

func TestFailureNotificationOnPendingRecord(t *testing.T) {
	rec := &fakeQueueRecord{syncStatus: models.QueueSyncStatusPending}
	rec.applyFailure("R01 insufficient funds")

	if rec.syncStatus != models.QueueSyncStatusFailed {
		t.Fatalf("expected FAILED, got %s", rec.syncStatus)
	}
	if !rec.reclaimable() {
		t.Fatal("expected a failed record to be reclaimable")
	}
}

func TestReversalOnSettledRecordKeepsClaimBurned(t *testing.T) {
	rec := &fakeQueueRecord{syncStatus: models.QueueSyncStatusSucceeded}
	rec.applyFailure("charge reversed")

	if rec.syncStatus != models.QueueSyncStatusSucceeded {
		t.Fatalf("expected sync status to stay SUCCEEDED, got %s", rec.syncStatus)
	}
	if rec.lastError == "" {
		t.Fatal("expected the reversal to be recorded on the error trail")
	}
	// A resubmission of the same client id must short-circuit, not re-charge.
	if rec.reclaimable() {
		t.Fatal("expected a reversed record to refuse reclaim")
	}
}

func TestWebhookNotificationAccessors(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		txnId    string
		status   string
		failCode string
	}{
		{
			name:    "fortispay shape",
			payload: `{"transaction_id":"txn_1","status":"captured"}`,
			txnId:   "txn_1", status: "captured",
		},
		{
			name:    "achbridge shape",
			payload: `{"transfer_id":"tr_2","state":"returned","reason_code":"R01"}`,
			txnId:   "tr_2", status: "returned", failCode: "R01",
		},
		{
			name:    "nuvapay shape",
			payload: `{"charge_id":"ch_3","outcome":"declined","decline_code":"insufficient_funds"}`,
			txnId:   "ch_3", status: "declined", failCode: "insufficient_funds",
		},
	}
	for _, tc := range cases {
		var n webhookNotification
		if err := json.Unmarshal([]byte(tc.payload), &n); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if got := n.transactionId(); got != tc.txnId {
			t.Fatalf("%s: expected transaction id %q, got %q", tc.name, tc.txnId, got)
		}
		if got := n.rawStatus(); got != tc.status {
			t.Fatalf("%s: expected status %q, got %q", tc.name, tc.status, got)
		}
		if got := n.failureCode(); got != tc.failCode {
			t.Fatalf("%s: expected failure code %q, got %q", tc.name, tc.failCode, got)
		}
	}
}
