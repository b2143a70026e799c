package workflow

import (
	"errors"
	"sync"
	"testing"

	"github.com/byronwade/Thorbis-sub040/models"
)

func refundablePayment(amount, refunded int64) *models.Payment {
	status := models.PaymentStatusCompleted
	if refunded > 0 {
		status = models.PaymentStatusPartiallyRefunded
	}
	return &models.Payment{
		ID: 1, CompanyId: "c-1",
		Amount: amount, AmountRefunded: refunded,
		Currency: "USD", Status: status,
	}
}

func TestResolveRefundAmountDefaultsToRemaining(t *testing.T) {
	amount, err := resolveRefundAmount(refundablePayment(5000, 1500), nil)
	if err != nil {
		t.Fatalf("resolveRefundAmount: %v", err)
	}
	if amount != 3500 {
		t.Fatalf("expected full remaining balance 3500, got %d", amount)
	}
}

func TestResolveRefundAmountAcceptsExactRemaining(t *testing.T) {
	exact := int64(3500)
	amount, err := resolveRefundAmount(refundablePayment(5000, 1500), &exact)
	if err != nil {
		t.Fatalf("resolveRefundAmount: %v", err)
	}
	if amount != 3500 {
		t.Fatalf("expected 3500, got %d", amount)
	}
}

func TestResolveRefundAmountRejectsOverRefund(t *testing.T) {
	over := int64(3501)
	if _, err := resolveRefundAmount(refundablePayment(5000, 1500), &over); !errors.Is(err, models.ErrRefundExceedsBalance) {
		t.Fatalf("expected ErrRefundExceedsBalance, got %v", err)
	}
}

func TestResolveRefundAmountRejectsNonPositive(t *testing.T) {
	for _, bad := range []int64{0, -100} {
		amt := bad
		if _, err := resolveRefundAmount(refundablePayment(5000, 0), &amt); !errors.Is(err, models.ErrRefundExceedsBalance) {
			t.Fatalf("amount %d: expected ErrRefundExceedsBalance, got %v", bad, err)
		}
	}
}

func TestResolveRefundAmountRejectsFullyRefunded(t *testing.T) {
	if _, err := resolveRefundAmount(refundablePayment(5000, 5000), nil); !errors.Is(err, models.ErrRefundExceedsBalance) {
		t.Fatalf("expected ErrRefundExceedsBalance on exhausted balance, got %v", err)
	}
}

// fakeRefundLedger mirrors the reserve-then-call shape of
// RefundOfflinePayment: the bound guard admits a reservation before the
// backend is asked, and a failed backend call releases it.
type fakeRefundLedger struct {
	mu           sync.Mutex
	amount       int64
	refunded     int64
	backendCalls int
}

func (l *fakeRefundLedger) refund(amount int64, backend func() bool) bool {
	l.mu.Lock()
	if amount <= 0 || l.refunded+amount > l.amount {
		l.mu.Unlock()
		return false
	}
	l.refunded += amount
	l.mu.Unlock()

	ok := backend()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.backendCalls++
	if !ok {
		l.refunded -= amount
	}
	return ok
}

func TestConcurrentFullRefunds_BackendAskedOnce(t *testing.T) {
	l := &fakeRefundLedger{amount: 5000}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.refund(5000, func() bool { return true })
		}()
	}
	wg.Wait()

	if l.backendCalls != 1 {
		t.Fatalf("expected exactly 1 backend refund, got %d", l.backendCalls)
	}
	if l.refunded != 5000 {
		t.Fatalf("expected refunded balance 5000, got %d", l.refunded)
	}
}

func TestFailedBackendRefundReleasesReservation(t *testing.T) {
	l := &fakeRefundLedger{amount: 5000}

	if l.refund(5000, func() bool { return false }) {
		t.Fatal("expected refund to report the backend failure")
	}
	if l.refunded != 0 {
		t.Fatalf("expected reservation released, refunded balance is %d", l.refunded)
	}
	if !l.refund(5000, func() bool { return true }) {
		t.Fatal("expected released balance to be refundable again")
	}
}
