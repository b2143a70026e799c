package models

import "testing"

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []PaymentMethod{
		PaymentMethodCard, PaymentMethodAch, PaymentMethodCheck,
		PaymentMethodCash, PaymentMethodFinancing,
	} {
		if !m.Valid() {
			t.Fatalf("expected %s to be valid", m)
		}
	}
	for _, m := range []PaymentMethod{"", "crypto", "CARD"} {
		if m.Valid() {
			t.Fatalf("expected %q to be invalid", m)
		}
	}
}

func TestPaymentMethodRecordedOnly(t *testing.T) {
	recorded := map[PaymentMethod]bool{
		PaymentMethodCash:      true,
		PaymentMethodCheck:     true,
		PaymentMethodCard:      false,
		PaymentMethodAch:       false,
		PaymentMethodFinancing: false,
	}
	for m, want := range recorded {
		if got := m.RecordedOnly(); got != want {
			t.Fatalf("%s: expected RecordedOnly=%v, got %v", m, want, got)
		}
	}
}
