package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

// Webhook verification must accept only notifications signed with the
// company's secret and must reject everything when no secret is
// configured. These tests sign payloads the way each backend does and
// check both directions.

func fortisSign(secret string, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func hexHmac(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestFortisPayVerifyWebhook(t *testing.T) {
	p, err := New(TypeFortisPay, Config{CompanyId: "c1", WebhookSecret: "whsec"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte(`{"transaction_id":"txn_1","status":"captured","amount":12500,"currency":"USD"}`)
	good := fortisSign("whsec", "txn_1|captured|12500|USD")

	if !p.VerifyWebhook(payload, good) {
		t.Fatal("expected valid signature to verify")
	}
	if p.VerifyWebhook(payload, fortisSign("wrong-secret", "txn_1|captured|12500|USD")) {
		t.Fatal("expected signature under wrong secret to be rejected")
	}

	// Tampered amount must break the canonical string.
	tampered := []byte(`{"transaction_id":"txn_1","status":"captured","amount":1,"currency":"USD"}`)
	if p.VerifyWebhook(tampered, good) {
		t.Fatal("expected tampered payload to be rejected")
	}
}

func TestAchBridgeVerifyWebhook(t *testing.T) {
	p, err := New(TypeAchBridge, Config{CompanyId: "c1", WebhookSecret: "achsec"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte(`{"transfer_id":"tr_9","state":"settled"}`)
	if !p.VerifyWebhook(payload, hexHmac("achsec", payload)) {
		t.Fatal("expected valid signature to verify")
	}
	if p.VerifyWebhook([]byte(`{"transfer_id":"tr_9","state":"returned"}`), hexHmac("achsec", payload)) {
		t.Fatal("expected signature over a different payload to be rejected")
	}
}

func TestNuvaPayVerifyWebhook(t *testing.T) {
	p, err := New(TypeNuvaPay, Config{CompanyId: "c1", WebhookSecret: "nuvasec"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := []byte(`{"charge_id":"ch_3","outcome":"paid"}`)
	h := sha256.New()
	h.Write([]byte("nuvasec."))
	h.Write(payload)
	good := hex.EncodeToString(h.Sum(nil))

	if !p.VerifyWebhook(payload, good) {
		t.Fatal("expected valid signature to verify")
	}
	if p.VerifyWebhook(payload, good[:len(good)-1]+"0") {
		t.Fatal("expected corrupted signature to be rejected")
	}
}

func TestVerifyWebhookFailsClosedWithoutSecret(t *testing.T) {
	payload := []byte(`{"transaction_id":"txn_1","status":"captured","amount":100,"currency":"USD"}`)

	for _, typ := range []string{TypeFortisPay, TypeAchBridge, TypeNuvaPay} {
		p, err := New(typ, Config{CompanyId: "c1"})
		if err != nil {
			t.Fatalf("New(%s): %v", typ, err)
		}
		if p.VerifyWebhook(payload, hexHmac("", payload)) {
			t.Fatalf("%s: expected verification to fail closed with empty secret", typ)
		}
		if p.VerifyWebhook(payload, "") {
			t.Fatalf("%s: expected empty signature to be rejected", typ)
		}
	}
}

func TestUnknownProcessorType(t *testing.T) {
	if _, err := New("stripe", Config{}); err == nil {
		t.Fatal("expected unknown processor type to error")
	}
}
