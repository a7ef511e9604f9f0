package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caravanmattress/orders-api/internal/domain"
)

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func testRegistry() map[string]domain.Store {
	return map[string]domain.Store{
		"caravan.example.com": {
			Domain:       "caravan.example.com",
			DisplayName:  "Caravan Mattresses",
			OrderPrefix:  "#CARA",
			SharedSecret: "caravan-secret",
		},
		"boat.example.com": {
			Domain:       "boat.example.com",
			DisplayName:  "Boat Mattresses",
			OrderPrefix:  "#BOAT",
			SharedSecret: "boat-secret",
		},
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":123,"line_items":[{"sku":"NOVOD272"}]}`)
	signature := signBody(body, "caravan-secret")

	if !VerifySignature(body, signature, "caravan-secret") {
		t.Fatal("expected signature to verify")
	}
	if !VerifySignature(body, "sha256="+signature, "caravan-secret") {
		t.Fatal("expected prefixed signature to verify")
	}
	if VerifySignature(body, signature, "boat-secret") {
		t.Fatal("expected mismatch for wrong secret")
	}
}

func TestVerifySignatureRejectsMutatedBody(t *testing.T) {
	body := []byte(`{"id":123,"order_number":1001}`)
	signature := signBody(body, "caravan-secret")

	for i := range body {
		mutated := bytes.Clone(body)
		mutated[i] ^= 0x01
		if VerifySignature(mutated, signature, "caravan-secret") {
			t.Fatalf("expected verification failure after mutating byte %d", i)
		}
	}
}

func TestVerifySignatureEmptyInputs(t *testing.T) {
	body := []byte(`{}`)
	if VerifySignature(body, "", "secret") {
		t.Fatal("empty signature must not verify")
	}
	if VerifySignature(body, signBody(body, "secret"), "") {
		t.Fatal("empty secret must not verify")
	}
}

func TestResolveStoreByHeader(t *testing.T) {
	verifier, err := NewWebhookVerifier(testRegistry())
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}

	body := []byte(`{"id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Store-Domain", "Caravan.Example.Com")
	req.Header.Set("X-Webhook-Hmac-Sha256", signBody(body, "caravan-secret"))

	store, err := verifier.ResolveStore(req, body)
	if err != nil {
		t.Fatalf("ResolveStore: %v", err)
	}
	if store.Domain != "caravan.example.com" {
		t.Fatalf("unexpected store %q", store.Domain)
	}
}

func TestResolveStoreHeaderMismatchRejected(t *testing.T) {
	verifier, err := NewWebhookVerifier(testRegistry())
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}

	body := []byte(`{"id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Store-Domain", "caravan.example.com")
	req.Header.Set("X-Webhook-Hmac-Sha256", signBody(body, "boat-secret"))

	if _, err := verifier.ResolveStore(req, body); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestResolveStoreFallbackScan(t *testing.T) {
	verifier, err := NewWebhookVerifier(testRegistry())
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}

	body := []byte(`{"id":9}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Hmac-Sha256", signBody(body, "boat-secret"))

	store, err := verifier.ResolveStore(req, body)
	if err != nil {
		t.Fatalf("ResolveStore: %v", err)
	}
	if store.Domain != "boat.example.com" {
		t.Fatalf("fallback resolved wrong store %q", store.Domain)
	}
}

func TestResolveStoreUnknownSecret(t *testing.T) {
	verifier, err := NewWebhookVerifier(testRegistry())
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}

	body := []byte(`{"id":9}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Hmac-Sha256", signBody(body, "some-other-secret"))

	if _, err := verifier.ResolveStore(req, body); !errors.Is(err, ErrUnknownStore) {
		t.Fatalf("expected ErrUnknownStore, got %v", err)
	}
}

func TestMiddlewareRestoresBodyAndSetsStore(t *testing.T) {
	verifier, err := NewWebhookVerifier(testRegistry())
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}

	body := []byte(`{"id":42,"order_number":1001}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Store-Domain", "boat.example.com")
	req.Header.Set("X-Webhook-Hmac-Sha256", signBody(body, "boat-secret"))

	var seenBody []byte
	var seenStore domain.Store
	handler := verifier.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenBody, _ = io.ReadAll(r.Body)
		seenStore, _ = StoreFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !bytes.Equal(seenBody, body) {
		t.Fatalf("handler saw altered body: %q", seenBody)
	}
	if seenStore.Domain != "boat.example.com" {
		t.Fatalf("handler saw store %q", seenStore.Domain)
	}
}

func TestMiddlewareRejectsBadSignature(t *testing.T) {
	verifier, err := NewWebhookVerifier(testRegistry())
	if err != nil {
		t.Fatalf("NewWebhookVerifier: %v", err)
	}

	body := []byte(`{"id":42}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/orders/create", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Hmac-Sha256", "not-a-signature")

	called := false
	handler := verifier.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run on failed verification")
	}
}
