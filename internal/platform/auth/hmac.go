package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/caravanmattress/orders-api/internal/domain"
)

const signaturePrefix = "sha256="

var (
	// ErrUnknownStore indicates the request could not be attributed to any registered store.
	ErrUnknownStore = errors.New("auth: webhook origin not recognised")
	// ErrSignatureMismatch indicates the signature did not verify against the resolved secret.
	ErrSignatureMismatch = errors.New("auth: signature verification failed")
)

// VerifySignature checks a webhook signature against the exact raw request
// bytes. The storefront platform signs the body with HMAC-SHA256 and sends the
// base64-encoded digest, optionally prefixed with "sha256=". Verification must
// happen on the unparsed body: re-serialising JSON does not round-trip
// whitespace or key order.
func VerifySignature(rawBody []byte, providedSignature, sharedSecret string) bool {
	provided := strings.TrimSpace(providedSignature)
	provided = strings.TrimPrefix(provided, signaturePrefix)
	if provided == "" || sharedSecret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(sharedSecret))
	_, _ = mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(provided), []byte(expected))
}

// WebhookVerifier authenticates storefront webhook deliveries against a
// registry of per-store shared secrets.
type WebhookVerifier struct {
	registry map[string]domain.Store

	signatureHeader string
	storeHeader     string

	logger Logger
}

// Logger is the minimal printf-style logging interface the verifier needs.
type Logger interface {
	Printf(format string, args ...any)
}

// VerifierOption customises the verifier.
type VerifierOption func(*WebhookVerifier)

// WithSignatureHeader overrides the header carrying the body signature.
func WithSignatureHeader(name string) VerifierOption {
	return func(v *WebhookVerifier) {
		if name != "" {
			v.signatureHeader = name
		}
	}
}

// WithStoreHeader overrides the header identifying the origin store.
func WithStoreHeader(name string) VerifierOption {
	return func(v *WebhookVerifier) {
		if name != "" {
			v.storeHeader = name
		}
	}
}

// WithVerifierLogger sets the logger used for verification diagnostics.
func WithVerifierLogger(logger Logger) VerifierOption {
	return func(v *WebhookVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewWebhookVerifier constructs a verifier over the supplied store registry.
func NewWebhookVerifier(registry map[string]domain.Store, opts ...VerifierOption) (*WebhookVerifier, error) {
	if len(registry) == 0 {
		return nil, errors.New("auth: store registry is empty")
	}
	normalized := make(map[string]domain.Store, len(registry))
	for key, store := range registry {
		storeDomain := strings.ToLower(strings.TrimSpace(key))
		if storeDomain == "" || strings.TrimSpace(store.SharedSecret) == "" {
			continue
		}
		store.Domain = storeDomain
		normalized[storeDomain] = store
	}
	if len(normalized) == 0 {
		return nil, errors.New("auth: no usable store secrets configured")
	}

	verifier := &WebhookVerifier{
		registry:        normalized,
		signatureHeader: "X-Webhook-Hmac-Sha256",
		storeHeader:     "X-Webhook-Store-Domain",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

// ResolveStore attributes the request to a registered store and verifies the
// body signature. The explicit store header wins; when it is absent or names
// an unregistered store, every registered secret is tried against the
// signature in a stable order and the first match is returned. No persistence
// side effect may precede this call.
func (v *WebhookVerifier) ResolveStore(r *http.Request, rawBody []byte) (domain.Store, error) {
	if v == nil || len(v.registry) == 0 {
		return domain.Store{}, ErrUnknownStore
	}

	signature := strings.TrimSpace(r.Header.Get(v.signatureHeader))
	if signature == "" {
		return domain.Store{}, ErrSignatureMismatch
	}

	if claimed := strings.ToLower(strings.TrimSpace(r.Header.Get(v.storeHeader))); claimed != "" {
		if store, ok := v.registry[claimed]; ok {
			if VerifySignature(rawBody, signature, store.SharedSecret) {
				return store, nil
			}
			return domain.Store{}, ErrSignatureMismatch
		}
		if v.logger != nil {
			v.logger.Printf("auth: unregistered store domain %q, falling back to secret scan", claimed)
		}
	}

	for _, storeDomain := range v.sortedDomains() {
		store := v.registry[storeDomain]
		if VerifySignature(rawBody, signature, store.SharedSecret) {
			return store, nil
		}
	}

	return domain.Store{}, ErrUnknownStore
}

// Middleware enforces webhook signature verification, reading and restoring
// the raw body so downstream handlers can still decode it. The verified store
// is stored on the request context.
func (v *WebhookVerifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawBody, err := readAndRestoreBody(r)
			if err != nil {
				respondAuthError(w, http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
				return
			}

			store, err := v.ResolveStore(r, rawBody)
			if err != nil {
				if v.logger != nil {
					v.logger.Printf("auth: webhook rejected: %v", err)
				}
				respondAuthError(w, http.StatusUnauthorized, "signature_invalid", "webhook signature verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithStore(r.Context(), store)))
		})
	}
}

func (v *WebhookVerifier) sortedDomains() []string {
	domains := make([]string, 0, len(v.registry))
	for storeDomain := range v.registry {
		domains = append(domains, storeDomain)
	}
	sort.Strings(domains)
	return domains
}

type storeContextKey struct{}

// WithStore records the verified origin store on the context.
func WithStore(ctx context.Context, store domain.Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, store)
}

// StoreFromContext retrieves the verified origin store, if present.
func StoreFromContext(ctx context.Context) (domain.Store, bool) {
	store, ok := ctx.Value(storeContextKey{}).(domain.Store)
	return store, ok
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
