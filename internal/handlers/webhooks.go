package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/caravanmattress/orders-api/internal/platform/auth"
	"github.com/caravanmattress/orders-api/internal/platform/httpx"
	"github.com/caravanmattress/orders-api/internal/platform/observability"
	"github.com/caravanmattress/orders-api/internal/platform/requestctx"
	"github.com/caravanmattress/orders-api/internal/services"
)

const (
	defaultWebhookMaxBodyBytes = 1 << 20
	defaultWebhookTopicHeader  = "X-Webhook-Topic"
	orderCreatedTopic          = "orders/create"
)

// WebhookHandlers receives storefront order webhooks. Signature verification
// runs in middleware before these handlers; by the time a request lands here
// its origin store is already resolved on the context.
type WebhookHandlers struct {
	ingestion    services.IngestionService
	throttle     *webhookThrottle
	maxBodyBytes int64
	topicHeader  string
	clock        func() time.Time
}

// WebhookOption customises webhook handler behaviour.
type WebhookOption func(*WebhookHandlers)

// WithWebhookThrottle caps per-store deliveries to the given rate per minute.
func WithWebhookThrottle(perMinute int, clock func() time.Time) WebhookOption {
	return func(h *WebhookHandlers) {
		h.throttle = newWebhookThrottle(perMinute, clock)
	}
}

// WithWebhookMaxBodyBytes overrides the maximum accepted payload size.
func WithWebhookMaxBodyBytes(maxBytes int64) WebhookOption {
	return func(h *WebhookHandlers) {
		if maxBytes > 0 {
			h.maxBodyBytes = maxBytes
		}
	}
}

// WithWebhookTopicHeader overrides the header naming the webhook topic.
func WithWebhookTopicHeader(name string) WebhookOption {
	return func(h *WebhookHandlers) {
		if strings.TrimSpace(name) != "" {
			h.topicHeader = name
		}
	}
}

// WithWebhookClock injects a custom clock primarily for tests.
func WithWebhookClock(clock func() time.Time) WebhookOption {
	return func(h *WebhookHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewWebhookHandlers constructs the webhook ingestion handlers.
func NewWebhookHandlers(ingestion services.IngestionService, opts ...WebhookOption) *WebhookHandlers {
	handlers := &WebhookHandlers{
		ingestion:    ingestion,
		maxBodyBytes: defaultWebhookMaxBodyBytes,
		topicHeader:  defaultWebhookTopicHeader,
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handlers)
		}
	}
	return handlers
}

// Routes registers the /webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders/create", h.ordersCreate)
}

type webhookResponse struct {
	Success           bool                       `json:"success"`
	OrderID           string                     `json:"orderId"`
	OrderNumber       string                     `json:"orderNumber"`
	Store             string                     `json:"store"`
	ProductsProcessed int                        `json:"productsProcessed"`
	SubOrdersCreated  int                        `json:"subOrdersCreated"`
	SupplierAssigned  *string                    `json:"supplierAssigned"`
	SheetsUpdated     bool                       `json:"sheetsUpdated"`
	SubOrders         []services.SubOrderOutcome `json:"subOrders"`
	UnmappedProducts  []string                   `json:"unmappedProducts,omitempty"`
	Timestamp         string                     `json:"timestamp"`
}

func (h *WebhookHandlers) ordersCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	if h.ingestion == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ingestion_unavailable", "order ingestion unavailable", http.StatusServiceUnavailable))
		return
	}

	store, ok := auth.StoreFromContext(ctx)
	if !ok {
		// The verifier middleware was not mounted. Refuse rather than ingest
		// an unauthenticated payload.
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "webhook signature verification failed", http.StatusUnauthorized))
		return
	}
	observability.AnnotateOrderSpan(ctx, store.Domain, "")

	if !h.throttle.Allow(store.Domain) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook deliveries for this store", http.StatusTooManyRequests))
		return
	}

	if topic := strings.TrimSpace(r.Header.Get(h.topicHeader)); topic != "" && !strings.EqualFold(topic, orderCreatedTopic) {
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_topic", "only orders/create deliveries are accepted on this endpoint", http.StatusUnprocessableEntity))
		return
	}

	rawBody, err := readLimitedBody(r, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "unable to read webhook payload", http.StatusBadRequest))
		return
	}

	result, err := h.ingestion.ProcessOrder(ctx, store, rawBody)
	if err != nil {
		if errors.Is(err, services.ErrMalformedPayload) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "webhook payload is not a valid order", http.StatusBadRequest))
			return
		}
		logger.Error("webhook ingestion failed",
			zap.String("store_domain", store.Domain),
			zap.Error(err),
		)
		httpx.WriteError(ctx, w, httpx.NewError("ingestion_failed", "failed to process order webhook", http.StatusInternalServerError))
		return
	}
	observability.AnnotateOrderSpan(ctx, store.Domain, result.OrderID)

	response := webhookResponse{
		Success:           true,
		OrderID:           result.OrderID,
		OrderNumber:       result.OrderNumber,
		Store:             result.StoreDomain,
		ProductsProcessed: result.ProductsTotal,
		SubOrdersCreated:  result.SubOrdersCreated,
		SupplierAssigned:  result.SupplierAssigned,
		SheetsUpdated:     result.AllSheetsSynced(),
		SubOrders:         result.SubOrders,
		UnmappedProducts:  result.UnmappedProducts,
		Timestamp:         h.clock().UTC().Format(time.RFC3339),
	}
	if response.SubOrders == nil {
		response.SubOrders = []services.SubOrderOutcome{}
	}
	writeJSONResponse(w, http.StatusOK, response)
}
