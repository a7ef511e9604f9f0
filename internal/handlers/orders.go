package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/httpx"
	"github.com/caravanmattress/orders-api/internal/platform/pagination"
	"github.com/caravanmattress/orders-api/internal/repositories"
	"github.com/caravanmattress/orders-api/internal/services"
)

const (
	defaultSubOrderPageSize = 50
	maxSubOrderPageSize     = 100
	maxOrderPatchBodySize   = 16 * 1024
)

// OrderHandlers exposes the sub-order review endpoints consumed by the back
// office UI.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listSubOrders)
	r.Get("/{subOrderID}", h.getSubOrder)
	r.Patch("/{subOrderID}", h.patchSubOrder)
	r.Post("/{orderID}:resync", h.resyncOrder)
}

type subOrderListResponse struct {
	Items         []domain.SubOrder `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type subOrderResponse struct {
	SubOrder domain.SubOrder `json:"subOrder"`
}

type resyncResponse struct {
	OrderID   string                     `json:"orderId"`
	Attempted int                        `json:"attempted"`
	Synced    int                        `json:"synced"`
	SubOrders []services.SubOrderOutcome `json:"subOrders"`
}

type patchSubOrderRequest struct {
	ProcessingStatus *string `json:"processingStatus"`
	Notes            *string `json:"notes"`
	SupplierKey      *string `json:"supplierKey"`
	EmailSent        *bool   `json:"emailSent"`
}

func (h *OrderHandlers) listSubOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	page, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultSubOrderPageSize,
		MaxPageSize:     maxSubOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := repositories.SubOrderFilter{
		StoreDomain:   strings.ToLower(strings.TrimSpace(query.Get("store"))),
		SupplierKey:   domain.SupplierKey(strings.TrimSpace(query.Get("supplier"))),
		OriginOrderID: strings.TrimSpace(query.Get("orderId")),
		Page:          page,
	}

	if raw := strings.TrimSpace(query.Get("unassigned")); raw != "" {
		filter.Unassigned = raw == "true" || raw == "1"
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.ProcessingStatus(raw)
		switch status {
		case domain.ProcessingStatusReceived, domain.ProcessingStatusProcessed:
			filter.ProcessingStatus = status
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be received or processed", http.StatusBadRequest))
			return
		}
	}
	if raw := strings.TrimSpace(query.Get("createdAfter")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdAfter must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedAt.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("createdBefore")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdBefore must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedAt.To = &ts
	}

	result, err := h.orders.ListSubOrders(ctx, services.OrderListQuery{Filter: filter})
	if err != nil {
		writeSubOrderError(ctx, w, err)
		return
	}

	response := subOrderListResponse{
		Items:         result.Items,
		NextPageToken: result.NextToken,
	}
	if response.Items == nil {
		response.Items = []domain.SubOrder{}
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func (h *OrderHandlers) getSubOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	subOrderID := strings.TrimSpace(chi.URLParam(r, "subOrderID"))
	if subOrderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sub-order id is required", http.StatusBadRequest))
		return
	}

	subOrder, err := h.orders.GetSubOrder(ctx, subOrderID)
	if err != nil {
		writeSubOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, subOrderResponse{SubOrder: subOrder})
}

func (h *OrderHandlers) patchSubOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	subOrderID := strings.TrimSpace(chi.URLParam(r, "subOrderID"))
	if subOrderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sub-order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderPatchBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	var req patchSubOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	input := services.OrderUpdateInput{
		Notes:     req.Notes,
		EmailSent: req.EmailSent,
	}
	if req.ProcessingStatus != nil {
		status := domain.ProcessingStatus(strings.TrimSpace(*req.ProcessingStatus))
		input.ProcessingStatus = &status
	}
	if req.SupplierKey != nil {
		// An explicit empty supplier clears the assignment.
		trimmed := strings.TrimSpace(*req.SupplierKey)
		if trimmed == "" {
			input.ClearSupplier = true
		} else {
			key := domain.SupplierKey(trimmed)
			input.SupplierKey = &key
		}
	}

	subOrder, err := h.orders.UpdateSubOrder(ctx, subOrderID, input)
	if err != nil {
		writeSubOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, subOrderResponse{SubOrder: subOrder})
}

func (h *OrderHandlers) resyncOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	result, err := h.orders.ResyncOrder(ctx, orderID)
	if err != nil {
		writeSubOrderError(ctx, w, err)
		return
	}

	response := resyncResponse{
		OrderID:   result.OrderID,
		Attempted: result.Attempted,
		Synced:    result.Synced,
		SubOrders: result.SubOrders,
	}
	if response.SubOrders == nil {
		response.SubOrders = []services.SubOrderOutcome{}
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func writeSubOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, pagination.ErrInvalidPageToken):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSubOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("sub_order_not_found", "sub-order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUnknownSupplier):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_supplier", "supplier key is not in the configured registry", http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process sub-order request", http.StatusInternalServerError))
	}
}
