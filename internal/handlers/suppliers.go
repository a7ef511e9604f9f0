package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/httpx"
	"github.com/caravanmattress/orders-api/internal/services"
)

const maxMappingBodySize = 8 * 1024

// SupplyHandlers exposes the supplier registry and per-SKU mapping endpoints.
type SupplyHandlers struct {
	orders services.OrderService
}

// NewSupplyHandlers constructs a new SupplyHandlers instance.
func NewSupplyHandlers(orders services.OrderService) *SupplyHandlers {
	return &SupplyHandlers{orders: orders}
}

// Routes registers the supplier and product-mapping endpoints.
func (h *SupplyHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/suppliers", h.listSuppliers)
	r.Get("/product-mappings/{sku}", h.getProductMapping)
	r.Put("/product-mappings/{sku}", h.putProductMapping)
}

type supplierPayload struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"displayName"`
	SKUKeywords []string `json:"skuKeywords"`
	SheetLinked bool     `json:"sheetLinked"`
}

type supplierListResponse struct {
	Suppliers []supplierPayload `json:"suppliers"`
}

type productMappingPayload struct {
	SKU          string `json:"sku"`
	SupplierKey  string `json:"supplierKey"`
	ProductTitle string `json:"productTitle,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

type putMappingRequest struct {
	SupplierKey  string `json:"supplierKey"`
	ProductTitle string `json:"productTitle"`
}

func (h *SupplyHandlers) listSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	suppliers := h.orders.ListSuppliers(ctx)
	payload := make([]supplierPayload, 0, len(suppliers))
	for _, supplier := range suppliers {
		payload = append(payload, supplierPayload{
			Key:         string(supplier.Key),
			DisplayName: supplier.DisplayName,
			SKUKeywords: supplier.SKUKeywords,
			// Sheet identifiers stay server-side; clients only learn whether
			// sync is possible for this supplier.
			SheetLinked: strings.TrimSpace(supplier.SheetID) != "",
		})
	}
	writeJSONResponse(w, http.StatusOK, supplierListResponse{Suppliers: payload})
}

func (h *SupplyHandlers) getProductMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sku is required", http.StatusBadRequest))
		return
	}

	mapping, err := h.orders.GetProductMapping(ctx, sku)
	if err != nil {
		if errors.Is(err, services.ErrProductMappingNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("mapping_not_found", "no supplier mapping for this sku", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("mapping_error", "failed to load product mapping", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildMappingPayload(mapping))
}

func (h *SupplyHandlers) putProductMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	if sku == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sku is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxMappingBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	var req putMappingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	mapping, err := h.orders.UpsertProductMapping(ctx, domain.ProductMapping{
		SKU:          sku,
		SupplierKey:  domain.SupplierKey(strings.TrimSpace(req.SupplierKey)),
		ProductTitle: strings.TrimSpace(req.ProductTitle),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownSupplier):
			httpx.WriteError(ctx, w, httpx.NewError("unknown_supplier", "supplier key is not in the configured registry", http.StatusUnprocessableEntity))
		case errors.Is(err, services.ErrInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("mapping_error", "failed to store product mapping", http.StatusInternalServerError))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, buildMappingPayload(mapping))
}

func buildMappingPayload(mapping domain.ProductMapping) productMappingPayload {
	return productMappingPayload{
		SKU:          mapping.SKU,
		SupplierKey:  string(mapping.SupplierKey),
		ProductTitle: mapping.ProductTitle,
		UpdatedAt:    formatTime(mapping.UpdatedAt),
	}
}
