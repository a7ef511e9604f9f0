package services

import (
	"context"
	"time"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/jobs"
	"github.com/caravanmattress/orders-api/internal/platform/sheets"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

// NormalizedOrder is the canonical order shape derived once per webhook,
// independent of which origin field variant carried each value.
type NormalizedOrder struct {
	OrderID       string
	OrderNumber   string
	Customer      domain.Customer
	Note          string
	MattressLabel *domain.MattressLabel
	LineItems     []domain.InboundLineItem
}

// Extraction bundles the typed results parsed from one line item's free-form
// properties.
type Extraction struct {
	Measurements         []domain.DimensionMeasurement
	Status               domain.MeasurementStatus
	ManufacturingOptions domain.ManufacturingOptions
}

// SubOrderOutcome reports the per-line-item result of webhook ingestion.
type SubOrderOutcome struct {
	SubOrderNumber    string  `json:"subOrderNumber"`
	DBID              string  `json:"dbId,omitempty"`
	SKU               string  `json:"sku"`
	MeasurementsCount int     `json:"measurementsCount"`
	ShapeNumber       int     `json:"shapeNumber"`
	SupplierKey       *string `json:"supplierKey,omitempty"`
	SheetsSynced      bool    `json:"sheetsSynced"`
	Error             string  `json:"error,omitempty"`
}

// IngestionResult summarises one processed webhook delivery.
type IngestionResult struct {
	OrderID          string
	OrderNumber      string
	StoreDomain      string
	ProductsTotal    int
	SubOrdersCreated int
	SupplierAssigned *string
	SheetsUpdated    int
	SubOrders        []SubOrderOutcome
	UnmappedProducts []string
	ProcessedAt      time.Time
}

// AllSheetsSynced reports whether every persisted sub-order with a supplier
// assigned reached its sheet, and at least one did. Sub-orders without a
// supplier have no sheet to reach and do not count against the result.
func (r IngestionResult) AllSheetsSynced() bool {
	if r.SheetsUpdated == 0 {
		return false
	}
	for _, outcome := range r.SubOrders {
		if outcome.SupplierKey != nil && outcome.Error == "" && !outcome.SheetsSynced {
			return false
		}
	}
	return true
}

// IngestionService turns one verified webhook delivery into persisted
// sub-orders with best-effort spreadsheet sync.
type IngestionService interface {
	ProcessOrder(ctx context.Context, store domain.Store, rawBody []byte) (IngestionResult, error)
}

// OrderListQuery narrows the review UI's sub-order listing.
type OrderListQuery struct {
	Filter repositories.SubOrderFilter
}

// OrderUpdateInput carries the review workflow mutations accepted over the API.
type OrderUpdateInput struct {
	ProcessingStatus *domain.ProcessingStatus
	Notes            *string
	SupplierKey      *domain.SupplierKey
	ClearSupplier    bool
	EmailSent        *bool
}

// ResyncResult reports a manual re-run of the spreadsheet sync for one
// inbound order's sub-orders.
type ResyncResult struct {
	OrderID   string
	Attempted int
	Synced    int
	SubOrders []SubOrderOutcome
}

// OrderService backs the review/edit REST surface.
type OrderService interface {
	ListSubOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[domain.SubOrder], error)
	GetSubOrder(ctx context.Context, subOrderID string) (domain.SubOrder, error)
	UpdateSubOrder(ctx context.Context, subOrderID string, input OrderUpdateInput) (domain.SubOrder, error)
	ResyncOrder(ctx context.Context, orderID string) (ResyncResult, error)
	ListSuppliers(ctx context.Context) []domain.Supplier
	GetProductMapping(ctx context.Context, sku string) (domain.ProductMapping, error)
	UpsertProductMapping(ctx context.Context, mapping domain.ProductMapping) (domain.ProductMapping, error)
}

// SheetWriter is the spreadsheet seam the ingestion pipeline writes through.
type SheetWriter interface {
	Enabled() bool
	AppendRow(ctx context.Context, spreadsheetID string, row sheets.Row) (string, error)
}

// OrderEventPublisher emits order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event jobs.OrderEvent) (string, error)
}

// PayloadArchiver stores raw webhook bodies for replay and audit.
type PayloadArchiver interface {
	Enabled() bool
	StorePayload(ctx context.Context, storeDomain, orderID string, payload []byte) (string, error)
}
