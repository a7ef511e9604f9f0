package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/pagination"
)

var (
	// ErrSubOrderNotFound indicates the requested sub-order does not exist.
	ErrSubOrderNotFound = errors.New("repositories: sub-order not found")
	// ErrProductMappingNotFound indicates no supplier hint exists for the SKU.
	ErrProductMappingNotFound = errors.New("repositories: product mapping not found")
)

// SubOrderFilter narrows List queries. Zero values mean "any".
type SubOrderFilter struct {
	StoreDomain      string
	SupplierKey      domain.SupplierKey
	Unassigned       bool
	ProcessingStatus domain.ProcessingStatus
	OriginOrderID    string
	CreatedAt        domain.RangeQuery[time.Time]
	Page             pagination.Params
}

// SubOrderUpdate carries the mutable fields the review workflow may change.
// Nil pointers leave the stored value untouched.
type SubOrderUpdate struct {
	ProcessingStatus *domain.ProcessingStatus
	Notes            *string
	SupplierKey      *domain.SupplierKey
	SupplierName     *string
	ClearSupplier    bool
	EmailSent        *bool
}

// IsZero reports whether the update would change nothing.
func (u SubOrderUpdate) IsZero() bool {
	return u.ProcessingStatus == nil && u.Notes == nil && u.SupplierKey == nil &&
		u.SupplierName == nil && !u.ClearSupplier && u.EmailSent == nil
}

// SheetsSyncResult records the outcome of mirroring a sub-order to its
// supplier spreadsheet.
type SheetsSyncResult struct {
	Synced   bool
	SyncedAt time.Time
	Range    string
}

// SubOrderRepository persists the per-line-item records produced by ingestion.
type SubOrderRepository interface {
	// Upsert inserts the sub-order or, when the same sub-order ID arrives
	// again, refreshes the order snapshot while preserving workflow state.
	Upsert(ctx context.Context, subOrder domain.SubOrder) (domain.SubOrder, error)
	GetBySubOrderID(ctx context.Context, subOrderID string) (domain.SubOrder, error)
	ListByOriginOrder(ctx context.Context, originOrderID string) ([]domain.SubOrder, error)
	List(ctx context.Context, filter SubOrderFilter) (domain.CursorPage[domain.SubOrder], error)
	Update(ctx context.Context, subOrderID string, update SubOrderUpdate) (domain.SubOrder, error)
	MarkSheetsSynced(ctx context.Context, subOrderID string, result SheetsSyncResult) error
}

// ProductMappingRepository stores per-SKU supplier hints.
type ProductMappingRepository interface {
	GetBySKU(ctx context.Context, sku string) (domain.ProductMapping, error)
	Upsert(ctx context.Context, mapping domain.ProductMapping) (domain.ProductMapping, error)
	List(ctx context.Context) ([]domain.ProductMapping, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
