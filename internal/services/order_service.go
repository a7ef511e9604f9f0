package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

var (
	// ErrSubOrderNotFound indicates the requested sub-order does not exist.
	ErrSubOrderNotFound = errors.New("orders: sub-order not found")
	// ErrProductMappingNotFound indicates no supplier hint exists for the SKU.
	ErrProductMappingNotFound = errors.New("orders: product mapping not found")
	// ErrUnknownSupplier indicates the caller referenced a supplier key that
	// is not in the configured registry.
	ErrUnknownSupplier = errors.New("orders: unknown supplier")
	// ErrInvalidInput indicates the caller provided invalid data.
	ErrInvalidInput = errors.New("orders: invalid input")

	errOrderSubOrdersRequired = errors.New("orders: sub-order repository is required")
)

// OrderServiceDeps wires the collaborators of the review/edit API surface.
type OrderServiceDeps struct {
	SubOrders repositories.SubOrderRepository
	Mappings  repositories.ProductMappingRepository
	Resolver  *SupplierResolver
	Sheets    SheetWriter
	Limiter   *rate.Limiter
	Logger    *zap.Logger
	Clock     func() time.Time
}

type orderService struct {
	subOrders repositories.SubOrderRepository
	mappings  repositories.ProductMappingRepository
	resolver  *SupplierResolver
	syncer    *sheetSyncer
	logger    *zap.Logger
	now       func() time.Time
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs the service behind the review/edit REST surface.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.SubOrders == nil {
		return nil, errOrderSubOrdersRequired
	}
	if deps.Resolver == nil {
		deps.Resolver = NewSupplierResolver(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &orderService{
		subOrders: deps.SubOrders,
		mappings:  deps.Mappings,
		resolver:  deps.Resolver,
		syncer: &sheetSyncer{
			subOrders: deps.SubOrders,
			sheets:    deps.Sheets,
			limiter:   deps.Limiter,
			logger:    deps.Logger,
			now:       deps.Clock,
		},
		logger: deps.Logger,
		now:    deps.Clock,
	}, nil
}

func (s *orderService) ListSubOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[domain.SubOrder], error) {
	return s.subOrders.List(ctx, query.Filter)
}

func (s *orderService) GetSubOrder(ctx context.Context, subOrderID string) (domain.SubOrder, error) {
	subOrder, err := s.subOrders.GetBySubOrderID(ctx, subOrderID)
	if errors.Is(err, repositories.ErrSubOrderNotFound) {
		return domain.SubOrder{}, ErrSubOrderNotFound
	}
	return subOrder, err
}

// UpdateSubOrder applies review workflow mutations. Supplier changes are
// validated against the configured registry and carry the display name along.
func (s *orderService) UpdateSubOrder(ctx context.Context, subOrderID string, input OrderUpdateInput) (domain.SubOrder, error) {
	update := repositories.SubOrderUpdate{
		ProcessingStatus: input.ProcessingStatus,
		Notes:            input.Notes,
		EmailSent:        input.EmailSent,
		ClearSupplier:    input.ClearSupplier,
	}

	if input.ProcessingStatus != nil {
		switch *input.ProcessingStatus {
		case domain.ProcessingStatusReceived, domain.ProcessingStatusProcessed:
		default:
			return domain.SubOrder{}, ErrInvalidInput
		}
	}

	if input.SupplierKey != nil && !input.ClearSupplier {
		supplier, ok := s.resolver.ByKey(*input.SupplierKey)
		if !ok {
			return domain.SubOrder{}, ErrUnknownSupplier
		}
		update.SupplierKey = &supplier.Key
		name := supplier.DisplayName
		update.SupplierName = &name
	}

	subOrder, err := s.subOrders.Update(ctx, subOrderID, update)
	if errors.Is(err, repositories.ErrSubOrderNotFound) {
		return domain.SubOrder{}, ErrSubOrderNotFound
	}
	return subOrder, err
}

// ResyncOrder re-runs the spreadsheet sync for every sub-order of one inbound
// order that has a supplier but no recorded sync.
func (s *orderService) ResyncOrder(ctx context.Context, orderID string) (ResyncResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ResyncResult{}, ErrInvalidInput
	}

	subOrders, err := s.subOrders.ListByOriginOrder(ctx, orderID)
	if err != nil {
		return ResyncResult{}, err
	}
	if len(subOrders) == 0 {
		return ResyncResult{}, ErrSubOrderNotFound
	}

	result := ResyncResult{OrderID: orderID}
	for i, subOrder := range subOrders {
		outcome := SubOrderOutcome{
			SubOrderNumber:    subOrder.SubOrderNumber,
			DBID:              subOrder.ID,
			SKU:               subOrder.LineItem.SKU,
			MeasurementsCount: len(subOrder.Measurements),
			ShapeNumber:       i + 1,
			SheetsSynced:      subOrder.SheetsSynced,
		}
		if subOrder.SupplierKey != nil {
			key := string(*subOrder.SupplierKey)
			outcome.SupplierKey = &key
		}

		if !subOrder.SheetsSynced && subOrder.HasSupplier() {
			if supplier, ok := s.resolver.ByKey(*subOrder.SupplierKey); ok {
				result.Attempted++
				outcome.SheetsSynced = s.syncer.sync(ctx, supplier, subOrder)
			} else {
				s.logger.Warn("resync skipped: supplier missing from registry",
					zap.String("sub_order_number", subOrder.SubOrderNumber),
					zap.String("supplier_key", string(*subOrder.SupplierKey)),
				)
			}
		}
		if outcome.SheetsSynced {
			result.Synced++
		}
		result.SubOrders = append(result.SubOrders, outcome)
	}
	return result, nil
}

func (s *orderService) ListSuppliers(_ context.Context) []domain.Supplier {
	return s.resolver.Suppliers()
}

func (s *orderService) GetProductMapping(ctx context.Context, sku string) (domain.ProductMapping, error) {
	if s.mappings == nil {
		return domain.ProductMapping{}, ErrProductMappingNotFound
	}
	mapping, err := s.mappings.GetBySKU(ctx, sku)
	if errors.Is(err, repositories.ErrProductMappingNotFound) {
		return domain.ProductMapping{}, ErrProductMappingNotFound
	}
	return mapping, err
}

func (s *orderService) UpsertProductMapping(ctx context.Context, mapping domain.ProductMapping) (domain.ProductMapping, error) {
	if s.mappings == nil {
		return domain.ProductMapping{}, errors.New("orders: product mapping repository not configured")
	}
	if strings.TrimSpace(mapping.SKU) == "" {
		return domain.ProductMapping{}, ErrInvalidInput
	}
	if _, ok := s.resolver.ByKey(mapping.SupplierKey); !ok {
		return domain.ProductMapping{}, ErrUnknownSupplier
	}
	return s.mappings.Upsert(ctx, mapping)
}
