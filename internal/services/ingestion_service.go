package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/jobs"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

// ErrMalformedPayload indicates the webhook body could not be parsed. This is
// the only request-fatal failure past authentication.
var ErrMalformedPayload = errors.New("ingestion: malformed payload")

var errIngestionSubOrdersRequired = errors.New("ingestion: sub-order repository is required")

// IngestionServiceDeps wires the collaborators of the ingestion pipeline.
// Sheets, Publisher, Archiver, and Limiter are optional; absent dependencies
// disable the corresponding best-effort side effect.
type IngestionServiceDeps struct {
	SubOrders  repositories.SubOrderRepository
	Mappings   repositories.ProductMappingRepository
	Resolver   *SupplierResolver
	Normalizer *Normalizer
	Extractor  *Extractor
	Sheets     SheetWriter
	Publisher  OrderEventPublisher
	Archiver   PayloadArchiver
	Limiter    *rate.Limiter
	Logger     *zap.Logger
	Clock      func() time.Time
	NewID      func() string
}

type ingestionService struct {
	subOrders  repositories.SubOrderRepository
	mappings   repositories.ProductMappingRepository
	resolver   *SupplierResolver
	normalizer *Normalizer
	extractor  *Extractor
	syncer     *sheetSyncer
	publisher  OrderEventPublisher
	archiver   PayloadArchiver
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

var _ IngestionService = (*ingestionService)(nil)

// NewIngestionService constructs the webhook ingestion pipeline.
func NewIngestionService(deps IngestionServiceDeps) (IngestionService, error) {
	if deps.SubOrders == nil {
		return nil, errIngestionSubOrdersRequired
	}
	if deps.Resolver == nil {
		deps.Resolver = NewSupplierResolver(nil)
	}
	if deps.Normalizer == nil {
		deps.Normalizer = NewNormalizer()
	}
	if deps.Extractor == nil {
		deps.Extractor = NewExtractor()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return ulid.Make().String() }
	}

	return &ingestionService{
		subOrders:  deps.SubOrders,
		mappings:   deps.Mappings,
		resolver:   deps.Resolver,
		normalizer: deps.Normalizer,
		extractor:  deps.Extractor,
		syncer: &sheetSyncer{
			subOrders: deps.SubOrders,
			sheets:    deps.Sheets,
			limiter:   deps.Limiter,
			logger:    deps.Logger,
			now:       deps.Clock,
		},
		publisher: deps.Publisher,
		archiver:  deps.Archiver,
		logger:    deps.Logger,
		now:       deps.Clock,
		newID:     deps.NewID,
	}, nil
}

// ProcessOrder splits one verified webhook delivery into a sub-order per line
// item. Items are processed sequentially: each item's persistence completes
// before the next item begins, and sheet sync attempts are paced through the
// rate limiter. Per-item failures are surfaced as data, never as an error.
func (s *ingestionService) ProcessOrder(ctx context.Context, store domain.Store, rawBody []byte) (IngestionResult, error) {
	var inbound domain.InboundOrder
	if err := json.Unmarshal(rawBody, &inbound); err != nil {
		return IngestionResult{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	normalized := s.normalizer.Normalize(inbound, store)
	logger := s.logger.With(
		zap.String("order_id", normalized.OrderID),
		zap.String("order_number", normalized.OrderNumber),
		zap.String("store_domain", store.Domain),
	)

	s.archivePayload(ctx, logger, store, normalized.OrderID, rawBody)

	result := IngestionResult{
		OrderID:       normalized.OrderID,
		OrderNumber:   normalized.OrderNumber,
		StoreDomain:   store.Domain,
		ProductsTotal: len(normalized.LineItems),
		ProcessedAt:   s.now().UTC(),
	}

	total := len(normalized.LineItems)
	for i, item := range normalized.LineItems {
		outcome := s.processLineItem(ctx, logger, store, normalized, item, i, total)
		result.SubOrders = append(result.SubOrders, outcome)

		if outcome.Error == "" {
			result.SubOrdersCreated++
		}
		if outcome.SheetsSynced {
			result.SheetsUpdated++
		}
		if outcome.SupplierKey != nil && result.SupplierAssigned == nil {
			result.SupplierAssigned = outcome.SupplierKey
		}
		if outcome.SupplierKey == nil && item.SKU != "" {
			result.UnmappedProducts = append(result.UnmappedProducts, item.SKU)
		}
	}

	s.publishReceived(ctx, logger, store, result)

	return result, nil
}

func (s *ingestionService) processLineItem(
	ctx context.Context,
	logger *zap.Logger,
	store domain.Store,
	normalized NormalizedOrder,
	item domain.InboundLineItem,
	index, total int,
) SubOrderOutcome {
	extraction := s.extractor.Extract(item)

	outcome := SubOrderOutcome{
		SubOrderNumber:    deriveSubIdentifier(normalized.OrderNumber, index, total),
		SKU:               item.SKU,
		MeasurementsCount: len(extraction.Measurements),
		ShapeNumber:       index + 1,
	}

	supplier, hasSupplier := s.resolveSupplier(ctx, logger, item)
	if hasSupplier {
		key := string(supplier.Key)
		outcome.SupplierKey = &key
	}

	subOrder := domain.SubOrder{
		ID:             s.newID(),
		OriginOrderID:  normalized.OrderID,
		SubOrderID:     deriveSubIdentifier(normalized.OrderID, index, total),
		SubOrderNumber: outcome.SubOrderNumber,
		StoreDomain:    store.Domain,
		Customer:       normalized.Customer,
		LineItem: domain.LineItem{
			SKU:          item.SKU,
			Title:        item.Title,
			VariantTitle: item.VariantTitle,
			Quantity:     item.Quantity,
			Price:        item.Price,
			Properties:   inboundProperties(item.Properties),
		},
		Measurements:         extraction.Measurements,
		MeasurementStatus:    extraction.Status,
		ManufacturingOptions: extraction.ManufacturingOptions,
		Notes:                normalized.Note,
		MattressLabel:        normalized.MattressLabel,
		ProcessingStatus:     domain.ProcessingStatusReceived,
	}
	if hasSupplier {
		subOrder.SupplierKey = &supplier.Key
		name := supplier.DisplayName
		subOrder.SupplierName = &name
	}

	persisted, err := s.subOrders.Upsert(ctx, subOrder)
	if err != nil {
		logger.Error("persist sub-order failed",
			zap.String("sub_order_number", subOrder.SubOrderNumber),
			zap.Error(err),
		)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.DBID = persisted.ID

	if hasSupplier {
		outcome.SheetsSynced = s.syncer.sync(ctx, supplier, persisted)
	}
	return outcome
}

func (s *ingestionService) resolveSupplier(ctx context.Context, logger *zap.Logger, item domain.InboundLineItem) (domain.Supplier, bool) {
	if s.mappings != nil && strings.TrimSpace(item.SKU) != "" {
		mapping, err := s.mappings.GetBySKU(ctx, item.SKU)
		switch {
		case err == nil:
			if supplier, ok := s.resolver.ByKey(mapping.SupplierKey); ok {
				return supplier, true
			}
			logger.Warn("product mapping names unknown supplier",
				zap.String("sku", item.SKU),
				zap.String("supplier_key", string(mapping.SupplierKey)),
			)
		case errors.Is(err, repositories.ErrProductMappingNotFound):
			// fall through to keyword matching
		default:
			logger.Warn("product mapping lookup failed", zap.String("sku", item.SKU), zap.Error(err))
		}
	}
	return s.resolver.ResolveSKU(item.SKU)
}

func (s *ingestionService) archivePayload(ctx context.Context, logger *zap.Logger, store domain.Store, orderID string, rawBody []byte) {
	if s.archiver == nil || !s.archiver.Enabled() {
		return
	}
	if _, err := s.archiver.StorePayload(ctx, store.Domain, orderID, rawBody); err != nil {
		logger.Warn("archive raw payload failed", zap.Error(err))
	}
}

func (s *ingestionService) publishReceived(ctx context.Context, logger *zap.Logger, store domain.Store, result IngestionResult) {
	if s.publisher == nil {
		return
	}

	event := jobs.OrderEvent{
		Type:          jobs.EventOrderReceived,
		OrderID:       result.OrderID,
		OrderNumber:   result.OrderNumber,
		StoreDomain:   store.Domain,
		SubOrderCount: result.SubOrdersCreated,
		OccurredAt:    result.ProcessedAt,
	}
	for _, outcome := range result.SubOrders {
		if outcome.Error == "" {
			event.SubOrderIDs = append(event.SubOrderIDs, outcome.DBID)
		}
		if outcome.SupplierKey != nil {
			event.SuppliersFound++
		}
	}

	if _, err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		logger.Warn("publish order event failed", zap.Error(err))
	}
}

// deriveSubIdentifier suffixes the base identifier with the 1-based item
// index when the order splits into more than one sub-order.
func deriveSubIdentifier(base string, index, total int) string {
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, index+1)
}

func inboundProperties(props []domain.InboundItemProperty) []domain.LineItemProperty {
	if len(props) == 0 {
		return nil
	}
	out := make([]domain.LineItemProperty, 0, len(props))
	for _, prop := range props {
		out = append(out, domain.LineItemProperty{Name: prop.Name, Value: prop.ValueString()})
	}
	return out
}

func contactLine(customer domain.Customer) string {
	addr := customer.ShippingAddress
	if addr == nil {
		addr = customer.BillingAddress
	}
	if addr == nil {
		return ""
	}
	parts := make([]string, 0, 6)
	for _, part := range []string{addr.Line1, addr.Line2, addr.City, addr.Province, addr.Zip, addr.Country} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}
	return strings.Join(parts, ", ")
}

// buildSheetNote compiles the free-text cell a supplier reads from: product,
// variant, SKU, a measurement summary, and the customer's note.
func buildSheetNote(subOrder domain.SubOrder) string {
	var parts []string
	if subOrder.LineItem.Title != "" {
		parts = append(parts, subOrder.LineItem.Title)
	}
	if subOrder.LineItem.VariantTitle != "" {
		parts = append(parts, subOrder.LineItem.VariantTitle)
	}
	if subOrder.LineItem.SKU != "" {
		parts = append(parts, "SKU: "+subOrder.LineItem.SKU)
	}
	if len(subOrder.Measurements) > 0 {
		var dims []string
		for _, m := range subOrder.Measurements {
			dims = append(dims, fmt.Sprintf("%s: %s%s", m.Letter, m.Value, m.Unit))
		}
		parts = append(parts, strings.Join(dims, ", "))
	}
	if subOrder.ManufacturingOptions.LinkAttachment != nil {
		parts = append(parts, string(*subOrder.ManufacturingOptions.LinkAttachment))
	}
	if subOrder.ManufacturingOptions.DeliveryOption != "" {
		parts = append(parts, subOrder.ManufacturingOptions.DeliveryOption)
	}
	if subOrder.Notes != "" {
		parts = append(parts, "Note: "+subOrder.Notes)
	}
	return strings.Join(parts, " / ")
}
