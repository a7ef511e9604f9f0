package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/jobs"
	"github.com/caravanmattress/orders-api/internal/platform/sheets"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

type stubSubOrderRepo struct {
	upsertFn       func(ctx context.Context, subOrder domain.SubOrder) (domain.SubOrder, error)
	getFn          func(ctx context.Context, subOrderID string) (domain.SubOrder, error)
	listByOriginFn func(ctx context.Context, originOrderID string) ([]domain.SubOrder, error)
	listFn         func(ctx context.Context, filter repositories.SubOrderFilter) (domain.CursorPage[domain.SubOrder], error)
	updateFn       func(ctx context.Context, subOrderID string, update repositories.SubOrderUpdate) (domain.SubOrder, error)
	markSyncedFn   func(ctx context.Context, subOrderID string, result repositories.SheetsSyncResult) error

	upserted []domain.SubOrder
	synced   []string
}

func (s *stubSubOrderRepo) Upsert(ctx context.Context, subOrder domain.SubOrder) (domain.SubOrder, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, subOrder)
	}
	s.upserted = append(s.upserted, subOrder)
	return subOrder, nil
}

func (s *stubSubOrderRepo) GetBySubOrderID(ctx context.Context, subOrderID string) (domain.SubOrder, error) {
	if s.getFn != nil {
		return s.getFn(ctx, subOrderID)
	}
	return domain.SubOrder{}, repositories.ErrSubOrderNotFound
}

func (s *stubSubOrderRepo) ListByOriginOrder(ctx context.Context, originOrderID string) ([]domain.SubOrder, error) {
	if s.listByOriginFn != nil {
		return s.listByOriginFn(ctx, originOrderID)
	}
	return nil, nil
}

func (s *stubSubOrderRepo) List(ctx context.Context, filter repositories.SubOrderFilter) (domain.CursorPage[domain.SubOrder], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.SubOrder]{}, nil
}

func (s *stubSubOrderRepo) Update(ctx context.Context, subOrderID string, update repositories.SubOrderUpdate) (domain.SubOrder, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, subOrderID, update)
	}
	return domain.SubOrder{}, repositories.ErrSubOrderNotFound
}

func (s *stubSubOrderRepo) MarkSheetsSynced(ctx context.Context, subOrderID string, result repositories.SheetsSyncResult) error {
	if s.markSyncedFn != nil {
		return s.markSyncedFn(ctx, subOrderID, result)
	}
	s.synced = append(s.synced, subOrderID)
	return nil
}

type stubMappingRepo struct {
	getBySKUFn func(ctx context.Context, sku string) (domain.ProductMapping, error)
	upsertFn   func(ctx context.Context, mapping domain.ProductMapping) (domain.ProductMapping, error)
}

func (s *stubMappingRepo) GetBySKU(ctx context.Context, sku string) (domain.ProductMapping, error) {
	if s.getBySKUFn != nil {
		return s.getBySKUFn(ctx, sku)
	}
	return domain.ProductMapping{}, repositories.ErrProductMappingNotFound
}

func (s *stubMappingRepo) Upsert(ctx context.Context, mapping domain.ProductMapping) (domain.ProductMapping, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, mapping)
	}
	return mapping, nil
}

func (s *stubMappingRepo) List(context.Context) ([]domain.ProductMapping, error) {
	return nil, nil
}

type stubSheetWriter struct {
	enabled  bool
	appendFn func(ctx context.Context, spreadsheetID string, row sheets.Row) (string, error)
	appended []sheets.Row
}

func (s *stubSheetWriter) Enabled() bool { return s.enabled }

func (s *stubSheetWriter) AppendRow(ctx context.Context, spreadsheetID string, row sheets.Row) (string, error) {
	s.appended = append(s.appended, row)
	if s.appendFn != nil {
		return s.appendFn(ctx, spreadsheetID, row)
	}
	return fmt.Sprintf("Orders!A%d:G%d", len(s.appended)+4, len(s.appended)+4), nil
}

type stubPublisher struct {
	events []jobs.OrderEvent
	err    error
}

func (s *stubPublisher) PublishOrderEvent(_ context.Context, event jobs.OrderEvent) (string, error) {
	s.events = append(s.events, event)
	return "msg-1", s.err
}

func newTestIngestion(t *testing.T, deps IngestionServiceDeps) IngestionService {
	t.Helper()
	if deps.Resolver == nil {
		deps.Resolver = NewSupplierResolver(testSuppliers())
	}
	if deps.Clock == nil {
		at := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
		deps.Clock = func() time.Time { return at }
	}
	if deps.NewID == nil {
		counter := 0
		deps.NewID = func() string {
			counter++
			return fmt.Sprintf("row-%d", counter)
		}
	}
	service, err := NewIngestionService(deps)
	if err != nil {
		t.Fatalf("NewIngestionService: %v", err)
	}
	return service
}

func webhookBody(t *testing.T, order domain.InboundOrder) []byte {
	t.Helper()
	body, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func twoItemOrder() domain.InboundOrder {
	return domain.InboundOrder{
		ID:   5551001,
		Name: "#1001",
		BillingAddress: &domain.InboundAddress{
			Name:     "Jo Bloggs",
			Address1: "1 Harbour Way",
			City:     "Poole",
			Zip:      "BH15 1AA",
			Country:  "United Kingdom",
			Phone:    "01202 000000",
		},
		Email: "jo@example.com",
		Note:  "call before delivery",
		LineItems: []domain.InboundLineItem{
			{
				SKU:      "NOVOD272",
				Title:    "Novo Deluxe",
				Quantity: 1,
				Properties: []domain.InboundItemProperty{
					prop("Enter Dimension A (cm)", "100"),
					prop("Enter Dimension B (cm)", "90"),
				},
			},
			{
				SKU:      "PLAINFOAM",
				Title:    "Plain Foam Cushion",
				Quantity: 2,
			},
		},
	}
}

func TestProcessOrderTwoItemScenario(t *testing.T) {
	repo := &stubSubOrderRepo{}
	writer := &stubSheetWriter{enabled: true}
	publisher := &stubPublisher{}

	service := newTestIngestion(t, IngestionServiceDeps{
		SubOrders: repo,
		Mappings:  &stubMappingRepo{},
		Sheets:    writer,
		Publisher: publisher,
	})

	result, err := service.ProcessOrder(context.Background(), caravanStore(), webhookBody(t, twoItemOrder()))
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}

	if result.OrderNumber != "#CARA1001" {
		t.Fatalf("order number %q", result.OrderNumber)
	}
	if result.SubOrdersCreated != 2 || len(result.SubOrders) != 2 {
		t.Fatalf("sub-orders created %d (%d outcomes), want 2", result.SubOrdersCreated, len(result.SubOrders))
	}
	if result.SubOrders[0].SubOrderNumber != "#CARA1001-1" || result.SubOrders[1].SubOrderNumber != "#CARA1001-2" {
		t.Fatalf("sub-order numbers %q %q", result.SubOrders[0].SubOrderNumber, result.SubOrders[1].SubOrderNumber)
	}
	if result.SupplierAssigned == nil || *result.SupplierAssigned != "southern" {
		t.Fatalf("supplier assigned %v, want southern", result.SupplierAssigned)
	}
	if len(result.UnmappedProducts) != 1 || result.UnmappedProducts[0] != "PLAINFOAM" {
		t.Fatalf("unmapped %v, want [PLAINFOAM]", result.UnmappedProducts)
	}
	if result.SheetsUpdated != 1 || !result.SubOrders[0].SheetsSynced || result.SubOrders[1].SheetsSynced {
		t.Fatalf("sheet sync outcomes %+v", result.SubOrders)
	}
	if result.SubOrders[0].MeasurementsCount != 2 {
		t.Fatalf("measurements count %d, want 2", result.SubOrders[0].MeasurementsCount)
	}

	if len(repo.upserted) != 2 {
		t.Fatalf("persisted %d sub-orders, want 2", len(repo.upserted))
	}
	first := repo.upserted[0]
	if first.SubOrderID != "5551001-1" || first.OriginOrderID != "5551001" {
		t.Fatalf("identifiers %q %q", first.SubOrderID, first.OriginOrderID)
	}
	if first.SupplierName == nil || *first.SupplierName != "Southern" {
		t.Fatalf("supplier name %v", first.SupplierName)
	}
	if len(first.LineItem.Properties) != 2 || repo.upserted[1].LineItem.SKU != "PLAINFOAM" {
		t.Fatal("each sub-order must carry only its own line item")
	}
	second := repo.upserted[1]
	if second.SupplierKey != nil {
		t.Fatalf("second sub-order supplier %v, want none", *second.SupplierKey)
	}

	if len(repo.synced) != 1 || repo.synced[0] != "5551001-1" {
		t.Fatalf("sheet sync recorded for %v", repo.synced)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Type != jobs.EventOrderReceived || event.SubOrderCount != 2 || event.SuppliersFound != 1 {
		t.Fatalf("event %+v", event)
	}
}

func TestProcessOrderSingleItemKeepsIdentifiers(t *testing.T) {
	repo := &stubSubOrderRepo{}
	service := newTestIngestion(t, IngestionServiceDeps{SubOrders: repo})

	order := twoItemOrder()
	order.LineItems = order.LineItems[:1]

	result, err := service.ProcessOrder(context.Background(), caravanStore(), webhookBody(t, order))
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if result.SubOrders[0].SubOrderNumber != "#CARA1001" {
		t.Fatalf("sub-order number %q, want no suffix for single item", result.SubOrders[0].SubOrderNumber)
	}
	if repo.upserted[0].SubOrderID != "5551001" {
		t.Fatalf("sub-order id %q, want original id", repo.upserted[0].SubOrderID)
	}
}

func TestProcessOrderSheetFailureIsolated(t *testing.T) {
	repo := &stubSubOrderRepo{}
	calls := 0
	writer := &stubSheetWriter{
		enabled: true,
		appendFn: func(context.Context, string, sheets.Row) (string, error) {
			calls++
			if calls == 2 {
				return "", errors.New("quota exceeded")
			}
			return "Orders!A5:G5", nil
		},
	}
	service := newTestIngestion(t, IngestionServiceDeps{SubOrders: repo, Sheets: writer})

	order := twoItemOrder()
	order.LineItems = []domain.InboundLineItem{
		{SKU: "NOVOD111", Title: "Novo One"},
		{SKU: "NOVOD222", Title: "Novo Two"},
		{SKU: "NOVOD333", Title: "Novo Three"},
	}

	result, err := service.ProcessOrder(context.Background(), caravanStore(), webhookBody(t, order))
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if result.SubOrdersCreated != 3 || len(repo.upserted) != 3 {
		t.Fatalf("persisted %d, want all 3 despite sync failure", len(repo.upserted))
	}
	if result.SheetsUpdated != 2 {
		t.Fatalf("sheets updated %d, want 2", result.SheetsUpdated)
	}
	if result.SubOrders[1].SheetsSynced || !result.SubOrders[0].SheetsSynced || !result.SubOrders[2].SheetsSynced {
		t.Fatalf("sync outcomes %+v", result.SubOrders)
	}
}

func TestProcessOrderPersistFailureDoesNotAbortLoop(t *testing.T) {
	repo := &stubSubOrderRepo{}
	repo.upsertFn = func(_ context.Context, subOrder domain.SubOrder) (domain.SubOrder, error) {
		if subOrder.LineItem.SKU == "NOVOD272" {
			return domain.SubOrder{}, errors.New("connection reset")
		}
		repo.upserted = append(repo.upserted, subOrder)
		return subOrder, nil
	}
	service := newTestIngestion(t, IngestionServiceDeps{SubOrders: repo})

	result, err := service.ProcessOrder(context.Background(), caravanStore(), webhookBody(t, twoItemOrder()))
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if result.SubOrdersCreated != 1 {
		t.Fatalf("created %d, want 1", result.SubOrdersCreated)
	}
	if result.SubOrders[0].Error == "" {
		t.Fatal("first outcome must record the persistence error")
	}
	if len(repo.upserted) != 1 || repo.upserted[0].LineItem.SKU != "PLAINFOAM" {
		t.Fatal("second item must still be persisted")
	}
}

func TestProcessOrderMappingHintOverridesKeywords(t *testing.T) {
	repo := &stubSubOrderRepo{}
	mappings := &stubMappingRepo{
		getBySKUFn: func(_ context.Context, sku string) (domain.ProductMapping, error) {
			if sku == "PLAINFOAM" {
				return domain.ProductMapping{SKU: sku, SupplierKey: "breasley"}, nil
			}
			return domain.ProductMapping{}, repositories.ErrProductMappingNotFound
		},
	}
	service := newTestIngestion(t, IngestionServiceDeps{SubOrders: repo, Mappings: mappings})

	order := twoItemOrder()
	order.LineItems = order.LineItems[1:]

	result, err := service.ProcessOrder(context.Background(), caravanStore(), webhookBody(t, order))
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if result.SupplierAssigned == nil || *result.SupplierAssigned != "breasley" {
		t.Fatalf("supplier %v, want mapping hint to win", result.SupplierAssigned)
	}
	if len(result.UnmappedProducts) != 0 {
		t.Fatalf("unmapped %v, want none", result.UnmappedProducts)
	}
}

func TestProcessOrderRedeliveryKeysStable(t *testing.T) {
	repo := &stubSubOrderRepo{}
	service := newTestIngestion(t, IngestionServiceDeps{SubOrders: repo})

	body := webhookBody(t, twoItemOrder())
	for delivery := 1; delivery <= 2; delivery++ {
		result, err := service.ProcessOrder(context.Background(), caravanStore(), body)
		if err != nil {
			t.Fatalf("delivery %d: %v", delivery, err)
		}
		if result.SubOrdersCreated != 2 {
			t.Fatalf("delivery %d created %d sub-orders, want 2", delivery, result.SubOrdersCreated)
		}
	}

	if len(repo.upserted) != 4 {
		t.Fatalf("upserted %d rows, want 2 per delivery", len(repo.upserted))
	}
	for i := 0; i < 2; i++ {
		first, replay := repo.upserted[i], repo.upserted[i+2]
		if first.SubOrderID != replay.SubOrderID {
			t.Fatalf("item %d keyed %q then %q, redelivery must reuse the key", i, first.SubOrderID, replay.SubOrderID)
		}
		if first.SubOrderNumber != replay.SubOrderNumber {
			t.Fatalf("item %d numbered %q then %q", i, first.SubOrderNumber, replay.SubOrderNumber)
		}
	}
	if repo.upserted[0].SubOrderID != "5551001-1" || repo.upserted[1].SubOrderID != "5551001-2" {
		t.Fatalf("keys %q %q", repo.upserted[0].SubOrderID, repo.upserted[1].SubOrderID)
	}
	if repo.upserted[0].SubOrderNumber != "#CARA1001-1" || repo.upserted[1].SubOrderNumber != "#CARA1001-2" {
		t.Fatalf("numbers %q %q", repo.upserted[0].SubOrderNumber, repo.upserted[1].SubOrderNumber)
	}
}

func TestProcessOrderMalformedPayload(t *testing.T) {
	service := newTestIngestion(t, IngestionServiceDeps{SubOrders: &stubSubOrderRepo{}})

	_, err := service.ProcessOrder(context.Background(), caravanStore(), []byte("{not json"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}
