package services

import (
	"context"
	"errors"
	"testing"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Resolver == nil {
		deps.Resolver = NewSupplierResolver(testSuppliers())
	}
	service, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return service
}

func TestUpdateSubOrderValidatesSupplier(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{SubOrders: &stubSubOrderRepo{}})

	unknown := domain.SupplierKey("nobody")
	_, err := service.UpdateSubOrder(context.Background(), "5551001-1", OrderUpdateInput{SupplierKey: &unknown})
	if !errors.Is(err, ErrUnknownSupplier) {
		t.Fatalf("expected ErrUnknownSupplier, got %v", err)
	}
}

func TestUpdateSubOrderCarriesSupplierName(t *testing.T) {
	var captured repositories.SubOrderUpdate
	repo := &stubSubOrderRepo{
		updateFn: func(_ context.Context, _ string, update repositories.SubOrderUpdate) (domain.SubOrder, error) {
			captured = update
			return domain.SubOrder{SubOrderID: "5551001-1"}, nil
		},
	}
	service := newTestOrderService(t, OrderServiceDeps{SubOrders: repo})

	key := domain.SupplierKey("southern")
	if _, err := service.UpdateSubOrder(context.Background(), "5551001-1", OrderUpdateInput{SupplierKey: &key}); err != nil {
		t.Fatalf("UpdateSubOrder: %v", err)
	}
	if captured.SupplierKey == nil || *captured.SupplierKey != "southern" {
		t.Fatalf("supplier key %v", captured.SupplierKey)
	}
	if captured.SupplierName == nil || *captured.SupplierName != "Southern" {
		t.Fatalf("supplier name %v, want display name carried along", captured.SupplierName)
	}
}

func TestUpdateSubOrderRejectsBadStatus(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{SubOrders: &stubSubOrderRepo{}})

	bad := domain.ProcessingStatus("shipped")
	_, err := service.UpdateSubOrder(context.Background(), "5551001-1", OrderUpdateInput{ProcessingStatus: &bad})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateSubOrderNotFound(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{SubOrders: &stubSubOrderRepo{}})

	note := "checked"
	_, err := service.UpdateSubOrder(context.Background(), "missing", OrderUpdateInput{Notes: &note})
	if !errors.Is(err, ErrSubOrderNotFound) {
		t.Fatalf("expected ErrSubOrderNotFound, got %v", err)
	}
}

func TestResyncOrderSyncsPendingSubOrders(t *testing.T) {
	southern := domain.SupplierKey("southern")
	subOrders := []domain.SubOrder{
		{
			ID: "row-1", SubOrderID: "5551001-1", SubOrderNumber: "#CARA1001-1",
			SupplierKey: &southern, SheetsSynced: true,
			LineItem: domain.LineItem{SKU: "NOVOD272"},
		},
		{
			ID: "row-2", SubOrderID: "5551001-2", SubOrderNumber: "#CARA1001-2",
			SupplierKey: &southern, SheetsSynced: false,
			LineItem: domain.LineItem{SKU: "NOVOD300"},
		},
		{
			ID: "row-3", SubOrderID: "5551001-3", SubOrderNumber: "#CARA1001-3",
			SheetsSynced: false,
			LineItem:     domain.LineItem{SKU: "PLAINFOAM"},
		},
	}
	repo := &stubSubOrderRepo{
		listByOriginFn: func(context.Context, string) ([]domain.SubOrder, error) {
			return subOrders, nil
		},
	}
	writer := &stubSheetWriter{enabled: true}
	service := newTestOrderService(t, OrderServiceDeps{SubOrders: repo, Sheets: writer})

	result, err := service.ResyncOrder(context.Background(), "5551001")
	if err != nil {
		t.Fatalf("ResyncOrder: %v", err)
	}
	if result.Attempted != 1 {
		t.Fatalf("attempted %d, want only the unsynced supplier-assigned sub-order", result.Attempted)
	}
	if result.Synced != 2 {
		t.Fatalf("synced %d, want previously synced plus the new one", result.Synced)
	}
	if len(writer.appended) != 1 || writer.appended[0].OrderNumber != "#CARA1001-2" {
		t.Fatalf("appended rows %+v", writer.appended)
	}
	if len(repo.synced) != 1 || repo.synced[0] != "5551001-2" {
		t.Fatalf("recorded sync for %v", repo.synced)
	}
}

func TestResyncOrderUnknownOrder(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{SubOrders: &stubSubOrderRepo{}})

	if _, err := service.ResyncOrder(context.Background(), "9999"); !errors.Is(err, ErrSubOrderNotFound) {
		t.Fatalf("expected ErrSubOrderNotFound, got %v", err)
	}
}

func TestUpsertProductMappingValidatesSupplier(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{
		SubOrders: &stubSubOrderRepo{},
		Mappings:  &stubMappingRepo{},
	})

	_, err := service.UpsertProductMapping(context.Background(), domain.ProductMapping{
		SKU:         "PLAINFOAM",
		SupplierKey: "nobody",
	})
	if !errors.Is(err, ErrUnknownSupplier) {
		t.Fatalf("expected ErrUnknownSupplier, got %v", err)
	}

	mapping, err := service.UpsertProductMapping(context.Background(), domain.ProductMapping{
		SKU:         "PLAINFOAM",
		SupplierKey: "southern",
	})
	if err != nil {
		t.Fatalf("UpsertProductMapping: %v", err)
	}
	if mapping.SupplierKey != "southern" {
		t.Fatalf("mapping %+v", mapping)
	}
}

func TestListSuppliersReturnsRegistryOrder(t *testing.T) {
	service := newTestOrderService(t, OrderServiceDeps{SubOrders: &stubSubOrderRepo{}})

	suppliers := service.ListSuppliers(context.Background())
	if len(suppliers) != 2 || suppliers[0].Key != "southern" || suppliers[1].Key != "breasley" {
		t.Fatalf("suppliers %+v", suppliers)
	}
}
