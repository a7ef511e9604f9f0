package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/sheets"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

// sheetSyncer mirrors persisted sub-orders into supplier spreadsheets and
// records the outcome. Shared between webhook ingestion and manual resync.
type sheetSyncer struct {
	subOrders repositories.SubOrderRepository
	sheets    SheetWriter
	limiter   *rate.Limiter
	logger    *zap.Logger
	now       func() time.Time
}

// sync writes one sub-order row. All failure paths are logged and swallowed:
// sheet sync never fails the caller or rolls back persistence.
func (y *sheetSyncer) sync(ctx context.Context, supplier domain.Supplier, subOrder domain.SubOrder) bool {
	if y.sheets == nil || !y.sheets.Enabled() {
		return false
	}
	if strings.TrimSpace(supplier.SheetID) == "" {
		return false
	}

	if y.limiter != nil {
		if err := y.limiter.Wait(ctx); err != nil {
			y.logger.Warn("sheet sync pacing aborted",
				zap.String("sub_order_number", subOrder.SubOrderNumber),
				zap.Error(err),
			)
			return false
		}
	}

	row := sheets.Row{
		ReceivedDate: y.now().Format("2006-01-02"),
		OrderNumber:  subOrder.SubOrderNumber,
		CustomerName: subOrder.Customer.Name,
		Contact:      contactLine(subOrder.Customer),
		Phone:        subOrder.Customer.Phone,
		Email:        subOrder.Customer.Email,
		OrderNote:    buildSheetNote(subOrder),
	}

	sheetRange, err := y.sheets.AppendRow(ctx, supplier.SheetID, row)
	if err != nil {
		y.logger.Warn("sheet sync failed",
			zap.String("sub_order_number", subOrder.SubOrderNumber),
			zap.String("supplier_key", string(supplier.Key)),
			zap.Error(err),
		)
		return false
	}

	err = y.subOrders.MarkSheetsSynced(ctx, subOrder.SubOrderID, repositories.SheetsSyncResult{
		Synced:   true,
		SyncedAt: y.now().UTC(),
		Range:    sheetRange,
	})
	if err != nil {
		y.logger.Warn("record sheet sync failed",
			zap.String("sub_order_number", subOrder.SubOrderNumber),
			zap.Error(err),
		)
		return false
	}
	return true
}
