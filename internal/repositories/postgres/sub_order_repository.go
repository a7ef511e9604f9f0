package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/platform/pagination"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

// DB is the subset of pgxpool.Pool the repositories depend on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const subOrderColumns = `id, origin_order_id, sub_order_id, sub_order_number, store_domain,
	customer, line_item, measurements, measurement_status, manufacturing_options,
	supplier_key, supplier_name, notes, mattress_label, processing_status,
	sheets_synced, sheets_synced_at, sheets_range, email_sent, created_at, updated_at`

// SubOrderRepository is the Postgres-backed implementation of
// repositories.SubOrderRepository.
type SubOrderRepository struct {
	db DB
}

var _ repositories.SubOrderRepository = (*SubOrderRepository)(nil)

// NewSubOrderRepository constructs a repository over the supplied pool.
func NewSubOrderRepository(db DB) (*SubOrderRepository, error) {
	if db == nil {
		return nil, errors.New("sub-order repository: db is required")
	}
	return &SubOrderRepository{db: db}, nil
}

// Upsert inserts the sub-order keyed by its sub-order ID. A replayed webhook
// refreshes the order snapshot but leaves review workflow state (processing
// status, sheet sync, email flag) and created_at untouched.
func (r *SubOrderRepository) Upsert(ctx context.Context, subOrder domain.SubOrder) (domain.SubOrder, error) {
	if strings.TrimSpace(subOrder.SubOrderID) == "" {
		return domain.SubOrder{}, errors.New("sub-order repository: sub-order id is required")
	}
	if strings.TrimSpace(subOrder.ID) == "" {
		return domain.SubOrder{}, errors.New("sub-order repository: id is required")
	}

	customer, err := json.Marshal(subOrder.Customer)
	if err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: encode customer: %w", err)
	}
	lineItem, err := json.Marshal(subOrder.LineItem)
	if err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: encode line item: %w", err)
	}
	measurements, err := json.Marshal(subOrder.Measurements)
	if err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: encode measurements: %w", err)
	}
	measurementStatus, err := json.Marshal(subOrder.MeasurementStatus)
	if err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: encode measurement status: %w", err)
	}
	manufacturing, err := json.Marshal(subOrder.ManufacturingOptions)
	if err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: encode manufacturing options: %w", err)
	}

	status := subOrder.ProcessingStatus
	if status == "" {
		status = domain.ProcessingStatusReceived
	}

	query := `INSERT INTO sub_orders (
		id, origin_order_id, sub_order_id, sub_order_number, store_domain,
		customer, line_item, measurements, measurement_status, manufacturing_options,
		supplier_key, supplier_name, notes, mattress_label, processing_status
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (sub_order_id) DO UPDATE SET
		origin_order_id = EXCLUDED.origin_order_id,
		sub_order_number = EXCLUDED.sub_order_number,
		store_domain = EXCLUDED.store_domain,
		customer = EXCLUDED.customer,
		line_item = EXCLUDED.line_item,
		measurements = EXCLUDED.measurements,
		measurement_status = EXCLUDED.measurement_status,
		manufacturing_options = EXCLUDED.manufacturing_options,
		supplier_key = EXCLUDED.supplier_key,
		supplier_name = EXCLUDED.supplier_name,
		notes = EXCLUDED.notes,
		mattress_label = EXCLUDED.mattress_label,
		updated_at = now()
	RETURNING ` + subOrderColumns

	row := r.db.QueryRow(ctx, query,
		subOrder.ID,
		subOrder.OriginOrderID,
		subOrder.SubOrderID,
		subOrder.SubOrderNumber,
		strings.ToLower(strings.TrimSpace(subOrder.StoreDomain)),
		customer,
		lineItem,
		measurements,
		measurementStatus,
		manufacturing,
		supplierKeyParam(subOrder.SupplierKey),
		subOrder.SupplierName,
		subOrder.Notes,
		mattressLabelParam(subOrder.MattressLabel),
		string(status),
	)
	return scanSubOrder(row)
}

// GetBySubOrderID fetches a single sub-order by its public identifier.
func (r *SubOrderRepository) GetBySubOrderID(ctx context.Context, subOrderID string) (domain.SubOrder, error) {
	subOrderID = strings.TrimSpace(subOrderID)
	if subOrderID == "" {
		return domain.SubOrder{}, errors.New("sub-order repository: sub-order id is required")
	}

	row := r.db.QueryRow(ctx, `SELECT `+subOrderColumns+` FROM sub_orders WHERE sub_order_id = $1`, subOrderID)
	subOrder, err := scanSubOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SubOrder{}, repositories.ErrSubOrderNotFound
	}
	return subOrder, err
}

// ListByOriginOrder returns every sub-order split from one inbound order,
// oldest line item first.
func (r *SubOrderRepository) ListByOriginOrder(ctx context.Context, originOrderID string) ([]domain.SubOrder, error) {
	originOrderID = strings.TrimSpace(originOrderID)
	if originOrderID == "" {
		return nil, errors.New("sub-order repository: origin order id is required")
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+subOrderColumns+` FROM sub_orders WHERE origin_order_id = $1 ORDER BY sub_order_id ASC`,
		originOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("sub-order repository: list by origin: %w", err)
	}
	defer rows.Close()

	return collectSubOrders(rows)
}

// List returns a filtered, keyset-paginated page of sub-orders ordered by
// creation time descending.
func (r *SubOrderRepository) List(ctx context.Context, filter repositories.SubOrderFilter) (domain.CursorPage[domain.SubOrder], error) {
	pageSize := filter.Page.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	query, args := buildListQuery(filter, pageSize)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.SubOrder]{}, fmt.Errorf("sub-order repository: list: %w", err)
	}
	defer rows.Close()

	items, err := collectSubOrders(rows)
	if err != nil {
		return domain.CursorPage[domain.SubOrder]{}, err
	}

	page := domain.CursorPage[domain.SubOrder]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.SubOrder]{}, err
		}
		page.NextToken = token
	}
	return page, nil
}

// Update applies the review workflow mutations and returns the updated row.
func (r *SubOrderRepository) Update(ctx context.Context, subOrderID string, update repositories.SubOrderUpdate) (domain.SubOrder, error) {
	subOrderID = strings.TrimSpace(subOrderID)
	if subOrderID == "" {
		return domain.SubOrder{}, errors.New("sub-order repository: sub-order id is required")
	}
	if update.IsZero() {
		return r.GetBySubOrderID(ctx, subOrderID)
	}

	sets := []string{"updated_at = now()"}
	args := []any{subOrderID}

	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.ProcessingStatus != nil {
		appendSet("processing_status", string(*update.ProcessingStatus))
	}
	if update.Notes != nil {
		appendSet("notes", *update.Notes)
	}
	if update.ClearSupplier {
		sets = append(sets, "supplier_key = NULL", "supplier_name = NULL")
	} else {
		if update.SupplierKey != nil {
			appendSet("supplier_key", string(*update.SupplierKey))
		}
		if update.SupplierName != nil {
			appendSet("supplier_name", *update.SupplierName)
		}
	}
	if update.EmailSent != nil {
		appendSet("email_sent", *update.EmailSent)
	}

	query := fmt.Sprintf(
		`UPDATE sub_orders SET %s WHERE sub_order_id = $1 RETURNING %s`,
		strings.Join(sets, ", "), subOrderColumns,
	)

	row := r.db.QueryRow(ctx, query, args...)
	subOrder, err := scanSubOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SubOrder{}, repositories.ErrSubOrderNotFound
	}
	return subOrder, err
}

// MarkSheetsSynced records the outcome of a spreadsheet sync attempt.
func (r *SubOrderRepository) MarkSheetsSynced(ctx context.Context, subOrderID string, result repositories.SheetsSyncResult) error {
	subOrderID = strings.TrimSpace(subOrderID)
	if subOrderID == "" {
		return errors.New("sub-order repository: sub-order id is required")
	}

	var syncedAt *time.Time
	if !result.SyncedAt.IsZero() {
		syncedAt = &result.SyncedAt
	}
	var sheetRange *string
	if result.Range != "" {
		sheetRange = &result.Range
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE sub_orders SET sheets_synced = $2, sheets_synced_at = $3, sheets_range = $4, updated_at = now()
		 WHERE sub_order_id = $1`,
		subOrderID, result.Synced, syncedAt, sheetRange,
	)
	if err != nil {
		return fmt.Errorf("sub-order repository: mark sheets synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrSubOrderNotFound
	}
	return nil
}

func buildListQuery(filter repositories.SubOrderFilter, pageSize int) (string, []any) {
	var (
		where []string
		args  []any
	)

	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if domainName := strings.ToLower(strings.TrimSpace(filter.StoreDomain)); domainName != "" {
		where = append(where, "store_domain = "+arg(domainName))
	}
	if filter.Unassigned {
		where = append(where, "supplier_key IS NULL")
	} else if filter.SupplierKey != "" {
		where = append(where, "supplier_key = "+arg(string(filter.SupplierKey)))
	}
	if filter.ProcessingStatus != "" {
		where = append(where, "processing_status = "+arg(string(filter.ProcessingStatus)))
	}
	if originID := strings.TrimSpace(filter.OriginOrderID); originID != "" {
		where = append(where, "origin_order_id = "+arg(originID))
	}
	if filter.CreatedAt.From != nil {
		where = append(where, "created_at >= "+arg(*filter.CreatedAt.From))
	}
	if filter.CreatedAt.To != nil {
		where = append(where, "created_at <= "+arg(*filter.CreatedAt.To))
	}
	if cursor := filter.Page.Cursor; !cursor.IsZero() {
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(cursor.CreatedAt), arg(cursor.ID)))
	}

	query := `SELECT ` + subOrderColumns + ` FROM sub_orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(pageSize+1)
	return query, args
}

func collectSubOrders(rows pgx.Rows) ([]domain.SubOrder, error) {
	var items []domain.SubOrder
	for rows.Next() {
		subOrder, err := scanSubOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, subOrder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sub-order repository: iterate rows: %w", err)
	}
	return items, nil
}

func scanSubOrder(row pgx.Row) (domain.SubOrder, error) {
	var (
		subOrder          domain.SubOrder
		customer          []byte
		lineItem          []byte
		measurements      []byte
		measurementStatus []byte
		manufacturing     []byte
		supplierKey       *string
		mattressLabel     *string
		status            string
	)

	err := row.Scan(
		&subOrder.ID,
		&subOrder.OriginOrderID,
		&subOrder.SubOrderID,
		&subOrder.SubOrderNumber,
		&subOrder.StoreDomain,
		&customer,
		&lineItem,
		&measurements,
		&measurementStatus,
		&manufacturing,
		&supplierKey,
		&subOrder.SupplierName,
		&subOrder.Notes,
		&mattressLabel,
		&status,
		&subOrder.SheetsSynced,
		&subOrder.SheetsSyncedAt,
		&subOrder.SheetsRange,
		&subOrder.EmailSent,
		&subOrder.CreatedAt,
		&subOrder.UpdatedAt,
	)
	if err != nil {
		return domain.SubOrder{}, err
	}

	if err := json.Unmarshal(customer, &subOrder.Customer); err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: decode customer: %w", err)
	}
	if err := json.Unmarshal(lineItem, &subOrder.LineItem); err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: decode line item: %w", err)
	}
	if err := json.Unmarshal(measurements, &subOrder.Measurements); err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: decode measurements: %w", err)
	}
	if err := json.Unmarshal(measurementStatus, &subOrder.MeasurementStatus); err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: decode measurement status: %w", err)
	}
	if err := json.Unmarshal(manufacturing, &subOrder.ManufacturingOptions); err != nil {
		return domain.SubOrder{}, fmt.Errorf("sub-order repository: decode manufacturing options: %w", err)
	}

	if supplierKey != nil {
		key := domain.SupplierKey(*supplierKey)
		subOrder.SupplierKey = &key
	}
	if mattressLabel != nil {
		label := domain.MattressLabel(*mattressLabel)
		subOrder.MattressLabel = &label
	}
	subOrder.ProcessingStatus = domain.ProcessingStatus(status)

	return subOrder, nil
}

func supplierKeyParam(key *domain.SupplierKey) *string {
	if key == nil || *key == "" {
		return nil
	}
	value := string(*key)
	return &value
}

func mattressLabelParam(label *domain.MattressLabel) *string {
	if label == nil || *label == "" {
		return nil
	}
	value := string(*label)
	return &value
}
