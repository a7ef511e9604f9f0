package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/caravanmattress/orders-api/internal/platform/config"
)

// Column assignments for the supplier order sheets. Cells are addressed
// individually so pre-filled columns between them are never clobbered.
const (
	colReceivedDate = "A"
	colOrderNumber  = "B"
	colCustomerName = "C"
	colContact      = "D"
	colPhone        = "E"
	colEmail        = "F"
	colOrderNote    = "G"

	defaultSheetTab = "Orders"
)

var errWriterDisabled = errors.New("sheets: writer is disabled")

// Row is the fixed set of logical fields mirrored into one spreadsheet row.
type Row struct {
	ReceivedDate string
	OrderNumber  string
	CustomerName string
	Contact      string
	Phone        string
	Email        string
	OrderNote    string
}

type sheetsAPI interface {
	columnRowCount(ctx context.Context, spreadsheetID, columnRange string) (int, error)
	batchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateValuesRequest) error
}

// Writer mirrors sub-order summaries into per-supplier spreadsheets. The
// underlying API client is built once on first use; initialisation is guarded
// so concurrent first requests cannot double-initialise.
type Writer struct {
	cfg        config.SheetsConfig
	sheetTab   string
	clientOpts []option.ClientOption

	initOnce sync.Once
	api      sheetsAPI
	initErr  error
}

// WriterOption customises the writer.
type WriterOption func(*Writer)

// WithSheetTab overrides the tab name rows are written to.
func WithSheetTab(tab string) WriterOption {
	return func(w *Writer) {
		if strings.TrimSpace(tab) != "" {
			w.sheetTab = tab
		}
	}
}

// WithClientOptions appends Google API client options, primarily for tests.
func WithClientOptions(opts ...option.ClientOption) WriterOption {
	return func(w *Writer) {
		w.clientOpts = append(w.clientOpts, opts...)
	}
}

// WithAPI injects a fake API implementation for tests.
func WithAPI(api sheetsAPI) WriterOption {
	return func(w *Writer) {
		if api != nil {
			w.initOnce.Do(func() {})
			w.api = api
		}
	}
}

// NewWriter constructs a Writer from configuration. The Sheets service itself
// is not dialled until the first append.
func NewWriter(cfg config.SheetsConfig, opts ...WriterOption) *Writer {
	writer := &Writer{
		cfg:      cfg,
		sheetTab: defaultSheetTab,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(writer)
		}
	}
	return writer
}

// Enabled reports whether the writer is configured to sync at all.
func (w *Writer) Enabled() bool {
	return w != nil && w.cfg.Enabled
}

func (w *Writer) ensureAPI(ctx context.Context) (sheetsAPI, error) {
	if w.api != nil {
		return w.api, nil
	}
	w.initOnce.Do(func() {
		opts := append([]option.ClientOption(nil), w.clientOpts...)
		if creds := strings.TrimSpace(w.cfg.CredentialsJSON); creds != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		}
		opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))
		svc, err := sheets.NewService(ctx, opts...)
		if err != nil {
			w.initErr = fmt.Errorf("sheets: create service: %w", err)
			return
		}
		w.api = &googleSheetsAPI{svc: svc}
	})
	if w.initErr != nil {
		return nil, w.initErr
	}
	return w.api, nil
}

// AppendRow writes the row into the next unused row of the spreadsheet,
// determined by the anchor column's current value count. All seven cells are
// submitted as one atomic batch with USER_ENTERED semantics; the order number
// is prefixed with a leading quote so numeric-looking values stay literal
// text. It returns the written range for persistence back onto the sub-order.
func (w *Writer) AppendRow(ctx context.Context, spreadsheetID string, row Row) (string, error) {
	if !w.Enabled() {
		return "", errWriterDisabled
	}
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return "", errors.New("sheets: spreadsheet id is required")
	}

	api, err := w.ensureAPI(ctx)
	if err != nil {
		return "", err
	}

	anchor := strings.TrimSpace(w.cfg.AnchorColumn)
	if anchor == "" {
		anchor = colCustomerName
	}
	columnRange := fmt.Sprintf("%s!%s:%s", w.sheetTab, anchor, anchor)
	used, err := api.columnRowCount(ctx, spreadsheetID, columnRange)
	if err != nil {
		return "", fmt.Errorf("sheets: locate next row: %w", err)
	}
	nextRow := used + 1
	if minRow := w.cfg.HeaderRows + 1; nextRow < minRow {
		nextRow = minRow
	}

	cell := func(column string, value string) *sheets.ValueRange {
		return &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!%s%d", w.sheetTab, column, nextRow),
			Values: [][]any{{value}},
		}
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data: []*sheets.ValueRange{
			cell(colReceivedDate, row.ReceivedDate),
			cell(colOrderNumber, forceText(row.OrderNumber)),
			cell(colCustomerName, row.CustomerName),
			cell(colContact, row.Contact),
			cell(colPhone, row.Phone),
			cell(colEmail, row.Email),
			cell(colOrderNote, row.OrderNote),
		},
	}

	if err := api.batchUpdate(ctx, spreadsheetID, req); err != nil {
		return "", fmt.Errorf("sheets: batch update row %d: %w", nextRow, err)
	}

	return fmt.Sprintf("%s!%s%d:%s%d", w.sheetTab, colReceivedDate, nextRow, colOrderNote, nextRow), nil
}

// forceText prevents the spreadsheet from coercing numeric-looking order
// numbers under USER_ENTERED input semantics.
func forceText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "'") {
		return trimmed
	}
	return "'" + trimmed
}

type googleSheetsAPI struct {
	svc *sheets.Service
}

func (g *googleSheetsAPI) columnRowCount(ctx context.Context, spreadsheetID, columnRange string) (int, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, columnRange).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	return len(resp.Values), nil
}

func (g *googleSheetsAPI) batchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateValuesRequest) error {
	_, err := g.svc.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	return err
}
