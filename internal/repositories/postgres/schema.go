package postgres

import (
	"context"
	"fmt"
)

// schemaStatements are applied at startup in order. Statements are idempotent
// so repeated boots against the same database are safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sub_orders (
		id TEXT PRIMARY KEY,
		origin_order_id TEXT NOT NULL,
		sub_order_id TEXT NOT NULL UNIQUE,
		sub_order_number TEXT NOT NULL,
		store_domain TEXT NOT NULL,
		customer JSONB NOT NULL,
		line_item JSONB NOT NULL,
		measurements JSONB NOT NULL DEFAULT '[]'::jsonb,
		measurement_status JSONB NOT NULL,
		manufacturing_options JSONB NOT NULL,
		supplier_key TEXT,
		supplier_name TEXT,
		notes TEXT NOT NULL DEFAULT '',
		mattress_label TEXT,
		processing_status TEXT NOT NULL DEFAULT 'received',
		sheets_synced BOOLEAN NOT NULL DEFAULT FALSE,
		sheets_synced_at TIMESTAMPTZ,
		sheets_range TEXT,
		email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sub_orders_origin_order ON sub_orders (origin_order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sub_orders_store_created ON sub_orders (store_domain, created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sub_orders_supplier ON sub_orders (supplier_key)`,
	`CREATE TABLE IF NOT EXISTS product_mappings (
		sku TEXT PRIMARY KEY,
		supplier_key TEXT NOT NULL,
		product_title TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables and indexes the service needs.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: apply schema: %w", err)
		}
	}
	return nil
}
