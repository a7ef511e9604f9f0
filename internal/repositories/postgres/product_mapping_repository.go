package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/caravanmattress/orders-api/internal/domain"
	"github.com/caravanmattress/orders-api/internal/repositories"
)

// ProductMappingRepository is the Postgres-backed implementation of
// repositories.ProductMappingRepository. SKUs are stored upper-cased so
// lookups are case-insensitive.
type ProductMappingRepository struct {
	db DB
}

var _ repositories.ProductMappingRepository = (*ProductMappingRepository)(nil)

// NewProductMappingRepository constructs a repository over the supplied pool.
func NewProductMappingRepository(db DB) (*ProductMappingRepository, error) {
	if db == nil {
		return nil, errors.New("product mapping repository: db is required")
	}
	return &ProductMappingRepository{db: db}, nil
}

// GetBySKU fetches the supplier hint for one SKU.
func (r *ProductMappingRepository) GetBySKU(ctx context.Context, sku string) (domain.ProductMapping, error) {
	sku = normaliseSKU(sku)
	if sku == "" {
		return domain.ProductMapping{}, errors.New("product mapping repository: sku is required")
	}

	row := r.db.QueryRow(ctx,
		`SELECT sku, supplier_key, product_title, updated_at FROM product_mappings WHERE sku = $1`,
		sku,
	)
	mapping, err := scanProductMapping(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductMapping{}, repositories.ErrProductMappingNotFound
	}
	return mapping, err
}

// Upsert creates or replaces the mapping for a SKU.
func (r *ProductMappingRepository) Upsert(ctx context.Context, mapping domain.ProductMapping) (domain.ProductMapping, error) {
	sku := normaliseSKU(mapping.SKU)
	if sku == "" {
		return domain.ProductMapping{}, errors.New("product mapping repository: sku is required")
	}
	if strings.TrimSpace(string(mapping.SupplierKey)) == "" {
		return domain.ProductMapping{}, errors.New("product mapping repository: supplier key is required")
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO product_mappings (sku, supplier_key, product_title, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (sku) DO UPDATE SET
			supplier_key = EXCLUDED.supplier_key,
			product_title = EXCLUDED.product_title,
			updated_at = now()
		 RETURNING sku, supplier_key, product_title, updated_at`,
		sku, string(mapping.SupplierKey), strings.TrimSpace(mapping.ProductTitle),
	)
	return scanProductMapping(row)
}

// List returns every mapping ordered by SKU.
func (r *ProductMappingRepository) List(ctx context.Context) ([]domain.ProductMapping, error) {
	rows, err := r.db.Query(ctx,
		`SELECT sku, supplier_key, product_title, updated_at FROM product_mappings ORDER BY sku ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("product mapping repository: list: %w", err)
	}
	defer rows.Close()

	var mappings []domain.ProductMapping
	for rows.Next() {
		mapping, err := scanProductMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("product mapping repository: iterate rows: %w", err)
	}
	return mappings, nil
}

func scanProductMapping(row pgx.Row) (domain.ProductMapping, error) {
	var (
		mapping     domain.ProductMapping
		supplierKey string
	)
	if err := row.Scan(&mapping.SKU, &supplierKey, &mapping.ProductTitle, &mapping.UpdatedAt); err != nil {
		return domain.ProductMapping{}, err
	}
	mapping.SupplierKey = domain.SupplierKey(supplierKey)
	return mapping, nil
}

func normaliseSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
