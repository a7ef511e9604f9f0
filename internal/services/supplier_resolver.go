package services

import (
	"strings"

	"github.com/caravanmattress/orders-api/internal/domain"
)

// DefaultSuppliers is the compiled-in supplier registry used when no supplier
// file is configured. Order matters: resolution walks the slice front to back.
func DefaultSuppliers() []domain.Supplier {
	return []domain.Supplier{
		{
			Key:         "southern",
			DisplayName: "Southern",
			SKUKeywords: []string{"Novo", "Essential", "Classic"},
		},
		{
			Key:         "breasley",
			DisplayName: "Breasley",
			SKUKeywords: []string{"Uno", "Flexcell"},
		},
		{
			Key:         "komfi",
			DisplayName: "Komfi",
			SKUKeywords: []string{"Komfi", "Pocket"},
		},
	}
}

// SupplierResolver maps SKUs onto configured fulfilment suppliers by ordered
// keyword matching. The registry is fixed at construction, so resolution is
// deterministic across calls.
type SupplierResolver struct {
	suppliers []domain.Supplier
	byKey     map[domain.SupplierKey]domain.Supplier
}

// NewSupplierResolver constructs a resolver over the supplied ordered
// registry. An empty registry falls back to the compiled-in defaults.
func NewSupplierResolver(suppliers []domain.Supplier) *SupplierResolver {
	if len(suppliers) == 0 {
		suppliers = DefaultSuppliers()
	}
	registry := make([]domain.Supplier, len(suppliers))
	copy(registry, suppliers)

	byKey := make(map[domain.SupplierKey]domain.Supplier, len(registry))
	for _, supplier := range registry {
		byKey[supplier.Key] = supplier
	}
	return &SupplierResolver{suppliers: registry, byKey: byKey}
}

// Suppliers returns the registry in resolution order.
func (r *SupplierResolver) Suppliers() []domain.Supplier {
	out := make([]domain.Supplier, len(r.suppliers))
	copy(out, r.suppliers)
	return out
}

// ByKey looks up a supplier by its key.
func (r *SupplierResolver) ByKey(key domain.SupplierKey) (domain.Supplier, bool) {
	supplier, ok := r.byKey[key]
	return supplier, ok
}

// ResolveSKU returns the first supplier whose keyword list contains a
// case-insensitive substring of the SKU. First match wins; no scoring.
func (r *SupplierResolver) ResolveSKU(sku string) (domain.Supplier, bool) {
	needle := strings.ToLower(strings.TrimSpace(sku))
	if needle == "" {
		return domain.Supplier{}, false
	}
	for _, supplier := range r.suppliers {
		for _, keyword := range supplier.SKUKeywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" {
				continue
			}
			if strings.Contains(needle, keyword) {
				return supplier, true
			}
		}
	}
	return domain.Supplier{}, false
}

// ResolveOrder walks line items in array order and returns the first
// supplier any SKU resolves to, or false when nothing matches.
func (r *SupplierResolver) ResolveOrder(items []domain.InboundLineItem) (domain.Supplier, bool) {
	for _, item := range items {
		if supplier, ok := r.ResolveSKU(item.SKU); ok {
			return supplier, true
		}
	}
	return domain.Supplier{}, false
}
