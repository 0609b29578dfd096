package warehouses

import (
	"context"
	"fmt"
)

// Lookup lists the warehouses a tenant can fulfil from.
type Lookup interface {
	ListActive(ctx context.Context, tenantID int64) ([]Warehouse, error)
}

// ResolveDefault picks the fulfillment warehouse for a tenant: the oldest-created
// active one, ties broken by the lower id.
func ResolveDefault(ctx context.Context, lookup Lookup, tenantID int64) (Warehouse, error) {
	candidates, err := lookup.ListActive(ctx, tenantID)
	if err != nil {
		return Warehouse{}, fmt.Errorf("resolve default warehouse: %w", err)
	}
	var (
		chosen Warehouse
		found  bool
	)
	for _, w := range candidates {
		if w.TenantID != tenantID || w.Status != StatusActive {
			continue
		}
		if !found || older(w, chosen) {
			chosen = w
			found = true
		}
	}
	if !found {
		return Warehouse{}, fmt.Errorf("%w: tenant %d", ErrNoWarehouseAvailable, tenantID)
	}
	return chosen, nil
}

func older(a, b Warehouse) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
