package inventory

import (
	"context"
	"fmt"
	"strconv"
)

// OrderReference renders an order id as a ledger reference id.
func OrderReference(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}

// HasBeenApplied reports whether a movement of typ already exists for the reference.
// It is the read side of idempotency; the unique index on the natural key is the
// write side and catches the races this check cannot.
func HasBeenApplied(ctx context.Context, tx TxRepository, tenantID int64, kind ReferenceKind, referenceID string, typ MovementType) (bool, error) {
	if !kind.Valid() || referenceID == "" {
		return false, fmt.Errorf("%w: %s/%q", ErrInvalidReference, kind, referenceID)
	}
	applied, err := tx.HasMovements(ctx, tenantID, kind, referenceID, typ)
	if err != nil {
		return false, fmt.Errorf("inventory: idempotency check: %w", err)
	}
	return applied, nil
}
