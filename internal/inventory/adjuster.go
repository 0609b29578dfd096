package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
)

// ShortfallPolicy decides what fulfillment does when a position holds less than requested.
type ShortfallPolicy string

const (
	// ShortfallFloor takes what is there and floors the position at zero.
	ShortfallFloor ShortfallPolicy = "floor"
	// ShortfallReject fails the whole deduction with ErrInsufficientStock.
	ShortfallReject ShortfallPolicy = "reject"
)

// Valid reports whether p is a known policy.
func (p ShortfallPolicy) Valid() bool {
	return p == ShortfallFloor || p == ShortfallReject
}

// Adjuster applies and reverses the stock effect of order fulfillment. It never
// opens transactions itself; callers pass the TxRepository of their unit of work.
type Adjuster struct {
	policy ShortfallPolicy
	clock  func() time.Time
}

// NewAdjuster builds an Adjuster. An unknown policy falls back to ShortfallFloor.
func NewAdjuster(policy ShortfallPolicy) *Adjuster {
	if !policy.Valid() {
		policy = ShortfallFloor
	}
	return &Adjuster{policy: policy, clock: nowUTC}
}

// Policy returns the configured shortfall policy.
func (a *Adjuster) Policy() ShortfallPolicy {
	return a.policy
}

// ResolveWarehouse returns the warehouse a deduction for tenantID would use.
func (a *Adjuster) ResolveWarehouse(ctx context.Context, tx TxRepository, tenantID int64) (warehouses.Warehouse, error) {
	return warehouses.ResolveDefault(ctx, tx, tenantID)
}

// CheckFulfillment reports whether the order's deduction is already on the
// ledger. It returns ErrFulfillmentClosed once that deduction has been reversed.
// It only reads.
func (a *Adjuster) CheckFulfillment(ctx context.Context, tx TxRepository, tenantID, orderID int64) (bool, error) {
	ref := OrderReference(orderID)
	applied, err := HasBeenApplied(ctx, tx, tenantID, RefOrder, ref, MovementOut)
	if err != nil || !applied {
		return false, err
	}
	restored, err := HasBeenApplied(ctx, tx, tenantID, RefOrderCancellation, ref, MovementReturn)
	if err != nil {
		return false, err
	}
	if restored {
		return false, fmt.Errorf("%w: order %d", ErrFulfillmentClosed, orderID)
	}
	return true, nil
}

// Deduct takes every line of the order out of the tenant's default warehouse.
// All lines are applied or none are. Re-running it for the same order is a no-op.
func (a *Adjuster) Deduct(ctx context.Context, tx TxRepository, req DeductRequest) (Result, error) {
	if req.TenantID <= 0 || req.OrderID <= 0 {
		return Result{}, fmt.Errorf("%w: tenant and order required", ErrInvalidReference)
	}
	lines, err := aggregateLines(req.Lines)
	if err != nil {
		return Result{}, err
	}
	ref := OrderReference(req.OrderID)

	applied, err := a.CheckFulfillment(ctx, tx, req.TenantID, req.OrderID)
	if err != nil {
		return Result{}, err
	}
	if applied {
		return Result{AlreadyApplied: true}, nil
	}

	warehouse, err := a.ResolveWarehouse(ctx, tx, req.TenantID)
	if err != nil {
		return Result{}, err
	}
	if len(lines) == 0 {
		return Result{WarehouseID: warehouse.ID}, nil
	}

	result := Result{WarehouseID: warehouse.ID}
	err = tx.Savepoint(ctx, func(sp TxRepository) error {
		now := a.clock()
		for _, line := range lines {
			key := PositionKey{TenantID: req.TenantID, ProductID: line.ProductID, WarehouseID: warehouse.ID}
			pos, err := sp.LockPosition(ctx, key)
			if err != nil {
				return err
			}
			take := line.Quantity
			if pos.Quantity < take {
				if a.policy == ShortfallReject {
					return fmt.Errorf("%w: product %d has %d, order %d needs %d", ErrInsufficientStock, line.ProductID, pos.Quantity, req.OrderID, line.Quantity)
				}
				take = max(pos.Quantity, 0)
				result.Shortfall += line.Quantity - take
			}
			pos.Quantity -= take
			pos.LastUpdated = now
			if err := sp.SavePosition(ctx, pos); err != nil {
				return fmt.Errorf("inventory: save position: %w", err)
			}
			m, err := sp.InsertMovement(ctx, Movement{
				TenantID:      req.TenantID,
				ProductID:     line.ProductID,
				WarehouseID:   warehouse.ID,
				Type:          MovementOut,
				Quantity:      line.Quantity,
				Delta:         -take,
				ReferenceKind: RefOrder,
				ReferenceID:   ref,
				CreatedBy:     req.ActorID,
				Note:          req.Note,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
			result.Movements = append(result.Movements, m)
		}
		return nil
	})
	if errors.Is(err, ErrMovementConflict) {
		return Result{WarehouseID: warehouse.ID, AlreadyApplied: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Restore puts back exactly what the order's out movements took, into the
// warehouses they were taken from. Without out movements it does nothing.
func (a *Adjuster) Restore(ctx context.Context, tx TxRepository, req RestoreRequest) (Result, error) {
	if req.TenantID <= 0 || req.OrderID <= 0 {
		return Result{}, fmt.Errorf("%w: tenant and order required", ErrInvalidReference)
	}
	ref := OrderReference(req.OrderID)

	outs, err := tx.ListReferenceMovements(ctx, req.TenantID, RefOrder, ref, MovementOut)
	if err != nil {
		return Result{}, fmt.Errorf("inventory: load out movements: %w", err)
	}
	if len(outs) == 0 {
		return Result{}, nil
	}
	applied, err := HasBeenApplied(ctx, tx, req.TenantID, RefOrderCancellation, ref, MovementReturn)
	if err != nil {
		return Result{}, err
	}
	if applied {
		return Result{AlreadyApplied: true}, nil
	}

	sort.Slice(outs, func(i, j int) bool {
		if outs[i].ProductID == outs[j].ProductID {
			return outs[i].WarehouseID < outs[j].WarehouseID
		}
		return outs[i].ProductID < outs[j].ProductID
	})

	var result Result
	err = tx.Savepoint(ctx, func(sp TxRepository) error {
		now := a.clock()
		for _, out := range outs {
			pos, err := sp.LockPosition(ctx, PositionKey{TenantID: req.TenantID, ProductID: out.ProductID, WarehouseID: out.WarehouseID})
			if err != nil {
				return err
			}
			give := out.Applied()
			pos.Quantity += give
			pos.LastUpdated = now
			if err := sp.SavePosition(ctx, pos); err != nil {
				return fmt.Errorf("inventory: save position: %w", err)
			}
			m, err := sp.InsertMovement(ctx, Movement{
				TenantID:      req.TenantID,
				ProductID:     out.ProductID,
				WarehouseID:   out.WarehouseID,
				Type:          MovementReturn,
				Quantity:      out.Quantity,
				Delta:         give,
				ReferenceKind: RefOrderCancellation,
				ReferenceID:   ref,
				CreatedBy:     req.ActorID,
				Note:          req.Note,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}
			result.WarehouseID = out.WarehouseID
			result.Movements = append(result.Movements, m)
		}
		return nil
	})
	if errors.Is(err, ErrMovementConflict) {
		return Result{AlreadyApplied: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// aggregateLines merges lines of the same product and orders them by product
// id, which is also the lock order for position rows.
func aggregateLines(lines []Line) ([]Line, error) {
	totals := make(map[int64]int64, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 {
			return nil, fmt.Errorf("%w: product id %d", ErrInvalidReference, l.ProductID)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d quantity %d", ErrInvalidQuantity, l.ProductID, l.Quantity)
		}
		totals[l.ProductID] += l.Quantity
	}
	out := make([]Line, 0, len(totals))
	for id, qty := range totals {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
