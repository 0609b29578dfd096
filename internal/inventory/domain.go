package inventory

import (
	"errors"
	"time"
)

// MovementType enumerates supported ledger movements.
type MovementType string

const (
	// MovementIn represents stock received into a warehouse.
	MovementIn MovementType = "in"
	// MovementOut represents stock taken by order fulfillment.
	MovementOut MovementType = "out"
	// MovementTransfer is reserved for warehouse-to-warehouse moves.
	MovementTransfer MovementType = "transfer"
	// MovementAdjustment indicates a manual correction, positive or negative.
	MovementAdjustment MovementType = "adjustment"
	// MovementReturn puts back stock previously taken by an out movement.
	MovementReturn MovementType = "return"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementTransfer, MovementAdjustment, MovementReturn:
		return true
	}
	return false
}

// ReferenceKind names what caused a movement. The set is closed.
type ReferenceKind string

const (
	RefOrder             ReferenceKind = "ORDER"
	RefOrderCancellation ReferenceKind = "ORDER_CANCELLATION"
	RefInbound           ReferenceKind = "INBOUND"
	RefAdjustment        ReferenceKind = "ADJUSTMENT"
)

// Valid reports whether k is one of the known reference kinds.
func (k ReferenceKind) Valid() bool {
	switch k {
	case RefOrder, RefOrderCancellation, RefInbound, RefAdjustment:
		return true
	}
	return false
}

// Movement is one immutable ledger row. Quantity is what the caller asked
// for; Delta is the signed change actually applied to the position, which
// differs from Quantity only when fulfillment ran into a stock shortfall.
type Movement struct {
	ID            int64         `json:"id"`
	TenantID      int64         `json:"tenant_id"`
	ProductID     int64         `json:"product_id"`
	WarehouseID   int64         `json:"warehouse_id"`
	Type          MovementType  `json:"movement_type"`
	Quantity      int64         `json:"quantity"`
	Delta         int64         `json:"delta"`
	ReferenceKind ReferenceKind `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	CreatedBy     int64         `json:"created_by"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Applied returns the absolute quantity the movement moved in the projection.
func (m Movement) Applied() int64 {
	if m.Delta < 0 {
		return -m.Delta
	}
	return m.Delta
}

// PositionKey identifies one stock position.
type PositionKey struct {
	TenantID    int64
	ProductID   int64
	WarehouseID int64
}

// Position is the current quantity of a product in a warehouse.
type Position struct {
	TenantID    int64     `json:"tenant_id"`
	ProductID   int64     `json:"product_id"`
	WarehouseID int64     `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
	LastUpdated time.Time `json:"last_updated"`
}

// Key returns the position identity.
func (p Position) Key() PositionKey {
	return PositionKey{TenantID: p.TenantID, ProductID: p.ProductID, WarehouseID: p.WarehouseID}
}

// Line is one product demand of an order.
type Line struct {
	ProductID int64
	Quantity  int64
}

// DeductRequest asks the adjuster to take an order's lines out of stock.
type DeductRequest struct {
	TenantID int64
	OrderID  int64
	ActorID  int64
	Lines    []Line
	Note     string
}

// RestoreRequest asks the adjuster to put back what an order's fulfillment took.
type RestoreRequest struct {
	TenantID int64
	OrderID  int64
	ActorID  int64
	Note     string
}

// Result summarises one adjuster invocation.
type Result struct {
	WarehouseID    int64
	Movements      []Movement
	AlreadyApplied bool
	// Shortfall is the number of requested units fulfillment could not take.
	Shortfall int64
}

// Noop reports whether the invocation changed nothing.
func (r Result) Noop() bool {
	return len(r.Movements) == 0
}

// InboundInput records stock received into a warehouse.
type InboundInput struct {
	TenantID       int64
	WarehouseID    int64
	ProductID      int64
	Quantity       int64
	Reference      string
	Note           string
	ActorID        int64
	IdempotencyKey string
}

// AdjustmentInput records a manual correction. Quantity may be negative.
type AdjustmentInput struct {
	TenantID       int64
	WarehouseID    int64
	ProductID      int64
	Quantity       int64
	Reference      string
	Note           string
	ActorID        int64
	IdempotencyKey string
}

// PositionFilter narrows position listings.
type PositionFilter struct {
	TenantID    int64
	ProductID   int64
	WarehouseID int64
	Limit       int
	Offset      int
}

// MovementFilter narrows ledger listings.
type MovementFilter struct {
	TenantID      int64
	ProductID     int64
	WarehouseID   int64
	ReferenceKind ReferenceKind
	ReferenceID   string
	From          time.Time
	To            time.Time
	Limit         int
}

var (
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidReference indicates an unknown reference kind or empty reference id.
	ErrInvalidReference = errors.New("inventory: invalid movement reference")
	// ErrNegativeStock triggered when a manual movement would drive a position below zero.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInsufficientStock is returned by the reject shortfall policy.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrMovementConflict means a movement with the same natural key already exists.
	ErrMovementConflict = errors.New("inventory: movement already recorded")
	// ErrFulfillmentClosed means the order was fulfilled and reversed already.
	ErrFulfillmentClosed = errors.New("inventory: order fulfillment already reversed")
	// ErrPositionNotFound indicates no position exists for the key.
	ErrPositionNotFound = errors.New("inventory: position not found")
	// ErrUnknownWarehouse indicates the warehouse is not an active warehouse of the tenant.
	ErrUnknownWarehouse = errors.New("inventory: unknown or inactive warehouse")
)
