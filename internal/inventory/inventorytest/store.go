// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
)

// Store keeps positions and movements in memory and mimics the unique natural
// key of the ledger table. Transactions are serialised by a mutex and rolled
// back by restoring a snapshot.
type Store struct {
	mu         sync.Mutex
	warehouses []warehouses.Warehouse
	positions  map[inventory.PositionKey]inventory.Position
	movements  []inventory.Movement
	nextID     int64

	// FailInsert, when set, is consulted before every movement insert.
	FailInsert func(inventory.Movement) error
	// BlindGuard makes HasMovements always report false, as if a concurrent
	// writer committed right after the guard ran.
	BlindGuard bool
}

// New returns an empty store.
func New() *Store {
	return &Store{positions: make(map[inventory.PositionKey]inventory.Position)}
}

// AddWarehouse registers a warehouse.
func (s *Store) AddWarehouse(w warehouses.Warehouse) {
	s.warehouses = append(s.warehouses, w)
}

// SetQuantity seeds a position.
func (s *Store) SetQuantity(key inventory.PositionKey, qty int64) {
	s.positions[key] = inventory.Position{TenantID: key.TenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID, Quantity: qty}
}

// Quantity returns the current quantity of a position.
func (s *Store) Quantity(key inventory.PositionKey) int64 {
	return s.positions[key].Quantity
}

// Movements returns a copy of the ledger in insertion order.
func (s *Store) Movements() []inventory.Movement {
	out := make([]inventory.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// Snapshot captures the current state and returns a function restoring it.
func (s *Store) Snapshot() func() {
	positions := make(map[inventory.PositionKey]inventory.Position, len(s.positions))
	for k, v := range s.positions {
		positions[k] = v
	}
	movements := s.Movements()
	whs := append([]warehouses.Warehouse(nil), s.warehouses...)
	nextID := s.nextID
	return func() {
		s.positions = positions
		s.movements = movements
		s.warehouses = whs
		s.nextID = nextID
	}
}

// Tx returns a transactional view over the store. Callers own locking and rollback.
func (s *Store) Tx() inventory.TxRepository {
	return &tx{store: s}
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore := s.Snapshot()
	if err := fn(ctx, s.Tx()); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, key inventory.PositionKey) (inventory.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[key]
	if !ok {
		return inventory.Position{}, inventory.ErrPositionNotFound
	}
	return p, nil
}

func (s *Store) ListPositions(ctx context.Context, filter inventory.PositionFilter) ([]inventory.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Position
	for k, p := range s.positions {
		if k.TenantID != filter.TenantID ||
			(filter.ProductID > 0 && k.ProductID != filter.ProductID) ||
			(filter.WarehouseID > 0 && k.WarehouseID != filter.WarehouseID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID == out[j].ProductID {
			return out[i].WarehouseID < out[j].WarehouseID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func (s *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Movement
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.TenantID != filter.TenantID ||
			(filter.ProductID > 0 && m.ProductID != filter.ProductID) ||
			(filter.WarehouseID > 0 && m.WarehouseID != filter.WarehouseID) ||
			(filter.ReferenceKind != "" && m.ReferenceKind != filter.ReferenceKind) ||
			(filter.ReferenceID != "" && m.ReferenceID != filter.ReferenceID) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Totals implements inventory.RepositoryPort. Both maps come from the same state.
func (s *Store) Totals(ctx context.Context, tenantID int64) (ledger, positions map[inventory.PositionKey]int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger = make(map[inventory.PositionKey]int64)
	for _, m := range s.movements {
		if tenantID != 0 && m.TenantID != tenantID {
			continue
		}
		ledger[inventory.PositionKey{TenantID: m.TenantID, ProductID: m.ProductID, WarehouseID: m.WarehouseID}] += m.Delta
	}
	positions = make(map[inventory.PositionKey]int64)
	for k, p := range s.positions {
		if tenantID != 0 && k.TenantID != tenantID {
			continue
		}
		positions[k] = p.Quantity
	}
	return ledger, positions, nil
}

type tx struct {
	store *Store
}

func (t *tx) ListActive(ctx context.Context, tenantID int64) ([]warehouses.Warehouse, error) {
	var out []warehouses.Warehouse
	for _, w := range t.store.warehouses {
		if w.TenantID == tenantID && w.Status == warehouses.StatusActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (t *tx) HasMovements(ctx context.Context, tenantID int64, kind inventory.ReferenceKind, referenceID string, typ inventory.MovementType) (bool, error) {
	if t.store.BlindGuard {
		return false, nil
	}
	ms, _ := t.ListReferenceMovements(ctx, tenantID, kind, referenceID, typ)
	return len(ms) > 0, nil
}

func (t *tx) ListReferenceMovements(ctx context.Context, tenantID int64, kind inventory.ReferenceKind, referenceID string, typ inventory.MovementType) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range t.store.movements {
		if m.TenantID == tenantID && m.ReferenceKind == kind && m.ReferenceID == referenceID && m.Type == typ {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *tx) LockPosition(ctx context.Context, key inventory.PositionKey) (inventory.Position, error) {
	p, ok := t.store.positions[key]
	if !ok {
		p = inventory.Position{TenantID: key.TenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}
		t.store.positions[key] = p
	}
	return p, nil
}

func (t *tx) SavePosition(ctx context.Context, p inventory.Position) error {
	if p.Quantity < 0 {
		return fmt.Errorf("inventorytest: position %v would be negative", p.Key())
	}
	t.store.positions[p.Key()] = p
	return nil
}

func (t *tx) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	if t.store.FailInsert != nil {
		if err := t.store.FailInsert(m); err != nil {
			return inventory.Movement{}, err
		}
	}
	for _, existing := range t.store.movements {
		if existing.TenantID == m.TenantID && existing.ReferenceKind == m.ReferenceKind &&
			existing.ReferenceID == m.ReferenceID && existing.Type == m.Type && existing.ProductID == m.ProductID {
			return inventory.Movement{}, fmt.Errorf("%w: product %d", inventory.ErrMovementConflict, m.ProductID)
		}
	}
	t.store.nextID++
	m.ID = t.store.nextID
	t.store.movements = append(t.store.movements, m)
	return m, nil
}

func (t *tx) Savepoint(ctx context.Context, fn func(inventory.TxRepository) error) error {
	restore := t.store.Snapshot()
	if err := fn(t); err != nil {
		restore()
		return err
	}
	return nil
}
