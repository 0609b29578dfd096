package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/receipts"
)

type memoryStore struct {
	mu       sync.Mutex
	orders   map[int64]Order
	inv      *inventorytest.Store
	nextID   int64
	lineID   int64
	takenNos map[string]bool
}

func newMemoryStore(inv *inventorytest.Store) *memoryStore {
	return &memoryStore{orders: make(map[int64]Order), inv: inv, takenNos: make(map[string]bool)}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]Order, len(m.orders))
	for k, v := range m.orders {
		saved[k] = v
	}
	restoreInventory := m.inv.Snapshot()
	if err := fn(ctx, &memoryTx{store: m}); err != nil {
		m.orders = saved
		restoreInventory()
		return err
	}
	return nil
}

func (m *memoryStore) Get(ctx context.Context, tenantID, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.TenantID != tenantID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *memoryStore) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.TenantID == filter.TenantID && (filter.Status == "" || o.Status == filter.Status) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryStore) Create(ctx context.Context, o Order) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takenNos[o.OrderNumber] {
		return Order{}, ErrDuplicateNumber
	}
	m.takenNos[o.OrderNumber] = true
	m.nextID++
	o.ID = m.nextID
	lines := make([]Line, len(o.Lines))
	for i, l := range o.Lines {
		m.lineID++
		l.ID = m.lineID
		l.OrderID = o.ID
		lines[i] = l
	}
	o.Lines = lines
	m.orders[o.ID] = o
	return o, nil
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) GetForUpdate(ctx context.Context, tenantID, id int64) (Order, error) {
	o, ok := t.store.orders[id]
	if !ok || o.TenantID != tenantID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, tenantID, id int64, status Status, payment PaymentStatus, at time.Time) error {
	o, ok := t.store.orders[id]
	if !ok || o.TenantID != tenantID {
		return ErrNotFound
	}
	o.Status = status
	o.PaymentStatus = payment
	o.UpdatedAt = at
	t.store.orders[id] = o
	return nil
}

func (t *memoryTx) Inventory() inventory.TxRepository {
	return t.store.inv.Tx()
}

type memoryReceipts struct {
	mu    sync.Mutex
	items []receipts.Receipt
}

func newMemoryReceipts() *memoryReceipts {
	return &memoryReceipts{}
}

func (m *memoryReceipts) Insert(ctx context.Context, rc receipts.Receipt) (receipts.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.TenantID == rc.TenantID && existing.Number == rc.Number {
			return receipts.Receipt{}, receipts.ErrDuplicate
		}
	}
	rc.ID = int64(len(m.items) + 1)
	m.items = append(m.items, rc)
	return rc, nil
}

func (m *memoryReceipts) Get(ctx context.Context, tenantID, id int64) (receipts.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rc := range m.items {
		if rc.TenantID == tenantID && rc.ID == id {
			return rc, nil
		}
	}
	return receipts.Receipt{}, receipts.ErrNotFound
}

func (m *memoryReceipts) ListByOrder(ctx context.Context, tenantID, orderID int64, status receipts.Status) ([]receipts.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []receipts.Receipt
	for _, rc := range m.items {
		if rc.TenantID == tenantID && rc.OrderID == orderID && (status == "" || rc.Status == status) {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (m *memoryReceipts) Void(ctx context.Context, req receipts.VoidRequest, at time.Time) (receipts.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		rc := &m.items[i]
		if rc.TenantID != req.TenantID || rc.ID != req.ReceiptID {
			continue
		}
		if rc.Status != receipts.StatusActive {
			return receipts.Receipt{}, receipts.ErrAlreadyVoided
		}
		actorID := req.ActorID
		rc.Status = receipts.StatusVoided
		rc.VoidedAt = &at
		rc.VoidedBy = &actorID
		rc.VoidReason = req.Reason
		return *rc, nil
	}
	return receipts.Receipt{}, receipts.ErrNotFound
}
