package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/receipts"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const (
	tenant    = int64(1)
	actor     = int64(9)
	warehouse = int64(7)
	productA  = int64(100)
	productB  = int64(200)
)

var (
	keyA = inventory.PositionKey{TenantID: tenant, ProductID: productA, WarehouseID: warehouse}
	keyB = inventory.PositionKey{TenantID: tenant, ProductID: productB, WarehouseID: warehouse}
)

type recordingVoider struct {
	reasons map[int64]string
	err     error
}

func (v *recordingVoider) VoidForOrder(ctx context.Context, tenantID, orderID, actorID int64, reason string) (int, error) {
	if v.reasons == nil {
		v.reasons = map[int64]string{}
	}
	v.reasons[orderID] = reason
	return 1, v.err
}

type recordingNotifier struct {
	changes []StatusChange
	err     error
}

func (n *recordingNotifier) NotifyOrderStatus(ctx context.Context, change StatusChange) error {
	n.changes = append(n.changes, change)
	return n.err
}

type failingAudit struct{ calls int }

func (a *failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.calls++
	return errors.New("audit store unavailable")
}

type fixture struct {
	inv      *inventorytest.Store
	store    *memoryStore
	svc      *Service
	voider   *recordingVoider
	notifier *recordingNotifier
	registry *prometheus.Registry
}

func newFixture(t *testing.T, mode Mode, policy inventory.ShortfallPolicy) *fixture {
	t.Helper()
	inv := inventorytest.New()
	inv.AddWarehouse(warehouses.Warehouse{ID: warehouse, TenantID: tenant, Code: "MAIN", Status: warehouses.StatusActive,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	inv.SetQuantity(keyA, 20)
	inv.SetQuantity(keyB, 10)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	invSvc := inventory.NewService(inv, inventory.NewAdjuster(policy), nil, nil, logger)
	store := newMemoryStore(inv)
	svc := NewService(store, invSvc, Config{Mode: mode}, logger)

	f := &fixture{
		inv:      inv,
		store:    store,
		svc:      svc,
		voider:   &recordingVoider{},
		notifier: &recordingNotifier{},
		registry: prometheus.NewRegistry(),
	}
	svc.SetVoider(f.voider)
	svc.SetNotifier(f.notifier)
	svc.SetMetrics(observability.NewFulfillment(f.registry))
	return f
}

func (f *fixture) createOrder(t *testing.T, tenantID int64) Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), CreateRequest{
		TenantID: tenantID,
		ActorID:  actor,
		Lines: []LineInput{
			{ProductID: productA, Quantity: 5, UnitPrice: decimal.NewFromInt(12000), TaxRate: decimal.NewFromInt(18)},
			{ProductID: productB, Quantity: 2, UnitPrice: decimal.NewFromInt(3500)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, o.Status)
	return o
}

func (f *fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCompleteAndCancelRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)

	completed, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, PaymentPaid, completed.PaymentStatus)
	require.Equal(t, int64(15), f.inv.Quantity(keyA))
	require.Equal(t, int64(8), f.inv.Quantity(keyB))
	require.Len(t, f.inv.Movements(), 2)

	_, err = f.svc.Complete(ctx, tenant, o.ID, actor)
	require.ErrorIs(t, err, ErrAlreadyInState)
	require.Len(t, f.inv.Movements(), 2)

	cancelled, err := f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, int64(20), f.inv.Quantity(keyA))
	require.Equal(t, int64(10), f.inv.Quantity(keyB))

	movements := f.inv.Movements()
	require.Len(t, movements, 4)
	for _, m := range movements[2:] {
		assert.Equal(t, inventory.MovementReturn, m.Type)
		assert.Equal(t, inventory.RefOrderCancellation, m.ReferenceKind)
	}
	require.Equal(t, "order "+o.OrderNumber+" status changed to cancelled", f.voider.reasons[o.ID])

	_, err = f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.ErrorIs(t, err, ErrAlreadyInState)

	require.Len(t, f.notifier.changes, 2)
	require.Equal(t, StatusCompleted, f.notifier.changes[1].From)
	require.Equal(t, 1.0, f.counter(t, "odyssey_order_transitions_total", map[string]string{"from": "pending", "to": "completed", "result": "applied"}))
	require.Equal(t, 1.0, f.counter(t, "odyssey_order_transitions_total", map[string]string{"from": "completed", "to": "completed", "result": "noop"}))
}

func TestCompleteWithoutWarehouse(t *testing.T) {
	for _, mode := range []Mode{ModeStrict, ModeBestEffort} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode, inventory.ShortfallFloor)
			o := f.createOrder(t, 2)

			_, err := f.svc.Complete(ctx, 2, o.ID, actor)
			require.ErrorIs(t, err, warehouses.ErrNoWarehouseAvailable)

			got, err := f.svc.Get(ctx, 2, o.ID)
			require.NoError(t, err)
			require.Equal(t, StatusPending, got.Status)
			require.Equal(t, PaymentPending, got.PaymentStatus)
			require.Empty(t, f.inv.Movements())
			require.Empty(t, f.notifier.changes)
		})
	}
}

func TestCancelPendingOrderHasNoInventoryEffect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)

	_, err := f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Empty(t, f.inv.Movements())
	require.Empty(t, f.voider.reasons, "receipts are only voided when a completion is undone")

	_, err = f.svc.Complete(ctx, tenant, o.ID, actor)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefundedIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, tenant, o.ID, actor, StatusRefunded)
	require.NoError(t, err)
	require.Equal(t, int64(20), f.inv.Quantity(keyA))
	require.Contains(t, f.voider.reasons[o.ID], "changed to refunded")

	_, err = f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReopenAndRecompleteIsRejected(t *testing.T) {
	for _, mode := range []Mode{ModeStrict, ModeBestEffort} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode, inventory.ShortfallFloor)
			o := f.createOrder(t, tenant)

			_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
			require.NoError(t, err)
			require.Equal(t, int64(15), f.inv.Quantity(keyA))
			reopened, err := f.svc.UpdateStatus(ctx, tenant, o.ID, actor, StatusProcessing)
			require.NoError(t, err)
			require.Equal(t, StatusProcessing, reopened.Status)
			require.Equal(t, int64(20), f.inv.Quantity(keyA))
			require.Contains(t, f.voider.reasons[o.ID], "changed to processing")

			_, err = f.svc.Complete(ctx, tenant, o.ID, actor)
			require.ErrorIs(t, err, ErrInvalidTransition)
			require.ErrorIs(t, err, inventory.ErrFulfillmentClosed)

			got, err := f.svc.Get(ctx, tenant, o.ID)
			require.NoError(t, err)
			require.Equal(t, StatusProcessing, got.Status)
			require.Equal(t, int64(20), f.inv.Quantity(keyA))
			require.Len(t, f.inv.Movements(), 4)
			require.Zero(t, f.counter(t, "odyssey_inventory_sync_failures_total", nil))
		})
	}
}

func TestUpdateStatusRejectsUnknownTarget(t *testing.T) {
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)

	_, err := f.svc.UpdateStatus(context.Background(), tenant, o.ID, actor, "shipped")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(context.Background(), tenant, 404, actor, StatusProcessing)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStrictModeRollsBackOnInventoryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)
	boom := errors.New("ledger unavailable")
	f.inv.FailInsert = func(m inventory.Movement) error {
		if m.ProductID == productB {
			return boom
		}
		return nil
	}

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.ErrorIs(t, err, boom)

	got, err := f.svc.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, int64(20), f.inv.Quantity(keyA))
	require.Empty(t, f.inv.Movements())
	require.Equal(t, 1.0, f.counter(t, "odyssey_order_transitions_total", map[string]string{"result": "failed"}))
}

func TestBestEffortModeKeepsStatusOnInventoryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeBestEffort, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)
	f.inv.FailInsert = func(inventory.Movement) error { return errors.New("ledger unavailable") }

	completed, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Empty(t, f.inv.Movements())
	require.Equal(t, int64(20), f.inv.Quantity(keyA))
	require.Equal(t, 1.0, f.counter(t, "odyssey_inventory_sync_failures_total", map[string]string{"operation": "deduct"}))

	f.inv.FailInsert = nil
	_, err = f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Empty(t, f.inv.Movements(), "restore without out movements is a no-op")
}

func TestBestEffortModeAppliesInventoryAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeBestEffort, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, int64(15), f.inv.Quantity(keyA))

	_, err = f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, int64(20), f.inv.Quantity(keyA))
	require.Len(t, f.inv.Movements(), 4)
}

// interleavingStore runs hook once, right before the WithTx call numbered at.
type interleavingStore struct {
	Store
	calls int
	at    int
	hook  func()
}

func (s *interleavingStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.calls++
	if s.calls == s.at && s.hook != nil {
		hook := s.hook
		s.hook = nil
		hook()
	}
	return s.Store.WithTx(ctx, fn)
}

func TestBestEffortDropsDeductionWhenOrderCancelledFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeBestEffort, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)

	var cancelErr error
	// Call 1 commits the completion, call 2 is its deferred deduction.
	f.svc.store = &interleavingStore{Store: f.store, at: 2, hook: func() {
		_, cancelErr = f.svc.Cancel(ctx, tenant, o.ID, actor)
	}}

	completed, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NoError(t, cancelErr)

	got, err := f.svc.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.Equal(t, int64(20), f.inv.Quantity(keyA))
	require.Equal(t, int64(10), f.inv.Quantity(keyB))
	require.Empty(t, f.inv.Movements())
	require.Equal(t, 1.0, f.counter(t, "odyssey_inventory_sync_skipped_total", map[string]string{"operation": "deduct"}))
	require.Zero(t, f.counter(t, "odyssey_inventory_sync_failures_total", nil))
}

func TestBestEffortDropsRestoreWhenOrderRecompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeBestEffort, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, int64(15), f.inv.Quantity(keyA))

	var recompleteErr error
	f.svc.store = &interleavingStore{Store: f.store, at: 2, hook: func() {
		_, recompleteErr = f.svc.Complete(ctx, tenant, o.ID, actor)
	}}

	_, err = f.svc.UpdateStatus(ctx, tenant, o.ID, actor, StatusProcessing)
	require.NoError(t, err)
	require.NoError(t, recompleteErr)

	got, err := f.svc.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, int64(15), f.inv.Quantity(keyA), "stock stays taken for the completed order")
	require.Len(t, f.inv.Movements(), 2)
	require.Equal(t, 1.0, f.counter(t, "odyssey_inventory_sync_skipped_total", map[string]string{"operation": "restore"}))
}

func TestConcurrentCompleteDeductsOnce(t *testing.T) {
	for _, mode := range []Mode{ModeStrict, ModeBestEffort} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, mode, inventory.ShortfallFloor)
			o := f.createOrder(t, tenant)

			const workers = 8
			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = f.svc.Complete(ctx, tenant, o.ID, actor)
				}(i)
			}
			wg.Wait()

			applied := 0
			for _, err := range errs {
				if err == nil {
					applied++
					continue
				}
				require.ErrorIs(t, err, ErrAlreadyInState)
			}
			require.Equal(t, 1, applied)
			require.Equal(t, int64(15), f.inv.Quantity(keyA))
			require.Equal(t, int64(8), f.inv.Quantity(keyB))
			require.Len(t, f.inv.Movements(), 2)
		})
	}
}

func TestCancelVoidsIssuedReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	receiptService := receipts.NewService(newMemoryReceipts(), nil, logger)
	f.svc.SetVoider(receipts.NewCascade(receiptService, nil, observability.NewFulfillment(prometheus.NewRegistry()), logger))
	o := f.createOrder(t, tenant)

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	rc, err := receiptService.Issue(ctx, receipts.IssueRequest{TenantID: tenant, OrderID: o.ID, ActorID: actor, Number: "RC-" + o.OrderNumber, Amount: o.Amount})
	require.NoError(t, err)
	require.Equal(t, receipts.StatusActive, rc.Status)

	_, err = f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.NoError(t, err)

	got, err := receiptService.Get(ctx, tenant, rc.ID)
	require.NoError(t, err)
	require.Equal(t, receipts.StatusVoided, got.Status)
	require.Contains(t, got.VoidReason, o.OrderNumber)
	require.Contains(t, got.VoidReason, "cancelled")
	require.NotNil(t, got.VoidedBy)
	require.Equal(t, actor, *got.VoidedBy)
	require.Equal(t, int64(20), f.inv.Quantity(keyA))
}

func TestFloorPolicyCountsShortfall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	f.inv.SetQuantity(keyA, 3)
	o := f.createOrder(t, tenant)

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, int64(0), f.inv.Quantity(keyA))
	require.Equal(t, int64(5), f.inv.Movements()[0].Quantity)
	require.Equal(t, 2.0, f.counter(t, "odyssey_stock_shortfall_units_total", nil))
}

func TestRejectPolicyKeepsOrderPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallReject)
	f.inv.SetQuantity(keyA, 3)
	o := f.createOrder(t, tenant)

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	got, err := f.svc.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, int64(10), f.inv.Quantity(keyB))
}

func TestSideEffectFailuresDoNotFailTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	audit := &failingAudit{}
	f.svc.SetAudit(audit)
	f.notifier.err = errors.New("queue down")
	f.voider.err = &receipts.PartialCascadeError{OrderID: 1, Failures: map[int64]error{3: errors.New("timeout")}}
	o := f.createOrder(t, tenant)

	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.Equal(t, 2, audit.calls)
}

func TestLeaseContention(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	f.svc.SetLocker(shared.NewLeaseManager(client, shared.LeaseOptions{}))
	o := f.createOrder(t, tenant)

	require.NoError(t, mr.Set(shared.OrderLockKey(tenant, o.ID), "someone-else"))
	_, err := f.svc.Complete(ctx, tenant, o.ID, actor)
	require.ErrorIs(t, err, ErrOrderBusy)
	require.Equal(t, 1.0, f.counter(t, "odyssey_order_lease_contention_total", nil))

	mr.Del(shared.OrderLockKey(tenant, o.ID))
	_, err = f.svc.Complete(ctx, tenant, o.ID, actor)
	require.NoError(t, err)
	require.False(t, mr.Exists(shared.OrderLockKey(tenant, o.ID)), "lease is released after the transition")
}

func TestCreateRetriesOrderNumberCollision(t *testing.T) {
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	f.store.takenNos["SO-TAKEN"] = true
	numbers := []string{"SO-TAKEN", "SO-TAKEN", "SO-FREE"}
	f.svc.newNumber = func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	o := f.createOrder(t, tenant)
	require.Equal(t, "SO-FREE", o.OrderNumber)
	require.True(t, o.Amount.Equal(decimal.NewFromInt(77800)), o.Amount.String())
	require.True(t, o.TaxAmount.Equal(decimal.NewFromInt(10800)), o.TaxAmount.String())
	require.Len(t, o.Lines, 2)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	f.store.takenNos["SO-TAKEN"] = true
	f.svc.newNumber = func(time.Time) string { return "SO-TAKEN" }

	_, err := f.svc.Create(context.Background(), CreateRequest{TenantID: tenant, Lines: []LineInput{{ProductID: productA, Quantity: 1}}})
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestGeneratedOrderNumberFormat(t *testing.T) {
	n := generateOrderNumber(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	require.Regexp(t, `^SO-20240309-[0-9A-F]{6}$`, n)
}
