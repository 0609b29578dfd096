package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/receipts"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Mode decides how inventory failures interact with a status change.
type Mode string

const (
	// ModeStrict commits the status only together with its inventory effect.
	ModeStrict Mode = "strict"
	// ModeBestEffort commits the status first and applies inventory afterwards,
	// logging and counting failures.
	ModeBestEffort Mode = "best-effort"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeStrict || m == ModeBestEffort
}

// Config tunes the order service.
type Config struct {
	Mode     Mode
	LeaseTTL time.Duration
}

// InventoryPort is the inventory surface transitions depend on. The adjuster
// always runs on the transaction of the order store.
type InventoryPort interface {
	Adjuster() *inventory.Adjuster
}

// Voider voids the active receipts of an order.
type Voider interface {
	VoidForOrder(ctx context.Context, tenantID, orderID, actorID int64, reason string) (int, error)
}

// Notifier is told about committed transitions.
type Notifier interface {
	NotifyOrderStatus(ctx context.Context, change StatusChange) error
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker hands out per-order leases across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (shared.Lease, error)
	Release(ctx context.Context, lease shared.Lease) error
}

const maxNumberAttempts = 5

// Service runs the order lifecycle.
type Service struct {
	store     Store
	inventory InventoryPort
	cfg       Config
	logger    *slog.Logger

	voider   Voider
	notifier Notifier
	audit    AuditPort
	locker   Locker
	metrics  *observability.Fulfillment

	now       func() time.Time
	newNumber func(time.Time) string
}

// NewService builds the order service. Unknown modes fall back to strict.
func NewService(store Store, inv InventoryPort, cfg Config, logger *slog.Logger) *Service {
	if !cfg.Mode.Valid() {
		cfg.Mode = ModeStrict
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		inventory: inv,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newNumber: generateOrderNumber,
	}
}

// SetVoider wires the receipt cascade.
func (s *Service) SetVoider(v Voider) { s.voider = v }

// SetNotifier wires status notifications.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetAudit wires audit logging.
func (s *Service) SetAudit(a AuditPort) { s.audit = a }

// SetLocker enables per-order leases.
func (s *Service) SetLocker(l Locker) { s.locker = l }

// SetMetrics wires fulfillment metrics.
func (s *Service) SetMetrics(m *observability.Fulfillment) { s.metrics = m }

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("SO-%s-%s", now.Format("20060102"), suffix)
}

// Create records a pending order. It has no inventory effect.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Order, error) {
	if req.TenantID <= 0 {
		return Order{}, shared.ErrTenantRequired
	}
	lines, amount, tax, discount, err := CalculateTotals(req.Lines)
	if err != nil {
		return Order{}, err
	}
	now := s.now()
	order := Order{
		TenantID:       req.TenantID,
		CustomerID:     req.CustomerID,
		Amount:         amount,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		CreatedBy:      req.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Lines:          lines,
	}
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		order.OrderNumber = s.newNumber(now)
		created, err := s.store.Create(ctx, order)
		if errors.Is(err, ErrDuplicateNumber) {
			s.logger.Debug("order number collision", slog.String("order_number", order.OrderNumber), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Order{}, fmt.Errorf("create order: %w", err)
		}
		return created, nil
	}
	return Order{}, fmt.Errorf("create order: %w after %d attempts", ErrDuplicateNumber, maxNumberAttempts)
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (Order, error) {
	return s.store.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	if filter.TenantID <= 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.store.List(ctx, filter)
}

// Complete fulfils the order and takes its lines out of stock.
func (s *Service) Complete(ctx context.Context, tenantID, orderID, actorID int64) (Order, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, ActorID: actorID, Target: StatusCompleted})
}

// Cancel cancels the order from any state but cancelled or refunded.
func (s *Service) Cancel(ctx context.Context, tenantID, orderID, actorID int64) (Order, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, ActorID: actorID, Target: StatusCancelled})
}

// UpdateStatus moves the order to target.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, orderID, actorID int64, target Status) (Order, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, ActorID: actorID, Target: target})
}

// Transition validates and executes one status change together with its
// inventory effect, then informs audit, notification and the receipt cascade.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (Order, error) {
	if req.TenantID <= 0 {
		return Order{}, shared.ErrTenantRequired
	}
	if req.OrderID <= 0 {
		return Order{}, ErrNotFound
	}

	if s.locker != nil {
		lease, err := s.locker.Acquire(ctx, shared.OrderLockKey(req.TenantID, req.OrderID), s.cfg.LeaseTTL)
		if err != nil {
			if errors.Is(err, shared.ErrLeaseHeld) {
				s.metrics.LeaseContended()
				return Order{}, fmt.Errorf("%w: order %d", ErrOrderBusy, req.OrderID)
			}
			return Order{}, err
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
				s.logger.Warn("release order lease", slog.String("key", lease.Key), slog.Any("error", err))
			}
		}()
	}

	var (
		order  Order
		from   Status
		effect Effect
		result inventory.Result
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		current, err := tx.GetForUpdate(ctx, req.TenantID, req.OrderID)
		if err != nil {
			return err
		}
		from = current.Status
		effect, err = Plan(current.Status, req.Target)
		if err != nil {
			return err
		}
		result, err = s.applyInTx(ctx, tx.Inventory(), current, req, effect)
		if err != nil {
			return err
		}
		now := s.now()
		payment := settlePayment(req.Target, current.PaymentStatus)
		if err := tx.UpdateStatus(ctx, req.TenantID, req.OrderID, req.Target, payment, now); err != nil {
			return err
		}
		current.Status = req.Target
		current.PaymentStatus = payment
		current.UpdatedAt = now
		order = current
		return nil
	})
	if err != nil {
		label := string(from)
		if label == "" {
			label = "unknown"
		}
		s.metrics.ObserveTransition(label, string(req.Target), transitionResult(err))
		return Order{}, err
	}
	s.metrics.ObserveTransition(string(from), string(req.Target), observability.ResultApplied)

	post := context.WithoutCancel(ctx)
	if s.cfg.Mode == ModeBestEffort {
		result = s.applyDetached(post, order, req, effect)
	}
	s.metrics.StockShortfall(result.Shortfall)
	if result.Shortfall > 0 {
		s.logger.Warn("order fulfilled with stock shortfall",
			slog.Int64("tenant_id", req.TenantID),
			slog.Int64("order_id", req.OrderID),
			slog.Int64("units", result.Shortfall),
		)
	}
	s.afterCommit(post, order, from, req, effect, result)
	return order, nil
}

// applyInTx runs the inventory effect inside the transition transaction. In
// best-effort mode only the preconditions of a deduction are checked here: the
// order must not have been fulfilled and reversed, and a warehouse must exist.
func (s *Service) applyInTx(ctx context.Context, tx inventory.TxRepository, order Order, req TransitionRequest, effect Effect) (inventory.Result, error) {
	adjuster := s.inventory.Adjuster()
	var (
		result inventory.Result
		err    error
	)
	switch {
	case effect == EffectDeduct && s.cfg.Mode == ModeStrict:
		result, err = adjuster.Deduct(ctx, tx, deductRequest(order, req))
	case effect == EffectDeduct:
		if _, err = adjuster.CheckFulfillment(ctx, tx, req.TenantID, order.ID); err == nil {
			_, err = adjuster.ResolveWarehouse(ctx, tx, req.TenantID)
		}
	case effect == EffectRestore && s.cfg.Mode == ModeStrict:
		result, err = adjuster.Restore(ctx, tx, restoreRequest(order, req))
	}
	if errors.Is(err, inventory.ErrFulfillmentClosed) {
		return result, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}
	return result, err
}

// applyDetached runs the inventory effect after the status committed, under a
// fresh lock on the order row. The effect is dropped when the order has left
// the committed status meanwhile; the transition that moved it owns the stock
// from then on. Failures are logged and counted, never returned.
func (s *Service) applyDetached(ctx context.Context, order Order, req TransitionRequest, effect Effect) inventory.Result {
	if effect == EffectNone {
		return inventory.Result{}
	}
	var (
		result  inventory.Result
		skipped bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		current, err := tx.GetForUpdate(ctx, req.TenantID, order.ID)
		if err != nil {
			return err
		}
		if current.Status != order.Status {
			skipped = true
			return nil
		}
		adjuster := s.inventory.Adjuster()
		switch effect {
		case EffectDeduct:
			result, err = adjuster.Deduct(ctx, tx.Inventory(), deductRequest(order, req))
		case EffectRestore:
			result, err = adjuster.Restore(ctx, tx.Inventory(), restoreRequest(order, req))
		}
		return err
	})
	switch {
	case err != nil:
		s.metrics.InventorySyncFailed(effect.String())
		s.logger.Error("inventory sync failed after status change",
			slog.Int64("tenant_id", req.TenantID),
			slog.Int64("order_id", req.OrderID),
			slog.String("operation", effect.String()),
			slog.Any("error", err),
		)
		return inventory.Result{}
	case skipped:
		s.metrics.InventorySyncSkipped(effect.String())
		s.logger.Warn("inventory sync skipped, order changed status",
			slog.Int64("tenant_id", req.TenantID),
			slog.Int64("order_id", req.OrderID),
			slog.String("operation", effect.String()),
			slog.String("expected", string(order.Status)),
		)
		return inventory.Result{}
	}
	return result
}

func deductRequest(order Order, req TransitionRequest) inventory.DeductRequest {
	return inventory.DeductRequest{
		TenantID: req.TenantID,
		OrderID:  order.ID,
		ActorID:  req.ActorID,
		Lines:    order.InventoryLines(),
		Note:     "order " + order.OrderNumber + " completed",
	}
}

func restoreRequest(order Order, req TransitionRequest) inventory.RestoreRequest {
	return inventory.RestoreRequest{
		TenantID: req.TenantID,
		OrderID:  order.ID,
		ActorID:  req.ActorID,
		Note:     fmt.Sprintf("order %s status changed to %s", order.OrderNumber, req.Target),
	}
}

func (s *Service) afterCommit(ctx context.Context, order Order, from Status, req TransitionRequest, effect Effect, result inventory.Result) {
	if s.audit != nil {
		meta := map[string]any{
			"from":           from,
			"to":             order.Status,
			"payment_status": order.PaymentStatus,
			"inventory":      effect.String(),
		}
		if result.WarehouseID > 0 {
			meta["warehouse_id"] = result.WarehouseID
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			TenantID: req.TenantID,
			ActorID:  req.ActorID,
			Action:   "order:status",
			Entity:   "order",
			EntityID: strconv.FormatInt(order.ID, 10),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit order transition", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyOrderStatus(ctx, StatusChange{
			TenantID:    req.TenantID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        from,
			To:          order.Status,
			ActorID:     req.ActorID,
		}); err != nil {
			s.logger.Warn("notify order status", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}

	if effect == EffectRestore && s.voider != nil {
		reason := fmt.Sprintf("order %s status changed to %s", order.OrderNumber, order.Status)
		voided, err := s.voider.VoidForOrder(ctx, req.TenantID, order.ID, req.ActorID, reason)
		var partial *receipts.PartialCascadeError
		switch {
		case errors.As(err, &partial):
			s.logger.Warn("receipt cascade incomplete",
				slog.Int64("order_id", order.ID),
				slog.Int("voided", voided),
				slog.Int("failed", len(partial.Failures)),
				slog.Any("error", err),
			)
		case err != nil:
			s.logger.Error("receipt cascade failed", slog.Int64("order_id", order.ID), slog.Any("error", err))
		case voided > 0:
			s.logger.Info("receipts voided", slog.Int64("order_id", order.ID), slog.Int("count", voided))
		}
	}

	s.logger.Info("order status changed",
		slog.Int64("tenant_id", req.TenantID),
		slog.Int64("order_id", order.ID),
		slog.String("from", string(from)),
		slog.String("to", string(order.Status)),
	)
}

func transitionResult(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyInState):
		return observability.ResultNoop
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotFound),
		errors.Is(err, warehouses.ErrNoWarehouseAvailable), errors.Is(err, inventory.ErrInsufficientStock):
		return observability.ResultRejected
	}
	return observability.ResultFailed
}
