package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPosition(ctx context.Context, key PositionKey) (Position, error)
	ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	// Totals returns ledger sums and projected quantities read from one snapshot.
	Totals(ctx context.Context, tenantID int64) (ledger, positions map[PositionKey]int64, err error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims client supplied request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, tenantID int64, key, module string) error
	Delete(ctx context.Context, tenantID int64, key, module string) error
}

const idempotencyModule = "inventory"

// Service coordinates inventory operations that own their transaction.
type Service struct {
	repo        RepositoryPort
	adjuster    *Adjuster
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, adjuster *Adjuster, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if adjuster == nil {
		adjuster = NewAdjuster(ShortfallFloor)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, adjuster: adjuster, audit: audit, idempotency: idem, logger: logger}
}

// Adjuster exposes the adjuster for callers that run it in their own transaction.
func (s *Service) Adjuster() *Adjuster {
	return s.adjuster
}

// Deduct runs Adjuster.Deduct in a transaction of its own.
func (s *Service) Deduct(ctx context.Context, req DeductRequest) (Result, error) {
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.adjuster.Deduct(ctx, tx, req)
		return err
	})
	return result, err
}

// Restore runs Adjuster.Restore in a transaction of its own.
func (s *Service) Restore(ctx context.Context, req RestoreRequest) (Result, error) {
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.adjuster.Restore(ctx, tx, req)
		return err
	})
	return result, err
}

// PostInbound records stock received into a warehouse.
func (s *Service) PostInbound(ctx context.Context, input InboundInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, movementParams{
		TenantID:       input.TenantID,
		WarehouseID:    input.WarehouseID,
		ProductID:      input.ProductID,
		Delta:          input.Quantity,
		Type:           MovementIn,
		Kind:           RefInbound,
		Reference:      input.Reference,
		Note:           input.Note,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// PostAdjustment posts an adjustment which may be positive or negative.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.Quantity == 0 {
		return Movement{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, movementParams{
		TenantID:       input.TenantID,
		WarehouseID:    input.WarehouseID,
		ProductID:      input.ProductID,
		Delta:          input.Quantity,
		Type:           MovementAdjustment,
		Kind:           RefAdjustment,
		Reference:      input.Reference,
		Note:           input.Note,
		ActorID:        input.ActorID,
		IdempotencyKey: input.IdempotencyKey,
	})
}

type movementParams struct {
	TenantID       int64
	WarehouseID    int64
	ProductID      int64
	Delta          int64
	Type           MovementType
	Kind           ReferenceKind
	Reference      string
	Note           string
	ActorID        int64
	IdempotencyKey string
}

func (s *Service) postMovement(ctx context.Context, params movementParams) (Movement, error) {
	if params.TenantID <= 0 {
		return Movement{}, shared.ErrTenantRequired
	}
	if params.WarehouseID <= 0 || params.ProductID <= 0 {
		return Movement{}, errors.New("inventory: warehouse and product required")
	}
	if params.Reference == "" {
		return Movement{}, fmt.Errorf("%w: reference required", ErrInvalidReference)
	}

	claimed := false
	if s.idempotency != nil && params.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, params.TenantID, params.IdempotencyKey, idempotencyModule); err != nil {
			return Movement{}, err
		}
		claimed = true
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		active, err := tx.ListActive(ctx, params.TenantID)
		if err != nil {
			return err
		}
		if !containsWarehouse(active, params.WarehouseID) {
			return fmt.Errorf("%w: %d", ErrUnknownWarehouse, params.WarehouseID)
		}
		pos, err := tx.LockPosition(ctx, PositionKey{TenantID: params.TenantID, ProductID: params.ProductID, WarehouseID: params.WarehouseID})
		if err != nil {
			return err
		}
		if pos.Quantity+params.Delta < 0 {
			return fmt.Errorf("%w: product %d has %d, adjustment %d", ErrNegativeStock, params.ProductID, pos.Quantity, params.Delta)
		}
		now := s.adjuster.clock()
		pos.Quantity += params.Delta
		pos.LastUpdated = now
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}
		qty := params.Delta
		if qty < 0 {
			qty = -qty
		}
		movement, err = tx.InsertMovement(ctx, Movement{
			TenantID:      params.TenantID,
			ProductID:     params.ProductID,
			WarehouseID:   params.WarehouseID,
			Type:          params.Type,
			Quantity:      qty,
			Delta:         params.Delta,
			ReferenceKind: params.Kind,
			ReferenceID:   params.Reference,
			CreatedBy:     params.ActorID,
			Note:          params.Note,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		if claimed {
			if delErr := s.idempotency.Delete(ctx, params.TenantID, params.IdempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", params.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return Movement{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			TenantID: params.TenantID,
			ActorID:  params.ActorID,
			Action:   fmt.Sprintf("inventory:%s", params.Type),
			Entity:   "stock_movement",
			EntityID: strconv.FormatInt(movement.ID, 10),
			Meta: map[string]any{
				"warehouse_id": params.WarehouseID,
				"product_id":   params.ProductID,
				"delta":        params.Delta,
				"reference":    params.Reference,
				"note":         params.Note,
			},
		}); err != nil {
			s.logger.Warn("audit inventory movement", slog.Int64("movement_id", movement.ID), slog.Any("error", err))
		}
	}
	return movement, nil
}

func containsWarehouse(items []warehouses.Warehouse, id int64) bool {
	for _, w := range items {
		if w.ID == id {
			return true
		}
	}
	return false
}

// GetPosition returns one position, reporting zero stock for a key never moved.
func (s *Service) GetPosition(ctx context.Context, key PositionKey) (Position, error) {
	if key.TenantID <= 0 {
		return Position{}, shared.ErrTenantRequired
	}
	p, err := s.repo.GetPosition(ctx, key)
	if errors.Is(err, ErrPositionNotFound) {
		return Position{TenantID: key.TenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID}, nil
	}
	return p, err
}

// ListPositions lists positions of a tenant.
func (s *Service) ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	if filter.TenantID <= 0 {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListPositions(ctx, filter)
}

// ListMovements lists ledger rows.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.TenantID <= 0 {
		return nil, shared.ErrTenantRequired
	}
	if filter.ReferenceKind != "" && !filter.ReferenceKind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidReference, filter.ReferenceKind)
	}
	return s.repo.ListMovements(ctx, filter)
}

// Reconcile replays the ledger and compares it with the projection. A zero
// tenantID checks every tenant.
func (s *Service) Reconcile(ctx context.Context, tenantID int64) (ReconcileReport, error) {
	ledger, positions, err := s.repo.Totals(ctx, tenantID)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("inventory: reconcile: %w", err)
	}
	return CompareLedger(ledger, positions), nil
}
