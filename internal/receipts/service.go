package receipts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts receipt persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, rc Receipt) (Receipt, error)
	Get(ctx context.Context, tenantID, id int64) (Receipt, error)
	ListByOrder(ctx context.Context, tenantID, orderID int64, status Status) ([]Receipt, error)
	Void(ctx context.Context, req VoidRequest, at time.Time) (Receipt, error)
}

// AuditPort records audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service issues and voids receipts.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a receipts service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Issue records a new active receipt.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Receipt, error) {
	if req.TenantID <= 0 {
		return Receipt{}, shared.ErrTenantRequired
	}
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return Receipt{}, fmt.Errorf("%w: number required", ErrInvalidReceipt)
	}
	if req.Amount.IsNegative() {
		return Receipt{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidReceipt)
	}
	return s.repo.Insert(ctx, Receipt{
		TenantID: req.TenantID,
		OrderID:  req.OrderID,
		Number:   number,
		Amount:   req.Amount,
		Status:   StatusActive,
		IssuedBy: req.ActorID,
		IssuedAt: s.now(),
	})
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (Receipt, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) ListByOrder(ctx context.Context, tenantID, orderID int64) ([]Receipt, error) {
	return s.repo.ListByOrder(ctx, tenantID, orderID, "")
}

// Void voids one receipt. A voided receipt cannot be voided again.
func (s *Service) Void(ctx context.Context, req VoidRequest) (Receipt, error) {
	if req.TenantID <= 0 {
		return Receipt{}, shared.ErrTenantRequired
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return Receipt{}, fmt.Errorf("%w: void reason required", ErrInvalidReceipt)
	}
	rc, err := s.repo.Void(ctx, req, s.now())
	if err != nil {
		return Receipt{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			TenantID: req.TenantID,
			ActorID:  req.ActorID,
			Action:   "receipt:void",
			Entity:   "receipt",
			EntityID: strconv.FormatInt(rc.ID, 10),
			Meta:     map[string]any{"reason": req.Reason, "order_id": rc.OrderID},
		}); err != nil {
			s.logger.Warn("audit receipt void", slog.Int64("receipt_id", rc.ID), slog.Any("error", err))
		}
	}
	return rc, nil
}
