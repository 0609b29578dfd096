package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
)

// RetryQueue schedules a later attempt for a receipt the cascade could not void.
type RetryQueue interface {
	EnqueueReceiptVoid(ctx context.Context, req VoidRequest) error
}

// PartialCascadeError lists receipts of an order that stayed active after a cascade.
type PartialCascadeError struct {
	OrderID  int64
	Voided   []int64
	Failures map[int64]error
}

func (e *PartialCascadeError) Error() string {
	ids := make([]int64, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("receipts: order %d: %d of %d voids failed (%s)",
		e.OrderID, len(e.Failures), len(e.Failures)+len(e.Voided), strings.Join(parts, "; "))
}

func (e *PartialCascadeError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}

// Cascade voids the active receipts of an order whose completion was undone.
type Cascade struct {
	service *Service
	retry   RetryQueue
	metrics *observability.Fulfillment
	logger  *slog.Logger
}

// NewCascade builds a Cascade. retry and metrics may be nil.
func NewCascade(service *Service, retry RetryQueue, metrics *observability.Fulfillment, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{service: service, retry: retry, metrics: metrics, logger: logger}
}

// VoidForOrder voids every active receipt of the order independently and
// returns how many were voided. Failed receipts are handed to the retry queue
// and reported together as a *PartialCascadeError.
func (c *Cascade) VoidForOrder(ctx context.Context, tenantID, orderID, actorID int64, reason string) (int, error) {
	active, err := c.service.repo.ListByOrder(ctx, tenantID, orderID, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("receipts: list for order %d: %w", orderID, err)
	}
	partial := &PartialCascadeError{OrderID: orderID, Failures: map[int64]error{}}
	for _, rc := range active {
		req := VoidRequest{TenantID: tenantID, ReceiptID: rc.ID, ActorID: actorID, Reason: reason}
		_, err := c.service.Void(ctx, req)
		switch {
		case err == nil:
			partial.Voided = append(partial.Voided, rc.ID)
		case errors.Is(err, ErrAlreadyVoided):
			// voided concurrently
		default:
			partial.Failures[rc.ID] = err
			c.logger.Warn("receipt void failed",
				slog.Int64("tenant_id", tenantID),
				slog.Int64("order_id", orderID),
				slog.Int64("receipt_id", rc.ID),
				slog.Any("error", err),
			)
			if c.retry != nil {
				if qErr := c.retry.EnqueueReceiptVoid(ctx, req); qErr != nil {
					c.logger.Error("enqueue receipt void retry", slog.Int64("receipt_id", rc.ID), slog.Any("error", qErr))
				}
			}
		}
	}
	if len(partial.Failures) > 0 {
		c.metrics.ReceiptVoidsFailed(len(partial.Failures))
		return len(partial.Voided), partial
	}
	return len(partial.Voided), nil
}
