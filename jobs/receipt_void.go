package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/receipts"
)

// ReceiptVoider voids a single receipt.
type ReceiptVoider interface {
	Void(ctx context.Context, req receipts.VoidRequest) (receipts.Receipt, error)
}

// ReceiptVoidJob retries receipt voids left over by a partial cascade.
type ReceiptVoidJob struct {
	Receipts ReceiptVoider
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewReceiptVoidJob wires the retry handler.
func NewReceiptVoidJob(voider ReceiptVoider, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReceiptVoidJob {
	return &ReceiptVoidJob{Receipts: voider, Logger: logger, Metrics: metrics}
}

// Handle processes TaskReceiptVoidRetry tasks. Receipts that are already voided
// or gone complete the task; other errors leave it to asynq's retry schedule.
func (j *ReceiptVoidJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Receipts == nil {
		return errors.New("receipt void: handler not configured")
	}
	var req receipts.VoidRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil || req.TenantID <= 0 || req.ReceiptID <= 0 {
		j.metrics().Skip(TaskReceiptVoidRetry, "payload")
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReceiptVoidRetry)
	logger := j.logger().With(slog.Int64("tenant_id", req.TenantID), slog.Int64("receipt_id", req.ReceiptID))

	_, err := j.Receipts.Void(ctx, req)
	switch {
	case err == nil:
		logger.Info("receipt voided on retry")
	case errors.Is(err, receipts.ErrAlreadyVoided):
		logger.Info("receipt already voided")
		err = nil
	case errors.Is(err, receipts.ErrNotFound):
		logger.Warn("receipt vanished before retry")
		j.metrics().Skip(TaskReceiptVoidRetry, "not_found")
		err = nil
	default:
		logger.Error("receipt void retry failed", slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *ReceiptVoidJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReceiptVoidJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
