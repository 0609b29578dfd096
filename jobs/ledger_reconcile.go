package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// Reconciler replays the ledger against the stock projection.
type Reconciler interface {
	Reconcile(ctx context.Context, tenantID int64) (inventory.ReconcileReport, error)
}

// LedgerReconcileJob reports positions whose quantity drifted from the ledger.
type LedgerReconcileJob struct {
	Inventory Reconciler
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
}

// NewLedgerReconcileJob wires the reconcile handler.
func NewLedgerReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerReconcileJob {
	return &LedgerReconcileJob{Inventory: reconciler, Logger: logger, Metrics: metrics, Timeout: 5 * time.Minute}
}

// Handle processes TaskLedgerReconcile tasks. Drift is reported, never repaired.
func (j *LedgerReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	var payload LedgerReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			j.metrics().Skip(TaskLedgerReconcile, "payload")
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskLedgerReconcile)
	logger := j.logger().With(slog.Int64("tenant_id", payload.TenantID))
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	report, err := j.Inventory.Reconcile(ctx, payload.TenantID)
	if err != nil {
		logger.Error("ledger reconcile failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetLedgerDrift(len(report.Drifts))
	for _, d := range report.Drifts {
		logger.Warn("stock position drifted from ledger",
			slog.Int64("drift_tenant_id", d.Key.TenantID),
			slog.Int64("product_id", d.Key.ProductID),
			slog.Int64("warehouse_id", d.Key.WarehouseID),
			slog.Int64("ledger", d.Ledger),
			slog.Int64("position", d.Position),
		)
	}
	logger.Info("ledger reconcile completed", slog.Int("checked", report.Checked), slog.Int("drifts", len(report.Drifts)))
	return tracker.End(nil)
}

func (j *LedgerReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
