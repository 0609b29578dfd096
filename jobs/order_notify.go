package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/sales/orders"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OrderNotifyJob emits order status notifications. Delivery channels consume
// the structured log stream.
type OrderNotifyJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOrderNotifyJob wires the notification handler.
func NewOrderNotifyJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *OrderNotifyJob {
	return &OrderNotifyJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskOrderStatusNotify tasks.
func (j *OrderNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("order notify: handler not configured")
	}
	var change orders.StatusChange
	if err := json.Unmarshal(t.Payload(), &change); err != nil || change.OrderID <= 0 {
		j.metrics().Skip(TaskOrderStatusNotify, "payload")
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskOrderStatusNotify)
	j.logger().Info("order status notification",
		slog.Int64("tenant_id", change.TenantID),
		slog.Int64("order_id", change.OrderID),
		slog.String("order_number", change.OrderNumber),
		slog.String("from", string(change.From)),
		slog.String("to", string(change.To)),
	)
	return tracker.End(nil)
}

func (j *OrderNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OrderNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
