package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/receipts"
	"github.com/odyssey-erp/odyssey-pos/internal/sales/orders"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical holds retries that keep documents consistent with orders.
	QueueCritical = "critical"

	// TaskOrderStatusNotify informs downstream channels about an order status change.
	TaskOrderStatusNotify = "orders:status_notify"
	// TaskReceiptVoidRetry retries a receipt void that failed during an order unwind.
	TaskReceiptVoidRetry = "receipts:void_retry"
	// TaskLedgerReconcile replays the stock ledger and reports projection drift.
	TaskLedgerReconcile = "inventory:ledger_reconcile"
)

// LedgerReconcilePayload scopes a reconcile run. A zero TenantID covers every tenant.
type LedgerReconcilePayload struct {
	TenantID     int64     `json:"tenant_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOrderStatusTask constructs a notification task.
func NewOrderStatusTask(change orders.StatusChange) (*asynq.Task, error) {
	body, err := json.Marshal(change)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderStatusNotify, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewReceiptVoidTask constructs a retry task. The task id dedupes retries of the same receipt.
func NewReceiptVoidTask(req receipts.VoidRequest) (*asynq.Task, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceiptVoidRetry, body,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
		asynq.TaskID(fmt.Sprintf("receipt-void:%d:%d", req.TenantID, req.ReceiptID)),
	), nil
}

// NewLedgerReconcileTask constructs a reconcile task.
func NewLedgerReconcileTask(tenantID int64, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerReconcilePayload{TenantID: tenantID, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
