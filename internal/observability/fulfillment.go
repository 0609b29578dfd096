package observability

import "github.com/prometheus/client_golang/prometheus"

// Transition outcomes reported to odyssey_order_transitions_total.
const (
	ResultApplied  = "applied"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Fulfillment exposes counters for order lifecycle transitions and their
// inventory and receipt side effects. A nil *Fulfillment is a valid no-op.
type Fulfillment struct {
	transitions       *prometheus.CounterVec
	inventoryFailures *prometheus.CounterVec
	inventorySkipped  *prometheus.CounterVec
	voidFailures      prometheus.Counter
	shortfallUnits    prometheus.Counter
	leaseContention   prometheus.Counter
}

// NewFulfillment registers the collectors against registerer.
func NewFulfillment(registerer prometheus.Registerer) *Fulfillment {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_order_transitions_total",
		Help: "Order status transitions partitioned by source, target and outcome.",
	}, []string{"from", "to", "result"})
	inventoryFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_sync_failures_total",
		Help: "Inventory adjustments that failed after the order status was committed.",
	}, []string{"operation"})
	inventorySkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_inventory_sync_skipped_total",
		Help: "Deferred inventory adjustments dropped because the order changed status first.",
	}, []string{"operation"})
	voidFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_receipt_void_failures_total",
		Help: "Receipts that could not be voided during an order unwind.",
	})
	shortfall := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_stock_shortfall_units_total",
		Help: "Units requested by fulfillment that were not available in stock.",
	})
	contention := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_order_lease_contention_total",
		Help: "Transitions rejected because another instance held the order lease.",
	})
	registerer.MustRegister(transitions, inventoryFailures, inventorySkipped, voidFailures, shortfall, contention)
	return &Fulfillment{
		transitions:       transitions,
		inventoryFailures: inventoryFailures,
		inventorySkipped:  inventorySkipped,
		voidFailures:      voidFailures,
		shortfallUnits:    shortfall,
		leaseContention:   contention,
	}
}

// ObserveTransition counts one transition attempt.
func (f *Fulfillment) ObserveTransition(from, to, result string) {
	if f == nil {
		return
	}
	f.transitions.WithLabelValues(from, to, result).Inc()
}

// InventorySyncFailed counts a swallowed inventory failure for operation (deduct or restore).
func (f *Fulfillment) InventorySyncFailed(operation string) {
	if f == nil {
		return
	}
	f.inventoryFailures.WithLabelValues(operation).Inc()
}

// InventorySyncSkipped counts a deferred adjustment dropped because the order moved on.
func (f *Fulfillment) InventorySyncSkipped(operation string) {
	if f == nil {
		return
	}
	f.inventorySkipped.WithLabelValues(operation).Inc()
}

// ReceiptVoidsFailed adds n failed receipt voids.
func (f *Fulfillment) ReceiptVoidsFailed(n int) {
	if f == nil || n <= 0 {
		return
	}
	f.voidFailures.Add(float64(n))
}

// StockShortfall adds units that fulfillment could not take from stock.
func (f *Fulfillment) StockShortfall(units int64) {
	if f == nil || units <= 0 {
		return
	}
	f.shortfallUnits.Add(float64(units))
}

// LeaseContended counts a transition turned away by the order lease.
func (f *Fulfillment) LeaseContended() {
	if f == nil {
		return
	}
	f.leaseContention.Inc()
}
