package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesFulfillmentCounters(t *testing.T) {
	body := scrape(t, NewMetrics())
	require.Contains(t, body, "odyssey_receipt_void_failures_total 0")
	require.Contains(t, body, "odyssey_stock_shortfall_units_total 0")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/orders/{id}/complete")

	req := httptest.NewRequest(http.MethodPost, "/orders/1/complete", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_http_requests_total{code="418",route="/orders/{id}/complete"} 1`)
	require.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/orders/{id}/complete"`)
}

func TestFulfillmentCounters(t *testing.T) {
	metrics := NewMetrics()
	f := metrics.Fulfillment()

	f.ObserveTransition("pending", "completed", ResultApplied)
	f.ObserveTransition("completed", "completed", ResultNoop)
	f.InventorySyncFailed("deduct")
	f.InventorySyncSkipped("restore")
	f.ReceiptVoidsFailed(2)
	f.StockShortfall(3)
	f.StockShortfall(-1)
	f.LeaseContended()

	body := scrape(t, metrics)
	require.Contains(t, body, `odyssey_order_transitions_total{from="pending",result="applied",to="completed"} 1`)
	require.Contains(t, body, `odyssey_order_transitions_total{from="completed",result="noop",to="completed"} 1`)
	require.Contains(t, body, `odyssey_inventory_sync_failures_total{operation="deduct"} 1`)
	require.Contains(t, body, `odyssey_inventory_sync_skipped_total{operation="restore"} 1`)
	require.Contains(t, body, "odyssey_receipt_void_failures_total 2")
	require.Contains(t, body, "odyssey_stock_shortfall_units_total 3")
	require.Contains(t, body, "odyssey_order_lease_contention_total 1")
}

func TestNilFulfillmentIsNoop(t *testing.T) {
	var f *Fulfillment
	require.NotPanics(t, func() {
		f.ObserveTransition("a", "b", ResultFailed)
		f.InventorySyncFailed("restore")
		f.InventorySyncSkipped("deduct")
		f.ReceiptVoidsFailed(1)
		f.StockShortfall(1)
		f.LeaseContended()
	})
	var m *Metrics
	require.Nil(t, m.Fulfillment())
	require.True(t, strings.HasPrefix(scrapeNil(m), "Service Unavailable"))
}

func scrapeNil(m *Metrics) string {
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}
