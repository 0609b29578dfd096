package app

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	_ "github.com/odyssey-erp/odyssey-pos/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.InventoryMode)
	assert.Equal(t, "floor", cfg.ShortfallPolicy)
	assert.Equal(t, 10*time.Second, cfg.OrderLeaseTTL)
	assert.Equal(t, 3, cfg.TxMaxRetries)
	assert.Equal(t, orders.Config{Mode: orders.ModeStrict, LeaseTTL: 10 * time.Second}, cfg.OrdersConfig())
}

func TestLoadConfigRejectsUnknownSettings(t *testing.T) {
	t.Setenv("FULFILLMENT_INVENTORY_MODE", "eventually")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "FULFILLMENT_INVENTORY_MODE")

	t.Setenv("FULFILLMENT_INVENTORY_MODE", "best-effort")
	t.Setenv("STOCK_SHORTFALL_POLICY", "negative")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "STOCK_SHORTFALL_POLICY")

	t.Setenv("STOCK_SHORTFALL_POLICY", "reject")
	t.Setenv("TX_MAX_RETRIES", "-1")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "TX_MAX_RETRIES")

	t.Setenv("TX_MAX_RETRIES", "2")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, orders.ModeBestEffort, cfg.OrdersConfig().Mode)
}

func TestIdentityMiddleware(t *testing.T) {
	var got shared.Identity
	var ok bool
	h := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = shared.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTenantID, "12")
	req.Header.Set(HeaderActorID, "40")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, ok)
	assert.Equal(t, shared.Identity{TenantID: 12, ActorID: 40}, got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTenantID, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, ok)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	var buf bytes.Buffer
	ready := error(nil)
	router := NewRouter(RouterParams{
		Logger:  newLogger(&Config{LogFormat: "json"}, &buf),
		Config:  &Config{RateLimitPerMin: 100},
		Metrics: observability.NewMetrics(),
		Ready:   func(*http.Request) error { return ready },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	ready = errors.New("pool closed")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, buf.String(), "readiness check failed")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "odyssey_http_requests_total"))
}

func TestRouterRateLimits(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	router := NewRouter(RouterParams{
		Logger: newLogger(nil, &bytes.Buffer{}),
		Config: &Config{RateLimitPerMin: 2},
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRefreshTestMode(t *testing.T) {
	t.Cleanup(RefreshTestMode)
	for value, want := range map[string]bool{"1": true, "TRUE": true, " true ": true, "0": false, "": false, "yes": false} {
		t.Setenv(TestModeEnv, value)
		RefreshTestMode()
		assert.Equal(t, want, InTestMode(), "value %q", value)
	}
}
