package orders

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestHandlerTransitions(t *testing.T) {
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	o := f.createOrder(t, tenant)
	r := chi.NewRouter()
	r.Route("/orders", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{TenantID: tenant, ActorID: actor}))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, fmt.Sprintf("/orders/%d/complete", o.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"completed"`)

	rr = do(http.MethodPost, fmt.Sprintf("/orders/%d/complete", o.ID), "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(http.MethodPost, fmt.Sprintf("/orders/%d/status", o.ID), `{"status":"shipped"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPost, fmt.Sprintf("/orders/%d/status", o.ID), `{"status":"refunded"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodPost, fmt.Sprintf("/orders/%d/cancel", o.ID), "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(http.MethodPost, "/orders/9999/cancel", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerCreate(t *testing.T) {
	f := newFixture(t, ModeStrict, inventory.ShortfallFloor)
	r := chi.NewRouter()
	r.Route("/orders", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes)

	body := `{"lines":[{"product_id":100,"quantity":2,"unit_price":"2500.50","tax_rate":"10"}]}`
	req := httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(body))
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{TenantID: tenant, ActorID: actor}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"amount":"5501.1"`)

	req = httptest.NewRequest(http.MethodPost, "/orders/", strings.NewReader(`{"lines":[]}`))
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{TenantID: tenant, ActorID: actor}))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
