package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler exposes the order lifecycle over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/status", h.updateStatus)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrAlreadyInState), errors.Is(err, ErrOrderBusy), errors.Is(err, ErrDuplicateNumber):
		return httpx.ErrConflict
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, warehouses.ErrNoWarehouseAvailable),
		errors.Is(err, inventory.ErrInsufficientStock):
		return httpx.ErrUnprocessable
	case errors.Is(err, ErrInvalidOrder):
		return httpx.ErrValidation
	}
	return nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := h.service.List(r.Context(), ListFilter{
		TenantID: id.TenantID,
		Status:   Status(r.URL.Query().Get("status")),
		Limit:    p.PerPage,
		Offset:   p.Offset(),
	})
	if err != nil {
		h.logger.Error("list orders failed", slog.Any("error", err))
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(p.Page, p.PerPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id.TenantID, orderID)
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{
			ProductID:      l.ProductID,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			TaxRate:        l.TaxRate,
			DiscountAmount: l.DiscountAmount,
		})
	}
	order, err := h.service.Create(r.Context(), CreateRequest{
		TenantID:   id.TenantID,
		ActorID:    id.ActorID,
		CustomerID: req.CustomerID,
		Lines:      lines,
	})
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, StatusCompleted)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, StatusCancelled)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	h.transition(w, r, req.Status)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, target Status) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Transition(r.Context(), TransitionRequest{
		TenantID: id.TenantID,
		OrderID:  orderID,
		ActorID:  id.ActorID,
		Target:   target,
	})
	if err != nil {
		if mapError(err) == nil {
			h.logger.Error("order transition failed", slog.Int64("order_id", orderID), slog.String("target", string(target)), slog.Any("error", err))
		}
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
