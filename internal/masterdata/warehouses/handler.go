package warehouses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

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
	r.Get("/default", h.defaultWarehouse)
	r.Get("/{id}", h.show)
	r.Post("/{id}/activate", h.activate)
	r.Post("/{id}/deactivate", h.deactivate)
}

type createRequest struct {
	Code    string `json:"code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=128"`
	Address string `json:"address" validate:"max=512"`
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrDuplicateCode):
		return httpx.ErrConflict
	case errors.Is(err, ErrInvalidWarehouse):
		return httpx.ErrValidation
	case errors.Is(err, ErrNoWarehouseAvailable):
		return httpx.ErrUnprocessable
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
		Search:   r.URL.Query().Get("search"),
		Limit:    p.PerPage,
		Offset:   p.Offset(),
	})
	if err != nil {
		h.logger.Error("list warehouses failed", slog.Any("error", err))
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
	warehouseID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	wh, err := h.service.Get(r.Context(), id.TenantID, warehouseID)
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	wh, err := h.service.Create(r.Context(), Warehouse{TenantID: id.TenantID, Code: req.Code, Name: req.Name, Address: req.Address})
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusCreated, wh)
}

func (h *Handler) defaultWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	wh, err := h.service.Default(r.Context(), id.TenantID)
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, StatusActive)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, StatusInactive)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status Status) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	warehouseID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if status == StatusActive {
		err = h.service.Activate(r.Context(), id.TenantID, warehouseID)
	} else {
		err = h.service.Deactivate(r.Context(), id.TenantID, warehouseID)
	}
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	h.logger.Info("warehouse status changed",
		slog.Int64("tenant_id", id.TenantID),
		slog.Int64("warehouse_id", warehouseID),
		slog.String("status", string(status)),
	)
	w.WriteHeader(http.StatusNoContent)
}
