package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata/warehouses"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/positions", h.listPositions)
	r.Get("/positions/{warehouseID}/{productID}", h.showPosition)
	r.Get("/movements", h.listMovements)
	r.Post("/inbound", h.postInbound)
	r.Post("/adjustments", h.postAdjustment)
	r.Post("/reconcile", h.reconcile)
}

type movementRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required"`
	Reference   string `json:"reference" validate:"required,max=64"`
	Note        string `json:"note" validate:"max=512"`
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidReference):
		return httpx.ErrValidation
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrUnknownWarehouse), errors.Is(err, warehouses.ErrNoWarehouseAvailable):
		return httpx.ErrUnprocessable
	case errors.Is(err, ErrMovementConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.ErrConflict
	}
	return nil
}

func (h *Handler) listPositions(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, 0)

	items, err := h.service.ListPositions(r.Context(), PositionFilter{
		TenantID:    id.TenantID,
		ProductID:   productID,
		WarehouseID: warehouseID,
		Limit:       p.PerPage,
		Offset:      p.Offset(),
	})
	if err != nil {
		h.logger.Error("list positions failed", slog.Any("error", err))
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) showPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	warehouseID, err := httpx.PathInt64(r, "warehouseID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	productID, err := httpx.PathInt64(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pos, err := h.service.GetPosition(r.Context(), PositionKey{TenantID: id.TenantID, ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := MovementFilter{
		TenantID:      id.TenantID,
		ReferenceKind: ReferenceKind(q.Get("reference_type")),
		ReferenceID:   q.Get("reference_id"),
	}
	var err error
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.WarehouseID, err = httpx.QueryInt64(r, "warehouse_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = filter.To.Add(24 * time.Hour)
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > shared.MaxPerPage {
		limit = shared.MaxPerPage
	}
	filter.Limit = limit

	items, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) postInbound(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	m, err := h.service.PostInbound(r.Context(), InboundInput{
		TenantID:       id.TenantID,
		WarehouseID:    req.WarehouseID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Reference:      req.Reference,
		Note:           req.Note,
		ActorID:        id.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	m, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		TenantID:       id.TenantID,
		WarehouseID:    req.WarehouseID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Reference:      req.Reference,
		Note:           req.Note,
		ActorID:        id.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	h.logger.Info("stock adjusted",
		slog.Int64("tenant_id", id.TenantID),
		slog.Int64("warehouse_id", req.WarehouseID),
		slog.Int64("product_id", req.ProductID),
		slog.Int64("delta", req.Quantity),
	)
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	report, err := h.service.Reconcile(r.Context(), id.TenantID)
	if err != nil {
		h.logger.Error("reconcile failed", slog.Int64("tenant_id", id.TenantID), slog.Any("error", err))
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
