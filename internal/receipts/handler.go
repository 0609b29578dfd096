package receipts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
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
	r.Get("/", h.listByOrder)
	r.Post("/", h.issue)
	r.Get("/{id}", h.show)
	r.Post("/{id}/void", h.void)
}

type issueRequest struct {
	OrderID int64           `json:"order_id" validate:"gte=0"`
	Number  string          `json:"number" validate:"required,max=64"`
	Amount  decimal.Decimal `json:"amount"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrAlreadyVoided), errors.Is(err, ErrDuplicate):
		return httpx.ErrConflict
	case errors.Is(err, ErrInvalidReceipt):
		return httpx.ErrValidation
	}
	return nil
}

func (h *Handler) listByOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.QueryInt64(r, "order_id")
	if err != nil || orderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "order_id required")
		return
	}
	items, err := h.service.ListByOrder(r.Context(), id.TenantID, orderID)
	if err != nil {
		h.logger.Error("list receipts failed", slog.Int64("order_id", orderID), slog.Any("error", err))
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	rc, err := h.service.Issue(r.Context(), IssueRequest{
		TenantID: id.TenantID,
		OrderID:  req.OrderID,
		ActorID:  id.ActorID,
		Number:   req.Number,
		Amount:   req.Amount,
	})
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusCreated, rc)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	receiptID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rc, err := h.service.Get(r.Context(), id.TenantID, receiptID)
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	httpx.JSON(w, http.StatusOK, rc)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.RequireIdentity(w, r)
	if !ok {
		return
	}
	receiptID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req voidRequest
	if !httpx.Bind(w, r, h.validate, &req) {
		return
	}
	rc, err := h.service.Void(r.Context(), VoidRequest{TenantID: id.TenantID, ReceiptID: receiptID, ActorID: id.ActorID, Reason: req.Reason})
	if err != nil {
		httpx.RespondError(w, err, mapError)
		return
	}
	h.logger.Info("receipt voided", slog.Int64("tenant_id", id.TenantID), slog.Int64("receipt_id", receiptID))
	httpx.JSON(w, http.StatusOK, rc)
}
