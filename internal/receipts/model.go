package receipts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates receipt states. Voiding is one-way.
type Status string

const (
	StatusActive Status = "active"
	StatusVoided Status = "voided"
)

// Receipt is a proof-of-sale document issued against an order.
type Receipt struct {
	ID         int64           `json:"id"`
	TenantID   int64           `json:"tenant_id"`
	OrderID    int64           `json:"order_id,omitempty"`
	Number     string          `json:"number"`
	Amount     decimal.Decimal `json:"amount"`
	Status     Status          `json:"status"`
	IssuedBy   int64           `json:"issued_by"`
	IssuedAt   time.Time       `json:"issued_at"`
	VoidedAt   *time.Time      `json:"voided_at,omitempty"`
	VoidedBy   *int64          `json:"voided_by,omitempty"`
	VoidReason string          `json:"void_reason,omitempty"`
}

// IssueRequest creates a receipt. OrderID is optional.
type IssueRequest struct {
	TenantID int64
	OrderID  int64
	ActorID  int64
	Number   string
	Amount   decimal.Decimal
}

// VoidRequest voids one receipt.
type VoidRequest struct {
	TenantID  int64  `json:"tenant_id"`
	ReceiptID int64  `json:"receipt_id"`
	ActorID   int64  `json:"actor_id"`
	Reason    string `json:"reason"`
}

var (
	ErrNotFound       = errors.New("receipts: not found")
	ErrAlreadyVoided  = errors.New("receipts: already voided")
	ErrInvalidReceipt = errors.New("receipts: invalid receipt")
	ErrDuplicate      = errors.New("receipts: number already used")
)
