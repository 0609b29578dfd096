package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentRefunded PaymentStatus = "refunded"
)

type Order struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	OrderNumber    string          `json:"order_number"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Lines          []Line          `json:"lines,omitempty"`
}

// Line is immutable once the order exists.
type Line struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	ProductID      int64           `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// InventoryLines returns the stock demand of the order.
func (o Order) InventoryLines() []inventory.Line {
	out := make([]inventory.Line, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, inventory.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

// TransitionRequest asks for an order to move to Target.
type TransitionRequest struct {
	TenantID int64
	OrderID  int64
	ActorID  int64
	Target   Status
}

// StatusChange describes a committed transition for downstream notification.
type StatusChange struct {
	TenantID    int64  `json:"tenant_id"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        Status `json:"from"`
	To          Status `json:"to"`
	ActorID     int64  `json:"actor_id"`
}

type CreateRequest struct {
	TenantID   int64
	ActorID    int64
	CustomerID *int64
	Lines      []LineInput
}

// LineInput is one requested line. TaxRate is a percentage.
type LineInput struct {
	ProductID      int64
	Quantity       int64
	UnitPrice      decimal.Decimal
	TaxRate        decimal.Decimal
	DiscountAmount decimal.Decimal
}

type ListFilter struct {
	TenantID int64
	Status   Status
	Limit    int
	Offset   int
}
