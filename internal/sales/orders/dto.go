package orders

import "github.com/shopspring/decimal"

type createOrderRequest struct {
	CustomerID *int64                   `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Lines      []createOrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type createOrderLineRequest struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Quantity       int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type statusRequest struct {
	Status Status `json:"status" validate:"required,oneof=pending processing completed cancelled refunded"`
}
