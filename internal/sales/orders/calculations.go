package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateLine prices one line: gross minus discount, plus tax on the net amount.
func CalculateLine(in LineInput) (Line, error) {
	if in.ProductID <= 0 {
		return Line{}, fmt.Errorf("%w: product required", ErrInvalidOrder)
	}
	if in.Quantity <= 0 {
		return Line{}, fmt.Errorf("%w: product %d quantity must be positive", ErrInvalidOrder, in.ProductID)
	}
	if in.UnitPrice.IsNegative() || in.TaxRate.IsNegative() || in.DiscountAmount.IsNegative() {
		return Line{}, fmt.Errorf("%w: product %d has negative pricing", ErrInvalidOrder, in.ProductID)
	}
	gross := in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity))
	if in.DiscountAmount.GreaterThan(gross) {
		return Line{}, fmt.Errorf("%w: product %d discount exceeds line amount", ErrInvalidOrder, in.ProductID)
	}
	net := gross.Sub(in.DiscountAmount)
	tax := net.Mul(in.TaxRate).Div(hundred).Round(2)
	return Line{
		ProductID:      in.ProductID,
		Quantity:       in.Quantity,
		UnitPrice:      in.UnitPrice,
		TaxRate:        in.TaxRate,
		DiscountAmount: in.DiscountAmount,
		TaxAmount:      tax,
		Subtotal:       net.Add(tax).Round(2),
	}, nil
}

// CalculateTotals prices every line and sums the order totals.
func CalculateTotals(inputs []LineInput) (lines []Line, amount, tax, discount decimal.Decimal, err error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: at least one line is required", ErrInvalidOrder)
	}
	lines = make([]Line, 0, len(inputs))
	for _, in := range inputs {
		line, err := CalculateLine(in)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, decimal.Zero, err
		}
		amount = amount.Add(line.Subtotal)
		tax = tax.Add(line.TaxAmount)
		discount = discount.Add(line.DiscountAmount)
		lines = append(lines, line)
	}
	return lines, amount, tax, discount, nil
}
