package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	cases := []struct {
		from, to Status
		effect   Effect
		err      error
	}{
		{StatusPending, StatusCompleted, EffectDeduct, nil},
		{StatusProcessing, StatusCompleted, EffectDeduct, nil},
		{StatusPending, StatusProcessing, EffectNone, nil},
		{StatusPending, StatusCancelled, EffectNone, nil},
		{StatusCompleted, StatusCancelled, EffectRestore, nil},
		{StatusCompleted, StatusRefunded, EffectRestore, nil},
		{StatusCompleted, StatusPending, EffectRestore, nil},
		{StatusCompleted, StatusProcessing, EffectRestore, nil},
		{StatusCompleted, StatusCompleted, EffectNone, ErrAlreadyInState},
		{StatusCancelled, StatusCancelled, EffectNone, ErrAlreadyInState},
		{StatusCancelled, StatusPending, EffectNone, ErrInvalidTransition},
		{StatusRefunded, StatusCancelled, EffectNone, ErrInvalidTransition},
		{StatusPending, "archived", EffectNone, ErrInvalidTransition},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			effect, err := Plan(tc.from, tc.to)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.effect, effect)
		})
	}
}

func TestSettlePayment(t *testing.T) {
	require.Equal(t, PaymentPaid, settlePayment(StatusCompleted, PaymentPending))
	require.Equal(t, PaymentPartial, settlePayment(StatusCompleted, PaymentPartial))
	require.Equal(t, PaymentPending, settlePayment(StatusProcessing, PaymentPending))
}

func TestCalculateLine(t *testing.T) {
	line, err := CalculateLine(LineInput{
		ProductID:      1,
		Quantity:       3,
		UnitPrice:      decimal.RequireFromString("19.99"),
		TaxRate:        decimal.NewFromInt(11),
		DiscountAmount: decimal.RequireFromString("4.97"),
	})
	require.NoError(t, err)
	require.Equal(t, "6.05", line.TaxAmount.StringFixed(2))
	require.Equal(t, "61.05", line.Subtotal.StringFixed(2))

	_, err = CalculateLine(LineInput{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(5), DiscountAmount: decimal.NewFromInt(6)})
	require.ErrorIs(t, err, ErrInvalidOrder)

	_, err = CalculateLine(LineInput{ProductID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidOrder)
}
