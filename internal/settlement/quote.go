package settlement

import (
	"fulfillment-be/internal/order"

	"github.com/shopspring/decimal"
)

// Quote is the payout split for one order.
type Quote struct {
	Total        decimal.Decimal
	FeeRate      decimal.Decimal
	Fee          decimal.Decimal
	AmountToShop decimal.Decimal
}

// NewQuote computes fee = round(total * feeRate, 2) and amountToShop = total - fee.
func NewQuote(total, feeRate decimal.Decimal) Quote {
	fee := total.Mul(feeRate).Round(2)
	return Quote{
		Total:        total,
		FeeRate:      feeRate,
		Fee:          fee,
		AmountToShop: total.Sub(fee),
	}
}

// QuoteOrder quotes the order's final amount.
func QuoteOrder(o *order.Order, feeRate decimal.Decimal) Quote {
	return NewQuote(o.FinalAmount, feeRate)
}
