package providers

import "github.com/shopspring/decimal"

// Margin bounds match orders.profit_margin numeric(12,2).
var (
	MaxProfitMargin = decimal.RequireFromString("9999999999.99")
	MinProfitMargin = MaxProfitMargin.Neg()
)

// ProfitResult is the margin of an order against its production cost.
type ProfitResult struct {
	Profit       int64
	ProfitMargin decimal.Decimal
	ProviderCost int64
	OrderTotal   int64
}

// CalculateProfit returns profit in cents and the margin as a percentage rounded to two places.
// The margin is clamped to the column bounds so a tiny total against a large cost still persists.
func CalculateProfit(orderTotal, providerCost int64) ProfitResult {
	result := ProfitResult{
		Profit:       orderTotal - providerCost,
		ProfitMargin: decimal.Zero,
		ProviderCost: providerCost,
		OrderTotal:   orderTotal,
	}
	if orderTotal == 0 {
		return result
	}
	result.ProfitMargin = decimal.NewFromInt(result.Profit).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(orderTotal), 2)
	if result.ProfitMargin.GreaterThan(MaxProfitMargin) {
		result.ProfitMargin = MaxProfitMargin
	} else if result.ProfitMargin.LessThan(MinProfitMargin) {
		result.ProfitMargin = MinProfitMargin
	}
	return result
}
