// Package pricing implements the deterministic price-impact model.
//
// All functions are pure: they compute a new price from the current price,
// the company's total share supply, and the traded volume. The trade engine
// applies them serially under the per-company lock, each trade using the
// price left by the previous one.
package pricing

import "github.com/shopspring/decimal"

var (
	// buySensitivity scales buy impact: 1% of the traded supply fraction.
	buySensitivity = decimal.RequireFromString("0.01")
	// sellSensitivity scales sell impact at half the buy sensitivity.
	sellSensitivity = decimal.RequireFromString("0.005")
	// sellFloorRatio floors a single sell at 50% of the pre-trade price.
	sellFloorRatio = decimal.RequireFromString("0.5")

	one = decimal.NewFromInt(1)
)

// AfterBuy returns the price after a buy of tradedShares:
//
//	price * (1 + (traded/total) * 0.01)
//
// Buys always move the price up, proportional to the fraction of total
// supply traded.
func AfterBuy(currentPrice decimal.Decimal, totalShares, tradedShares int64) decimal.Decimal {
	fraction := decimal.NewFromInt(tradedShares).Div(decimal.NewFromInt(totalShares))
	return currentPrice.Mul(one.Add(fraction.Mul(buySensitivity)))
}

// AfterSell returns the price after a sell of tradedShares:
//
//	max(price * (1 - (traded/total) * 0.005), price * 0.5)
//
// Sells move the price down at half the buy sensitivity, floored at 50%
// of the pre-trade price so a single large sell cannot collapse the
// valuation to near zero.
func AfterSell(currentPrice decimal.Decimal, totalShares, tradedShares int64) decimal.Decimal {
	fraction := decimal.NewFromInt(tradedShares).Div(decimal.NewFromInt(totalShares))
	newPrice := currentPrice.Mul(one.Sub(fraction.Mul(sellSensitivity)))

	floor := currentPrice.Mul(sellFloorRatio)
	if newPrice.LessThan(floor) {
		return floor
	}
	return newPrice
}

// Valuation returns totalShares * price. Recomputed and persisted
// alongside every price change.
func Valuation(totalShares int64, price decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(totalShares).Mul(price)
}
