package trading

import (
	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
)

// SizeOrder turns a desired quantity into one that passes the exchange
// filters at the given price. ok=false means the order must not be placed.
//
// A zero MaxQty is treated as unbounded and a zero StepSize as continuous.
// The step grid is anchored at MinQty, as on Binance LOT_SIZE.
func SizeOrder(desired, price decimal.Decimal, c exchange.Constraints) (decimal.Decimal, bool) {
	if !desired.IsPositive() || !price.IsPositive() {
		return decimal.Zero, false
	}

	notional := desired.Mul(price)
	minNotionalQty := quantityForNotional(c.MinNotional, price)

	var qty decimal.Decimal
	switch {
	case c.MinNotional.IsPositive() && nearMinNotional(notional, price, c):
		qty = ceilToStep(minNotionalQty, c)
	case notional.GreaterThan(c.MinNotional):
		qty = clampQty(desired, c)
		qty = ceilToStep(qty, c)
		if qty.LessThan(minNotionalQty) {
			qty = ceilToStep(minNotionalQty, c)
		}
	default:
		return decimal.Zero, false
	}

	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		qty = floorToStep(c.MaxQty, c)
	}
	if !orderable(qty, price, c) {
		return decimal.Zero, false
	}
	return qty, true
}

// SellQuantity floors a held quantity onto the step grid and reports whether
// the result can be sold at price.
func SellQuantity(held, price decimal.Decimal, c exchange.Constraints) (decimal.Decimal, bool) {
	if !held.IsPositive() || !price.IsPositive() {
		return decimal.Zero, false
	}
	qty := held
	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		qty = c.MaxQty
	}
	qty = floorToStep(qty, c)
	if !orderable(qty, price, c) {
		return decimal.Zero, false
	}
	return qty, true
}

// DesiredQuantity converts a quote amount into a base quantity at price.
func DesiredQuantity(amount, price float64) decimal.Decimal {
	if price <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(price))
}

// quotientPrecision is the number of decimal places kept when deriving a
// quantity from a notional.
const quotientPrecision = 32

// quantityForNotional is the smallest quantity whose notional at price is at
// least notional.
func quantityForNotional(notional, price decimal.Decimal) decimal.Decimal {
	q := notional.DivRound(price, quotientPrecision)
	if q.Mul(price).LessThan(notional) {
		q = q.Add(decimal.New(1, -quotientPrecision))
	}
	return q
}

// nearMinNotional reports whether notional reaches the minimum or falls
// short of it by at most one step's worth of notional. A continuous lot
// uses one unit of division precision as its step.
func nearMinNotional(notional, price decimal.Decimal, c exchange.Constraints) bool {
	if notional.GreaterThan(c.MinNotional) {
		return false
	}
	step := c.StepSize
	if !step.IsPositive() {
		step = decimal.New(1, -int32(decimal.DivisionPrecision))
	}
	return c.MinNotional.Sub(notional).LessThanOrEqual(step.Mul(price))
}

func clampQty(q decimal.Decimal, c exchange.Constraints) decimal.Decimal {
	if q.LessThan(c.MinQty) {
		q = c.MinQty
	}
	if c.MaxQty.IsPositive() && q.GreaterThan(c.MaxQty) {
		q = c.MaxQty
	}
	return q
}

func ceilToStep(q decimal.Decimal, c exchange.Constraints) decimal.Decimal {
	if q.LessThan(c.MinQty) {
		return c.MinQty
	}
	if !c.StepSize.IsPositive() {
		return q
	}
	steps := q.Sub(c.MinQty).Div(c.StepSize).Ceil()
	return c.MinQty.Add(steps.Mul(c.StepSize))
}

func floorToStep(q decimal.Decimal, c exchange.Constraints) decimal.Decimal {
	if !c.StepSize.IsPositive() || q.LessThan(c.MinQty) {
		return q
	}
	steps := q.Sub(c.MinQty).Div(c.StepSize).Floor()
	return c.MinQty.Add(steps.Mul(c.StepSize))
}

func orderable(qty, price decimal.Decimal, c exchange.Constraints) bool {
	if !qty.IsPositive() || qty.LessThan(c.MinQty) {
		return false
	}
	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		return false
	}
	return qty.Mul(price).GreaterThanOrEqual(c.MinNotional)
}
