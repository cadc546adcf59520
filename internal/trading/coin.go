package trading

// Coin is a wallet asset balance. Coins are zeroed, never removed.
type Coin struct {
	Index          string  `json:"index"`
	Name           string  `json:"name"`
	Quantity       float64 `json:"quantity"`
	TradingEnabled bool    `json:"trading_enabled"`
}

// SetQuantity updates the balance and recomputes TradingEnabled.
func (c *Coin) SetQuantity(qty float64, allowed bool) {
	if qty < 0 {
		qty = 0
	}
	c.Quantity = qty
	c.TradingEnabled = qty > 0 && allowed
}
