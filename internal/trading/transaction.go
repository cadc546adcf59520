package trading

import (
	"time"

	"github.com/google/uuid"

	"github.com/camuig/coin-trader/internal/exchange"
)

// Transaction is the immutable record of a committed order.
type Transaction struct {
	ID         string        `json:"id"`
	Symbol     string        `json:"symbol"`
	Side       exchange.Side `json:"side"`
	Time       time.Time     `json:"time"`
	Notional   float64       `json:"notional"`
	Quantity   float64       `json:"quantity"`
	QuoteAsset string        `json:"quote_asset"`
	BaseAsset  string        `json:"base_asset"`
	Income     *float64      `json:"income,omitempty"`
	Sale       *Sale         `json:"sale,omitempty"`
}

func NewBuyTransaction(c *Cryptocurrency, qty, price float64, at time.Time) Transaction {
	return Transaction{
		ID:         uuid.NewString(),
		Symbol:     c.Symbol,
		Side:       exchange.SideBuy,
		Time:       at,
		Notional:   qty * price,
		Quantity:   qty,
		QuoteAsset: c.QuoteAsset,
		BaseAsset:  c.Index,
	}
}

func NewSellTransaction(c *Cryptocurrency, qty, price, income float64, sale Sale, at time.Time) Transaction {
	return Transaction{
		ID:         uuid.NewString(),
		Symbol:     c.Symbol,
		Side:       exchange.SideSell,
		Time:       at,
		Notional:   qty * price,
		Quantity:   qty,
		QuoteAsset: c.QuoteAsset,
		BaseAsset:  c.Index,
		Income:     &income,
		Sale:       &sale,
	}
}
