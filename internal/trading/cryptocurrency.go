package trading

import (
	"errors"
	"math"

	"github.com/camuig/coin-trader/internal/exchange"
)

var ErrFirstPriceSet = errors.New("first price already set")

// Cryptocurrency is a screening candidate or, once bought, a wallet position.
type Cryptocurrency struct {
	Index              string  `json:"index"`
	Name               string  `json:"name"`
	Quantity           float64 `json:"quantity"`
	Symbol             string  `json:"symbol"`
	QuoteAsset         string  `json:"quote_asset"`
	FirstPrice         float64 `json:"first_price"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	TPTOP              Score   `json:"tptop"`
	Model              *Model  `json:"-"`
}

// NewCandidate builds a candidate from a universe ticker.
func NewCandidate(t exchange.Ticker, model *Model) *Cryptocurrency {
	return &Cryptocurrency{
		Index:      t.Base,
		Name:       t.Base,
		Symbol:     t.Symbol,
		QuoteAsset: t.Quote,
		LastPrice:  t.Price,
		Model:      model,
	}
}

// SetFirstPrice records the acquisition price. It can only be done once.
func (c *Cryptocurrency) SetFirstPrice(price float64) error {
	if c.FirstPrice != 0 {
		return ErrFirstPriceSet
	}
	c.FirstPrice = price
	return nil
}

// Income is the percent gain of LastPrice over FirstPrice, rounded to 2 decimals.
func (c *Cryptocurrency) Income() float64 {
	if c.FirstPrice == 0 {
		return 0
	}
	return RoundPercent(exchange.PercentChange(c.FirstPrice, c.LastPrice))
}

// Clone returns a copy safe to hand out of the wallet lock. The model is
// immutable and stays shared.
func (c *Cryptocurrency) Clone() *Cryptocurrency {
	cp := *c
	return &cp
}

// RoundPercent rounds a percentage to 2 decimals.
func RoundPercent(v float64) float64 {
	return math.Round(v*100) / 100
}
