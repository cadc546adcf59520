// Package exchange defines the capability interface the trading engine needs
// from an exchange, plus the types shared by every implementation.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ErrNoHistory is returned by Forecast when there are not enough candles.
var ErrNoHistory = errors.New("not enough candle history")

// Ticker is one entry of the tradable universe.
type Ticker struct {
	Symbol    string
	Base      string
	Quote     string
	Price     float64
	Change24h float64 // percent
	Tradable  bool
}

// Constraints are the exchange order filters for a symbol.
type Constraints struct {
	Symbol      string
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	MinNotional decimal.Decimal
}

type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
}

// OrderResult mirrors the exchange answer. Success=false means the exchange
// rejected the order; transport failures are returned as errors instead.
type OrderResult struct {
	Success       bool
	ErrorCode     string
	ErrorMessage  string
	OrderID       string
	ExecutedQty   decimal.Decimal
	ExecutedPrice float64
}

// Gateway is implemented once per exchange.
type Gateway interface {
	Name() string
	Tickers(ctx context.Context) ([]Ticker, error)
	Prices(ctx context.Context) (map[string]float64, error)
	Forecast(ctx context.Context, symbol string, days int) (float64, error)
	Constraints(ctx context.Context, symbol string) (Constraints, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	Balances(ctx context.Context) (map[string]float64, error)
}

// CredentialSetter is implemented by gateways whose API keys can be rotated at runtime.
type CredentialSetter interface {
	SetCredentials(key, secret string) error
}

// OrderError wraps a non-success order status.
type OrderError struct {
	Symbol  string
	Side    Side
	Code    string
	Message string
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%s %s rejected: [%s] %s", e.Side, e.Symbol, e.Code, e.Message)
}

// Err converts a rejected result into an *OrderError. It returns nil on success.
func (r *OrderResult) Err(req OrderRequest) error {
	if r == nil {
		return &OrderError{Symbol: req.Symbol, Side: req.Side, Code: "EMPTY", Message: "no order result"}
	}
	if r.Success {
		return nil
	}
	return &OrderError{Symbol: req.Symbol, Side: req.Side, Code: r.ErrorCode, Message: r.ErrorMessage}
}
