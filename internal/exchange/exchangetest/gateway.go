// Package exchangetest provides an in-memory exchange.Gateway for tests.
package exchangetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
)

// Gateway is a scriptable exchange. Market orders fill at the current price
// unless the symbol is set to reject or fail.
type Gateway struct {
	mu sync.Mutex

	tickers     []exchange.Ticker
	prices      map[string]float64
	forecasts   map[string]float64
	constraints map[string]exchange.Constraints
	balances    map[string]float64
	rejects     map[string]string
	failures    map[string]error

	// DefaultConstraints is used for symbols without explicit constraints.
	DefaultConstraints exchange.Constraints

	PricesErr   error
	BalancesErr error
	PriceCalls  int
	Orders      []exchange.OrderRequest
}

func New() *Gateway {
	return &Gateway{
		prices:      make(map[string]float64),
		forecasts:   make(map[string]float64),
		constraints: make(map[string]exchange.Constraints),
		balances:    make(map[string]float64),
		rejects:     make(map[string]string),
		failures:    make(map[string]error),
		DefaultConstraints: exchange.Constraints{
			StepSize:    decimal.RequireFromString("0.001"),
			MinQty:      decimal.RequireFromString("0.001"),
			MaxQty:      decimal.NewFromInt(1000000),
			MinNotional: decimal.NewFromInt(10),
		},
	}
}

func (g *Gateway) Name() string { return "test" }

// AddTicker registers a symbol with its current price and 24h change.
func (g *Gateway) AddTicker(base, quote string, price, change24h float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	symbol := base + quote
	g.tickers = append(g.tickers, exchange.Ticker{
		Symbol:    symbol,
		Base:      base,
		Quote:     quote,
		Price:     price,
		Change24h: change24h,
		Tradable:  true,
	})
	g.prices[symbol] = price
}

func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
	for i := range g.tickers {
		if g.tickers[i].Symbol == symbol {
			g.tickers[i].Price = price
		}
	}
}

func (g *Gateway) SetForecast(symbol string, score float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forecasts[symbol] = score
}

func (g *Gateway) SetConstraints(symbol string, c exchange.Constraints) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.Symbol = symbol
	g.constraints[symbol] = c
}

func (g *Gateway) SetBalance(asset string, qty float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[asset] = qty
}

// Reject makes orders for symbol come back with Success=false.
func (g *Gateway) Reject(symbol, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejects[symbol] = message
}

// Fail makes orders for symbol return a transport error.
func (g *Gateway) Fail(symbol string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[symbol] = err
}

// Clear removes any Reject or Fail for symbol.
func (g *Gateway) Clear(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rejects, symbol)
	delete(g.failures, symbol)
}

func (g *Gateway) OrderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Orders)
}

func (g *Gateway) Tickers(ctx context.Context) ([]exchange.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]exchange.Ticker(nil), g.tickers...), nil
}

func (g *Gateway) Prices(ctx context.Context) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PriceCalls++
	if g.PricesErr != nil {
		return nil, g.PricesErr
	}
	out := make(map[string]float64, len(g.prices))
	for k, v := range g.prices {
		out[k] = v
	}
	return out, nil
}

func (g *Gateway) Forecast(ctx context.Context, symbol string, days int) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	score, ok := g.forecasts[symbol]
	if !ok {
		return 0, exchange.ErrNoHistory
	}
	return score, nil
}

func (g *Gateway) Constraints(ctx context.Context, symbol string) (exchange.Constraints, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.constraints[symbol]; ok {
		return c, nil
	}
	c := g.DefaultConstraints
	c.Symbol = symbol
	return c, nil
}

func (g *Gateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err, ok := g.failures[req.Symbol]; ok {
		return nil, err
	}
	if msg, ok := g.rejects[req.Symbol]; ok {
		return &exchange.OrderResult{ErrorCode: "-2010", ErrorMessage: msg}, nil
	}

	price, ok := g.prices[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("no price for %s", req.Symbol)
	}
	g.Orders = append(g.Orders, req)
	g.settle(req, price)
	return &exchange.OrderResult{
		Success:       true,
		OrderID:       fmt.Sprintf("test-%d", len(g.Orders)),
		ExecutedQty:   req.Quantity,
		ExecutedPrice: price,
	}, nil
}

// settle moves balances for a filled order when the symbol is a known ticker.
func (g *Gateway) settle(req exchange.OrderRequest, price float64) {
	for _, t := range g.tickers {
		if t.Symbol != req.Symbol {
			continue
		}
		qty := req.Quantity.InexactFloat64()
		if req.Side == exchange.SideBuy {
			g.balances[t.Quote] -= qty * price
			g.balances[t.Base] += qty
		} else {
			g.balances[t.Quote] += qty * price
			g.balances[t.Base] -= qty
		}
		return
	}
}

func (g *Gateway) Balances(ctx context.Context) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.BalancesErr != nil {
		return nil, g.BalancesErr
	}
	out := make(map[string]float64, len(g.balances))
	for k, v := range g.balances {
		out[k] = v
	}
	return out, nil
}

var _ exchange.Gateway = (*Gateway)(nil)
