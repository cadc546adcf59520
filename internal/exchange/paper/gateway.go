// Package paper simulates order execution with virtual balances on top of a
// real market-data gateway.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/logger"
)

const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeFilterFailure       = "FILTER_FAILURE"
)

// Fill is a simulated order execution.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     exchange.Side
	Price    float64
	Quantity decimal.Decimal
	Fee      float64
}

type pair struct {
	base  string
	quote string
}

// Gateway delegates market data to the wrapped gateway and fills market
// orders at its last price against in-memory balances.
type Gateway struct {
	market exchange.Gateway
	feePct float64
	logger *logger.Logger

	mu       sync.Mutex
	balances map[string]float64
	pairs    map[string]pair
	fills    []Fill
}

var (
	_ exchange.Gateway          = (*Gateway)(nil)
	_ exchange.CredentialSetter = (*Gateway)(nil)
)

// New wraps market. feePct is charged on the received asset of each fill.
func New(market exchange.Gateway, balances map[string]float64, feePct float64, log *logger.Logger) *Gateway {
	b := make(map[string]float64, len(balances))
	for k, v := range balances {
		b[k] = v
	}
	return &Gateway{
		market:   market,
		feePct:   feePct,
		logger:   log.Component("paper"),
		balances: b,
		pairs:    make(map[string]pair),
	}
}

func (g *Gateway) Name() string { return "paper:" + g.market.Name() }

// Tickers also refreshes the symbol to asset mapping used for settlement.
func (g *Gateway) Tickers(ctx context.Context) ([]exchange.Ticker, error) {
	tickers, err := g.market.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	for _, t := range tickers {
		g.pairs[t.Symbol] = pair{base: t.Base, quote: t.Quote}
	}
	g.mu.Unlock()
	return tickers, nil
}

func (g *Gateway) Prices(ctx context.Context) (map[string]float64, error) {
	return g.market.Prices(ctx)
}

func (g *Gateway) Forecast(ctx context.Context, symbol string, days int) (float64, error) {
	return g.market.Forecast(ctx, symbol, days)
}

func (g *Gateway) Constraints(ctx context.Context, symbol string) (exchange.Constraints, error) {
	return g.market.Constraints(ctx, symbol)
}

func (g *Gateway) Balances(ctx context.Context) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.balances))
	for k, v := range g.balances {
		if v > 0 {
			out[k] = v
		}
	}
	return out, nil
}

// SetCredentials forwards to the market gateway when it supports key rotation.
func (g *Gateway) SetCredentials(key, secret string) error {
	cs, ok := g.market.(exchange.CredentialSetter)
	if !ok {
		return fmt.Errorf("%s gateway does not use credentials", g.market.Name())
	}
	return cs.SetCredentials(key, secret)
}

// Fills returns a copy of every simulated execution.
func (g *Gateway) Fills() []Fill {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Fill(nil), g.fills...)
}

func (g *Gateway) lookupPair(ctx context.Context, symbol string) (pair, error) {
	g.mu.Lock()
	p, ok := g.pairs[symbol]
	g.mu.Unlock()
	if ok {
		return p, nil
	}
	if _, err := g.Tickers(ctx); err != nil {
		return pair{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok = g.pairs[symbol]
	if !ok {
		return pair{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return p, nil
}

// PlaceMarketOrder fills the whole quantity at the current market price.
// Filter violations and missing funds come back as Success=false.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	p, err := g.lookupPair(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	prices, err := g.market.Prices(ctx)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", req.Symbol, err)
	}
	price, ok := prices[req.Symbol]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no price available for %s", req.Symbol)
	}
	cons, err := g.market.Constraints(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	notional := req.Quantity.Mul(decimal.NewFromFloat(price))
	if req.Quantity.LessThan(cons.MinQty) || !req.Quantity.IsPositive() {
		return reject(CodeFilterFailure, fmt.Sprintf("quantity %s below LOT_SIZE min %s", req.Quantity, cons.MinQty)), nil
	}
	if notional.LessThan(cons.MinNotional) {
		return reject(CodeFilterFailure, fmt.Sprintf("notional %s below %s", notional.StringFixed(8), cons.MinNotional)), nil
	}

	qty := req.Quantity.InexactFloat64()
	cost := notional.InexactFloat64()

	g.mu.Lock()
	defer g.mu.Unlock()

	var fee float64
	executed := req.Quantity
	switch req.Side {
	case exchange.SideBuy:
		if g.balances[p.quote] < cost {
			return reject(CodeInsufficientBalance, fmt.Sprintf("need %.8f %s, have %.8f", cost, p.quote, g.balances[p.quote])), nil
		}
		// The fee is taken from the bought asset, so only the net lands.
		feeQty := req.Quantity.Mul(decimal.NewFromFloat(g.feePct)).Div(decimal.NewFromInt(100))
		executed = req.Quantity.Sub(feeQty)
		fee = feeQty.InexactFloat64()
		g.balances[p.quote] -= cost
		g.balances[p.base] += executed.InexactFloat64()
	case exchange.SideSell:
		if g.balances[p.base] < qty {
			return reject(CodeInsufficientBalance, fmt.Sprintf("need %.8f %s, have %.8f", qty, p.base, g.balances[p.base])), nil
		}
		fee = cost * g.feePct / 100
		g.balances[p.base] -= qty
		g.balances[p.quote] += cost - fee
	default:
		return nil, fmt.Errorf("unknown side %q", req.Side)
	}

	fill := Fill{
		OrderID:  uuid.NewString(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Price:    price,
		Quantity: req.Quantity,
		Fee:      fee,
	}
	g.fills = append(g.fills, fill)

	g.logger.Info("paper order filled",
		"id", fill.OrderID, "symbol", fill.Symbol, "side", fill.Side,
		"price", price, "qty", req.Quantity.String(), "fee", fee)

	return &exchange.OrderResult{
		Success:       true,
		OrderID:       fill.OrderID,
		ExecutedQty:   executed,
		ExecutedPrice: price,
	}, nil
}

func reject(code, msg string) *exchange.OrderResult {
	return &exchange.OrderResult{ErrorCode: code, ErrorMessage: msg}
}
