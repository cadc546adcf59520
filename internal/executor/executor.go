package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/metrics"
	"github.com/camuig/coin-trader/internal/trading"
)

// Journal persists committed transactions.
type Journal interface {
	SaveTransaction(tx trading.Transaction) error
}

type Notifier interface {
	NotifyBuy(tx trading.Transaction, price float64)
	NotifySell(tx trading.Transaction, price float64)
	NotifyError(context string, err error)
}

type Executor struct {
	gateway  exchange.Gateway
	journal  Journal
	notifier Notifier
	logger   *logger.Logger
}

func NewExecutor(
	gw exchange.Gateway,
	journal Journal,
	notifier Notifier,
	log *logger.Logger,
) *Executor {
	return &Executor{
		gateway:  gw,
		journal:  journal,
		notifier: notifier,
		logger:   log,
	}
}

// PlaceOrder submits a market order. A rejected order is returned as
// *exchange.OrderError; in both failure cases nothing was filled.
func (e *Executor) PlaceOrder(ctx context.Context, symbol string, side exchange.Side, qty decimal.Decimal) (res *exchange.OrderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic in executor", "symbol", symbol, "side", side, "panic", fmt.Sprint(r))
			metrics.OrdersTotal.WithLabelValues(string(side), "error").Inc()
			res, err = nil, fmt.Errorf("place %s %s: panic: %v", side, symbol, r)
		}
	}()

	req := exchange.OrderRequest{Symbol: symbol, Side: side, Quantity: qty}

	res, err = e.gateway.PlaceMarketOrder(ctx, req)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(side), "error").Inc()
		metrics.GatewayErrors.WithLabelValues("order").Inc()
		e.logger.Error("order failed", "symbol", symbol, "side", side, "quantity", qty.String(), "error", err)
		e.notifier.NotifyError(string(side)+" "+symbol, err)
		return nil, fmt.Errorf("place %s %s: %w", side, symbol, err)
	}

	if err := res.Err(req); err != nil {
		metrics.OrdersTotal.WithLabelValues(string(side), "rejected").Inc()
		e.logger.Warn("order rejected", "symbol", symbol, "side", side, "quantity", qty.String(), "error", err)
		e.notifier.NotifyError(string(side)+" "+symbol, err)
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(side), "filled").Inc()
	return res, nil
}

// Record journals a committed transaction and announces it. Failures to
// persist are logged; the in-memory commit stands.
func (e *Executor) Record(tx trading.Transaction, price float64) {
	if err := e.journal.SaveTransaction(tx); err != nil {
		e.logger.Error("save transaction", "id", tx.ID, "symbol", tx.Symbol, "error", err)
	}

	switch tx.Side {
	case exchange.SideBuy:
		e.notifier.NotifyBuy(tx, price)
		e.logger.Info("BUY executed",
			"symbol", tx.Symbol, "price", price, "quantity", tx.Quantity, "notional", tx.Notional)
	case exchange.SideSell:
		e.notifier.NotifySell(tx, price)
		var sale trading.Sale
		var income float64
		if tx.Sale != nil {
			sale = *tx.Sale
			metrics.SalesTotal.WithLabelValues(string(sale)).Inc()
		}
		if tx.Income != nil {
			income = *tx.Income
		}
		e.logger.Info("SELL executed",
			"symbol", tx.Symbol, "price", price, "quantity", tx.Quantity, "sale", sale, "income", income)
	}
}
