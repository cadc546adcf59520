package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/metrics"
	"github.com/camuig/coin-trader/internal/trading"
)

// UpdateStats summarizes one update pass.
type UpdateStats struct {
	Held   int
	Sold   int
	Failed int
}

// UpdatePositions re-prices every held position from one price snapshot and
// sells the ones that hit a threshold or were marked for force sell.
func (m *Manager) UpdatePositions(ctx context.Context) (UpdateStats, error) {
	m.busy.Lock()
	defer m.busy.Unlock()

	positions := m.Positions()
	if len(positions) == 0 {
		m.mu.Lock()
		clear(m.forced)
		m.mu.Unlock()
		return UpdateStats{}, nil
	}

	prices, err := m.gateway.Prices(ctx)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("prices").Inc()
		return UpdateStats{Held: len(positions)}, fmt.Errorf("fetch prices: %w", err)
	}

	var stats UpdateStats
	deltas := make(map[string]float64, len(positions))
	var balances map[string]float64
	balancesFetched := false

	for _, p := range positions {
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			m.logger.Warn("no price for held position", "symbol", p.Symbol)
			stats.Held++
			continue
		}

		current, forced, ok := m.reprice(p.Index, price)
		if !ok {
			continue
		}
		deltas[p.Symbol] = current.PriceChangePercent

		if !shouldSell(current, forced) {
			if err := m.store.SavePosition(current); err != nil {
				m.logger.Error("save position", "symbol", current.Symbol, "error", err)
			}
			stats.Held++
			continue
		}

		if !balancesFetched {
			balancesFetched = true
			b, err := m.gateway.Balances(ctx)
			if err != nil {
				metrics.GatewayErrors.WithLabelValues("balances").Inc()
				m.logger.Warn("fetch balances, selling recorded quantities", "error", err)
			}
			balances = b
		}
		available := current.Quantity
		if bal, ok := balances[current.Index]; ok && bal < available {
			available = bal
		}

		if m.sellOne(ctx, current, price, available) {
			stats.Sold++
		} else {
			stats.Failed++
			stats.Held++
		}
	}

	m.sink.PublishPriceDeltas(deltas)
	return stats, nil
}

// reprice stores the new last price and returns a copy of the updated entry.
func (m *Manager) reprice(index string, price float64) (*trading.Cryptocurrency, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live, ok := m.positions[index]
	if !ok {
		return nil, false, false
	}
	live.PriceChangePercent = trading.RoundPercent(exchange.PercentChange(live.LastPrice, price))
	live.LastPrice = price
	return live.Clone(), m.forced[index], true
}

// shouldSell applies the position lifecycle: loss at or below MaxLoss, gain
// at or above MinGainForOrder or the forecast, or an explicit force sell.
func shouldSell(p *trading.Cryptocurrency, forced bool) bool {
	income := p.Income()
	switch {
	case income <= p.Model.MaxLoss():
		return true
	case income >= p.Model.MinGainForOrder() || p.TPTOP.AtMost(income):
		return true
	default:
		return forced
	}
}

// sellOne sells up to available units of p, the smaller of the recorded
// quantity and the exchange balance. Fees charged in the base asset leave
// the balance short of the recorded fill.
func (m *Manager) sellOne(ctx context.Context, p *trading.Cryptocurrency, price, available float64) (sold bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic selling position", "symbol", p.Symbol, "panic", fmt.Sprint(r))
			sold = false
		}
	}()

	cons, err := m.gateway.Constraints(ctx, p.Symbol)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("constraints").Inc()
		m.logger.Error("fetch constraints", "symbol", p.Symbol, "error", err)
		return false
	}

	qty, ok := trading.SellQuantity(decimal.NewFromFloat(available), decimal.NewFromFloat(price), cons)
	if !ok {
		m.logger.Warn("position below exchange minimums, keeping it",
			"symbol", p.Symbol, "quantity", p.Quantity, "available", available, "price", price)
		return false
	}

	res, err := m.executor.PlaceOrder(ctx, p.Symbol, exchange.SideSell, qty)
	if err != nil {
		return false
	}

	execPrice := res.ExecutedPrice
	if execPrice <= 0 {
		execPrice = price
	}
	execQty := qty
	if res.ExecutedQty.IsPositive() {
		execQty = res.ExecutedQty
	}
	soldQty := execQty.InexactFloat64()
	if held := decimal.NewFromFloat(available); execQty.LessThan(held) {
		m.logger.Warn("sold less than held, remainder stays in coin balance",
			"symbol", p.Symbol, "held", held.String(), "sold", execQty.String(),
			"remainder", held.Sub(execQty).String())
	}

	p.LastPrice = execPrice
	income := p.Income()
	sale := trading.Classify(p.Model, income)
	tx := trading.NewSellTransaction(p, soldQty, execPrice, income, sale, m.now())

	m.mu.Lock()
	delete(m.positions, p.Index)
	delete(m.forced, p.Index)
	m.account.Record(sale, income)
	coin := m.coin(p.Index)
	coin.SetQuantity(coin.Quantity-soldQty-(p.Quantity-available), true)
	snap := m.account.Snapshot()
	held := len(m.positions)
	m.mu.Unlock()

	metrics.PositionsHeld.Set(float64(held))
	if v, ok := snap.TotalIncome.Value(); ok {
		metrics.TotalIncome.Set(v)
	}
	m.screener.Forget(p.Symbol)

	if err := m.store.DeletePosition(p.Index); err != nil {
		m.logger.Error("delete position", "symbol", p.Symbol, "error", err)
	}
	if err := m.store.SaveAccount(snap); err != nil {
		m.logger.Error("save account", "error", err)
	}
	m.executor.Record(tx, execPrice)
	m.sink.PublishSale(p, tx, snap)
	return true
}
