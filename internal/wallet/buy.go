package wallet

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/metrics"
	"github.com/camuig/coin-trader/internal/trading"
)

// Screen runs one screening pass and replaces the checking list with its
// result.
func (m *Manager) Screen(ctx context.Context) (trading.ScreenStats, error) {
	tickers, err := m.gateway.Tickers(ctx)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("tickers").Inc()
		return trading.ScreenStats{}, fmt.Errorf("fetch tickers: %w", err)
	}

	list, stats := m.screener.Screen(ctx, tickers, m.heldSet(), m.settings.QuoteSet(), m.model)
	m.ReplaceChecking(list)

	metrics.ScreeningRejections.WithLabelValues("phase").Add(float64(stats.OutOfPhase))
	metrics.ScreeningRejections.WithLabelValues("forecast").Add(float64(stats.BelowForecast))
	metrics.ScreeningRejections.WithLabelValues("no_history").Add(float64(stats.ForecastFailed))

	m.sink.PublishChecking(m.Checking())
	return stats, nil
}

// ReplaceChecking installs a new checking list. Candidates for assets that
// are already held are dropped.
func (m *Manager) ReplaceChecking(list map[string]*trading.Cryptocurrency) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checking = make(map[string]*trading.Cryptocurrency, len(list))
	for idx, c := range list {
		if _, held := m.positions[idx]; held {
			continue
		}
		m.checking[idx] = c.Clone()
	}
	metrics.CheckingSize.Set(float64(len(m.checking)))
}

// BuyStats summarizes one buy pass.
type BuyStats struct {
	Candidates int
	Bought     int
	NotSizable int
	NoFunds    int
	Failed     int
}

// BuyCandidates tries to buy every candidate of the checking list, strongest
// forecast first. A failing candidate is skipped and left untouched.
func (m *Manager) BuyCandidates(ctx context.Context) (BuyStats, error) {
	m.busy.Lock()
	defer m.busy.Unlock()

	candidates := m.Checking()
	stats := BuyStats{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return stats, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, _ := candidates[i].TPTOP.Value()
		b, _ := candidates[j].TPTOP.Value()
		return a > b
	})

	balances, err := m.gateway.Balances(ctx)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("balances").Inc()
		return stats, fmt.Errorf("fetch balances: %w", err)
	}

	base := m.settings.BaseCurrency()
	amount := m.settings.OrderAmount()

	var prices map[string]float64
	for _, c := range candidates {
		if c.QuoteAsset != base {
			if prices, err = m.gateway.Prices(ctx); err != nil {
				metrics.GatewayErrors.WithLabelValues("prices").Inc()
				return stats, fmt.Errorf("fetch prices: %w", err)
			}
			break
		}
	}

	for _, c := range candidates {
		quoteAmount, ok := ConvertAmount(amount, base, c.QuoteAsset, prices)
		if !ok {
			m.logger.Warn("no conversion rate for order amount",
				"symbol", c.Symbol, "base", base, "quote", c.QuoteAsset)
			stats.Failed++
			continue
		}

		switch m.buyOne(ctx, c, quoteAmount, balances) {
		case buyDone:
			stats.Bought++
		case buyNotSizable:
			stats.NotSizable++
		case buyNoFunds:
			stats.NoFunds++
		case buyFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

type buyOutcome int

const (
	buySkipped buyOutcome = iota
	buyDone
	buyNotSizable
	buyNoFunds
	buyFailed
)

func (m *Manager) buyOne(ctx context.Context, c *trading.Cryptocurrency, amount float64, balances map[string]float64) (out buyOutcome) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic buying candidate", "symbol", c.Symbol, "panic", fmt.Sprint(r))
			out = buyFailed
		}
	}()

	if m.isHeld(c.Index) {
		m.dropCandidate(c.Index)
		return buySkipped
	}

	cons, err := m.gateway.Constraints(ctx, c.Symbol)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("constraints").Inc()
		m.logger.Error("fetch constraints", "symbol", c.Symbol, "error", err)
		return buyFailed
	}

	price := decimal.NewFromFloat(c.LastPrice)
	qty, ok := trading.SizeOrder(trading.DesiredQuantity(amount, c.LastPrice), price, cons)
	if !ok {
		m.logger.Debug("candidate not sizable", "symbol", c.Symbol, "price", c.LastPrice, "amount", amount)
		return buyNotSizable
	}

	notional := qty.Mul(price).InexactFloat64()
	if balances[c.QuoteAsset] < notional {
		m.logger.Info("BUY skipped: insufficient balance",
			"symbol", c.Symbol, "needed", notional, "available", balances[c.QuoteAsset])
		return buyNoFunds
	}

	res, err := m.executor.PlaceOrder(ctx, c.Symbol, exchange.SideBuy, qty)
	if err != nil {
		return buyFailed
	}

	execPrice := res.ExecutedPrice
	if execPrice <= 0 {
		execPrice = c.LastPrice
	}
	execQty := qty
	if res.ExecutedQty.IsPositive() {
		execQty = res.ExecutedQty
	}

	entry := c.Clone()
	entry.Quantity = execQty.InexactFloat64()
	entry.LastPrice = execPrice
	entry.FirstPrice = 0
	if err := entry.SetFirstPrice(execPrice); err != nil {
		return buyFailed
	}
	tx := trading.NewBuyTransaction(entry, entry.Quantity, execPrice, m.now())

	m.mu.Lock()
	m.positions[entry.Index] = entry
	delete(m.checking, entry.Index)
	coin := m.coin(entry.Index)
	coin.SetQuantity(coin.Quantity+entry.Quantity, true)
	held, checking := len(m.positions), len(m.checking)
	m.mu.Unlock()

	balances[c.QuoteAsset] -= entry.Quantity * execPrice
	metrics.PositionsHeld.Set(float64(held))
	metrics.CheckingSize.Set(float64(checking))
	m.screener.Forget(entry.Symbol)

	if err := m.store.SavePosition(entry.Clone()); err != nil {
		m.logger.Error("save position", "symbol", entry.Symbol, "error", err)
	}
	m.executor.Record(tx, execPrice)
	m.sink.PublishWalletUpdate(entry.Clone(), tx)
	return buyDone
}

func (m *Manager) isHeld(index string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[index]
	return ok
}

func (m *Manager) dropCandidate(index string) {
	m.mu.Lock()
	delete(m.checking, index)
	n := len(m.checking)
	m.mu.Unlock()
	metrics.CheckingSize.Set(float64(n))
}

// ConvertAmount expresses an amount of base currency in quote currency using
// either the QUOTE+BASE or the BASE+QUOTE pair price.
func ConvertAmount(amount float64, base, quote string, prices map[string]float64) (float64, bool) {
	if base == quote {
		return amount, true
	}
	if p := prices[quote+base]; p > 0 {
		return amount / p, true
	}
	if p := prices[base+quote]; p > 0 {
		return amount * p, true
	}
	return 0, false
}
