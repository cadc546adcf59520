package trading

import (
	"context"
	"sync"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/logger"
)

// ScreenStats summarizes one screening pass.
type ScreenStats struct {
	Evaluated      int
	OutOfPhase     int
	BelowForecast  int
	ForecastFailed int
	Accepted       int
}

// Screener evaluates untraded symbols against a Model. It remembers the last
// observed price per symbol so the next pass measures change since then.
type Screener struct {
	gateway     exchange.Gateway
	concurrency int
	logger      *logger.Logger

	mu       sync.Mutex
	lastSeen map[string]float64
}

func NewScreener(gw exchange.Gateway, concurrency int, log *logger.Logger) *Screener {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Screener{
		gateway:     gw,
		concurrency: concurrency,
		logger:      log,
		lastSeen:    make(map[string]float64),
	}
}

// Screen returns the checking list for this pass, keyed by base asset.
// held lists base assets already in the wallet; quotes lists the enabled
// quote currencies.
func (s *Screener) Screen(
	ctx context.Context,
	tickers []exchange.Ticker,
	held map[string]bool,
	quotes map[string]bool,
	model *Model,
) (map[string]*Cryptocurrency, ScreenStats) {
	var stats ScreenStats
	var inPhase []*Cryptocurrency

	s.mu.Lock()
	for _, t := range tickers {
		if !t.Tradable || t.Price <= 0 || !quotes[t.Quote] || held[t.Base] {
			continue
		}
		stats.Evaluated++

		change := t.Change24h
		if prev, ok := s.lastSeen[t.Symbol]; ok {
			change = exchange.PercentChange(prev, t.Price)
		}
		s.lastSeen[t.Symbol] = t.Price

		if !model.InPhase(change) {
			stats.OutOfPhase++
			continue
		}

		c := NewCandidate(t, model)
		c.PriceChangePercent = RoundPercent(change)
		inPhase = append(inPhase, c)
	}
	s.mu.Unlock()

	s.forecast(ctx, inPhase, model)

	accepted := make(map[string]*Cryptocurrency)
	for _, c := range inPhase {
		if !c.TPTOP.Valid() {
			stats.ForecastFailed++
			continue
		}
		if !c.TPTOP.AtLeast(model.MinGainForOrder()) {
			stats.BelowForecast++
			continue
		}
		// the same base can trade against several quotes; keep the strongest
		if cur, ok := accepted[c.Index]; ok {
			curScore, _ := cur.TPTOP.Value()
			newScore, _ := c.TPTOP.Value()
			if newScore <= curScore {
				continue
			}
		}
		accepted[c.Index] = c
	}
	stats.Accepted = len(accepted)
	return accepted, stats
}

// forecast fills TPTOP for every candidate with bounded concurrency.
// Failures leave the score NotTradable.
func (s *Screener) forecast(ctx context.Context, candidates []*Cryptocurrency, model *Model) {
	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.concurrency)
	)

	for _, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}

		go func(c *Cryptocurrency) {
			defer wg.Done()
			defer func() { <-sem }()

			score, err := s.gateway.Forecast(ctx, c.Symbol, model.DaysGap())
			if err != nil {
				s.logger.Debug("forecast failed", "symbol", c.Symbol, "error", err)
				c.TPTOP = NotTradable
				return
			}
			c.TPTOP = ScoreOf(score)
		}(c)
	}

	wg.Wait()
}

// Forget drops the remembered price of a symbol, e.g. after it was sold, so
// the next pass falls back to the 24h change.
func (s *Screener) Forget(symbol string) {
	s.mu.Lock()
	delete(s.lastSeen, symbol)
	s.mu.Unlock()
}
