package tinkoff

import (
	"context"
	"fmt"
	"time"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/shopspring/decimal"

	"github.com/camuig/coin-trader/internal/exchange"
)

// Tickers returns the most traded MOEX shares, flagged tradable when the
// API currently accepts market orders for them.
func (g *Gateway) Tickers(ctx context.Context) ([]exchange.Ticker, error) {
	top, err := g.market.FetchTopTickers(ctx, g.universe)
	if err != nil {
		return nil, fmt.Errorf("moex top tickers: %w", err)
	}

	uids := make([]string, 0, len(top))
	byTicker := make(map[string]string, len(top))
	for _, t := range top {
		uid, err := g.resolveUID(t.Ticker)
		if err != nil {
			g.logger.Warn("skip unresolved ticker", "ticker", t.Ticker, "error", err)
			continue
		}
		uids = append(uids, uid)
		byTicker[t.Ticker] = uid
	}

	tradable, err := g.filterTradable(uids)
	if err != nil {
		return nil, fmt.Errorf("trading statuses: %w", err)
	}

	out := make([]exchange.Ticker, 0, len(byTicker))
	for _, t := range top {
		uid, ok := byTicker[t.Ticker]
		if !ok {
			continue
		}
		out = append(out, exchange.Ticker{
			Symbol:    t.Ticker,
			Base:      t.Ticker,
			Quote:     Quote,
			Price:     t.LastPrice,
			Change24h: t.ChangePct,
			Tradable:  tradable[uid],
		})
	}
	return out, nil
}

// filterTradable checks which instrument UIDs are available for API trading.
func (g *Gateway) filterTradable(uids []string) (map[string]bool, error) {
	if len(uids) == 0 {
		return map[string]bool{}, nil
	}

	md := g.client.NewMarketDataServiceClient()
	resp, err := md.GetTradingStatuses(uids)
	if err != nil {
		return nil, err
	}

	result := make(map[string]bool, len(uids))
	for _, s := range resp.GetTradingStatuses() {
		result[s.GetInstrumentUid()] = s.GetApiTradeAvailableFlag() && s.GetMarketOrderAvailableFlag()
	}
	return result, nil
}

// Prices is a single MOEX ISS snapshot of every TQBR last price.
func (g *Gateway) Prices(ctx context.Context) (map[string]float64, error) {
	prices, err := g.market.FetchLastPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("moex last prices: %w", err)
	}
	return prices, nil
}

// Forecast computes the TPTOP index over the last days daily candles.
func (g *Gateway) Forecast(ctx context.Context, symbol string, days int) (float64, error) {
	uid, err := g.resolveUID(symbol)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	// weekends and holidays have no candles
	from := now.Add(-time.Duration(days*2+7) * 24 * time.Hour)

	md := g.client.NewMarketDataServiceClient()
	resp, err := md.GetCandles(
		uid,
		pb.CandleInterval_CANDLE_INTERVAL_DAY,
		from, now,
		pb.GetCandlesRequest_CANDLE_SOURCE_EXCHANGE,
		0,
	)
	if err != nil {
		return 0, fmt.Errorf("candles %s: %w", symbol, err)
	}

	return exchange.TPTOPIndex(lastCloses(resp.GetCandles(), days))
}

// lastCloses returns the close prices of the newest n candles, oldest first.
func lastCloses(candles []*pb.HistoricCandle, n int) []float64 {
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.GetClose().ToFloat())
	}
	return closes
}

// Constraints expresses the lot size as the quantity step. MOEX has no
// minimum order value beyond one lot.
func (g *Gateway) Constraints(ctx context.Context, symbol string) (exchange.Constraints, error) {
	lot, err := g.lotSize(symbol)
	if err != nil {
		return exchange.Constraints{}, err
	}
	return lotConstraints(symbol, lot), nil
}

func lotConstraints(symbol string, lot int64) exchange.Constraints {
	step := decimal.NewFromInt(lot)
	return exchange.Constraints{
		Symbol:      symbol,
		StepSize:    step,
		MinQty:      step,
		MaxQty:      step.Mul(decimal.NewFromInt(maxLotsPerOrder)),
		MinNotional: decimal.Zero,
	}
}
