package tinkoff

import (
	"fmt"
)

func (g *Gateway) remember(ticker, uid string) {
	g.mu.Lock()
	g.uids[ticker] = uid
	g.tickers[uid] = ticker
	g.mu.Unlock()
}

// tickerFor maps an instrument uid back to its ticker.
func (g *Gateway) tickerFor(uid string) (string, error) {
	g.mu.RLock()
	cached, ok := g.tickers[uid]
	g.mu.RUnlock()
	if ok {
		return cached, nil
	}

	instruments := g.client.NewInstrumentsServiceClient()
	resp, err := instruments.InstrumentByUid(uid)
	if err != nil {
		return "", fmt.Errorf("instrument by uid %s: %w", uid, err)
	}

	ticker := resp.GetInstrument().GetTicker()
	g.remember(ticker, uid)
	return ticker, nil
}

// resolveUID resolves a ticker to its instrument UID using the instruments service.
func (g *Gateway) resolveUID(ticker string) (string, error) {
	g.mu.RLock()
	cached, ok := g.uids[ticker]
	g.mu.RUnlock()
	if ok {
		return cached, nil
	}

	instruments := g.client.NewInstrumentsServiceClient()
	resp, err := instruments.FindInstrument(ticker)
	if err != nil {
		return "", fmt.Errorf("find instrument %s: %w", ticker, err)
	}

	for _, inst := range resp.GetInstruments() {
		if inst.GetTicker() == ticker && inst.GetClassCode() == "TQBR" {
			g.remember(ticker, inst.GetUid())
			return inst.GetUid(), nil
		}
	}
	for _, inst := range resp.GetInstruments() {
		if inst.GetTicker() == ticker {
			g.remember(ticker, inst.GetUid())
			return inst.GetUid(), nil
		}
	}

	return "", fmt.Errorf("instrument not found: %s", ticker)
}

// lotSize returns how many shares one lot of ticker holds.
func (g *Gateway) lotSize(ticker string) (int64, error) {
	g.mu.RLock()
	lot, ok := g.lots[ticker]
	g.mu.RUnlock()
	if ok {
		return lot, nil
	}

	uid, err := g.resolveUID(ticker)
	if err != nil {
		return 0, err
	}

	instruments := g.client.NewInstrumentsServiceClient()
	resp, err := instruments.InstrumentByUid(uid)
	if err != nil {
		return 0, fmt.Errorf("instrument by uid %s: %w", uid, err)
	}

	lot = int64(resp.GetInstrument().GetLot())
	if lot <= 0 {
		lot = 1
	}
	g.mu.Lock()
	g.lots[ticker] = lot
	g.mu.Unlock()
	return lot, nil
}
