package tinkoff

import (
	"context"
	"fmt"

	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

type portfolio interface {
	GetTotalAmountCurrencies() *pb.MoneyValue
	GetPositions() []*pb.PortfolioPosition
}

func (g *Gateway) portfolio() (portfolio, error) {
	accountID := g.AccountID()
	currency := pb.PortfolioRequest_RUB

	if g.sandbox {
		sandbox := g.client.NewSandboxServiceClient()
		r, err := sandbox.GetSandboxPortfolio(accountID, currency)
		if err != nil {
			return nil, fmt.Errorf("get sandbox portfolio: %w", err)
		}
		return r.PortfolioResponse, nil
	}

	ops := g.client.NewOperationsServiceClient()
	r, err := ops.GetPortfolio(accountID, currency)
	if err != nil {
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	return r.PortfolioResponse, nil
}

// Balances returns available roubles under RUB and the number of shares
// held per ticker.
func (g *Gateway) Balances(ctx context.Context) (map[string]float64, error) {
	p, err := g.portfolio()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	if currencies := p.GetTotalAmountCurrencies(); currencies != nil {
		out[Quote] = currencies.ToFloat()
	}

	for _, pos := range p.GetPositions() {
		if pos.GetInstrumentType() == "currency" {
			continue
		}
		ticker, err := g.tickerFor(pos.GetInstrumentUid())
		if err != nil {
			g.logger.Warn("skip unknown position", "uid", pos.GetInstrumentUid(), "error", err)
			continue
		}
		if q := pos.GetQuantity(); q != nil && q.ToFloat() > 0 {
			out[ticker] = q.ToFloat()
		}
	}
	return out, nil
}
