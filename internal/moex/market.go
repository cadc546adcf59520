package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const sharesPath = "/iss/engines/stock/markets/shares/boards/TQBR/securities.json"

type issResponse struct {
	Marketdata struct {
		Columns []string        `json:"columns"`
		Data    [][]interface{} `json:"data"`
	} `json:"marketdata"`
}

// fetchMarketdata returns the marketdata block for TQBR shares restricted
// to columns, optionally sorted by sortColumn descending.
func (c *Client) fetchMarketdata(ctx context.Context, columns, sortColumn string) ([][]interface{}, error) {
	q := url.Values{}
	q.Set("iss.meta", "off")
	q.Set("iss.only", "marketdata")
	q.Set("marketdata.columns", columns)
	if sortColumn != "" {
		q.Set("sort_column", sortColumn)
		q.Set("sort_order", "desc")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+sharesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch marketdata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MOEX ISS returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var iss issResponse
	if err := json.Unmarshal(body, &iss); err != nil {
		return nil, fmt.Errorf("parse ISS response: %w", err)
	}
	return iss.Marketdata.Data, nil
}

// FetchTopTickers returns up to limit shares ordered by today's turnover.
func (c *Client) FetchTopTickers(ctx context.Context, limit int) ([]MarketTicker, error) {
	rows, err := c.fetchMarketdata(ctx, "SECID,VALTODAY,LAST,LASTTOPREVPRICE", "VALTODAY")
	if err != nil {
		return nil, err
	}

	var result []MarketTicker
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}

		ticker, _ := row[0].(string)
		if ticker == "" {
			continue
		}

		lastPrice := toFloat64(row[2])
		if lastPrice == 0 {
			continue // приостановленные торги
		}

		result = append(result, MarketTicker{
			Ticker:    ticker,
			ValToday:  toFloat64(row[1]),
			LastPrice: lastPrice,
			ChangePct: toFloat64(row[3]),
		})

		if len(result) >= limit {
			break
		}
	}

	c.logger.Debug("top tickers fetched", "count", len(result))
	return result, nil
}

// FetchLastPrices returns the last trade price of every TQBR share in one request.
func (c *Client) FetchLastPrices(ctx context.Context) (map[string]float64, error) {
	rows, err := c.fetchMarketdata(ctx, "SECID,LAST", "")
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		ticker, _ := row[0].(string)
		if last := toFloat64(row[1]); ticker != "" && last > 0 {
			prices[ticker] = last
		}
	}
	return prices, nil
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
