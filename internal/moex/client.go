// Package moex reads market data from the Moscow Exchange ISS REST API.
package moex

import (
	"net/http"
	"strings"
	"time"

	"github.com/camuig/coin-trader/internal/logger"
)

const DefaultBaseURL = "https://iss.moex.com"

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Component("moex"),
	}
}
