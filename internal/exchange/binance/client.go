// Package binance implements exchange.Gateway over the Binance spot REST API.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/camuig/coin-trader/internal/logger"
)

const (
	DefaultBaseURL = "https://api.binance.com"

	recvWindow      = "5000"
	exchangeInfoTTL = time.Hour
)

// APIError is the error body Binance returns with non-200 statuses.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error %d (http %d): %s", e.Code, e.Status, e.Message)
}

// Client talks to the spot REST API. Credentials can be replaced at runtime.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger

	credMu    sync.RWMutex
	apiKey    string
	secretKey string

	infoMu     sync.Mutex
	symbols    map[string]SymbolInfo
	infoLoaded time.Time

	now func() time.Time
}

func NewClient(apiKey, secretKey, baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		logger:     log.Component("binance"),
		apiKey:     apiKey,
		secretKey:  secretKey,
		now:        time.Now,
	}
}

func (c *Client) Name() string { return "binance" }

// SetCredentials swaps the API key pair used for signed endpoints.
func (c *Client) SetCredentials(key, secret string) error {
	if key == "" || secret == "" {
		return errors.New("api key and secret must not be empty")
	}
	c.credMu.Lock()
	defer c.credMu.Unlock()
	c.apiKey = key
	c.secretKey = secret
	c.logger.Info("api credentials replaced")
	return nil
}

func (c *Client) credentials() (string, string) {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.apiKey, c.secretKey
}

// sign returns the hex HMAC-SHA256 of the encoded query string.
func sign(secret, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// do performs a request and returns the body of a 200 response. Signed
// requests get timestamp, recvWindow and signature appended.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}

	var key string
	query := params.Encode()
	if signed {
		var secret string
		key, secret = c.credentials()
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("recvWindow", recvWindow)
		query = params.Encode()
		query += "&signature=" + sign(secret, query)
	}

	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}

	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, signed bool, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, params, signed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func parseFloat(val any) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}
