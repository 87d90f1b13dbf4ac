package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshiconsensus/internal/domain"
)

// DefaultBaseURL is the public Kalshi trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Client is the REST client for the Kalshi exchange API. Requests are signed
// only when an RSA private key has been configured.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID is the Kalshi API key identifier and may be empty for public access.
func NewClient(baseURL, apiKeyID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// Authenticated reports whether requests will carry signature headers.
func (c *Client) Authenticated() bool {
	return c.privateKey != nil && c.apiKeyID != ""
}

// MarketsQuery selects a page of the flat market listing.
type MarketsQuery struct {
	Limit  int
	Cursor string
	Status string
}

// MarketsPage is one page of markets plus the continuation cursor.
type MarketsPage struct {
	Markets []domain.Market
	Cursor  string
}

// EventsQuery selects a page of events with nested markets.
type EventsQuery struct {
	Limit  int
	Cursor string
	Status string
}

// EventsPage is one page of events plus the continuation cursor.
type EventsPage struct {
	Events []domain.Event
	Cursor string
}

// GetMarkets returns a page of markets. Defaults: limit 50, status "open".
func (c *Client) GetMarkets(ctx context.Context, q MarketsQuery) (MarketsPage, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Status == "" {
		q.Status = string(domain.MarketStatusOpen)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("status", q.Status)
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	body, err := c.do(ctx, http.MethodGet, "/markets", params)
	if err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []KalshiMarket `json:"markets"`
		Cursor  string         `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	page := MarketsPage{
		Markets: make([]domain.Market, 0, len(resp.Markets)),
		Cursor:  resp.Cursor,
	}
	for _, m := range resp.Markets {
		page.Markets = append(page.Markets, m.ToDomainMarket())
	}
	return page, nil
}

// GetEvents returns a page of events with their nested markets. Defaults:
// limit 20, status "open".
func (c *Client) GetEvents(ctx context.Context, q EventsQuery) (EventsPage, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Status == "" {
		q.Status = string(domain.MarketStatusOpen)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("status", q.Status)
	params.Set("with_nested_markets", "true")
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	body, err := c.do(ctx, http.MethodGet, "/events", params)
	if err != nil {
		return EventsPage{}, fmt.Errorf("kalshi: get events: %w", err)
	}

	var resp struct {
		Events []KalshiEvent `json:"events"`
		Cursor string        `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return EventsPage{}, fmt.Errorf("kalshi: decode events: %w", err)
	}

	page := EventsPage{
		Events: make([]domain.Event, 0, len(resp.Events)),
		Cursor: resp.Cursor,
	}
	for _, e := range resp.Events {
		page.Events = append(page.Events, e.ToDomainEvent())
	}
	return page, nil
}

// GetMarket returns a single market by its ticker. A missing market yields an
// error wrapping domain.ErrNotFound.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	if err := ValidateTicker(ticker); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market: %w", err)
	}

	body, err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}
	if resp.Market.Ticker == "" {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, domain.ErrNotFound)
	}

	return resp.Market.ToDomainMarket(), nil
}

// ValidateTicker rejects tickers that cannot name a Kalshi market.
func ValidateTicker(ticker string) error {
	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTicker, ticker)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do builds, optionally signs, sends, and reads a request against the API.
func (c *Client) do(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.Authenticated() {
		if err := c.signRequest(req); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds RSA authentication headers to the HTTP request. Kalshi
// expects an RSA-PSS-SHA256 signature over timestamp + method + path, where
// path is the full URL path without the query string.
func (c *Client) signRequest(req *http.Request) error {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	message := SigningMessage(ts, req.Method, req.URL.Path)

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// SigningMessage builds the string Kalshi expects to be signed.
func SigningMessage(ts, method, path string) string {
	return ts + method + path
}

// checkStatus maps non-2xx HTTP status codes to errors, wrapping domain
// sentinels where one applies.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	code, msg := apiErr.describe()

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, msg, code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, msg, code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, msg, code)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: bad request: %s (%s)", msg, code)
	default:
		return &StatusError{Code: statusCode, Message: msg}
	}
}

// StatusError is returned for unexpected upstream status codes.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kalshi: HTTP %d: %s", e.Code, e.Message)
}
