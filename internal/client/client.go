// Package client implements the HTTP client for the upstream stock data API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/twstocklab/stockboard/internal/stocks"
)

const maxErrorBodyBytes = 2048

// Config controls client behavior.
type Config struct {
	// BaseURL is the root of the upstream API, e.g. http://localhost:5003.
	BaseURL string
	// Timeout bounds each request.
	Timeout time.Duration
	// RPS throttles outgoing requests; <= 0 disables throttling.
	RPS float64
	// Burst is the throttle burst size (default 1).
	Burst int
}

// Client talks to the upstream stock data service. It implements
// stocks.SymbolLister and stocks.Updater and paces all requests through a
// shared token bucket so bulk refreshes do not hammer the upstream.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// ListSymbols fetches the full symbol listing.
func (c *Client) ListSymbols(ctx context.Context) ([]stocks.Symbol, error) {
	var env struct {
		envelope
		Data  []stocks.Symbol `json:"data"`
		Count int             `json:"count"`
	}
	if err := c.getJSON(ctx, "/api/symbols", nil, &env); err != nil {
		return nil, err
	}
	if err := env.appError(); err != nil {
		return nil, err
	}
	c.logger.Debug("symbols listed", zap.Int("count", len(env.Data)))
	return env.Data, nil
}

// UpdateSymbol asks the upstream to refresh recent daily prices for one
// symbol. Transport failures, non-2xx statuses, and success=false envelopes
// are surfaced as distinct error types.
func (c *Client) UpdateSymbol(ctx context.Context, symbol string, days int) (stocks.UpdateResult, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("days", strconv.Itoa(days))

	var env struct {
		envelope
		Symbol      string `json:"symbol"`
		RowsWritten int    `json:"rows_written"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/update", q, &env); err != nil {
		return stocks.UpdateResult{}, err
	}
	if err := env.appError(); err != nil {
		return stocks.UpdateResult{}, err
	}
	return stocks.UpdateResult{
		Symbol:      env.Symbol,
		RowsWritten: env.RowsWritten,
		Message:     env.Message,
	}, nil
}

// Prices fetches daily bars for a symbol, optionally bounded by start/end
// dates (YYYY-MM-DD).
func (c *Client) Prices(ctx context.Context, symbol, start, end string) ([]stocks.PricePoint, error) {
	q := url.Values{}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	var env struct {
		envelope
		Data []pricePayload `json:"data"`
	}
	path := fmt.Sprintf("/api/stock/%s/prices", url.PathEscape(symbol))
	if err := c.getJSON(ctx, path, q, &env); err != nil {
		return nil, err
	}
	if err := env.appError(); err != nil {
		return nil, err
	}
	points := make([]stocks.PricePoint, 0, len(env.Data))
	for _, p := range env.Data {
		point, err := p.toPoint(symbol)
		if err != nil {
			return nil, fmt.Errorf("decode price row: %w", err)
		}
		points = append(points, point)
	}
	return points, nil
}

// Statistics fetches upstream database statistics.
func (c *Client) Statistics(ctx context.Context) (map[string]any, error) {
	var env struct {
		envelope
		Data map[string]any `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/statistics", nil, &env); err != nil {
		return nil, err
	}
	if err := env.appError(); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Health probes the upstream health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var env envelope
	if err := c.getJSON(ctx, "/api/health", nil, &env); err != nil {
		return err
	}
	return env.appError()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &stocks.TransportError{Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return &stocks.TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &stocks.TransportError{Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.logger.Debug("upstream request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &stocks.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &stocks.TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// envelope is the upstream response wrapper: every endpoint reports success
// plus an optional error/message pair.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e envelope) appError() error {
	if e.Success {
		return nil
	}
	msg := e.Error
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = "no reason given"
	}
	return &stocks.APIError{Message: msg}
}

// pricePayload tolerates the upstream's string date format.
type pricePayload struct {
	Symbol string   `json:"symbol"`
	Date   string   `json:"date"`
	Open   *float64 `json:"open_price"`
	High   *float64 `json:"high_price"`
	Low    *float64 `json:"low_price"`
	Close  *float64 `json:"close_price"`
	Volume int64    `json:"volume"`
}

func (p pricePayload) toPoint(fallbackSymbol string) (stocks.PricePoint, error) {
	date, err := time.Parse("2006-01-02", p.Date)
	if err != nil {
		return stocks.PricePoint{}, fmt.Errorf("parse date %q: %w", p.Date, err)
	}
	symbol := p.Symbol
	if symbol == "" {
		symbol = fallbackSymbol
	}
	return stocks.PricePoint{
		Symbol: symbol,
		Date:   date,
		Open:   p.Open,
		High:   p.High,
		Low:    p.Low,
		Close:  p.Close,
		Volume: p.Volume,
	}, nil
}
