package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	priceCacheTTL   = 60 * time.Second
	historyCacheTTL = 5 * time.Minute
)

var errRateLimited = fmt.Errorf("upstream feed rate limited")

// Client fetches reference prices for one instrument. Results are cached for
// a short TTL and concurrent callers within the TTL window share a single
// round trip. The client is an injected service object with its own
// encapsulated cache state; nothing here is package-global.
type Client struct {
	spec    InstrumentSpec
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	gen     *fallbackGenerator

	mu       sync.Mutex
	cached   *Quote
	cachedAt time.Time
	inflight *inflightCall

	histMu       sync.Mutex
	histCache    []HistoryEntry
	histCachedAt time.Time
	histKey      string
	histInflight *historyCall
}

type inflightCall struct {
	done  chan struct{}
	quote *Quote
}

type historyCall struct {
	done    chan struct{}
	entries []HistoryEntry
	err     error
}

func NewClient(spec InstrumentSpec, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		spec:    spec,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(zap.String("instrument", string(spec.Name))),
		gen:     newFallbackGenerator(spec),
	}
}

// Instrument returns the instrument this client serves
func (c *Client) Instrument() Instrument {
	return c.spec.Name
}

// Fallback returns the next synthetic quote without touching the feed
func (c *Client) Fallback() *Quote {
	q := c.gen.Next(time.Now())
	return &q
}

// FetchPrice returns the latest reference price. The caller always receives
// a value: on transport failure, rate limiting or a malformed body the
// synthetic generator supplies the quote instead of an error.
func (c *Client) FetchPrice(ctx context.Context) *Quote {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cachedAt) < priceCacheTTL {
		q := c.cached
		c.mu.Unlock()
		return q
	}
	if c.inflight != nil {
		call := c.inflight
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.quote
		case <-ctx.Done():
			return c.Fallback()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	quote, live, err := c.fetchLive(ctx)
	if err != nil {
		c.logger.Warn("price fetch failed, using synthetic fallback", zap.Error(err))
		quote = c.Fallback()
	}

	c.mu.Lock()
	if live {
		// Fallback and rate-limited results are never cached, so the next
		// caller retries the feed.
		c.cached = quote
		c.cachedAt = time.Now()
	}
	c.inflight = nil
	c.mu.Unlock()

	call.quote = quote
	close(call.done)
	return quote
}

// FetchPriceWithRetry fetches a live price with linearly increasing delay
// between attempts. Exhausting all retries returns nil; this is the manual
// refresh path, the background poller substitutes the fallback itself.
func (c *Client) FetchPriceWithRetry(ctx context.Context, maxRetries int, retryDelay time.Duration) (*Quote, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		quote, live, err := c.fetchLive(ctx)
		if err == nil && live {
			c.mu.Lock()
			c.cached = quote
			c.cachedAt = time.Now()
			c.mu.Unlock()
			return quote, nil
		}
		if err == nil {
			err = errRateLimited
		}
		lastErr = err
		if attempt < maxRetries {
			select {
			case <-time.After(retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("price fetch failed after %d attempts: %w", maxRetries, lastErr)
}

// fetchLive performs one feed round trip. live reports whether the returned
// quote came from the feed; a rate-limited response yields a synthetic quote
// with live=false and no error.
func (c *Client) fetchLive(ctx context.Context) (*Quote, bool, error) {
	reqURL := fmt.Sprintf("%s/%s/price", c.baseURL, c.spec.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn("feed rate limited, using synthetic fallback")
		return c.Fallback(), false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var body struct {
		Price     float64   `json:"price"`
		Timestamp time.Time `json:"timestamp"`
		Currency  string    `json:"currency"`
		Change24h *float64  `json:"change24h"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("feed returned malformed body: %w", err)
	}
	if body.Price <= 0 {
		return nil, false, fmt.Errorf("feed returned non-positive price %f", body.Price)
	}

	price := math.Round(body.Price*100) / 100
	currency := body.Currency
	if currency == "" {
		currency = "EUR"
	}
	ts := body.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	// Seed the walk so a later outage continues from reality.
	c.gen.Seed(price)

	return &Quote{Price: price, Timestamp: ts, Currency: currency, Change24h: body.Change24h}, true, nil
}

// FetchHistory returns daily closing prices for the given range. Responses
// are cached for five minutes per parameter set; a rate-limited response
// degrades to the cached value when one exists.
func (c *Client) FetchHistory(ctx context.Context, startDate, endDate string) ([]HistoryEntry, error) {
	key := startDate + "|" + endDate

	c.histMu.Lock()
	if c.histCache != nil && c.histKey == key && time.Since(c.histCachedAt) < historyCacheTTL {
		entries := c.histCache
		c.histMu.Unlock()
		return entries, nil
	}
	if c.histInflight != nil {
		call := c.histInflight
		c.histMu.Unlock()
		select {
		case <-call.done:
			return call.entries, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &historyCall{done: make(chan struct{})}
	c.histInflight = call
	c.histMu.Unlock()

	entries, err := c.fetchHistory(ctx, startDate, endDate)

	c.histMu.Lock()
	if err == errRateLimited && c.histCache != nil && c.histKey == key {
		c.logger.Warn("history rate limited, serving cached data")
		entries, err = c.histCache, nil
	} else if err == nil {
		c.histCache = entries
		c.histCachedAt = time.Now()
		c.histKey = key
	}
	c.histInflight = nil
	c.histMu.Unlock()

	call.entries, call.err = entries, err
	close(call.done)
	return entries, err
}

func (c *Client) fetchHistory(ctx context.Context, startDate, endDate string) ([]HistoryEntry, error) {
	params := url.Values{}
	if startDate != "" {
		params.Set("start_date", startDate)
	}
	if endDate != "" {
		params.Set("end_date", endDate)
	}
	reqURL := fmt.Sprintf("%s/%s/history", c.baseURL, c.spec.Name)
	if enc := params.Encode(); enc != "" {
		reqURL += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history returned status %d", resp.StatusCode)
	}

	var body struct {
		Data []HistoryEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("history returned malformed body: %w", err)
	}
	return body.Data, nil
}
