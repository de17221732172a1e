package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/market"
)

// Listener is notified after every successful poll cycle for an instrument
type Listener func(instrument Instrument, quote Quote)

// Poller drives the two reference price clients on a fixed interval and holds
// the latest observed values. It implements market.PriceSource.
type Poller struct {
	clients    map[Instrument]*Client
	cron       *cron.Cron
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration

	mu        sync.RWMutex
	latest    map[Instrument]*Quote
	status    map[Instrument]*FeedStatus
	listeners []Listener
}

func NewPoller(cea, eua *Client, maxRetries int, retryDelay time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		clients:    map[Instrument]*Client{InstrumentCEA: cea, InstrumentEUA: eua},
		cron:       cron.New(cron.WithSeconds()),
		logger:     logger,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		latest:     make(map[Instrument]*Quote),
		status: map[Instrument]*FeedStatus{
			InstrumentCEA: {Instrument: InstrumentCEA},
			InstrumentEUA: {Instrument: InstrumentEUA},
		},
	}
}

// AddListener registers a callback invoked after each poll cycle. Must be
// called before Start.
func (p *Poller) AddListener(l Listener) {
	p.listeners = append(p.listeners, l)
}

// Client returns the client for one instrument
func (p *Poller) Client(i Instrument) (*Client, bool) {
	c, ok := p.clients[i]
	return c, ok
}

// Start polls both instruments immediately, then on the given interval
func (p *Poller) Start(interval time.Duration) error {
	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", interval), p.pollAll); err != nil {
		return fmt.Errorf("failed to schedule price poll: %w", err)
	}
	go p.pollAll()
	p.cron.Start()
	p.logger.Info("price poller started", zap.Duration("interval", interval))
	return nil
}

// Stop stops the poll schedule and waits for a running cycle to finish
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info("price poller stopped")
}

func (p *Poller) pollAll() {
	for _, instrument := range []Instrument{InstrumentCEA, InstrumentEUA} {
		p.poll(instrument)
	}
}

// poll fetches one instrument. The background path never leaves callers
// without a value: retry exhaustion switches to the synthetic generator.
func (p *Poller) poll(instrument Instrument) {
	client := p.clients[instrument]
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now()
	quote, err := client.FetchPriceWithRetry(ctx, p.maxRetries, p.retryDelay)
	fallback := false
	if err != nil {
		quote = client.Fallback()
		fallback = true
		p.logger.Warn("feed unavailable, price generated synthetically",
			zap.String("instrument", string(instrument)), zap.Error(err))
	}

	p.mu.Lock()
	p.latest[instrument] = quote
	st := p.status[instrument]
	st.LastAttemptAt = &now
	st.LastPrice = &quote.Price
	st.FallbackActive = fallback
	if fallback {
		st.ConsecutiveFailures++
	} else {
		st.ConsecutiveFailures = 0
		st.LastSuccessAt = &now
	}
	listeners := p.listeners
	p.mu.Unlock()

	for _, l := range listeners {
		l(instrument, *quote)
	}
}

// Latest returns the most recent quote for an instrument, nil before the
// first poll completes
func (p *Poller) Latest(instrument Instrument) *Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest[instrument]
}

// ReferencePrices implements market.PriceSource
func (p *Poller) ReferencePrices() market.ReferencePrices {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var prices market.ReferencePrices
	if q := p.latest[InstrumentCEA]; q != nil {
		v := q.Price
		prices.CEA = &v
	}
	if q := p.latest[InstrumentEUA]; q != nil {
		v := q.Price
		prices.EUA = &v
	}
	return prices
}

// Status reports feed health per instrument for the admin console
func (p *Poller) Status() []FeedStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]FeedStatus, 0, len(p.status))
	for _, instrument := range []Instrument{InstrumentCEA, InstrumentEUA} {
		out = append(out, *p.status[instrument])
	}
	return out
}
