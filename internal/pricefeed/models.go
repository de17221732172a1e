package pricefeed

import "time"

// Instrument names a polled reference price series
type Instrument string

const (
	InstrumentCEA Instrument = "cea"
	InstrumentEUA Instrument = "eua"
)

// Quote is one reference price observation
type Quote struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Currency  string    `json:"currency"`
	Change24h *float64  `json:"change24h,omitempty"`
}

// HistoryEntry is one daily closing price
type HistoryEntry struct {
	Date     string  `json:"date"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// InstrumentSpec bounds the synthetic fallback walk for one instrument
type InstrumentSpec struct {
	Name       Instrument
	StartPrice float64
	MinPrice   float64
	MaxPrice   float64
	Volatility float64
	Trend      float64
}

// CEA trades at a significant discount to EUA and is somewhat more volatile.
var (
	SpecCEA = InstrumentSpec{
		Name:       InstrumentCEA,
		StartPrice: 40.0,
		MinPrice:   20,
		MaxPrice:   60,
		Volatility: 0.015,
		Trend:      0.0001,
	}
	SpecEUA = InstrumentSpec{
		Name:       InstrumentEUA,
		StartPrice: 75.0,
		MinPrice:   50,
		MaxPrice:   100,
		Volatility: 0.01,
		Trend:      0.0001,
	}
)

// FeedStatus reports poller health for one instrument
type FeedStatus struct {
	Instrument          Instrument `json:"instrument"`
	LastPrice           *float64   `json:"last_price,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastAttemptAt       *time.Time `json:"last_attempt_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FallbackActive      bool       `json:"fallback_active"`
}
