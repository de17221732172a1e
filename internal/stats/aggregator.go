package stats

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/market"
	"nihao-carbon/carbon-trading/trading-backend/internal/portfolio"
)

const (
	historyDays   = 30
	statsCacheTTL = 5 * time.Second
	statsCacheKey = "market_statistics"
)

// PricePoint is one day in the statistics price history
type PricePoint struct {
	Date     time.Time `json:"date"`
	PriceCEA float64   `json:"price_cea"`
	PriceEUA float64   `json:"price_eua"`
}

// MarketStatistics is the aggregate view served to dashboards
type MarketStatistics struct {
	AveragePriceCEA float64      `json:"average_price_cea"`
	AveragePriceEUA float64      `json:"average_price_eua"`
	VolumeCEA       int          `json:"volume_cea"`
	VolumeEUA       int          `json:"volume_eua"`
	PriceHistory    []PricePoint `json:"price_history"`
}

// TransactionSource supplies recent transactions for volume windowing
type TransactionSource interface {
	RecentTransactions(since time.Time) []portfolio.Transaction
}

// Aggregator derives market statistics from the offer book and the
// transaction log. Results are cached briefly; the history is held in memory
// and re-seeded on restart.
type Aggregator struct {
	store        *market.Store
	transactions TransactionSource
	cache        *Cache
	logger       *zap.Logger
	now          func() time.Time

	mu         sync.Mutex
	history    []PricePoint
	lastAvgCEA float64
	lastAvgEUA float64
}

func NewAggregator(store *market.Store, transactions TransactionSource, logger *zap.Logger) *Aggregator {
	a := &Aggregator{
		store:        store,
		transactions: transactions,
		cache:        NewCache(statsCacheTTL),
		logger:       logger,
		now:          time.Now,
	}
	a.history = seedPriceHistory(a.now(), rand.New(rand.NewSource(a.now().UnixNano())))
	return a
}

// Stop releases the cache cleanup goroutine
func (a *Aggregator) Stop() {
	a.cache.Stop()
}

// seedPriceHistory generates thirty days of plausible closing prices with a
// mild upward trend, CEA from 36 toward 41 and EUA from 55 toward 62.
func seedPriceHistory(now time.Time, rng *rand.Rand) []PricePoint {
	today := startOfDay(now)
	points := make([]PricePoint, 0, historyDays)
	for i := 0; i < historyDays; i++ {
		date := today.AddDate(0, 0, -(historyDays - i - 1))
		baseCEA := 36 + float64(i)/historyDays*5
		baseEUA := 55 + float64(i)/historyDays*7
		points = append(points, PricePoint{
			Date:     date,
			PriceCEA: round2(baseCEA + rng.Float64()*3 - 1.5),
			PriceEUA: round2(baseEUA + rng.Float64()*3 - 1.5),
		})
	}
	return points
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MarketStatistics computes the current aggregate view
func (a *Aggregator) MarketStatistics() (MarketStatistics, error) {
	value, err := a.cache.GetOrSet(statsCacheKey, func() (interface{}, error) {
		return a.compute(), nil
	})
	if err != nil {
		return MarketStatistics{}, err
	}
	return value.(MarketStatistics), nil
}

func (a *Aggregator) compute() MarketStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	avgCEA, avgEUA := a.averages()
	volCEA, volEUA := a.volumes(now)
	a.upsertToday(now, avgCEA, avgEUA)

	history := make([]PricePoint, len(a.history))
	copy(history, a.history)

	return MarketStatistics{
		AveragePriceCEA: avgCEA,
		AveragePriceEUA: avgEUA,
		VolumeCEA:       volCEA,
		VolumeEUA:       volEUA,
		PriceHistory:    history,
	}
}

// averages computes mean offer prices per type. An empty side keeps the last
// known average so a momentarily drained book does not zero the series.
func (a *Aggregator) averages() (float64, float64) {
	var sumCEA, sumEUA float64
	var nCEA, nEUA int
	for _, offer := range a.store.Snapshot() {
		switch offer.Type {
		case market.TypeCEA:
			sumCEA += offer.Price
			nCEA++
		case market.TypeEUA:
			sumEUA += offer.Price
			nEUA++
		}
	}

	avgCEA, avgEUA := a.lastAvgCEA, a.lastAvgEUA
	if nCEA > 0 {
		avgCEA = round2(sumCEA / float64(nCEA))
	}
	if nEUA > 0 {
		avgEUA = round2(sumEUA / float64(nEUA))
	}
	a.lastAvgCEA, a.lastAvgEUA = avgCEA, avgEUA
	return avgCEA, avgEUA
}

// volumes sums purchased amounts per type over the trailing 24 hours
func (a *Aggregator) volumes(now time.Time) (int, int) {
	var volCEA, volEUA int
	for _, tx := range a.transactions.RecentTransactions(now.Add(-24 * time.Hour)) {
		if tx.Type != portfolio.TransactionPurchase {
			continue
		}
		switch tx.CertificateType {
		case market.TypeCEA:
			volCEA += tx.Amount
		case market.TypeEUA:
			volEUA += tx.Amount
		}
	}
	return volCEA, volEUA
}

// upsertToday updates today's history entry in place, appending and trimming
// when the day rolls over.
func (a *Aggregator) upsertToday(now time.Time, avgCEA, avgEUA float64) {
	today := startOfDay(now)
	for i := range a.history {
		if a.history[i].Date.Equal(today) {
			a.history[i].PriceCEA = avgCEA
			a.history[i].PriceEUA = avgEUA
			return
		}
	}
	a.history = append(a.history, PricePoint{Date: today, PriceCEA: avgCEA, PriceEUA: avgEUA})
	if len(a.history) > historyDays {
		a.history = a.history[len(a.history)-historyDays:]
	}
}
