package stats

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/market"
	"nihao-carbon/carbon-trading/trading-backend/internal/portfolio"
)

type stubTransactions struct {
	txs []portfolio.Transaction
}

func (s *stubTransactions) RecentTransactions(since time.Time) []portfolio.Transaction {
	var out []portfolio.Transaction
	for _, tx := range s.txs {
		if !tx.Timestamp.Before(since) {
			out = append(out, tx)
		}
	}
	return out
}

func newTestAggregator(t *testing.T) (*Aggregator, *market.Store, *stubTransactions, time.Time) {
	t.Helper()
	store := market.NewStore()
	txs := &stubTransactions{}
	agg := NewAggregator(store, txs, zap.NewNop())
	t.Cleanup(agg.Stop)
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	agg.now = func() time.Time { return now }
	return agg, store, txs, now
}

func addOffer(store *market.Store, certType market.CertificateType, amount int, price float64) {
	store.Update(func(offers []market.Offer) []market.Offer {
		return append(offers, market.Offer{
			ID:     uuid.New(),
			Type:   certType,
			Amount: amount,
			Price:  price,
		})
	})
}

func TestAveragesFromOfferBook(t *testing.T) {
	agg, store, _, _ := newTestAggregator(t)
	addOffer(store, market.TypeCEA, 1000, 40.00)
	addOffer(store, market.TypeCEA, 1000, 42.00)
	addOffer(store, market.TypeEUA, 500, 75.50)

	statistics, err := agg.MarketStatistics()
	require.NoError(t, err)
	assert.Equal(t, 41.00, statistics.AveragePriceCEA)
	assert.Equal(t, 75.50, statistics.AveragePriceEUA)
}

func TestEmptySideKeepsLastKnownAverage(t *testing.T) {
	agg, store, _, _ := newTestAggregator(t)
	addOffer(store, market.TypeCEA, 1000, 40.00)

	first, err := agg.MarketStatistics()
	require.NoError(t, err)
	assert.Equal(t, 40.00, first.AveragePriceCEA)

	// Drain the book; the cached aggregate expires but the average survives.
	store.Update(func([]market.Offer) []market.Offer { return nil })
	agg.cache.Delete(statsCacheKey)

	second, err := agg.MarketStatistics()
	require.NoError(t, err)
	assert.Equal(t, 40.00, second.AveragePriceCEA)
}

func TestVolumeWindowsLast24Hours(t *testing.T) {
	agg, _, txs, now := newTestAggregator(t)
	txs.txs = []portfolio.Transaction{
		{Type: portfolio.TransactionPurchase, CertificateType: market.TypeCEA, Amount: 1000, Timestamp: now.Add(-2 * time.Hour)},
		{Type: portfolio.TransactionPurchase, CertificateType: market.TypeCEA, Amount: 500, Timestamp: now.Add(-23 * time.Hour)},
		{Type: portfolio.TransactionPurchase, CertificateType: market.TypeEUA, Amount: 800, Timestamp: now.Add(-1 * time.Hour)},
		// Outside the window.
		{Type: portfolio.TransactionPurchase, CertificateType: market.TypeCEA, Amount: 9999, Timestamp: now.Add(-25 * time.Hour)},
		// Conversion fees are not traded volume.
		{Type: portfolio.TransactionConversion, CertificateType: market.TypeCEA, Amount: 700, Timestamp: now.Add(-1 * time.Hour)},
	}

	statistics, err := agg.MarketStatistics()
	require.NoError(t, err)
	assert.Equal(t, 1500, statistics.VolumeCEA)
	assert.Equal(t, 800, statistics.VolumeEUA)
}

func TestHistorySeededWithThirtyDays(t *testing.T) {
	agg, _, _, now := newTestAggregator(t)
	statistics, err := agg.MarketStatistics()
	require.NoError(t, err)
	require.Len(t, statistics.PriceHistory, historyDays)

	// Oldest first, ending today, one point per day.
	last := statistics.PriceHistory[len(statistics.PriceHistory)-1]
	assert.Equal(t, startOfDay(now), last.Date)
	for i := 1; i < len(statistics.PriceHistory); i++ {
		assert.Equal(t, 24*time.Hour, statistics.PriceHistory[i].Date.Sub(statistics.PriceHistory[i-1].Date))
	}
}

func TestTodayUpdatedInPlace(t *testing.T) {
	agg, store, _, _ := newTestAggregator(t)
	addOffer(store, market.TypeCEA, 1000, 40.00)

	first, err := agg.MarketStatistics()
	require.NoError(t, err)

	addOffer(store, market.TypeCEA, 1000, 50.00)
	agg.cache.Delete(statsCacheKey)

	second, err := agg.MarketStatistics()
	require.NoError(t, err)

	// Same number of points: today's entry was replaced, not appended.
	assert.Len(t, second.PriceHistory, len(first.PriceHistory))
	today := second.PriceHistory[len(second.PriceHistory)-1]
	assert.Equal(t, 45.00, today.PriceCEA)
}

func TestDayRolloverAppendsAndTrims(t *testing.T) {
	agg, store, _, now := newTestAggregator(t)
	addOffer(store, market.TypeCEA, 1000, 40.00)

	first, err := agg.MarketStatistics()
	require.NoError(t, err)
	oldest := first.PriceHistory[0].Date

	agg.now = func() time.Time { return now.AddDate(0, 0, 1) }
	agg.cache.Delete(statsCacheKey)

	second, err := agg.MarketStatistics()
	require.NoError(t, err)
	require.Len(t, second.PriceHistory, historyDays)
	assert.True(t, second.PriceHistory[0].Date.After(oldest))
	assert.Equal(t, startOfDay(now.AddDate(0, 0, 1)), second.PriceHistory[len(second.PriceHistory)-1].Date)
}

func TestStatisticsCachedBetweenCalls(t *testing.T) {
	agg, store, _, _ := newTestAggregator(t)
	addOffer(store, market.TypeCEA, 1000, 40.00)

	first, err := agg.MarketStatistics()
	require.NoError(t, err)

	// The book changes, but the cached aggregate is still served.
	addOffer(store, market.TypeCEA, 1000, 60.00)
	second, err := agg.MarketStatistics()
	require.NoError(t, err)
	assert.Equal(t, first.AveragePriceCEA, second.AveragePriceCEA)
}
