package portfolio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/activity"
	"nihao-carbon/carbon-trading/trading-backend/internal/market"
)

type memRepository struct {
	mu    sync.Mutex
	saves int
	data  map[string]snapshot
}

func newMemRepository() *memRepository {
	return &memRepository{data: make(map[string]snapshot)}
}

func (r *memRepository) Save(_ context.Context, userID string, snap snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.data[userID] = snap
	return nil
}

func (r *memRepository) Load(_ context.Context, userID string) (*snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.data[userID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

type memActivity struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (a *memActivity) Record(_ context.Context, entry activity.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *memActivity) List(_ context.Context, userID string, _ int) ([]activity.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []activity.Entry
	for _, e := range a.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memActivity) types() []activity.EntryType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]activity.EntryType, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc      *portfolioService
	store    *market.Store
	repo     *memRepository
	activity *memActivity
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    market.NewStore(),
		repo:     newMemRepository(),
		activity: &memActivity{},
		clock:    time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	f.svc = newService(f.repo, f.store, f.activity, zap.NewNop())
	f.svc.now = func() time.Time { return f.clock }
	f.svc.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) listOffer(t *testing.T, certType market.CertificateType, amount int, price float64) uuid.UUID {
	t.Helper()
	offer := market.Offer{
		ID:         uuid.New(),
		SellerID:   "S-CHN-1001",
		SellerName: "China Carbon Exchange",
		Type:       certType,
		Amount:     amount,
		Price:      price,
		Timestamp:  f.clock,
	}
	f.store.Update(func(offers []market.Offer) []market.Offer {
		return append(offers, offer)
	})
	return offer.ID
}

func TestPurchaseDebitsBalanceAndRemovesOffer(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeCEA, 1000, 41.50)

	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)

	assert.Equal(t, 100000.0-41500.0, result.Balance)
	assert.Equal(t, StatusAvailable, result.Certificate.Status)
	assert.Equal(t, market.TypeCEA, result.Certificate.Type)
	assert.Equal(t, 41500.0, result.Transaction.Total)

	_, stillListed := f.store.Get(offerID)
	assert.False(t, stillListed)

	p, err := f.svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, p.TotalCEA)
	assert.Equal(t, []activity.EntryType{activity.EntryPurchase}, f.activity.types())
}

func TestPurchaseInsufficientBalanceMutatesNothing(t *testing.T) {
	f := newFixture(t)
	// 1250 certificates at 85.00 cost 106250, above the 100000 start balance.
	offerID := f.listOffer(t, market.TypeEUA, 1250, 85.00)

	_, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, stillListed := f.store.Get(offerID)
	assert.True(t, stillListed)

	p, err := f.svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, p.Balance)
	assert.Empty(t, p.Certificates)
	txs, _ := f.svc.Transactions(context.Background(), "user-1")
	assert.Empty(t, txs)
	assert.Empty(t, f.activity.types())
}

func TestPurchaseAffordableAfterUnaffordable(t *testing.T) {
	f := newFixture(t)
	expensive := f.listOffer(t, market.TypeEUA, 1250, 85.00)
	affordable := f.listOffer(t, market.TypeEUA, 1000, 85.00)

	_, err := f.svc.Purchase(context.Background(), "user-1", expensive)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	result, err := f.svc.Purchase(context.Background(), "user-1", affordable)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, result.Balance)
}

func TestPurchaseUnknownOffer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Purchase(context.Background(), "user-1", uuid.New())
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestConvertRequiresAvailableCEA(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeEUA, 10, 80.00)
	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)

	_, err = f.svc.Convert(context.Background(), "user-1", result.Certificate.ID)
	assert.ErrorIs(t, err, ErrInvalidCertificateState)
}

func TestConversionCompletesAfterFiveMinutesNeverBefore(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeCEA, 500, 40.00)
	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)

	cert, err := f.svc.Convert(context.Background(), "user-1", result.Certificate.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConverting, cert.Status)
	require.NotNil(t, cert.ConversionStartedAt)

	p, _ := f.svc.Get(context.Background(), "user-1")
	assert.Equal(t, 100000.0-20000.0-conversionFee, p.Balance)
	assert.Equal(t, 500, p.ConvertingCEA)
	assert.Equal(t, 0, p.TotalCEA)

	// One second short of the window: nothing completes.
	f.advance(5*time.Minute - time.Second)
	f.svc.CompleteDueConversions()
	p, _ = f.svc.Get(context.Background(), "user-1")
	assert.Equal(t, 500, p.ConvertingCEA)
	assert.Equal(t, 0, p.TotalEUA)

	f.advance(time.Second)
	f.svc.CompleteDueConversions()
	p, _ = f.svc.Get(context.Background(), "user-1")
	assert.Equal(t, 0, p.ConvertingCEA)
	assert.Equal(t, 500, p.TotalEUA)

	completed := p.Certificates[0]
	assert.Equal(t, market.TypeEUA, completed.Type)
	assert.Equal(t, StatusAvailable, completed.Status)
	require.NotNil(t, completed.ConversionCompletedAt)
	assert.Equal(t, f.clock, *completed.ConversionCompletedAt)

	assert.Equal(t, []activity.EntryType{
		activity.EntryPurchase,
		activity.EntryConversionStart,
		activity.EntryConversionComplete,
	}, f.activity.types())
}

func TestConversionScanIsIdempotent(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeCEA, 100, 40.00)
	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)
	_, err = f.svc.Convert(context.Background(), "user-1", result.Certificate.ID)
	require.NoError(t, err)

	f.advance(6 * time.Minute)
	f.svc.CompleteDueConversions()
	f.svc.CompleteDueConversions()

	p, _ := f.svc.Get(context.Background(), "user-1")
	assert.Equal(t, 100, p.TotalEUA)

	var completions int
	for _, typ := range f.activity.types() {
		if typ == activity.EntryConversionComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestVerifyPromotesAvailableEUA(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeEUA, 200, 80.00)
	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)

	cert, err := f.svc.Verify(context.Background(), "user-1", result.Certificate.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, cert.Status)
	require.NotNil(t, cert.VerifiedAt)

	// A second verification is rejected.
	_, err = f.svc.Verify(context.Background(), "user-1", result.Certificate.ID)
	assert.ErrorIs(t, err, ErrInvalidCertificateState)
}

func TestSurrenderRequiresVerified(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeEUA, 200, 80.00)
	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)

	_, err = f.svc.Surrender(context.Background(), "user-1", result.Certificate.ID)
	assert.ErrorIs(t, err, ErrInvalidCertificateState)
}

func TestSurrenderRetiresCertificateAndReducesObligation(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeEUA, 1200, 80.00)
	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)
	_, err = f.svc.Verify(context.Background(), "user-1", result.Certificate.ID)
	require.NoError(t, err)

	emissions, err := f.svc.Surrender(context.Background(), "user-1", result.Certificate.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200, emissions.Surrendered)
	assert.Equal(t, totalEmissions-1200, emissions.Remaining)
	assert.Equal(t, emissions.Total-emissions.Surrendered, emissions.Remaining)

	p, _ := f.svc.Get(context.Background(), "user-1")
	assert.Empty(t, p.Certificates)
	assert.Equal(t, 0, p.TotalEUA)
}

func TestSurrenderCancelledContextLeavesCertificate(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeEUA, 100, 80.00)
	result, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)
	_, err = f.svc.Verify(context.Background(), "user-1", result.Certificate.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.Surrender(ctx, "user-1", result.Certificate.ID)
	assert.ErrorIs(t, err, context.Canceled)

	p, _ := f.svc.Get(context.Background(), "user-1")
	require.Len(t, p.Certificates, 1)
	assert.Equal(t, StatusVerified, p.Certificates[0].Status)
}

func TestStateSurvivesReload(t *testing.T) {
	f := newFixture(t)
	offerID := f.listOffer(t, market.TypeCEA, 300, 40.00)
	_, err := f.svc.Purchase(context.Background(), "user-1", offerID)
	require.NoError(t, err)

	// A new service instance against the same repository sees the snapshot.
	reloaded := newService(f.repo, f.store, f.activity, zap.NewNop())
	p, err := reloaded.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0-12000.0, p.Balance)
	assert.Equal(t, 300, p.TotalCEA)
}

func TestRecentTransactionsWindow(t *testing.T) {
	f := newFixture(t)
	first := f.listOffer(t, market.TypeCEA, 10, 40.00)
	_, err := f.svc.Purchase(context.Background(), "user-1", first)
	require.NoError(t, err)

	f.advance(48 * time.Hour)
	second := f.listOffer(t, market.TypeEUA, 10, 80.00)
	_, err = f.svc.Purchase(context.Background(), "user-2", second)
	require.NoError(t, err)

	recent := f.svc.RecentTransactions(f.clock.Add(-24 * time.Hour))
	require.Len(t, recent, 1)
	assert.Equal(t, "user-2", recent[0].UserID)
}
