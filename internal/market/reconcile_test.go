package market

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func bookInvariantsHold(t *testing.T, offers []Offer, prices ReferencePrices) {
	t.Helper()
	byType := map[CertificateType][]Offer{}
	for _, o := range offers {
		byType[o.Type] = append(byType[o.Type], o)
	}
	for _, ct := range []CertificateType{TypeCEA, TypeEUA} {
		floor := prices.PriceFor(ct)
		group := byType[ct]
		if floor == nil {
			assert.Empty(t, group, "offers must be cleared when the %s price is unknown", ct)
			continue
		}
		require.NotEmpty(t, group)
		best := group[0].Price
		for _, o := range group {
			if o.Price < best {
				best = o.Price
			}
			assert.GreaterOrEqual(t, o.Price, *floor-Epsilon, "no %s offer may sit below the floor", ct)
		}
		assert.InDelta(t, *floor, best, Epsilon, "best %s offer must track the floor", ct)
	}
}

func TestReconcileRegeneratesEmptyBook(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	prices := ReferencePrices{CEA: ptr(61.23), EUA: ptr(75.40)}

	offers, changed := Reconcile(nil, prices, rng, time.Now())

	assert.True(t, changed)
	bookInvariantsHold(t, offers, prices)

	cea := 0
	eua := 0
	for _, o := range offers {
		switch o.Type {
		case TypeCEA:
			cea++
		case TypeEUA:
			eua++
		}
	}
	assert.Equal(t, ceaOfferCount, cea)
	assert.Equal(t, euaOfferCount, eua)
}

func TestReconcileBestOfferMatchesReferenceExactly(t *testing.T) {
	// Reference price 61.23: after regeneration the best CEA offer must be
	// exactly 61.23 and every other CEA offer at or above it.
	rng := rand.New(rand.NewSource(7))
	prices := ReferencePrices{CEA: ptr(61.23), EUA: ptr(80)}

	offers, _ := Reconcile(nil, prices, rng, time.Now())

	best := math.MaxFloat64
	for _, o := range offers {
		if o.Type == TypeCEA && o.Price < best {
			best = o.Price
		}
	}
	assert.Equal(t, 61.23, best)
	for _, o := range offers {
		if o.Type == TypeCEA {
			assert.GreaterOrEqual(t, o.Price, 61.23)
		}
	}
}

func TestReconcileClearsBookWhenPricesUnknown(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	seeded, _ := Reconcile(nil, ReferencePrices{CEA: ptr(40), EUA: ptr(75)}, rng, time.Now())
	require.NotEmpty(t, seeded)

	offers, changed := Reconcile(seeded, ReferencePrices{}, rng, time.Now())

	assert.True(t, changed)
	assert.Empty(t, offers)
}

func TestReconcileRegeneratesOnSubFloorOffer(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	prices := ReferencePrices{CEA: ptr(40), EUA: ptr(75)}
	seeded, _ := Reconcile(nil, prices, rng, time.Now())

	// Price moved up; the old best offers are now below the new floors.
	moved := ReferencePrices{CEA: ptr(45), EUA: ptr(80)}
	offers, changed := Reconcile(seeded, moved, rng, time.Now())

	assert.True(t, changed)
	bookInvariantsHold(t, offers, moved)
}

func TestReconcileNudgesBestWithoutRegenerating(t *testing.T) {
	now := time.Now()
	rng := rand.New(rand.NewSource(4))

	// Hand-built book where the best offers drifted slightly ABOVE the floor:
	// no sub-floor violation, so the cheap nudge path must run and every
	// non-best offer must survive untouched.
	mk := func(t CertificateType, price float64) Offer {
		return Offer{ID: uuid.New(), SellerID: "S-US-3002", SellerName: "Global Carbon Fund", Type: t, Amount: 1000, Price: price, Timestamp: now}
	}
	book := []Offer{
		mk(TypeCEA, 40.80), mk(TypeCEA, 41.10), mk(TypeCEA, 43.00),
		mk(TypeEUA, 75.90), mk(TypeEUA, 77.25),
	}
	keepCEA := book[1].ID
	keepEUA := book[2].ID

	prices := ReferencePrices{CEA: ptr(40.50), EUA: ptr(75.20)}
	offers, changed := Reconcile(book, prices, rng, now)

	assert.True(t, changed)
	bookInvariantsHold(t, offers, prices)

	survived := map[uuid.UUID]Offer{}
	for _, o := range offers {
		survived[o.ID] = o
	}
	assert.Contains(t, survived, keepCEA, "nudge path must not replace offers")
	assert.Contains(t, survived, keepEUA)
	assert.Equal(t, 41.10, survived[keepCEA].Price)
	assert.Equal(t, 43.00, survived[keepEUA].Price)
}

func TestReconcileNoChangeLeavesBookAlone(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	prices := ReferencePrices{CEA: ptr(40), EUA: ptr(75)}
	seeded, _ := Reconcile(nil, prices, rng, time.Now())

	offers, changed := Reconcile(seeded, prices, rng, time.Now())

	assert.False(t, changed)
	assert.Equal(t, seeded, offers)
}

func TestReconcileDropsInstrumentWithUnknownPrice(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	prices := ReferencePrices{CEA: ptr(40), EUA: ptr(75)}
	seeded, _ := Reconcile(nil, prices, rng, time.Now())

	oneNil := ReferencePrices{CEA: ptr(40)}
	offers, changed := Reconcile(seeded, oneNil, rng, time.Now())

	assert.True(t, changed)
	for _, o := range offers {
		assert.NotEqual(t, TypeEUA, o.Type)
	}
	bookInvariantsHold(t, offers, oneNil)
}

func TestGeneratedVolumesStayInBands(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 500; i++ {
		v := randomVolume(TypeCEA, rng)
		assert.GreaterOrEqual(t, v, 1000)
		assert.Less(t, v, 6000)

		v = randomVolume(TypeEUA, rng)
		assert.GreaterOrEqual(t, v, 500)
		assert.Less(t, v, 3500)
	}
}

func TestLivelinessNeverBreaksFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	prices := ReferencePrices{CEA: ptr(40), EUA: ptr(75)}
	offers, _ := Reconcile(nil, prices, rng, time.Now())

	for i := 0; i < 50; i++ {
		offers = Liveliness(offers, prices, rng, time.Now())
	}
	for _, o := range offers {
		floor := prices.PriceFor(o.Type)
		require.NotNil(t, floor)
		assert.GreaterOrEqual(t, o.Price, *floor-Epsilon)
	}
}

func TestLivelinessFollowedByReconcileRestoresBest(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	prices := ReferencePrices{CEA: ptr(40), EUA: ptr(75)}
	offers, _ := Reconcile(nil, prices, rng, time.Now())

	offers = Liveliness(offers, prices, rng, time.Now())
	offers, _ = Reconcile(offers, prices, rng, time.Now())

	bookInvariantsHold(t, offers, prices)
}
