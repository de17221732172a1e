package market

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// Epsilon is the tolerance used when comparing offer prices against the
// reference price.
const Epsilon = 0.01

const (
	ceaOfferCount = 10
	euaOfferCount = 8
)

// volumeBand describes one weighted amount range for generated offers
type volumeBand struct {
	weight   float64
	min, max int
}

// 30% small / 40% medium / 30% large, ranges per instrument
var volumeBands = map[CertificateType][]volumeBand{
	TypeCEA: {
		{weight: 0.3, min: 1000, max: 2500},
		{weight: 0.4, min: 2500, max: 4500},
		{weight: 0.3, min: 4500, max: 6000},
	},
	TypeEUA: {
		{weight: 0.3, min: 500, max: 1200},
		{weight: 0.4, min: 1200, max: 2500},
		{weight: 0.3, min: 2500, max: 3500},
	},
}

// price offsets applied to non-best generated offers: floor + base + rng*spread
var priceSpread = map[CertificateType]struct{ base, spread float64 }{
	TypeCEA: {base: 0.5, spread: 3},
	TypeEUA: {base: 1, spread: 5},
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func randomVolume(t CertificateType, rng *rand.Rand) int {
	bands := volumeBands[t]
	roll := rng.Float64()
	acc := 0.0
	for _, b := range bands {
		acc += b.weight
		if roll < acc {
			return b.min + rng.Intn(b.max-b.min)
		}
	}
	last := bands[len(bands)-1]
	return last.min + rng.Intn(last.max-last.min)
}

// generateOffers builds a fresh offer set for one instrument. Exactly one
// offer is priced at the floor; the rest sit floor plus a small random delta.
// The result is sorted ascending by price.
func generateOffers(t CertificateType, count int, floor float64, rng *rand.Rand, now time.Time) []Offer {
	spread := priceSpread[t]
	offers := make([]Offer, 0, count)
	for i := 0; i < count; i++ {
		seller := RandomSeller(t, rng)
		price := floor
		if i > 0 {
			price = round2(floor + spread.base + rng.Float64()*spread.spread)
		}
		offers = append(offers, Offer{
			ID:         newOfferID(),
			SellerID:   seller.ID,
			SellerName: seller.Name,
			Type:       t,
			Amount:     randomVolume(t, rng),
			Price:      price,
			Timestamp:  now,
		})
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].Price < offers[j].Price })
	return offers
}

// hasViolation reports whether the offers for one instrument require a full
// rebuild: an empty book, or some offer priced below the floor. Best-price
// drift above the floor is not a rebuild trigger; the nudge path pins it
// back without replacing the book.
func hasViolation(offers []Offer, floor float64) bool {
	if len(offers) == 0 {
		return true
	}
	for _, o := range offers {
		if o.Price < floor-Epsilon {
			return true
		}
	}
	return false
}

// Reconcile restores the offer-book invariants against the given reference
// prices and returns the next book. It is the single authoritative
// reconciliation path, called identically from startup, the price-change
// subscription and the periodic tick.
//
// Invariants enforced for each instrument with a known reference price P:
//  1. the minimum-priced offer equals P within Epsilon,
//  2. no offer is priced below P,
//  3. an unknown (nil) P empties that instrument's offers.
//
// A sub-floor offer with both prices known triggers full regeneration;
// otherwise the current offers are nudged in place, which avoids visible
// jumps in the book on every tick.
func Reconcile(offers []Offer, prices ReferencePrices, rng *rand.Rand, now time.Time) ([]Offer, bool) {
	if prices.CEA == nil && prices.EUA == nil {
		return nil, len(offers) > 0
	}

	byType := map[CertificateType][]Offer{}
	for _, o := range offers {
		byType[o.Type] = append(byType[o.Type], o)
	}

	// Full regeneration requires both floors; it also covers the empty-book
	// case when prices first arrive.
	if prices.CEA != nil && prices.EUA != nil {
		regen := hasViolation(byType[TypeCEA], *prices.CEA) ||
			hasViolation(byType[TypeEUA], *prices.EUA)
		if regen {
			next := generateOffers(TypeCEA, ceaOfferCount, *prices.CEA, rng, now)
			next = append(next, generateOffers(TypeEUA, euaOfferCount, *prices.EUA, rng, now)...)
			return next, true
		}
	}

	// Nudge path: pin the best offer to the floor, raise sub-floor stragglers,
	// drop instruments whose floor is unknown.
	changed := false
	next := make([]Offer, 0, len(offers))
	for _, t := range []CertificateType{TypeCEA, TypeEUA} {
		group := byType[t]
		floor := prices.PriceFor(t)
		if floor == nil {
			if len(group) > 0 {
				changed = true
			}
			continue
		}
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Price < group[j].Price })
		for i := range group {
			if i == 0 {
				if math.Abs(group[i].Price-*floor) > Epsilon {
					group[i].Price = *floor
					group[i].Timestamp = now
					changed = true
				}
			} else if group[i].Price < *floor {
				group[i].Price = *floor
				group[i].Timestamp = now
				changed = true
			}
		}
		sort.Slice(group, func(i, j int) bool { return group[i].Price < group[j].Price })
		next = append(next, group...)
	}

	if !changed {
		return offers, false
	}
	return next, true
}
