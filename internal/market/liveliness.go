package market

import (
	"math/rand"
	"sort"
	"time"
)

// Fallback floors when a reference price is briefly unknown during a walk.
// Mirrors the historical defaults of the instruments.
var fallbackFloor = map[CertificateType]float64{
	TypeCEA: 37,
	TypeEUA: 57,
}

const (
	walkChance     = 0.30
	newOfferChance = 0.05
)

// Liveliness applies the cosmetic market simulation step: each offer has a
// 30% chance of a small price walk (clamped at the instrument's floor) and
// there is a 5% chance of one brand-new offer appearing above the floor.
// It never re-sorts the book unless an offer was appended, so the displayed
// order stays stable between reconciliations.
func Liveliness(offers []Offer, prices ReferencePrices, rng *rand.Rand, now time.Time) []Offer {
	next := make([]Offer, len(offers))
	copy(next, offers)

	for i, o := range next {
		if rng.Float64() >= walkChance {
			continue
		}
		delta := round2(rng.Float64()*0.5 - 0.25)
		price := round2(o.Price + delta)

		floor := fallbackFloor[o.Type]
		if ref := prices.PriceFor(o.Type); ref != nil {
			floor = *ref
		}
		if price < floor {
			price = floor
		}
		next[i].Price = price
		next[i].Timestamp = now
	}

	if rng.Float64() < newOfferChance {
		t := TypeEUA
		if rng.Float64() < 0.6 {
			t = TypeCEA
		}
		base := fallbackFloor[t] + 3
		if ref := prices.PriceFor(t); ref != nil {
			base = *ref
		}
		spread := priceSpread[t]
		seller := RandomSeller(t, rng)
		next = append(next, Offer{
			ID:         newOfferID(),
			SellerID:   seller.ID,
			SellerName: seller.Name,
			Type:       t,
			Amount:     randomVolume(t, rng),
			Price:      round2(base + spread.base + rng.Float64()*spread.spread),
			Timestamp:  now,
		})
		sort.SliceStable(next, func(i, j int) bool {
			if next[i].Type != next[j].Type {
				return next[i].Type == TypeCEA
			}
			return next[i].Price < next[j].Price
		})
	}

	return next
}
