package market

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store is the in-memory offer book. All mutations go through Update with a
// compute-next-from-previous closure so interleaved schedulers never lose
// writes to each other.
type Store struct {
	mu     sync.RWMutex
	offers []Offer
}

func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a copy of the current book
func (s *Store) Snapshot() []Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Offer, len(s.offers))
	copy(out, s.offers)
	return out
}

// OffersByType returns a copy of the offers for one instrument, sorted by
// ascending price
func (s *Store) OffersByType(t CertificateType) []Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Offer, 0)
	for _, o := range s.offers {
		if o.Type == t {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// Update applies fn to the current book and stores its result. fn receives a
// copy and must return the full next book.
func (s *Store) Update(fn func(offers []Offer) []Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := make([]Offer, len(s.offers))
	copy(prev, s.offers)
	s.offers = fn(prev)
}

// Get returns the offer with the given id
func (s *Store) Get(id uuid.UUID) (Offer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.offers {
		if o.ID == id {
			return o, true
		}
	}
	return Offer{}, false
}

// Remove deletes an offer (e.g. after a purchase). Returns false if the offer
// was already gone, which callers treat as a lost race, not an error.
func (s *Store) Remove(id uuid.UUID) bool {
	removed := false
	s.Update(func(offers []Offer) []Offer {
		next := offers[:0]
		for _, o := range offers {
			if o.ID == id {
				removed = true
				continue
			}
			next = append(next, o)
		}
		return next
	})
	return removed
}

// Len returns the number of standing offers
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offers)
}
