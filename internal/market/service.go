package market

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service owns the offer book and drives reconciliation and the liveliness
// simulation against the reference price source.
type Service struct {
	store  *Store
	prices PriceSource
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	now func() time.Time
}

func NewService(store *Store, prices PriceSource, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		prices: prices,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// Store exposes the underlying book for purchase removal
func (s *Service) Store() *Store {
	return s.store
}

// Offers returns the current book
func (s *Service) Offers() []Offer {
	return s.store.Snapshot()
}

// OffersByType returns the current book for one instrument, best price first
func (s *Service) OffersByType(t CertificateType) []Offer {
	return s.store.OffersByType(t)
}

// ReconcileNow runs one reconciliation pass against the latest reference
// prices. Safe to call from any scheduler or subscription.
func (s *Service) ReconcileNow() {
	prices := s.prices.ReferencePrices()
	now := s.now()

	var changed bool
	s.store.Update(func(offers []Offer) []Offer {
		s.rngMu.Lock()
		defer s.rngMu.Unlock()
		next, ch := Reconcile(offers, prices, s.rng, now)
		changed = ch
		return next
	})

	if changed {
		s.logger.Debug("offer book reconciled",
			zap.Int("offers", s.store.Len()),
			zap.Bool("cea_price_known", prices.CEA != nil),
			zap.Bool("eua_price_known", prices.EUA != nil))
	}
}

// LivelinessTick runs one cosmetic simulation step
func (s *Service) LivelinessTick() {
	if s.store.Len() == 0 {
		return
	}
	prices := s.prices.ReferencePrices()
	now := s.now()

	s.store.Update(func(offers []Offer) []Offer {
		s.rngMu.Lock()
		defer s.rngMu.Unlock()
		return Liveliness(offers, prices, s.rng, now)
	})
}
