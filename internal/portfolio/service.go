package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/activity"
	"nihao-carbon/carbon-trading/trading-backend/internal/market"
)

const (
	defaultStartingBalance = 100000.0
	conversionFee          = 2.00
	conversionDuration     = 5 * time.Minute
	verifyRoundTrip        = 1500 * time.Millisecond
	surrenderRoundTrip     = 2 * time.Second
	totalEmissions         = 5_000_000
)

var (
	ErrOfferNotFound           = errors.New("offer not found")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrCertificateNotFound     = errors.New("certificate not found")
	ErrInvalidCertificateState = errors.New("certificate not eligible for this operation")
)

// Service manages per-user holdings, balances and the emissions obligation
type Service interface {
	Get(ctx context.Context, userID string) (*Portfolio, error)
	Purchase(ctx context.Context, userID string, offerID uuid.UUID) (*PurchaseResult, error)
	Convert(ctx context.Context, userID string, certificateID uuid.UUID) (*Certificate, error)
	Verify(ctx context.Context, userID string, certificateID uuid.UUID) (*Certificate, error)
	Surrender(ctx context.Context, userID string, certificateID uuid.UUID) (*Emissions, error)
	EmissionsFor(ctx context.Context, userID string) (Emissions, error)
	Transactions(ctx context.Context, userID string) ([]Transaction, error)
	RecentTransactions(since time.Time) []Transaction
	CompleteDueConversions()
	StartScanner(interval time.Duration) error
	StopScanner()
}

type userState struct {
	mu     sync.Mutex
	loaded bool
	snap   snapshot
}

type portfolioService struct {
	repo     Repository
	store    *market.Store
	activity activity.Service
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	states map[string]*userState

	cron *cron.Cron
}

func NewService(repo Repository, store *market.Store, activitySvc activity.Service, logger *zap.Logger) Service {
	return newService(repo, store, activitySvc, logger)
}

func newService(repo Repository, store *market.Store, activitySvc activity.Service, logger *zap.Logger) *portfolioService {
	return &portfolioService{
		repo:     repo,
		store:    store,
		activity: activitySvc,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		states:   make(map[string]*userState),
		cron:     cron.New(cron.WithSeconds()),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func freshSnapshot(userID string) snapshot {
	return snapshot{
		Portfolio: Portfolio{
			UserID:       userID,
			Balance:      defaultStartingBalance,
			Certificates: []Certificate{},
			Emissions:    Emissions{Total: totalEmissions, Remaining: totalEmissions},
		},
		Transactions: []Transaction{},
	}
}

func (s *portfolioService) state(userID string) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		st = &userState{}
		s.states[userID] = st
	}
	return st
}

// withState runs fn with the user's state locked, loading the persisted
// snapshot on first access and persisting after a successful mutation.
func (s *portfolioService) withState(ctx context.Context, userID string, mutate bool, fn func(*snapshot) error) error {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.loaded {
		snap, err := s.repo.Load(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load portfolio: %w", err)
		}
		if snap != nil {
			st.snap = *snap
		} else {
			st.snap = freshSnapshot(userID)
		}
		st.loaded = true
	}

	if err := fn(&st.snap); err != nil {
		return err
	}

	if mutate {
		st.snap.Portfolio.recalcTotals()
		if err := s.repo.Save(ctx, userID, st.snap); err != nil {
			// In-memory state stays authoritative; the next mutation retries.
			s.logger.Error("failed to persist portfolio snapshot",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

func (s *portfolioService) Get(ctx context.Context, userID string) (*Portfolio, error) {
	var out Portfolio
	err := s.withState(ctx, userID, false, func(snap *snapshot) error {
		out = snap.Portfolio
		out.Certificates = append([]Certificate(nil), snap.Portfolio.Certificates...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Purchase buys a listed offer in full. The balance check happens before any
// mutation: an underfunded purchase leaves the portfolio, the book and the
// transaction log untouched.
func (s *portfolioService) Purchase(ctx context.Context, userID string, offerID uuid.UUID) (*PurchaseResult, error) {
	var result PurchaseResult
	err := s.withState(ctx, userID, true, func(snap *snapshot) error {
		offer, ok := s.store.Get(offerID)
		if !ok {
			return ErrOfferNotFound
		}
		total := round2(float64(offer.Amount) * offer.Price)
		if snap.Portfolio.Balance < total {
			return ErrInsufficientBalance
		}
		if !s.store.Remove(offerID) {
			// Sold in the window between lookup and removal.
			return ErrOfferNotFound
		}

		now := s.now()
		cert := Certificate{
			ID:          uuid.New(),
			Type:        offer.Type,
			Amount:      offer.Amount,
			Price:       offer.Price,
			Status:      StatusAvailable,
			SellerID:    offer.SellerID,
			SellerName:  offer.SellerName,
			PurchasedAt: now,
		}
		tx := Transaction{
			ID:              uuid.New(),
			UserID:          userID,
			Type:            TransactionPurchase,
			CertificateID:   cert.ID,
			CertificateType: cert.Type,
			Amount:          cert.Amount,
			Price:           cert.Price,
			Total:           total,
			Timestamp:       now,
		}

		snap.Portfolio.Balance = round2(snap.Portfolio.Balance - total)
		snap.Portfolio.Certificates = append(snap.Portfolio.Certificates, cert)
		snap.Transactions = append(snap.Transactions, tx)

		s.recordActivity(ctx, activity.Entry{
			UserID:        userID,
			Timestamp:     now,
			Type:          activity.EntryPurchase,
			CertificateID: &cert.ID,
			SellerID:      &cert.SellerID,
			Amount:        &cert.Amount,
			Price:         &cert.Price,
			TotalValue:    &total,
			Details:       fmt.Sprintf("Purchased %d %s from %s", cert.Amount, cert.Type, cert.SellerName),
		})

		result = PurchaseResult{Certificate: cert, Transaction: tx, Balance: snap.Portfolio.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Convert starts converting a CEA holding into EUA. The fixed fee is debited
// immediately; the certificate completes five minutes later via the scanner.
func (s *portfolioService) Convert(ctx context.Context, userID string, certificateID uuid.UUID) (*Certificate, error) {
	var out Certificate
	err := s.withState(ctx, userID, true, func(snap *snapshot) error {
		cert := findCertificate(snap, certificateID)
		if cert == nil {
			return ErrCertificateNotFound
		}
		if cert.Type != market.TypeCEA || cert.Status != StatusAvailable {
			return ErrInvalidCertificateState
		}
		if snap.Portfolio.Balance < conversionFee {
			return ErrInsufficientBalance
		}

		now := s.now()
		cert.Status = StatusConverting
		cert.ConversionStartedAt = &now
		snap.Portfolio.Balance = round2(snap.Portfolio.Balance - conversionFee)
		snap.Transactions = append(snap.Transactions, Transaction{
			ID:              uuid.New(),
			UserID:          userID,
			Type:            TransactionConversion,
			CertificateID:   cert.ID,
			CertificateType: cert.Type,
			Amount:          cert.Amount,
			Price:           cert.Price,
			Fee:             conversionFee,
			Total:           conversionFee,
			Timestamp:       now,
		})

		s.recordActivity(ctx, activity.Entry{
			UserID:        userID,
			Timestamp:     now,
			Type:          activity.EntryConversionStart,
			CertificateID: &cert.ID,
			Amount:        &cert.Amount,
			Details:       fmt.Sprintf("Conversion of %d CEA started", cert.Amount),
		})

		out = *cert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify confirms an EUA holding against the registry. The round trip is
// simulated; the certificate is re-checked afterwards because the scanner
// may have run in between.
func (s *portfolioService) Verify(ctx context.Context, userID string, certificateID uuid.UUID) (*Certificate, error) {
	if err := s.checkCertificate(ctx, userID, certificateID, market.TypeEUA, StatusAvailable); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, verifyRoundTrip); err != nil {
		return nil, err
	}

	var out Certificate
	err := s.withState(ctx, userID, true, func(snap *snapshot) error {
		cert := findCertificate(snap, certificateID)
		if cert == nil {
			return ErrCertificateNotFound
		}
		if cert.Type != market.TypeEUA || cert.Status != StatusAvailable {
			return ErrInvalidCertificateState
		}

		now := s.now()
		cert.Status = StatusVerified
		cert.VerifiedAt = &now

		s.recordActivity(ctx, activity.Entry{
			UserID:        userID,
			Timestamp:     now,
			Type:          activity.EntryVerification,
			CertificateID: &cert.ID,
			Amount:        &cert.Amount,
			Details:       fmt.Sprintf("Verified %d EUA against the registry", cert.Amount),
		})

		out = *cert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Surrender retires a verified EUA holding against the emissions obligation
func (s *portfolioService) Surrender(ctx context.Context, userID string, certificateID uuid.UUID) (*Emissions, error) {
	if err := s.checkCertificate(ctx, userID, certificateID, market.TypeEUA, StatusVerified); err != nil {
		return nil, err
	}
	if err := s.sleep(ctx, surrenderRoundTrip); err != nil {
		return nil, err
	}

	var out Emissions
	err := s.withState(ctx, userID, true, func(snap *snapshot) error {
		cert := findCertificate(snap, certificateID)
		if cert == nil {
			return ErrCertificateNotFound
		}
		if cert.Type != market.TypeEUA || cert.Status != StatusVerified {
			return ErrInvalidCertificateState
		}

		now := s.now()
		amount := cert.Amount
		certID := cert.ID

		snap.Portfolio.Certificates = removeCertificate(snap.Portfolio.Certificates, certificateID)
		snap.Portfolio.Emissions.Surrendered += amount
		snap.Portfolio.Emissions.Remaining = snap.Portfolio.Emissions.Total - snap.Portfolio.Emissions.Surrendered
		snap.Transactions = append(snap.Transactions, Transaction{
			ID:              uuid.New(),
			UserID:          userID,
			Type:            TransactionSurrender,
			CertificateID:   certID,
			CertificateType: market.TypeEUA,
			Amount:          amount,
			Timestamp:       now,
		})

		s.recordActivity(ctx, activity.Entry{
			UserID:        userID,
			Timestamp:     now,
			Type:          activity.EntrySurrender,
			CertificateID: &certID,
			Amount:        &amount,
			Details:       fmt.Sprintf("Surrendered %d EUA against emissions", amount),
		})

		out = snap.Portfolio.Emissions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *portfolioService) EmissionsFor(ctx context.Context, userID string) (Emissions, error) {
	var out Emissions
	err := s.withState(ctx, userID, false, func(snap *snapshot) error {
		out = snap.Portfolio.Emissions
		return nil
	})
	return out, err
}

func (s *portfolioService) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	var out []Transaction
	err := s.withState(ctx, userID, false, func(snap *snapshot) error {
		out = append([]Transaction(nil), snap.Transactions...)
		return nil
	})
	return out, err
}

// RecentTransactions returns all loaded users' transactions after the cutoff
func (s *portfolioService) RecentTransactions(since time.Time) []Transaction {
	s.mu.Lock()
	states := make([]*userState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	s.mu.Unlock()

	var out []Transaction
	for _, st := range states {
		st.mu.Lock()
		for _, tx := range st.snap.Transactions {
			if !tx.Timestamp.Before(since) {
				out = append(out, tx)
			}
		}
		st.mu.Unlock()
	}
	return out
}

// CompleteDueConversions promotes converting certificates whose five-minute
// window has elapsed. Called by the scanner; safe to call concurrently with
// user operations.
func (s *portfolioService) CompleteDueConversions() {
	s.mu.Lock()
	users := make([]string, 0, len(s.states))
	for userID := range s.states {
		users = append(users, userID)
	}
	s.mu.Unlock()

	ctx := context.Background()
	for _, userID := range users {
		err := s.withState(ctx, userID, true, func(snap *snapshot) error {
			now := s.now()
			changed := false
			for i := range snap.Portfolio.Certificates {
				cert := &snap.Portfolio.Certificates[i]
				if cert.Status != StatusConverting || cert.ConversionStartedAt == nil {
					continue
				}
				if now.Before(cert.ConversionStartedAt.Add(conversionDuration)) {
					continue
				}

				completedAt := now
				cert.Type = market.TypeEUA
				cert.Status = StatusAvailable
				cert.ConversionCompletedAt = &completedAt
				changed = true

				s.recordActivity(ctx, activity.Entry{
					UserID:        userID,
					Timestamp:     now,
					Type:          activity.EntryConversionComplete,
					CertificateID: &cert.ID,
					Amount:        &cert.Amount,
					Details:       fmt.Sprintf("Conversion of %d certificates completed", cert.Amount),
				})
			}
			if !changed {
				return errNoChange
			}
			return nil
		})
		if err != nil && err != errNoChange {
			s.logger.Error("conversion scan failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

var errNoChange = errors.New("no change")

// StartScanner runs the conversion scan on the given interval
func (s *portfolioService) StartScanner(interval time.Duration) error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.CompleteDueConversions); err != nil {
		return fmt.Errorf("failed to schedule conversion scan: %w", err)
	}
	s.cron.Start()
	s.logger.Info("conversion scanner started", zap.Duration("interval", interval))
	return nil
}

// StopScanner stops the scan schedule and waits for a running scan
func (s *portfolioService) StopScanner() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// checkCertificate validates eligibility before a simulated round trip
func (s *portfolioService) checkCertificate(ctx context.Context, userID string, certificateID uuid.UUID, wantType market.CertificateType, wantStatus CertificateStatus) error {
	return s.withState(ctx, userID, false, func(snap *snapshot) error {
		cert := findCertificate(snap, certificateID)
		if cert == nil {
			return ErrCertificateNotFound
		}
		if cert.Type != wantType || cert.Status != wantStatus {
			return ErrInvalidCertificateState
		}
		return nil
	})
}

func (s *portfolioService) recordActivity(ctx context.Context, entry activity.Entry) {
	// Failures are logged inside the activity service; the trade itself
	// must not fail on audit problems.
	_ = s.activity.Record(ctx, entry)
}

func findCertificate(snap *snapshot, id uuid.UUID) *Certificate {
	for i := range snap.Portfolio.Certificates {
		if snap.Portfolio.Certificates[i].ID == id {
			return &snap.Portfolio.Certificates[i]
		}
	}
	return nil
}

func removeCertificate(certs []Certificate, id uuid.UUID) []Certificate {
	out := certs[:0]
	for _, cert := range certs {
		if cert.ID != id {
			out = append(out, cert)
		}
	}
	return out
}
