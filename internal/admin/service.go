package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/kyc"
	"nihao-carbon/carbon-trading/trading-backend/internal/pricefeed"
)

const (
	minCacheDuration = 60
	maxCacheDuration = 600

	defaultListLimit = 50
	maxNotesLength   = 1000
)

var (
	ErrRequestNotFound = errors.New("access request not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidConfig   = errors.New("invalid configuration value")
)

// FeedStatusSource reports price feed health. Satisfied by pricefeed.Poller.
type FeedStatusSource interface {
	Status() []pricefeed.FeedStatus
}

// NewAccessRequest carries the fields of the public request form
type NewAccessRequest struct {
	Entity    string `json:"entity"`
	Contact   string `json:"contact"`
	Position  string `json:"position"`
	Reference string `json:"reference"`
}

// Review updates an access request's status with optional admin notes
type Review struct {
	Status AccessRequestStatus
	Notes  string
	Admin  string
}

type Service interface {
	ListUsers(ctx context.Context) ([]kyc.User, error)
	GetUser(ctx context.Context, id string) (*kyc.User, error)
	UpdateUserKYCStatus(ctx context.Context, id string, status kyc.KYCStatus) (*kyc.User, error)

	CreateAccessRequest(ctx context.Context, form NewAccessRequest) (*AccessRequest, error)
	ListAccessRequests(ctx context.Context, filter AccessRequestFilter) ([]AccessRequest, int64, error)
	GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error)
	ReviewAccessRequest(ctx context.Context, id string, review Review) (*AccessRequest, error)

	Config() PlatformConfig
	UpdateConfig(patch ConfigPatch) (PlatformConfig, error)
	FeedStatus() []pricefeed.FeedStatus
}

// ConfigPatch carries partial platform config updates; nil means unchanged
type ConfigPatch struct {
	PlatformName     *string `json:"platform_name"`
	ContactEmail     *string `json:"contact_email"`
	CacheDuration    *int    `json:"cache_duration"`
	RateLimitPerDay  *int    `json:"rate_limit_per_day"`
	RateLimitPerHour *int    `json:"rate_limit_per_hour"`
}

type adminService struct {
	repo   Repository
	users  kyc.Repository
	feed   FeedStatusSource
	logger *zap.Logger
	now    func() time.Time

	configMu sync.RWMutex
	config   PlatformConfig
}

func NewService(repo Repository, users kyc.Repository, feed FeedStatusSource, config PlatformConfig, logger *zap.Logger) Service {
	return &adminService{
		repo:   repo,
		users:  users,
		feed:   feed,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

func (s *adminService) ListUsers(ctx context.Context) ([]kyc.User, error) {
	return s.users.ListUsers(ctx)
}

func (s *adminService) GetUser(ctx context.Context, id string) (*kyc.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateUserKYCStatus lets the admin console override the onboarding
// outcome, e.g. approving a user in final review or sending one back with
// needs_update.
func (s *adminService) UpdateUserKYCStatus(ctx context.Context, id string, status kyc.KYCStatus) (*kyc.User, error) {
	switch status {
	case kyc.StatusPending, kyc.StatusInReview, kyc.StatusApproved, kyc.StatusRejected, kyc.StatusNeedsUpdate:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	user.KYCStatus = status
	user.UpdatedAt = s.now().UTC()
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user %s: %w", id, err)
	}

	s.logger.Info("admin updated kyc status",
		zap.String("user_id", id),
		zap.String("kyc_status", string(status)))
	return user, nil
}

func (s *adminService) CreateAccessRequest(ctx context.Context, form NewAccessRequest) (*AccessRequest, error) {
	req := &AccessRequest{
		ID:        uuid.New().String(),
		Entity:    truncate(strings.TrimSpace(form.Entity), 200),
		Contact:   truncate(strings.TrimSpace(form.Contact), 120),
		Position:  truncate(strings.TrimSpace(form.Position), 100),
		Reference: truncate(strings.TrimSpace(form.Reference), 100),
		Status:    RequestPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateAccessRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create access request: %w", err)
	}

	s.logger.Info("access request created",
		zap.String("request_id", req.ID),
		zap.String("entity", req.Entity))
	return req, nil
}

func (s *adminService) ListAccessRequests(ctx context.Context, filter AccessRequestFilter) ([]AccessRequest, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidStatus, filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListAccessRequests(ctx, filter)
}

func (s *adminService) GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error) {
	req, err := s.repo.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

func (s *adminService) ReviewAccessRequest(ctx context.Context, id string, review Review) (*AccessRequest, error) {
	if !review.Status.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, review.Status)
	}

	req, err := s.repo.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	reviewedAt := s.now().UTC()
	req.Status = review.Status
	req.ReviewedAt = &reviewedAt
	req.ReviewedBy = review.Admin
	if review.Notes != "" {
		req.Notes = truncate(review.Notes, maxNotesLength)
	}
	if err := s.repo.SaveAccessRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to update access request %s: %w", id, err)
	}

	s.logger.Info("access request reviewed",
		zap.String("request_id", id),
		zap.String("status", string(review.Status)),
		zap.String("reviewed_by", review.Admin))
	return req, nil
}

func (s *adminService) Config() PlatformConfig {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.config
}

func (s *adminService) UpdateConfig(patch ConfigPatch) (PlatformConfig, error) {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	if patch.CacheDuration != nil {
		if *patch.CacheDuration < minCacheDuration || *patch.CacheDuration > maxCacheDuration {
			return PlatformConfig{}, fmt.Errorf("%w: cache duration must be between %d and %d seconds",
				ErrInvalidConfig, minCacheDuration, maxCacheDuration)
		}
		s.config.CacheDuration = *patch.CacheDuration
	}
	if patch.PlatformName != nil {
		s.config.PlatformName = *patch.PlatformName
	}
	if patch.ContactEmail != nil {
		s.config.ContactEmail = *patch.ContactEmail
	}
	if patch.RateLimitPerDay != nil {
		s.config.RateLimitPerDay = *patch.RateLimitPerDay
	}
	if patch.RateLimitPerHour != nil {
		s.config.RateLimitPerHour = *patch.RateLimitPerHour
	}
	return s.config, nil
}

func (s *adminService) FeedStatus() []pricefeed.FeedStatus {
	if s.feed == nil {
		return nil
	}
	return s.feed.Status()
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
