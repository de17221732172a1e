package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service records and lists audit entries
type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, userID string, limit int) ([]Entry, error)
}

type activityService struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &activityService{repo: repo, logger: logger}
}

func (s *activityService) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Error("failed to record activity",
			zap.String("user_id", entry.UserID),
			zap.String("type", string(entry.Type)),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *activityService) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}
