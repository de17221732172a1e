package admin

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// AccessRequestFilter narrows ListAccessRequests results
type AccessRequestFilter struct {
	Status AccessRequestStatus
	Search string
	Limit  int
	Offset int
}

type Repository interface {
	CreateAccessRequest(ctx context.Context, req *AccessRequest) error
	GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error)
	SaveAccessRequest(ctx context.Context, req *AccessRequest) error
	ListAccessRequests(ctx context.Context, filter AccessRequestFilter) ([]AccessRequest, int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateAccessRequest(ctx context.Context, req *AccessRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *gormRepository) GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error) {
	var req AccessRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormRepository) SaveAccessRequest(ctx context.Context, req *AccessRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

func (r *gormRepository) ListAccessRequests(ctx context.Context, filter AccessRequestFilter) ([]AccessRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&AccessRequest{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("entity ILIKE ? OR contact ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []AccessRequest
	err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}
