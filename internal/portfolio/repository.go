package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// snapshot is the persisted per-user state. The whole snapshot is written on
// every mutation; concurrent writers are last-writer-wins.
type snapshot struct {
	Portfolio    Portfolio     `json:"portfolio"`
	Transactions []Transaction `json:"transactions"`
}

type snapshotRecord struct {
	UserID    string `gorm:"primaryKey"`
	Data      []byte `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (snapshotRecord) TableName() string {
	return "portfolio_snapshots"
}

// Migrate creates the snapshot table
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&snapshotRecord{})
}

type Repository interface {
	Save(ctx context.Context, userID string, snap snapshot) error
	Load(ctx context.Context, userID string) (*snapshot, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Save(ctx context.Context, userID string, snap snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	record := snapshotRecord{UserID: userID, Data: data, UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(&record).Error
}

func (r *gormRepository) Load(ctx context.Context, userID string) (*snapshot, error) {
	var record snapshotRecord
	err := r.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(record.Data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
