package activity

import (
	"time"

	"github.com/google/uuid"
)

// EntryType classifies an audit log entry
type EntryType string

const (
	EntryPurchase           EntryType = "PURCHASE"
	EntryConversionStart    EntryType = "CONVERSION_START"
	EntryConversionComplete EntryType = "CONVERSION_COMPLETE"
	EntryVerification       EntryType = "VERIFICATION"
	EntrySurrender          EntryType = "SURRENDER"
)

// Entry is one append-only audit record. Entries are never updated or
// deleted after creation.
type Entry struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID        string     `json:"user_id" gorm:"index;not null"`
	Timestamp     time.Time  `json:"timestamp" gorm:"index;not null"`
	Type          EntryType  `json:"type" gorm:"not null"`
	CertificateID *uuid.UUID `json:"certificate_id,omitempty" gorm:"type:uuid"`
	SellerID      *string    `json:"seller_id,omitempty"`
	Amount        *int       `json:"amount,omitempty"`
	Price         *float64   `json:"price,omitempty"`
	TotalValue    *float64   `json:"total_value,omitempty"`
	Details       string     `json:"details"`
}

func (Entry) TableName() string {
	return "activity_entries"
}
