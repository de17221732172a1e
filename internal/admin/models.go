package admin

import "time"

// AccessRequestStatus tracks the review lifecycle of an access request
type AccessRequestStatus string

const (
	RequestPending  AccessRequestStatus = "pending"
	RequestReviewed AccessRequestStatus = "reviewed"
	RequestApproved AccessRequestStatus = "approved"
	RequestRejected AccessRequestStatus = "rejected"
)

func (s AccessRequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestReviewed, RequestApproved, RequestRejected:
		return true
	}
	return false
}

// AccessRequest is submitted from the login page "Request Access" form.
// No authentication is required to create one; review is admin-only.
type AccessRequest struct {
	ID         string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Entity     string              `json:"entity" gorm:"type:varchar(200);not null"`
	Contact    string              `json:"contact" gorm:"type:varchar(120);not null;index"`
	Position   string              `json:"position" gorm:"type:varchar(100);not null"`
	Reference  string              `json:"reference" gorm:"type:varchar(100);not null"`
	Status     AccessRequestStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	CreatedAt  time.Time           `json:"created_at" gorm:"not null;index"`
	ReviewedAt *time.Time          `json:"reviewed_at,omitempty"`
	ReviewedBy string              `json:"reviewed_by,omitempty" gorm:"type:varchar(36)"`
	Notes      string              `json:"notes,omitempty" gorm:"type:text"`
}

func (AccessRequest) TableName() string {
	return "access_requests"
}

// PlatformConfig holds the tunable platform settings served to the admin
// console. The demo keeps it in memory, seeded from the environment.
type PlatformConfig struct {
	PlatformName     string `json:"platform_name"`
	ContactEmail     string `json:"contact_email"`
	CacheDuration    int    `json:"cache_duration"`
	RateLimitPerDay  int    `json:"rate_limit_per_day"`
	RateLimitPerHour int    `json:"rate_limit_per_hour"`
}
