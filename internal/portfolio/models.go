package portfolio

import (
	"time"

	"github.com/google/uuid"

	"nihao-carbon/carbon-trading/trading-backend/internal/market"
)

// CertificateStatus tracks a holding through its lifecycle
type CertificateStatus string

const (
	StatusAvailable  CertificateStatus = "available"
	StatusConverting CertificateStatus = "converting"
	StatusVerified   CertificateStatus = "verified"
)

// Certificate is one purchased lot of emission certificates
type Certificate struct {
	ID                    uuid.UUID              `json:"id"`
	Type                  market.CertificateType `json:"type"`
	Amount                int                    `json:"amount"`
	Price                 float64                `json:"price"`
	Status                CertificateStatus      `json:"status"`
	SellerID              string                 `json:"seller_id"`
	SellerName            string                 `json:"seller_name"`
	PurchasedAt           time.Time              `json:"purchased_at"`
	ConversionStartedAt   *time.Time             `json:"conversion_started_at,omitempty"`
	ConversionCompletedAt *time.Time             `json:"conversion_completed_at,omitempty"`
	VerifiedAt            *time.Time             `json:"verified_at,omitempty"`
}

// TransactionType classifies a balance-affecting event
type TransactionType string

const (
	TransactionPurchase   TransactionType = "purchase"
	TransactionConversion TransactionType = "conversion"
	TransactionSurrender  TransactionType = "surrender"
)

// Transaction is one append-only balance record
type Transaction struct {
	ID              uuid.UUID              `json:"id"`
	UserID          string                 `json:"user_id"`
	Type            TransactionType        `json:"type"`
	CertificateID   uuid.UUID              `json:"certificate_id"`
	CertificateType market.CertificateType `json:"certificate_type"`
	Amount          int                    `json:"amount"`
	Price           float64                `json:"price"`
	Fee             float64                `json:"fee"`
	Total           float64                `json:"total"`
	Timestamp       time.Time              `json:"timestamp"`
}

// Emissions tracks the company's compliance obligation
type Emissions struct {
	Total       int `json:"total"`
	Surrendered int `json:"surrendered"`
	Remaining   int `json:"remaining"`
}

// Portfolio is the view served to clients. Totals are re-derived from the
// certificate list after every mutation.
type Portfolio struct {
	UserID        string        `json:"user_id"`
	Balance       float64       `json:"balance"`
	Certificates  []Certificate `json:"certificates"`
	TotalCEA      int           `json:"total_cea"`
	TotalEUA      int           `json:"total_eua"`
	ConvertingCEA int           `json:"converting_cea"`
	Emissions     Emissions     `json:"emissions"`
}

func (p *Portfolio) recalcTotals() {
	p.TotalCEA, p.TotalEUA, p.ConvertingCEA = 0, 0, 0
	for _, cert := range p.Certificates {
		switch {
		case cert.Type == market.TypeCEA && cert.Status == StatusConverting:
			p.ConvertingCEA += cert.Amount
		case cert.Type == market.TypeCEA:
			p.TotalCEA += cert.Amount
		case cert.Type == market.TypeEUA:
			p.TotalEUA += cert.Amount
		}
	}
}

// PurchaseResult is returned after a successful purchase
type PurchaseResult struct {
	Certificate Certificate `json:"certificate"`
	Transaction Transaction `json:"transaction"`
	Balance     float64     `json:"balance"`
}
