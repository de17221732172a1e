package market

import (
	"time"

	"github.com/google/uuid"
)

// CertificateType identifies the two traded instruments: Chinese emission
// allowances (CEA) and EU allowances (EUA).
type CertificateType string

const (
	TypeCEA CertificateType = "CEA"
	TypeEUA CertificateType = "EUA"
)

// Offer is a standing simulated sell order in the market book
type Offer struct {
	ID         uuid.UUID       `json:"id"`
	SellerID   string          `json:"seller_id"`
	SellerName string          `json:"seller_name"`
	Type       CertificateType `json:"type"`
	Amount     int             `json:"amount"`
	Price      float64         `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ReferencePrices carries the latest polled floor price per instrument.
// A nil entry means the feed has no usable value for that instrument.
type ReferencePrices struct {
	CEA *float64
	EUA *float64
}

// PriceFor returns the reference price for the given certificate type
func (p ReferencePrices) PriceFor(t CertificateType) *float64 {
	if t == TypeCEA {
		return p.CEA
	}
	return p.EUA
}

// PriceSource exposes the latest reference prices to the reconciler
type PriceSource interface {
	ReferencePrices() ReferencePrices
}

func newOfferID() uuid.UUID {
	return uuid.New()
}
