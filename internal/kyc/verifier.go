package kyc

import (
	"strings"
	"time"
)

// RegistryVerifier checks EU ETS registry accounts. National registries have
// no public APIs, so this validates format only and accepts well-formed
// account numbers. TODO: integrate the Union Registry data exchange once
// access is granted.
type RegistryVerifier struct {
	now func() time.Time
}

func NewRegistryVerifier() *RegistryVerifier {
	return &RegistryVerifier{now: time.Now}
}

// VerifyAccount validates an account number against the registry. Accepts
// alphanumeric account numbers of 8 to 20 characters.
func (v *RegistryVerifier) VerifyAccount(accountNumber, country string) VerificationResult {
	result := VerificationResult{
		AccountNumber:      accountNumber,
		Country:            normalizeCountry(country),
		Status:             "unknown",
		VerifiedAt:         v.now(),
		VerificationMethod: "mock",
	}

	if accountNumber == "" || country == "" {
		result.Error = "Account number and country are required"
		return result
	}

	if len(accountNumber) >= 8 && len(accountNumber) <= 20 && isAlphanumeric(accountNumber) {
		result.Verified = true
		result.Status = "active"
	} else {
		result.Error = "Invalid account number format"
	}
	return result
}

func normalizeCountry(country string) string {
	country = strings.ToUpper(country)
	if len(country) > 2 {
		country = country[:2]
	}
	return country
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
