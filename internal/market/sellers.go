package market

import "math/rand"

// Seller is a market participant offering certificates for sale
type Seller struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Country  string          `json:"country"`
	Type     CertificateType `json:"type"`
	Both     bool            `json:"both"`
	Verified bool            `json:"verified"`
}

var sellers = []Seller{
	{ID: "S-CHN-1001", Name: "China Carbon Exchange", Country: "China", Type: TypeCEA, Verified: true},
	{ID: "S-CHN-1002", Name: "Beijing Climate Exchange", Country: "China", Type: TypeCEA, Verified: true},
	{ID: "S-CHN-1003", Name: "Shenzhen Energy Group", Country: "China", Type: TypeCEA, Verified: true},
	{ID: "S-EU-2001", Name: "European Carbon Registry", Country: "EU", Type: TypeEUA, Verified: true},
	{ID: "S-DE-2002", Name: "Deutsche Carbon Handel", Country: "Germany", Type: TypeEUA, Verified: true},
	{ID: "S-FR-2003", Name: "Carbone de Paris", Country: "France", Type: TypeEUA, Verified: true},
	{ID: "S-UK-2004", Name: "London Carbon Solutions", Country: "UK", Type: TypeEUA, Verified: true},
	{ID: "S-CH-3001", Name: "Swiss Carbon Alliance", Country: "Switzerland", Both: true, Verified: true},
	{ID: "S-US-3002", Name: "Global Carbon Fund", Country: "USA", Both: true, Verified: true},
	{ID: "S-SG-3003", Name: "Singapore Green Finance", Country: "Singapore", Both: true, Verified: true},
}

// Sellers returns the full participant table
func Sellers() []Seller {
	out := make([]Seller, len(sellers))
	copy(out, sellers)
	return out
}

// RandomSeller picks a random seller eligible to sell the given type
func RandomSeller(t CertificateType, rng *rand.Rand) Seller {
	eligible := make([]Seller, 0, len(sellers))
	for _, s := range sellers {
		if s.Both || s.Type == t {
			eligible = append(eligible, s)
		}
	}
	return eligible[rng.Intn(len(eligible))]
}

// SellerByID looks up a seller by its identifier
func SellerByID(id string) (Seller, bool) {
	for _, s := range sellers {
		if s.ID == id {
			return s, true
		}
	}
	return Seller{}, false
}
