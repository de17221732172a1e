package reports

import (
	"strings"
	"time"

	"nihao-carbon/carbon-trading/trading-backend/internal/portfolio"
)

// Statement is a user's trading history prepared for export
type Statement struct {
	UserID      string
	GeneratedAt time.Time
	Rows        []StatementRow
	Summary     StatementSummary
}

// StatementRow is one transaction line of a statement
type StatementRow struct {
	Timestamp       time.Time
	Type            string
	CertificateID   string
	CertificateType string
	Amount          int
	Price           float64
	Fee             float64
	Total           float64
}

// StatementSummary aggregates the statement's transactions
type StatementSummary struct {
	TransactionCount int
	PurchaseCount    int
	ConversionCount  int
	SurrenderCount   int
	TotalSpent       float64
	TotalFees        float64
	UnitsPurchased   int
	UnitsSurrendered int
}

// BuildStatement turns a transaction history into an export-ready
// statement. Rows are ordered oldest first, the way bank statements read.
func BuildStatement(userID string, transactions []portfolio.Transaction, generatedAt time.Time) Statement {
	statement := Statement{
		UserID:      userID,
		GeneratedAt: generatedAt,
		Rows:        make([]StatementRow, 0, len(transactions)),
	}

	for _, tx := range transactions {
		statement.Rows = append(statement.Rows, StatementRow{
			Timestamp:       tx.Timestamp,
			Type:            labelFor(tx.Type),
			CertificateID:   tx.CertificateID.String(),
			CertificateType: strings.ToUpper(string(tx.CertificateType)),
			Amount:          tx.Amount,
			Price:           tx.Price,
			Fee:             tx.Fee,
			Total:           tx.Total,
		})

		statement.Summary.TransactionCount++
		statement.Summary.TotalFees += tx.Fee
		switch tx.Type {
		case portfolio.TransactionPurchase:
			statement.Summary.PurchaseCount++
			statement.Summary.TotalSpent += tx.Total
			statement.Summary.UnitsPurchased += tx.Amount
		case portfolio.TransactionConversion:
			statement.Summary.ConversionCount++
		case portfolio.TransactionSurrender:
			statement.Summary.SurrenderCount++
			statement.Summary.UnitsSurrendered += tx.Amount
		}
	}

	return statement
}

func labelFor(t portfolio.TransactionType) string {
	switch t {
	case portfolio.TransactionPurchase:
		return "Purchase"
	case portfolio.TransactionConversion:
		return "Conversion"
	case portfolio.TransactionSurrender:
		return "Surrender"
	}
	return string(t)
}

var statementColumns = []string{"Date", "Type", "Certificate", "Series", "Amount", "Price (EUR)", "Fee (EUR)", "Total (EUR)"}

func (r StatementRow) cells() []interface{} {
	return []interface{}{
		r.Timestamp,
		r.Type,
		r.CertificateID,
		r.CertificateType,
		r.Amount,
		r.Price,
		r.Fee,
		r.Total,
	}
}
