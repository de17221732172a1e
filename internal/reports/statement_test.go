package reports

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/market"
	"nihao-carbon/carbon-trading/trading-backend/internal/portfolio"
)

type stubTransactions struct {
	transactions []portfolio.Transaction
}

func (s *stubTransactions) Transactions(context.Context, string) ([]portfolio.Transaction, error) {
	return s.transactions, nil
}

func sampleTransactions() []portfolio.Transaction {
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	return []portfolio.Transaction{
		{
			ID:              uuid.New(),
			Type:            portfolio.TransactionPurchase,
			CertificateID:   uuid.New(),
			CertificateType: market.TypeCEA,
			Amount:          100,
			Price:           41.50,
			Total:           4150.00,
			Timestamp:       base,
		},
		{
			ID:              uuid.New(),
			Type:            portfolio.TransactionConversion,
			CertificateID:   uuid.New(),
			CertificateType: market.TypeCEA,
			Amount:          100,
			Fee:             2.00,
			Total:           2.00,
			Timestamp:       base.Add(time.Hour),
		},
		{
			ID:              uuid.New(),
			Type:            portfolio.TransactionSurrender,
			CertificateID:   uuid.New(),
			CertificateType: market.TypeEUA,
			Amount:          60,
			Timestamp:       base.Add(2 * time.Hour),
		},
	}
}

func TestBuildStatementSummarizesByType(t *testing.T) {
	statement := BuildStatement("user-1", sampleTransactions(), time.Now())

	require.Len(t, statement.Rows, 3)
	assert.Equal(t, "Purchase", statement.Rows[0].Type)
	assert.Equal(t, "CEA", statement.Rows[0].CertificateType)

	summary := statement.Summary
	assert.Equal(t, 3, summary.TransactionCount)
	assert.Equal(t, 1, summary.PurchaseCount)
	assert.Equal(t, 1, summary.ConversionCount)
	assert.Equal(t, 1, summary.SurrenderCount)
	assert.InDelta(t, 4150.00, summary.TotalSpent, 0.001)
	assert.InDelta(t, 2.00, summary.TotalFees, 0.001)
	assert.Equal(t, 100, summary.UnitsPurchased)
	assert.Equal(t, 60, summary.UnitsSurrendered)
}

func TestExportTransactionsXLSX(t *testing.T) {
	svc := NewService(&stubTransactions{transactions: sampleTransactions()}, zap.NewNop())

	export, err := svc.ExportTransactions(context.Background(), "user-1", FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.ContentType)
	assert.Contains(t, export.Filename, ".xlsx")
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(export.Data, []byte("PK")))
}

func TestExportTransactionsPDF(t *testing.T) {
	svc := NewService(&stubTransactions{transactions: sampleTransactions()}, zap.NewNop())

	export, err := svc.ExportTransactions(context.Background(), "user-1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", export.ContentType)
	assert.True(t, bytes.HasPrefix(export.Data, []byte("%PDF")))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewService(&stubTransactions{}, zap.NewNop())

	_, err := svc.ExportTransactions(context.Background(), "user-1", "csv")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportHandlesEmptyHistory(t *testing.T) {
	svc := NewService(&stubTransactions{}, zap.NewNop())

	export, err := svc.ExportTransactions(context.Background(), "user-1", FormatXLSX)
	require.NoError(t, err)
	assert.NotEmpty(t, export.Data)
}
