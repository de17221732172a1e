package reports

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nihao-carbon/carbon-trading/trading-backend/internal/portfolio"
)

// ExportFormat selects the statement file format
type ExportFormat string

const (
	FormatXLSX ExportFormat = "xlsx"
	FormatPDF  ExportFormat = "pdf"
)

var ErrUnsupportedFormat = fmt.Errorf("unsupported export format")

// Export is a rendered statement ready to be served as a download
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TransactionSource provides a user's transaction history.
// Satisfied by portfolio.Service.
type TransactionSource interface {
	Transactions(ctx context.Context, userID string) ([]portfolio.Transaction, error)
}

type Service interface {
	ExportTransactions(ctx context.Context, userID string, format ExportFormat) (*Export, error)
}

type reportService struct {
	transactions TransactionSource
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(transactions TransactionSource, logger *zap.Logger) Service {
	return &reportService{
		transactions: transactions,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *reportService) ExportTransactions(ctx context.Context, userID string, format ExportFormat) (*Export, error) {
	if format != FormatXLSX && format != FormatPDF {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	transactions, err := s.transactions.Transactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s: %w", userID, err)
	}

	generatedAt := s.now().UTC()
	statement := BuildStatement(userID, transactions, generatedAt)

	var export Export
	export.Filename = fmt.Sprintf("transactions_%s.%s", generatedAt.Format("20060102_150405"), format)
	switch format {
	case FormatXLSX:
		export.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		export.Data, err = writeXLSX(statement)
	case FormatPDF:
		export.ContentType = "application/pdf"
		export.Data, err = writePDF(statement)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("statement exported",
		zap.String("user_id", userID),
		zap.String("format", string(format)),
		zap.Int("transactions", statement.Summary.TransactionCount))
	return &export, nil
}
