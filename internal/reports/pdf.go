package reports

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMarginLeft   = 15.0
	pdfMarginTop    = 20.0
	pdfMarginRight  = 15.0
	pdfMarginBottom = 20.0
)

// writePDF renders a statement as an A4 landscape table with a summary
// block above it. Headers repeat on every page.
func writePDF(statement Statement) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMarginLeft, pdfMarginTop, pdfMarginRight)
	pdf.SetAutoPageBreak(true, pdfMarginBottom)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "Transaction Statement", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, fmt.Sprintf("Account %s", statement.UserID), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", statement.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	writeSummaryBlock(pdf, statement.Summary)
	pdf.Ln(6)

	widths := columnWidths(pdf)
	writeTableHeader(pdf, widths)

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(0, 0, 0)
	_, pageHeight := pdf.GetPageSize()
	for i, row := range statement.Rows {
		if pdf.GetY()+7 > pageHeight-pdfMarginBottom {
			pdf.AddPage()
			writeTableHeader(pdf, widths)
			pdf.SetFont("Arial", "", 9)
			pdf.SetTextColor(0, 0, 0)
		}

		if i%2 == 1 {
			pdf.SetFillColor(242, 242, 242)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}

		cells := []string{
			row.Timestamp.Format("2006-01-02 15:04"),
			row.Type,
			shortID(row.CertificateID),
			row.CertificateType,
			fmt.Sprintf("%d", row.Amount),
			fmt.Sprintf("%.2f", row.Price),
			fmt.Sprintf("%.2f", row.Fee),
			fmt.Sprintf("%.2f", row.Total),
		}
		for j, cell := range cells {
			align := "L"
			if j >= 4 {
				align = "R"
			}
			pdf.CellFormat(widths[j], 7, cell, "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummaryBlock(pdf *gofpdf.Fpdf, summary StatementSummary) {
	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, "Summary", "", 1, "L", false, 0, "")

	items := []struct {
		label string
		value string
	}{
		{"Transactions", fmt.Sprintf("%d", summary.TransactionCount)},
		{"Units purchased", fmt.Sprintf("%d", summary.UnitsPurchased)},
		{"Units surrendered", fmt.Sprintf("%d", summary.UnitsSurrendered)},
		{"Total spent", fmt.Sprintf("EUR %.2f", summary.TotalSpent)},
		{"Total fees", fmt.Sprintf("EUR %.2f", summary.TotalFees)},
	}
	for _, item := range items {
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(50, 6, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
}

func writeTableHeader(pdf *gofpdf.Fpdf, widths []float64) {
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(47, 82, 51)
	pdf.SetTextColor(255, 255, 255)
	for i, label := range statementColumns {
		pdf.CellFormat(widths[i], 8, label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

func columnWidths(pdf *gofpdf.Fpdf) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	available := pageWidth - pdfMarginLeft - pdfMarginRight

	// Relative weights per column, scaled to the printable width
	weights := []float64{16, 12, 22, 8, 8, 11, 11, 12}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	widths := make([]float64, len(weights))
	for i, w := range weights {
		widths[i] = available * w / total
	}
	return widths
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13] + "..."
	}
	return id
}
