package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const statementSheet = "Transactions"

// writeXLSX renders a statement as a single-sheet workbook with a styled,
// frozen header row and formatted money columns.
func writeXLSX(statement Statement) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	file.SetSheetName("Sheet1", statementSheet)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2F5233"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	moneyFormat := "#,##0.00"
	moneyStyle, err := file.NewStyle(&excelize.Style{CustomNumFmt: &moneyFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}
	dateStyle, err := file.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return nil, fmt.Errorf("failed to create date style: %w", err)
	}

	for i, column := range statementColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(statementSheet, cell, column)
		file.SetCellStyle(statementSheet, cell, cell, headerStyle)
	}
	file.SetPanes(statementSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	for rowIdx, row := range statement.Rows {
		rowNum := rowIdx + 2
		for colIdx, value := range row.cells() {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowNum)
			if ts, ok := value.(time.Time); ok {
				file.SetCellValue(statementSheet, cell, ts)
				file.SetCellStyle(statementSheet, cell, cell, dateStyle)
				continue
			}
			file.SetCellValue(statementSheet, cell, value)
			if _, ok := value.(float64); ok {
				file.SetCellStyle(statementSheet, cell, cell, moneyStyle)
			}
		}
	}

	if len(statement.Rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(statementColumns), len(statement.Rows)+1)
		file.AutoFilter(statementSheet, "A1:"+lastCell, nil)
	}

	widths := []float64{20, 12, 38, 8, 10, 12, 10, 14}
	for i, width := range widths {
		column, _ := excelize.ColumnNumberToName(i + 1)
		file.SetColWidth(statementSheet, column, column, width)
	}

	summaryRow := len(statement.Rows) + 3
	summaryItems := []struct {
		label string
		value interface{}
	}{
		{"Transactions", statement.Summary.TransactionCount},
		{"Units purchased", statement.Summary.UnitsPurchased},
		{"Units surrendered", statement.Summary.UnitsSurrendered},
		{"Total spent (EUR)", statement.Summary.TotalSpent},
		{"Total fees (EUR)", statement.Summary.TotalFees},
	}
	for i, item := range summaryItems {
		labelCell, _ := excelize.CoordinatesToCellName(1, summaryRow+i)
		valueCell, _ := excelize.CoordinatesToCellName(2, summaryRow+i)
		file.SetCellValue(statementSheet, labelCell, item.label)
		file.SetCellValue(statementSheet, valueCell, item.value)
		if _, ok := item.value.(float64); ok {
			file.SetCellStyle(statementSheet, valueCell, valueCell, moneyStyle)
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
