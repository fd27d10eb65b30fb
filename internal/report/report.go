// Package report renders shift reports for download.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/money"
)

const sheetName = "Turnos"

var shiftHeadings = []string{
	"turno", "fecha", "periodo", "operador", "estado",
	"ventas", "otros_ingresos", "egresos", "balance", "costo_mercaderia", "ganancia_neta", "margen_pct", "movimientos",
}

func shiftRowValues(row domain.ShiftReportRow) []any {
	return []any{
		row.ShiftID,
		row.BusinessDate,
		domain.HumanPeriod(row.Period),
		row.Operator,
		row.Status,
		money.FormatPesos(row.SalesCents),
		money.FormatPesos(row.OtherIncomeCents),
		money.FormatPesos(row.ExpensesCents),
		money.FormatPesos(row.BalanceCents),
		money.FormatPesos(row.COGSCents),
		money.FormatPesos(row.NetProfitCents),
		row.MarginPercent,
		row.TransactionCount,
	}
}

func totalValues(report domain.ShiftReport) [][]any {
	return [][]any{
		{"total_ventas", money.FormatPesos(report.TotalSalesCents)},
		{"total_ingresos", money.FormatPesos(report.TotalIncomeCents)},
		{"total_egresos", money.FormatPesos(report.TotalExpenses)},
		{"total_costo_mercaderia", money.FormatPesos(report.TotalCOGSCents)},
		{"total_perdidas", money.FormatPesos(report.TotalLossCents)},
		{"ganancia_neta", money.FormatPesos(report.TotalNetProfit)},
		{"margen_pct", report.MarginPercent},
	}
}

// ShiftCSV renders one line per shift followed by the period totals.
func ShiftCSV(report domain.ShiftReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(shiftHeadings); err != nil {
		return "", err
	}
	for _, row := range report.Shifts {
		if err := w.Write(toStrings(shiftRowValues(row))); err != nil {
			return "", err
		}
	}
	if err := w.Write(nil); err != nil {
		return "", err
	}
	for _, total := range totalValues(report) {
		if err := w.Write(toStrings(total)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteShiftXLSX writes the report as a single-sheet workbook.
func WriteShiftXLSX(out io.Writer, report domain.ShiftReport) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for i, heading := range shiftHeadings {
		if err := setCell(f, i+1, 1, heading); err != nil {
			return err
		}
	}
	rowNo := 2
	for _, row := range report.Shifts {
		for i, value := range shiftRowValues(row) {
			if err := setCell(f, i+1, rowNo, value); err != nil {
				return err
			}
		}
		rowNo++
	}

	rowNo++
	for _, total := range totalValues(report) {
		for i, value := range total {
			if err := setCell(f, i+1, rowNo, value); err != nil {
				return err
			}
		}
		rowNo++
	}

	return f.Write(out)
}

func setCell(f *excelize.File, col int, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheetName, cell, value)
}

func toStrings(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch typed := v.(type) {
		case string:
			out[i] = typed
		case int:
			out[i] = strconv.Itoa(typed)
		default:
			out[i] = fmt.Sprint(typed)
		}
	}
	return out
}
