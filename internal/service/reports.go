package service

import (
	"context"
	"time"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/money"
)

// parseDateRange turns two inclusive YYYY-MM-DD bounds into [from, to)
// instants. An empty bound stays zero.
func parseDateRange(from string, to string) (time.Time, time.Time, error) {
	var fromAt, toAt time.Time
	if from != "" {
		parsed, err := time.Parse(dateLayout, from)
		if err != nil {
			return time.Time{}, time.Time{}, invalidInput("from", err)
		}
		fromAt = parsed
	}
	if to != "" {
		parsed, err := time.Parse(dateLayout, to)
		if err != nil {
			return time.Time{}, time.Time{}, invalidInput("to", err)
		}
		toAt = parsed.Add(24 * time.Hour)
	}
	if !fromAt.IsZero() && !toAt.IsZero() && !fromAt.Before(toAt) {
		return time.Time{}, time.Time{}, invalidInput("range", errRangeOrder)
	}
	return fromAt, toAt, nil
}

// ShiftReport summarizes every shift opened between two dates.
func (s *Service) ShiftReport(ctx context.Context, from string, to string) (domain.ShiftReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ShiftReport{}, err
	}
	fromAt, toAt, err := parseDateRange(from, to)
	if err != nil {
		return domain.ShiftReport{}, err
	}

	shifts, err := s.repo.ListShifts(ctx, "", fromAt, toAt, 0)
	if err != nil {
		return domain.ShiftReport{}, err
	}

	report := domain.ShiftReport{From: from, To: to, Shifts: make([]domain.ShiftReportRow, 0, len(shifts))}
	for _, shift := range shifts {
		txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{ShiftID: shift.ID})
		if err != nil {
			return domain.ShiftReport{}, err
		}
		row := summarizeShift(shift, txs)
		report.Shifts = append(report.Shifts, row)
		report.TotalSalesCents += row.SalesCents
		report.TotalIncomeCents += row.SalesCents + row.OtherIncomeCents
		report.TotalExpenses += row.ExpensesCents
		report.TotalCOGSCents += row.COGSCents
		report.TotalNetProfit += row.NetProfitCents
	}

	losses, err := s.repo.ListLosses(ctx, fromAt, toAt)
	if err != nil {
		return domain.ShiftReport{}, err
	}
	for _, loss := range losses {
		report.TotalLossCents += loss.COGSCents
	}
	report.MarginPercent = money.ShareOfRevenue(report.TotalNetProfit, report.TotalIncomeCents)
	return report, nil
}

func summarizeShift(shift domain.Shift, txs []domain.Transaction) domain.ShiftReportRow {
	row := domain.ShiftReportRow{
		ShiftID:          shift.ID,
		BusinessDate:     shift.BusinessDate,
		Period:           shift.Period,
		Operator:         shift.OpenedBy,
		Status:           shift.Status,
		TransactionCount: len(txs),
	}
	for _, tx := range txs {
		switch {
		case tx.Type == domain.TxTypeIncome && tx.Category == domain.CategorySale:
			row.SalesCents += tx.AmountCents
			row.COGSCents += domain.ReceiptCOGS(tx.Receipt)
		case tx.Type == domain.TxTypeIncome:
			row.OtherIncomeCents += tx.AmountCents
		case tx.Type == domain.TxTypeExpense:
			row.ExpensesCents += tx.AmountCents
		}
	}
	income := row.SalesCents + row.OtherIncomeCents
	row.BalanceCents = income - row.ExpensesCents
	row.NetProfitCents = income - row.COGSCents
	row.MarginPercent = money.ShareOfRevenue(row.NetProfitCents, income)
	return row
}
