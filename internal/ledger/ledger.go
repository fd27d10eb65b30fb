// Package ledger derives container balances from the transaction history.
// Nothing here is stored: every balance is recomputed from its inputs.
package ledger

import "kiosco/backend/internal/domain"

// Totals maps canonical container tags to their folded balance.
type Totals map[string]int64

// Fold adds each income to its destination container and subtracts each
// expense from its source container. Legacy container aliases are folded into
// their canonical container.
func Fold(txs []domain.Transaction) Totals {
	totals := make(Totals, 4)
	for _, tx := range txs {
		switch tx.Type {
		case domain.TxTypeIncome:
			if tx.Destination != "" {
				totals[domain.CanonicalContainer(tx.Destination)] += tx.AmountCents
			}
		case domain.TxTypeExpense:
			if tx.Source != "" {
				totals[domain.CanonicalContainer(tx.Source)] -= tx.AmountCents
			}
		}
	}
	return totals
}

// FoldBalances computes the four container balances from the full history
// plus the opening amounts of the shifts that are still open. Closed shifts
// are ignored because their money already flows through their transactions.
func FoldBalances(txs []domain.Transaction, shifts []domain.Shift) domain.Balances {
	totals := Fold(txs)
	for _, shift := range shifts {
		if shift.Status != domain.ShiftStatusOpen {
			continue
		}
		totals[domain.ContainerCash] += shift.OpeningCashCents
		totals[domain.ContainerMercadoPago] += shift.OpeningDigitalCents
	}
	return domain.Balances{
		CashCents:      totals[domain.ContainerCash],
		DigitalCents:   totals[domain.ContainerMercadoPago],
		PettyCashCents: totals[domain.ContainerPettyCash],
		SafeCents:      totals[domain.ContainerSafe],
	}
}

// SettleShift returns a shift's running cash and digital balances: its
// opening amounts plus the fold of the transactions that belong to it.
func SettleShift(shift domain.Shift, txs []domain.Transaction) domain.ShiftSettlement {
	own := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.ShiftID == shift.ID {
			own = append(own, tx)
		}
	}
	totals := Fold(own)
	return domain.ShiftSettlement{
		CashCents:    shift.OpeningCashCents + totals[domain.ContainerCash],
		DigitalCents: shift.OpeningDigitalCents + totals[domain.ContainerMercadoPago],
	}
}

// ApplyClose stamps the clamped closing balances and the shortfalls hidden by
// the clamp onto shift.
func ApplyClose(shift *domain.Shift, settlement domain.ShiftSettlement) {
	shift.ClosingCashCents, shift.CashShortfallCents = clamp(settlement.CashCents)
	shift.ClosingDigitalCents, shift.DigitalShortfallCents = clamp(settlement.DigitalCents)
}

func clamp(amount int64) (int64, int64) {
	if amount < 0 {
		return 0, -amount
	}
	return amount, 0
}
