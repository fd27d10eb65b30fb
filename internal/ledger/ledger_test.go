package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kiosco/backend/internal/domain"
)

func income(shiftID string, dest string, amount int64) domain.Transaction {
	return domain.Transaction{ShiftID: shiftID, Type: domain.TxTypeIncome, Source: domain.ContainerCash, Destination: dest, AmountCents: amount}
}

func expense(shiftID string, src string, amount int64) domain.Transaction {
	return domain.Transaction{ShiftID: shiftID, Type: domain.TxTypeExpense, Source: src, AmountCents: amount}
}

func TestFoldBalancesMatchesManualSum(t *testing.T) {
	txs := []domain.Transaction{
		income("s1", domain.ContainerCash, 1000),
		income("s1", domain.ContainerMercadoPago, 2500),
		expense("s1", domain.ContainerCash, 300),
		income("", domain.ContainerSafe, 5000),
		expense("", domain.ContainerSafe, 1200),
		income("", domain.ContainerPettyCash, 800),
		expense("", domain.ContainerPettyCash, 150),
		expense("s1", domain.ContainerMercadoPago, 500),
	}

	got := FoldBalances(txs, nil)

	assert.Equal(t, domain.Balances{
		CashCents:      700,
		DigitalCents:   2000,
		PettyCashCents: 650,
		SafeCents:      3800,
	}, got)
}

func TestFoldBalancesAddsOnlyOpenShiftOpeningAmounts(t *testing.T) {
	txs := []domain.Transaction{income("s1", domain.ContainerCash, 1000)}
	base := FoldBalances(txs, nil)

	shifts := []domain.Shift{
		{ID: "s0", Status: domain.ShiftStatusClosed, OpeningCashCents: 9999, OpeningDigitalCents: 9999},
		{ID: "s1", Status: domain.ShiftStatusOpen, OpeningCashCents: 400, OpeningDigitalCents: 250},
	}
	got := FoldBalances(txs, shifts)

	assert.Equal(t, base.CashCents+400, got.CashCents)
	assert.Equal(t, base.DigitalCents+250, got.DigitalCents)
	assert.Equal(t, base.PettyCashCents, got.PettyCashCents)
	assert.Equal(t, base.SafeCents, got.SafeCents)
}

func TestFoldToleratesLegacyAliases(t *testing.T) {
	txs := []domain.Transaction{
		income("", "CAJA_CHICA", 700),
		expense("", "CAJA_FUERTE", 200),
		income("", domain.ContainerSafe, 1000),
	}

	got := FoldBalances(txs, nil)

	assert.Equal(t, int64(700), got.PettyCashCents)
	assert.Equal(t, int64(800), got.SafeCents)
}

func TestFoldIgnoresNominalSaleSource(t *testing.T) {
	sale := income("s1", domain.ContainerMercadoPago, 1500)
	sale.Category = domain.CategorySale

	got := FoldBalances([]domain.Transaction{sale}, nil)

	assert.Equal(t, int64(0), got.CashCents)
	assert.Equal(t, int64(1500), got.DigitalCents)
}

func TestSettleShiftFoldsOnlyOwnTransactions(t *testing.T) {
	shift := domain.Shift{ID: "s1", OpeningCashCents: 1000, OpeningDigitalCents: 200}
	txs := []domain.Transaction{
		income("s1", domain.ContainerCash, 500),
		expense("s1", domain.ContainerCash, 300),
		income("s1", domain.ContainerMercadoPago, 50),
		income("s2", domain.ContainerCash, 10000),
		income("", domain.ContainerSafe, 10000),
	}

	got := SettleShift(shift, txs)

	assert.Equal(t, domain.ShiftSettlement{CashCents: 1200, DigitalCents: 250}, got)
}

func TestApplyCloseClampsNegativeBalances(t *testing.T) {
	shift := domain.Shift{ID: "s1"}

	ApplyClose(&shift, domain.ShiftSettlement{CashCents: -450, DigitalCents: 90})

	assert.Equal(t, int64(0), shift.ClosingCashCents)
	assert.Equal(t, int64(450), shift.CashShortfallCents)
	assert.Equal(t, int64(90), shift.ClosingDigitalCents)
	assert.Equal(t, int64(0), shift.DigitalShortfallCents)
}
