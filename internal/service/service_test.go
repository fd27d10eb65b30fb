package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosco/backend/internal/barcode"
	"kiosco/backend/internal/cache"
	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/store/memory"
)

var (
	adminActor   = domain.Actor{Username: "admin", Role: domain.RoleAdmin}
	cashierActor = domain.Actor{Username: "cashier", Role: domain.RoleCashier}
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(t *testing.T, deps Deps) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded()
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	return New(repo, deps), repo
}

func asAdmin() context.Context   { return WithActor(context.Background(), adminActor) }
func asCashier() context.Context { return WithActor(context.Background(), cashierActor) }

func openShift(t *testing.T, svc *Service, ctx context.Context, cash int64, digital int64) domain.Shift {
	t.Helper()
	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{
		Period:              "manana",
		OpeningCashCents:    cash,
		OpeningDigitalCents: digital,
	})
	require.NoError(t, err)
	return shift
}

func stockOf(t *testing.T, repo *memory.Store, productID string) int {
	t.Helper()
	product, err := repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return product.Stock
}

type fakeCatalog struct {
	mu     sync.Mutex
	calls  int
	result barcode.Result
	err    error
}

func (f *fakeCatalog) Lookup(_ context.Context, code string) (barcode.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	result := f.result
	result.Barcode = code
	return result, f.err
}

type mapCache struct {
	entries map[string]domain.BarcodeLookup
}

func (m *mapCache) Get(_ context.Context, code string) (*domain.BarcodeLookup, bool, error) {
	entry, ok := m.entries[code]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (m *mapCache) Set(_ context.Context, code string, value *domain.BarcodeLookup, _ time.Duration) error {
	m.entries[code] = *value
	return nil
}

var _ cache.BarcodeCache = (*mapCache)(nil)

func TestOpenShiftRejectsSecondOpenShift(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	openShift(t, svc, asCashier(), 1000, 0)

	_, err := svc.OpenShift(asAdmin(), domain.ShiftOpenRequest{Period: "tarde"})
	assert.ErrorIs(t, err, ErrShiftAlreadyOpen)
}

func TestConcurrentOpenShiftHasOneWinner(t *testing.T) {
	svc, repo := newTestService(t, Deps{})

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.OpenShift(asCashier(), domain.ShiftOpenRequest{Period: "noche"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrShiftAlreadyOpen) || errors.Is(err, ErrOperationInProgress), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)

	open, err := repo.ListOpenShifts(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestOpenShiftValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, Deps{})

	_, err := svc.OpenShift(context.Background(), domain.ShiftOpenRequest{Period: "manana"})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.OpenShift(asCashier(), domain.ShiftOpenRequest{Period: "manana", OpeningCashCents: -1})
	assert.ErrorIs(t, err, ErrInvalidAmounts)

	_, err = svc.OpenShift(asCashier(), domain.ShiftOpenRequest{Period: "madrugada"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetBalancesFoldsHistoryAndOpenShift(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	ctx := asAdmin()

	_, err := svc.AddSafeTransaction(ctx, domain.ContainerMovementRequest{Type: "ingreso", AmountCents: 50000})
	require.NoError(t, err)
	_, err = svc.AddPettyCashTransaction(ctx, domain.ContainerMovementRequest{Type: "ingreso", AmountCents: 8000})
	require.NoError(t, err)
	_, err = svc.AddPettyCashTransaction(ctx, domain.ContainerMovementRequest{Type: "egreso", AmountCents: 3000})
	require.NoError(t, err)

	before, err := svc.GetBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Balances{SafeCents: 50000, PettyCashCents: 5000}, before)

	shift := openShift(t, svc, ctx, 10000, 2500)
	opened, err := svc.GetBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.CashCents+10000, opened.CashCents)
	assert.Equal(t, before.DigitalCents+2500, opened.DigitalCents)
	assert.Equal(t, before.SafeCents, opened.SafeCents)
	assert.Equal(t, before.PettyCashCents, opened.PettyCashCents)

	_, err = svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "proveedor", Container: "efectivo", AmountCents: 4000,
	})
	require.NoError(t, err)
	_, err = svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "ingreso", Category: "otro_ingreso", Container: "mercado_pago", AmountCents: 1500,
	})
	require.NoError(t, err)

	after, err := svc.GetBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), after.CashCents)
	assert.Equal(t, int64(4000), after.DigitalCents)
}

func TestContainerMovementsAreAdminOnly(t *testing.T) {
	svc, _ := newTestService(t, Deps{})

	_, err := svc.AddSafeTransaction(asCashier(), domain.ContainerMovementRequest{Type: "ingreso", AmountCents: 100})
	assert.ErrorIs(t, err, ErrAdminRequired)

	_, err = svc.AddContainerMovement(asAdmin(), "efectivo", domain.ContainerMovementRequest{Type: "ingreso", AmountCents: 100})
	assert.ErrorIs(t, err, ErrInvalidInput)

	tx, err := svc.AddContainerMovement(asAdmin(), "caja_fuerte", domain.ContainerMovementRequest{Type: "egreso", AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, domain.CategorySafeWithdrawal, tx.Category)
	assert.Equal(t, domain.ContainerSafe, tx.Source)
	assert.Empty(t, tx.ShiftID)

	listed, err := svc.ListContainerTransactions(asAdmin(), "SAFE", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, tx.ID, listed[0].ID)
}

func TestAddTransactionRules(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	shift := openShift(t, svc, asCashier(), 0, 0)

	_, err := svc.AddTransaction(asCashier(), domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "ingreso", Category: "venta", Container: "efectivo", AmountCents: 100,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddTransaction(asCashier(), domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "proveedor", Container: "efectivo", AmountCents: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AddTransaction(asCashier(), domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "proveedor", Container: "billetera", AmountCents: 100,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AddTransaction(asCashier(), domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "retiro_caja_fuerte", Container: "caja_fuerte", AmountCents: 100,
	})
	assert.ErrorIs(t, err, ErrAdminRequired)

	tx, err := svc.AddTransaction(asCashier(), domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "retiro_chica", Container: "efectivo", AmountCents: 700, Description: " cambio ",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryToPettyCash, tx.Category)
	assert.Equal(t, domain.ContainerCash, tx.Source)
	assert.Empty(t, tx.Destination)
	assert.Equal(t, "cambio", tx.Description)
}

func TestProcessSaleBuildsIncome(t *testing.T) {
	svc, repo := newTestService(t, Deps{})
	ctx := asCashier()
	shift := openShift(t, svc, ctx, 0, 0)

	tx, err := svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID:       shift.ID,
		PaymentMethod: "mercado_pago",
		Items: []domain.SaleItem{
			{ProductID: "prod-alfajor", Quantity: 2, UnitPriceCents: 80000},
			{ProductID: "prod-coca-500", Quantity: 1, UnitPriceCents: 120000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(280000), tx.AmountCents)
	assert.Equal(t, domain.TxTypeIncome, tx.Type)
	assert.Equal(t, domain.CategorySale, tx.Category)
	assert.Equal(t, domain.ContainerMercadoPago, tx.Destination)
	assert.Equal(t, "Venta POS: 2 productos", tx.Description)
	assert.Equal(t, "cashier", tx.CreatedBy)
	assert.Equal(t, int64(2*45000+65000), domain.ReceiptCOGS(tx.Receipt))

	assert.Equal(t, 8, stockOf(t, repo, "prod-alfajor"))
	assert.Equal(t, 35, stockOf(t, repo, "prod-coca-500"))

	current, err := svc.GetCurrentShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(280000), current.Running.DigitalCents)
}

func TestProcessSaleValidation(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	ctx := asCashier()
	shift := openShift(t, svc, ctx, 0, 0)

	cases := []struct {
		name string
		req  domain.SaleRequest
		want error
	}{
		{"zero quantity", domain.SaleRequest{ShiftID: shift.ID, PaymentMethod: "efectivo", Items: []domain.SaleItem{{ProductID: "prod-alfajor", Quantity: 0, UnitPriceCents: 100}}}, ErrInvalidQuantity},
		{"free cart", domain.SaleRequest{ShiftID: shift.ID, PaymentMethod: "efectivo", Items: []domain.SaleItem{{ProductID: "prod-alfajor", Quantity: 1}}}, ErrInvalidTotal},
		{"unknown payment", domain.SaleRequest{ShiftID: shift.ID, PaymentMethod: "tarjeta", Items: []domain.SaleItem{{ProductID: "prod-alfajor", Quantity: 1, UnitPriceCents: 100}}}, ErrInvalidInput},
		{"empty cart", domain.SaleRequest{ShiftID: shift.ID, PaymentMethod: "efectivo"}, ErrInvalidInput},
		{"line total overflows", domain.SaleRequest{ShiftID: shift.ID, PaymentMethod: "efectivo", Items: []domain.SaleItem{{ProductID: "prod-alfajor", Quantity: 4, UnitPriceCents: 1<<62 + 1}}}, ErrInvalidTotal},
		{"cart total overflows", domain.SaleRequest{ShiftID: shift.ID, PaymentMethod: "efectivo", Items: []domain.SaleItem{
			{ProductID: "prod-alfajor", Quantity: 1, UnitPriceCents: math.MaxInt64 - 10},
			{ProductID: "prod-chicle", Quantity: 1, UnitPriceCents: 11},
		}}, ErrInvalidTotal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ProcessSale(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestProcessSaleRollsBackOnMissingProduct(t *testing.T) {
	svc, repo := newTestService(t, Deps{})
	ctx := asCashier()
	shift := openShift(t, svc, ctx, 0, 0)
	before := stockOf(t, repo, "prod-alfajor")

	_, err := svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID:       shift.ID,
		PaymentMethod: "efectivo",
		Items: []domain.SaleItem{
			{ProductID: "prod-alfajor", Quantity: 3, UnitPriceCents: 80000},
			{ProductID: "prod-inexistente", Quantity: 1, UnitPriceCents: 1000},
		},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, before, stockOf(t, repo, "prod-alfajor"))

	txs, err := svc.ListShiftTransactions(ctx, shift.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestVoidSaleRestoresReceiptQuantitiesOnce(t *testing.T) {
	svc, repo := newTestService(t, Deps{})
	ctx := asCashier()
	shift := openShift(t, svc, ctx, 0, 0)
	cokeBefore := stockOf(t, repo, "prod-coca-500")
	alfajorBefore := stockOf(t, repo, "prod-alfajor")

	sale, err := svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID:       shift.ID,
		PaymentMethod: "efectivo",
		Items: []domain.SaleItem{
			{ProductID: "prod-coca-500", Quantity: 2, UnitPriceCents: 120000},
			{ProductID: "prod-alfajor", Quantity: 1, UnitPriceCents: 80000},
			{ProductID: "prod-coca-500", Quantity: 3, UnitPriceCents: 120000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, cokeBefore-5, stockOf(t, repo, "prod-coca-500"))

	require.NoError(t, svc.DeleteTransaction(ctx, sale.ID))
	assert.Equal(t, cokeBefore, stockOf(t, repo, "prod-coca-500"))
	assert.Equal(t, alfajorBefore, stockOf(t, repo, "prod-alfajor"))

	err = svc.DeleteTransaction(ctx, sale.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	assert.Equal(t, cokeBefore, stockOf(t, repo, "prod-coca-500"))

	lots, err := repo.ListCostLots(context.Background(), "prod-coca-500")
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, 19, lots[0].CurrentQuantity, "lots stay consumed after a void")
	assert.Equal(t, 12, lots[1].CurrentQuantity)
}

func TestVoidWithCorruptReceiptStillDeletes(t *testing.T) {
	svc, repo := newTestService(t, Deps{})
	ctx := asCashier()
	shift := openShift(t, svc, ctx, 0, 0)
	before := stockOf(t, repo, "prod-alfajor")

	created, err := repo.CreateTransaction(context.Background(), domain.Transaction{
		ID:          "tx-corrupt",
		ShiftID:     shift.ID,
		Type:        domain.TxTypeIncome,
		Category:    domain.CategorySale,
		AmountCents: 1000,
		Source:      domain.ContainerCash,
		Destination: domain.ContainerCash,
		Receipt:     json.RawMessage(`{"not":"a list"}`),
		CreatedBy:   "cashier",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTransaction(ctx, created.ID))
	assert.Equal(t, before, stockOf(t, repo, "prod-alfajor"))
	_, err = repo.GetTransaction(context.Background(), created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCashierVoidPolicy(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	shift := openShift(t, svc, asAdmin(), 5000, 0)

	expense, err := svc.AddTransaction(asAdmin(), domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "sueldo", Container: "efectivo", AmountCents: 1000,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteTransaction(asCashier(), expense.ID), ErrSalesOnly)

	sale, err := svc.ProcessSale(asAdmin(), domain.SaleRequest{
		ShiftID: shift.ID, PaymentMethod: "efectivo",
		Items: []domain.SaleItem{{ProductID: "prod-chicle", Quantity: 1, UnitPriceCents: 20000}},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteTransaction(asCashier(), sale.ID), ErrOwnShiftOnly)

	require.NoError(t, svc.DeleteTransaction(asAdmin(), expense.ID))
}

func TestLossCostEqualsSaleCost(t *testing.T) {
	saleSvc, _ := newTestService(t, Deps{})
	lossSvc, _ := newTestService(t, Deps{})
	shift := openShift(t, saleSvc, asCashier(), 0, 0)

	sale, err := saleSvc.ProcessSale(asCashier(), domain.SaleRequest{
		ShiftID: shift.ID, PaymentMethod: "efectivo",
		Items: []domain.SaleItem{{ProductID: "prod-coca-500", Quantity: 30, UnitPriceCents: 120000}},
	})
	require.NoError(t, err)

	loss, err := lossSvc.ReportProductLoss(asCashier(), "prod-coca-500", domain.LossReportRequest{Quantity: 30, Reason: "rotura"})
	require.NoError(t, err)

	assert.Equal(t, domain.ReceiptCOGS(sale.Receipt), loss.COGSCents)
	assert.Equal(t, int64(24*65000+6*70000), loss.COGSCents)
	assert.Equal(t, "cashier", loss.RecordedBy)
}

func TestReportProductLossValidation(t *testing.T) {
	svc, _ := newTestService(t, Deps{})

	_, err := svc.ReportProductLoss(asCashier(), "prod-alfajor", domain.LossReportRequest{Quantity: 0, Reason: "x"})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.ReportProductLoss(asCashier(), "prod-alfajor", domain.LossReportRequest{Quantity: 1, Reason: "  "})
	assert.ErrorIs(t, err, ErrMissingReason)
	_, err = svc.ReportProductLoss(asCashier(), "prod-nada", domain.LossReportRequest{Quantity: 1, Reason: "vencido"})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCashierReceivesBatch(t *testing.T) {
	svc, repo := newTestService(t, Deps{})

	lot, err := svc.AddProductBatch(asCashier(), "prod-agua-500", domain.BatchCreateRequest{Quantity: 12, CostPriceCents: 40000})
	require.NoError(t, err)
	assert.Equal(t, 12, lot.InitialQuantity)
	assert.Equal(t, 32, stockOf(t, repo, "prod-agua-500"))

	history, err := svc.ListPriceHistory(asAdmin(), "prod-agua-500", 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, cashierActor.Username, history[0].ChangedBy)
}

func TestConsumeFIFOLeavesDrainedUnitsUnlotted(t *testing.T) {
	svc, repo := newTestService(t, Deps{})
	ctx := asAdmin()

	alloc, err := svc.ConsumeFIFO(ctx, "prod-coca-500", 36)
	require.NoError(t, err)
	assert.Equal(t, int64(24*65000+12*70000), alloc.TotalCostCents())
	assert.Equal(t, 36, stockOf(t, repo, "prod-coca-500"))

	shift := openShift(t, svc, ctx, 0, 0)
	sale, err := svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID: shift.ID, PaymentMethod: "efectivo",
		Items: []domain.SaleItem{{ProductID: "prod-coca-500", Quantity: 2, UnitPriceCents: 120000}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2*70000), domain.ReceiptCOGS(sale.Receipt))
	assert.Equal(t, 34, stockOf(t, repo, "prod-coca-500"))
}

func TestAddProductBatchFeedsFIFO(t *testing.T) {
	svc, repo := newTestService(t, Deps{})
	ctx := asAdmin()

	_, err := svc.AddProductBatch(context.Background(), "prod-chicle", domain.BatchCreateRequest{Quantity: 5, CostPriceCents: 100})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.AddProductBatch(ctx, "prod-chicle", domain.BatchCreateRequest{Quantity: 0, CostPriceCents: 100})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.AddProductBatch(ctx, "prod-chicle", domain.BatchCreateRequest{Quantity: 1, CostPriceCents: -1})
	assert.ErrorIs(t, err, ErrInvalidCost)
	_, err = svc.AddProductBatch(ctx, "prod-nada", domain.BatchCreateRequest{Quantity: 1, CostPriceCents: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)

	stockBefore := stockOf(t, repo, "prod-chicle")
	lot, err := svc.AddProductBatch(ctx, "prod-chicle", domain.BatchCreateRequest{Quantity: 5, CostPriceCents: 9000, Provider: "Arcor"})
	require.NoError(t, err)
	assert.Equal(t, 5, lot.CurrentQuantity)
	assert.Equal(t, stockBefore+5, stockOf(t, repo, "prod-chicle"))

	product, err := svc.GetProduct(ctx, "prod-chicle")
	require.NoError(t, err)
	assert.Equal(t, int64(9000), product.CostPriceCents)

	alloc, err := svc.ConsumeFIFO(ctx, "prod-chicle", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(27000), alloc.ExactCostCents)
	assert.Zero(t, alloc.FallbackQuantity)
	assert.Equal(t, stockBefore+5, stockOf(t, repo, "prod-chicle"), "consumption alone leaves stock untouched")

	history, err := svc.ListPriceHistory(ctx, "prod-chicle", 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, int64(9000), history[0].CostPriceCents)
	assert.Equal(t, "admin", history[0].ChangedBy)
}

func TestCloseShiftClampsAndRecordsShortfall(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	ctx := asCashier()
	shift := openShift(t, svc, ctx, 1000, 0)

	_, err := svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "proveedor", Container: "efectivo", AmountCents: 4000,
	})
	require.NoError(t, err)

	declared := int64(0)
	closed, err := svc.CloseShift(ctx, shift.ID, domain.ShiftCloseRequest{FinalCashCents: &declared})
	require.NoError(t, err)
	assert.Equal(t, int64(0), closed.ClosingCashCents)
	assert.Equal(t, int64(3000), closed.CashShortfallCents)
	assert.Equal(t, domain.ShiftStatusClosed, closed.Status)

	_, err = svc.CloseShift(ctx, shift.ID, domain.ShiftCloseRequest{})
	assert.ErrorIs(t, err, ErrShiftNotOpen)
	_, err = svc.CloseShift(ctx, "shift-nada", domain.ShiftCloseRequest{})
	assert.ErrorIs(t, err, ErrShiftNotFound)

	_, err = svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "ingreso", Category: "otro_ingreso", Container: "efectivo", AmountCents: 100,
	})
	assert.ErrorIs(t, err, ErrShiftNotOpen)

	closedShifts, err := svc.ListClosedShifts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, closedShifts, 1)
	assert.Equal(t, shift.ID, closedShifts[0].ID)
}

func TestDeleteShiftRemovesItsTransactions(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	shift := openShift(t, svc, asCashier(), 0, 0)
	_, err := svc.AddTransaction(asCashier(), domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "ingreso", Category: "otro_ingreso", Container: "efectivo", AmountCents: 100,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteShift(asCashier(), shift.ID), ErrAdminRequired)
	require.NoError(t, svc.DeleteShift(asAdmin(), shift.ID))
	assert.ErrorIs(t, svc.DeleteShift(asAdmin(), shift.ID), ErrShiftNotFound)

	_, err = svc.GetCurrentShift(asCashier())
	assert.ErrorIs(t, err, ErrShiftNotFound)
	balances, err := svc.GetBalances(asCashier())
	require.NoError(t, err)
	assert.Zero(t, balances.CashCents)
}

func TestShiftLockBusyReturnsInProgress(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	held, err := svc.locker.Obtain(context.Background(), shiftLockKey, time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(context.Background()) }()

	_, err = svc.OpenShift(asCashier(), domain.ShiftOpenRequest{Period: "manana"})
	assert.ErrorIs(t, err, ErrOperationInProgress)
}

func TestShiftReportSummarizesShifts(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	ctx := asAdmin()
	shift := openShift(t, svc, ctx, 0, 0)

	_, err := svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID: shift.ID, PaymentMethod: "efectivo",
		Items: []domain.SaleItem{{ProductID: "prod-alfajor", Quantity: 2, UnitPriceCents: 90000}},
	})
	require.NoError(t, err)
	_, err = svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "proveedor", Container: "efectivo", AmountCents: 20000,
	})
	require.NoError(t, err)
	_, err = svc.ReportProductLoss(ctx, "prod-yerba-1kg", domain.LossReportRequest{Quantity: 1, Reason: "vencida"})
	require.NoError(t, err)

	today := time.Now().UTC().Format(dateLayout)
	report, err := svc.ShiftReport(ctx, today, today)
	require.NoError(t, err)
	require.Len(t, report.Shifts, 1)

	row := report.Shifts[0]
	assert.Equal(t, int64(180000), row.SalesCents)
	assert.Equal(t, int64(20000), row.ExpensesCents)
	assert.Equal(t, int64(160000), row.BalanceCents)
	assert.Equal(t, int64(90000), row.COGSCents)
	assert.Equal(t, int64(90000), row.NetProfitCents)
	assert.Equal(t, "50.00", row.MarginPercent)
	assert.Equal(t, 2, row.TransactionCount)
	assert.Equal(t, int64(250000), report.TotalLossCents)
	assert.Equal(t, "50.00", report.MarginPercent)

	_, err = svc.ShiftReport(asCashier(), today, today)
	assert.ErrorIs(t, err, ErrAdminRequired)
	_, err = svc.ShiftReport(ctx, "2026-10-20", "2026-10-01")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProductCatalogOperations(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	ctx := asAdmin()

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Turrón", Barcode: "7790580000017", CostPriceCents: 20000, SalePriceCents: 30000, Stock: 3, MinStock: 5,
	})
	require.NoError(t, err)
	assert.True(t, created.LowStock)
	assert.Equal(t, "50.00", created.MarginPercent)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "Otro", Barcode: "7790580000017"})
	assert.ErrorIs(t, err, store.ErrConflict)

	price := int64(36000)
	updated, err := svc.UpdateProduct(ctx, created.ID, domain.ProductUpdateRequest{SalePriceCents: &price})
	require.NoError(t, err)
	assert.Equal(t, "80.00", updated.MarginPercent)

	history, err := svc.ListPriceHistory(ctx, created.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	found, err := svc.SearchProducts(asCashier(), "turr", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, svc.DeleteProduct(ctx, created.ID))
	listed, err := svc.ListProducts(asCashier())
	require.NoError(t, err)
	for _, p := range listed {
		assert.NotEqual(t, created.ID, p.ID)
	}
}

func TestLookupBarcode(t *testing.T) {
	catalog := &fakeCatalog{result: barcode.Result{Found: true, Name: "Mantecol", Brand: "Georgalos", Source: "openfoodfacts"}}
	cached := &mapCache{entries: map[string]domain.BarcodeLookup{}}
	svc, _ := newTestService(t, Deps{Barcodes: catalog, BarcodeCache: cached})
	ctx := asCashier()

	_, err := svc.LookupBarcode(ctx, "12345")
	assert.ErrorIs(t, err, ErrInvalidBarcode)

	local, err := svc.LookupBarcode(ctx, "7790040613508")
	require.NoError(t, err)
	assert.Equal(t, "local", local.Source)
	assert.Zero(t, catalog.calls)

	remote, err := svc.LookupBarcode(ctx, "7790580123456")
	require.NoError(t, err)
	assert.True(t, remote.Found)
	assert.Equal(t, "Mantecol", remote.Name)
	assert.Equal(t, 1, catalog.calls)

	again, err := svc.LookupBarcode(ctx, "7790580123456")
	require.NoError(t, err)
	assert.Equal(t, remote, again)
	assert.Equal(t, 1, catalog.calls, "second lookup is served from cache")
}

func TestLookupBarcodeDegradesWhenCatalogFails(t *testing.T) {
	catalog := &fakeCatalog{err: barcode.ErrRateLimited}
	svc, _ := newTestService(t, Deps{Barcodes: catalog})

	result, err := svc.LookupBarcode(asCashier(), "77905801")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, "77905801", result.Barcode)
}

func TestListAuditLogsRecordsOperations(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	openShift(t, svc, asCashier(), 0, 0)

	_, err := svc.ListAuditLogs(asCashier(), "", 10)
	assert.ErrorIs(t, err, ErrAdminRequired)

	logs, err := svc.ListAuditLogs(asAdmin(), "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "shift_open", logs[0].Action)
	assert.Equal(t, "cashier", logs[0].ActorUsername)
}

func TestDashboardMetrics(t *testing.T) {
	svc, repo := newTestService(t, Deps{})
	ctx := asAdmin()
	bg := context.Background()

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	threeDaysAgo := now.AddDate(0, 0, -3)

	old, err := repo.CreateShift(bg, domain.Shift{OpenedBy: "admin", Period: domain.PeriodNight, OpenedAt: threeDaysAgo})
	require.NoError(t, err)
	_, err = repo.CreateTransaction(bg, domain.Transaction{
		ShiftID: old.ID, Type: domain.TxTypeIncome, Category: domain.CategoryOtherIncome,
		AmountCents: 50000, Destination: domain.ContainerMercadoPago, CreatedAt: threeDaysAgo,
	})
	require.NoError(t, err)
	_, err = repo.CloseShift(bg, old.ID, domain.ShiftCloseRequest{}, threeDaysAgo.Add(time.Hour))
	require.NoError(t, err)

	shift := openShift(t, svc, ctx, 0, 0)
	_, err = svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID: shift.ID, PaymentMethod: "efectivo",
		Items: []domain.SaleItem{{ProductID: "prod-alfajor", Quantity: 2, UnitPriceCents: 80000}},
	})
	require.NoError(t, err)
	_, err = svc.ProcessSale(ctx, domain.SaleRequest{
		ShiftID: shift.ID, PaymentMethod: "mercado_pago",
		Items: []domain.SaleItem{{ProductID: "prod-coca-500", Quantity: 3, UnitPriceCents: 120000}},
	})
	require.NoError(t, err)
	_, err = svc.AddTransaction(ctx, domain.TransactionCreateRequest{
		ShiftID: shift.ID, Type: "egreso", Category: "proveedor", Container: "efectivo", AmountCents: 20000,
	})
	require.NoError(t, err)
	_, err = svc.AddSafeTransaction(ctx, domain.ContainerMovementRequest{Type: "egreso", AmountCents: 10000})
	require.NoError(t, err)

	metrics, err := svc.DashboardMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.DaySummary{SalesCents: 520000, ExpensesCents: 20000, NetCents: 500000}, metrics.Today)
	assert.Equal(t, int64(160000), metrics.MonthCashIncomeCents)
	assert.Equal(t, int64(20000), metrics.MonthExpensesCents)

	require.Len(t, metrics.Last7Days, 7)
	assert.Equal(t, now.Format("2006-01-02"), metrics.Last7Days[6].Date)
	assert.Equal(t, int64(520000), metrics.Last7Days[6].SalesCents)
	assert.Equal(t, threeDaysAgo.Format("2006-01-02"), metrics.Last7Days[3].Date)
	assert.Equal(t, int64(50000), metrics.Last7Days[3].SalesCents)

	require.Len(t, metrics.TopMargin, 5)
	assert.Equal(t, "Agua Mineral 500ml", metrics.TopMargin[0].Name)
	assert.Equal(t, "100.00", metrics.TopMargin[0].MarginPercent)
	assert.Equal(t, "Coca-Cola 500ml", metrics.TopMargin[4].Name)

	require.Len(t, metrics.TopSelling, 2)
	assert.Equal(t, domain.ProductSales{ProductID: "prod-coca-500", Name: "Coca-Cola 500ml", Quantity: 3}, metrics.TopSelling[0])
	assert.Equal(t, 2, metrics.TopSelling[1].Quantity)

	require.Len(t, metrics.LowStock, 2)
	assert.Equal(t, "prod-alfajor", metrics.LowStock[0].ProductID)
	assert.Equal(t, 8, metrics.LowStock[0].Stock)
	assert.Equal(t, "prod-yerba-1kg", metrics.LowStock[1].ProductID)

	assert.Len(t, metrics.RecentTransactions, 5)
}

func TestDashboardMetricsRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	_, err := svc.DashboardMetrics(asCashier())
	assert.ErrorIs(t, err, ErrAdminRequired)
}
