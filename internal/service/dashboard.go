package service

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/money"
	"kiosco/backend/internal/store"
)

const (
	dashboardDays      = 7
	topSellingDays     = 30
	dashboardTopN      = 5
	recentTransactions = 8
)

// Container movements shuffle money between drawers and are not spending.
var movementCategories = map[string]bool{
	domain.CategoryPettyCashDeposit:    true,
	domain.CategoryPettyCashWithdrawal: true,
	domain.CategorySafeDeposit:         true,
	domain.CategorySafeWithdrawal:      true,
}

// DashboardMetrics folds the last week of shifts, the month's movements and
// the last month of sale receipts into the admin overview.
func (s *Service) DashboardMetrics(ctx context.Context) (domain.DashboardMetrics, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DashboardMetrics{}, err
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	weekStart := dayStart.AddDate(0, 0, -(dashboardDays - 1))

	metrics := domain.DashboardMetrics{}
	if err := s.foldWeek(ctx, &metrics, weekStart, dayStart, dayEnd); err != nil {
		return domain.DashboardMetrics{}, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthTxs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{From: monthStart, To: dayEnd})
	if err != nil {
		return domain.DashboardMetrics{}, err
	}
	for _, tx := range monthTxs {
		if tx.Type == domain.TxTypeIncome && domain.CanonicalContainer(tx.Destination) == domain.ContainerCash {
			metrics.MonthCashIncomeCents += tx.AmountCents
		}
		if tx.Type == domain.TxTypeExpense && !movementCategories[tx.Category] {
			metrics.MonthExpensesCents += tx.AmountCents
		}
	}

	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return domain.DashboardMetrics{}, err
	}
	metrics.TopMargin = topMargin(products)
	metrics.LowStock = lowStock(products)

	saleTxs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		From: dayStart.AddDate(0, 0, -topSellingDays),
		To:   dayEnd,
	})
	if err != nil {
		return domain.DashboardMetrics{}, err
	}
	metrics.TopSelling, err = s.topSelling(ctx, saleTxs)
	if err != nil {
		return domain.DashboardMetrics{}, err
	}

	metrics.RecentTransactions, err = s.repo.ListTransactions(ctx, domain.TransactionFilter{Limit: recentTransactions})
	if err != nil {
		return domain.DashboardMetrics{}, err
	}
	return metrics, nil
}

// foldWeek buckets the income and expenses of every shift opened in the
// window by the UTC date the shift opened.
func (s *Service) foldWeek(ctx context.Context, metrics *domain.DashboardMetrics, weekStart time.Time, dayStart time.Time, dayEnd time.Time) error {
	shifts, err := s.repo.ListShifts(ctx, "", weekStart, dayEnd, 0)
	if err != nil {
		return err
	}

	days := make(map[string]int64, dashboardDays)
	for _, shift := range shifts {
		txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{ShiftID: shift.ID})
		if err != nil {
			return err
		}
		var sales, expenses int64
		for _, tx := range txs {
			switch tx.Type {
			case domain.TxTypeIncome:
				sales += tx.AmountCents
			case domain.TxTypeExpense:
				expenses += tx.AmountCents
			}
		}
		day := shift.OpenedAt.UTC().Format(dateLayout)
		days[day] += sales
		if !shift.OpenedAt.Before(dayStart) {
			metrics.Today.SalesCents += sales
			metrics.Today.ExpensesCents += expenses
		}
	}
	metrics.Today.NetCents = metrics.Today.SalesCents - metrics.Today.ExpensesCents

	metrics.Last7Days = make([]domain.DailySales, 0, dashboardDays)
	for i := 0; i < dashboardDays; i++ {
		day := weekStart.AddDate(0, 0, i).Format(dateLayout)
		metrics.Last7Days = append(metrics.Last7Days, domain.DailySales{Date: day, SalesCents: days[day]})
	}
	return nil
}

func topMargin(products []domain.Product) []domain.ProductMargin {
	type ranked struct {
		product domain.Product
		margin  decimal.Decimal
	}
	candidates := make([]ranked, 0, len(products))
	for _, p := range products {
		if p.CostPriceCents <= 0 || p.SalePriceCents <= 0 {
			continue
		}
		candidates = append(candidates, ranked{product: p, margin: money.Margin(p.CostPriceCents, p.SalePriceCents)})
	}
	slices.SortStableFunc(candidates, func(a, b ranked) int {
		return b.margin.Cmp(a.margin)
	})

	result := make([]domain.ProductMargin, 0, dashboardTopN)
	for _, c := range candidates[:min(dashboardTopN, len(candidates))] {
		result = append(result, domain.ProductMargin{
			ProductID:     c.product.ID,
			Name:          c.product.Name,
			MarginPercent: c.margin.StringFixed(2),
		})
	}
	return result
}

// lowStock lists products strictly under a positive minimum, in name order.
func lowStock(products []domain.Product) []domain.LowStockItem {
	result := make([]domain.LowStockItem, 0)
	for _, p := range products {
		if p.MinStock > 0 && p.Stock < p.MinStock {
			result = append(result, domain.LowStockItem{ProductID: p.ID, Name: p.Name, Stock: p.Stock, MinStock: p.MinStock})
		}
	}
	return result
}

// topSelling sums receipt quantities per product across sale transactions.
// Lines without a stored name take the catalog name; lines that still have
// none are dropped.
func (s *Service) topSelling(ctx context.Context, txs []domain.Transaction) ([]domain.ProductSales, error) {
	totals := make(map[string]*domain.ProductSales)
	for _, tx := range txs {
		if tx.Type != domain.TxTypeIncome || tx.Category != domain.CategorySale {
			continue
		}
		lines, err := domain.DecodeReceipt(tx.Receipt)
		if err != nil {
			continue
		}
		for _, line := range lines {
			key := cmp.Or(line.ProductID, line.Name)
			if key == "" {
				continue
			}
			entry, ok := totals[key]
			if !ok {
				entry = &domain.ProductSales{ProductID: line.ProductID, Name: line.Name}
				totals[key] = entry
			}
			entry.Quantity += line.Quantity
		}
	}

	result := make([]domain.ProductSales, 0, len(totals))
	for _, entry := range totals {
		if entry.Name == "" && entry.ProductID != "" {
			product, err := s.repo.GetProduct(ctx, entry.ProductID)
			switch {
			case err == nil:
				entry.Name = product.Name
			case !errors.Is(err, store.ErrNotFound):
				return nil, err
			}
		}
		if entry.Name == "" {
			continue
		}
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.ProductSales) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return result[:min(dashboardTopN, len(result))], nil
}
