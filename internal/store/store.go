package store

import (
	"context"
	"errors"
	"time"

	"kiosco/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("conflict")
	ErrShiftNotOpen       = errors.New("shift is not open")
)

// Repository is the persistence boundary. Every method that changes more than
// one row runs as a single atomic unit of work.
type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)

	// AddCostLot inserts the lot, adds its quantity to the product stock and
	// overwrites the product's reference cost with the lot's unit cost.
	AddCostLot(ctx context.Context, lot domain.CostLot) (*domain.CostLot, error)
	ListCostLots(ctx context.Context, productID string) ([]domain.CostLot, error)
	// ConsumeLots runs FIFO consumption for qty units against the product's
	// lots without touching the aggregate stock.
	ConsumeLots(ctx context.Context, productID string, qty int) (domain.Allocation, error)
	// RecordLoss decrements stock, consumes lots FIFO and persists the loss
	// with the resulting cost.
	RecordLoss(ctx context.Context, loss domain.ProductLoss) (*domain.ProductLoss, error)
	ListLosses(ctx context.Context, from time.Time, to time.Time) ([]domain.ProductLoss, error)

	// ProcessSale decrements stock and consumes lots for every line, then
	// persists sale with the enriched receipt. All lines succeed or none do.
	ProcessSale(ctx context.Context, sale domain.Transaction, lines []domain.SaleLine) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	// DeleteTransaction removes the row and adds restock quantities back to
	// product stock. A missing row yields ErrNotFound and restocks nothing.
	DeleteTransaction(ctx context.Context, id string, restock []domain.StockAdjustment) (*domain.Transaction, error)

	// CreateShift fails with ErrConflict while any shift is open.
	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	GetOpenShift(ctx context.Context) (*domain.Shift, error)
	ListOpenShifts(ctx context.Context) ([]domain.Shift, error)
	ListShifts(ctx context.Context, status string, from time.Time, to time.Time, limit int) ([]domain.Shift, error)
	// CloseShift settles the open shift against its own transactions, clamps
	// the closing balances at zero and marks it closed.
	CloseShift(ctx context.Context, id string, declared domain.ShiftCloseRequest, closedAt time.Time) (*domain.Shift, error)
	// DeleteShift removes the shift's transactions, then the shift.
	DeleteShift(ctx context.Context, id string) (int, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	SetUserActive(ctx context.Context, username string, active bool) error
}
