package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kiosco/backend/internal/costing"
	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/ledger"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const productColumns = `id, name, barcode, category, cost_price_cents, sale_price_cents, stock, min_stock, active, created_at, updated_at`

const lotColumns = `id, product_id, initial_quantity, current_quantity, unit_cost_cents, provider, created_at`

const shiftColumns = `id, business_date, period, opened_by, opened_at, opening_cash_cents, opening_digital_cents, status,
	closed_at, closing_cash_cents, closing_digital_cents, declared_cash_cents, declared_digital_cents,
	cash_shortfall_cents, digital_shortfall_cents`

const transactionColumns = `id, shift_id, type, category, amount_cents, source, destination, description, receipt, created_by, created_at`

type Store struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the bundled schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 OR active = true)
		ORDER BY lower(name), id
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows, 128)
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
			AND (barcode = $1 OR lower(name) LIKE '%' || lower($1) || '%')
		ORDER BY (barcode = $1) DESC NULLS LAST, lower(name), id
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows, limit)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = $1 AND active = true
	`, strings.TrimSpace(barcode)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Stock < 0 || product.CostPriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), product.Category, product.CostPriceCents, product.SalePriceCents,
		product.Stock, product.MinStock, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Stock < 0 || product.CostPriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, category = $4, cost_price_cents = $5, sale_price_cents = $6,
			stock = $7, min_stock = $8, active = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, nullIfEmpty(product.Barcode), product.Category, product.CostPriceCents, product.SalePriceCents,
		product.Stock, product.MinStock, product.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, cost_price_cents, sale_price_cents, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.CostPriceCents, entry.SalePriceCents, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, cost_price_cents, sale_price_cents, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, productID, nullLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, 16)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.CostPriceCents, &entry.SalePriceCents, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) AddCostLot(ctx context.Context, lot domain.CostLot) (*domain.CostLot, error) {
	if lot.ProductID == "" || lot.InitialQuantity < 1 || lot.UnitCostCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if lot.ID == "" {
		lot.ID = xid.New("lot")
	}
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}
	lot.CurrentQuantity = lot.InitialQuantity

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, cost_price_cents = $3, updated_at = now()
		WHERE id = $1
	`, lot.ProductID, lot.InitialQuantity, lot.UnitCostCents)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cost_lots (`+lotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, lot.ID, lot.ProductID, lot.InitialQuantity, lot.CurrentQuantity, lot.UnitCostCents, strings.TrimSpace(lot.Provider), lot.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := lot
	return &created, nil
}

func (s *Store) ListCostLots(ctx context.Context, productID string) ([]domain.CostLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM cost_lots
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLots(rows)
}

func (s *Store) ConsumeLots(ctx context.Context, productID string, qty int) (domain.Allocation, error) {
	if qty < 1 {
		return domain.Allocation{}, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return domain.Allocation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var referenceCost int64
	err = tx.QueryRowContext(ctx, `
		SELECT cost_price_cents
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&referenceCost)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Allocation{}, store.ErrNotFound
		}
		return domain.Allocation{}, err
	}

	alloc, err := consumeLots(ctx, tx, productID, qty, referenceCost)
	if err != nil {
		return domain.Allocation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Allocation{}, err
	}
	return alloc, nil
}

func (s *Store) RecordLoss(ctx context.Context, loss domain.ProductLoss) (*domain.ProductLoss, error) {
	if loss.ProductID == "" || loss.Quantity < 1 || strings.TrimSpace(loss.Reason) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if loss.ID == "" {
		loss.ID = xid.New("loss")
	}
	if loss.CreatedAt.IsZero() {
		loss.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, referenceCost, err := lockProduct(ctx, tx, loss.ProductID, false)
	if err != nil {
		return nil, err
	}
	alloc, err := consumeLots(ctx, tx, loss.ProductID, loss.Quantity, referenceCost)
	if err != nil {
		return nil, err
	}
	if err := decrementStock(ctx, tx, loss.ProductID, loss.Quantity); err != nil {
		return nil, err
	}

	loss.COGSCents = alloc.TotalCostCents()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_losses (id, product_id, quantity, cogs_cents, reason, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, loss.ID, loss.ProductID, loss.Quantity, loss.COGSCents, loss.Reason, loss.RecordedBy, loss.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := loss
	return &created, nil
}

func (s *Store) ListLosses(ctx context.Context, from time.Time, to time.Time) ([]domain.ProductLoss, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, cogs_cents, reason, recorded_by, created_at
		FROM product_losses
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
	`, nullTimeValue(from), nullTimeValue(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	losses := make([]domain.ProductLoss, 0, 32)
	for rows.Next() {
		var loss domain.ProductLoss
		if err := rows.Scan(&loss.ID, &loss.ProductID, &loss.Quantity, &loss.COGSCents, &loss.Reason, &loss.RecordedBy, &loss.CreatedAt); err != nil {
			return nil, err
		}
		loss.CreatedAt = loss.CreatedAt.UTC()
		losses = append(losses, loss)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return losses, nil
}

func (s *Store) ProcessSale(ctx context.Context, sale domain.Transaction, lines []domain.SaleLine) (*domain.Transaction, error) {
	if len(lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := requireOpenShift(ctx, pgTx, sale.ShiftID); err != nil {
		return nil, err
	}

	receipt := make([]domain.ReceiptLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidTransaction
		}

		name, referenceCost, err := lockProduct(ctx, pgTx, line.ProductID, true)
		if err != nil {
			return nil, err
		}
		alloc, err := consumeLots(ctx, pgTx, line.ProductID, line.Quantity, referenceCost)
		if err != nil {
			return nil, err
		}
		if err := decrementStock(ctx, pgTx, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}

		receipt = append(receipt, domain.ReceiptLine{
			ProductID:      line.ProductID,
			Name:           name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			COGSCents:      alloc.TotalCostCents(),
		})
	}

	payload, err := domain.EncodeReceipt(receipt)
	if err != nil {
		return nil, err
	}
	if sale.ID == "" {
		sale.ID = xid.New("tx")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Receipt = payload

	if err := insertTransaction(ctx, pgTx, sale); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.AmountCents <= 0 || tx.Type == "" || tx.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if tx.ShiftID != "" {
		if err := requireOpenShift(ctx, pgTx, tx.ShiftID); err != nil {
			return nil, err
		}
	}
	if err := insertTransaction(ctx, pgTx, tx); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := tx
	return &created, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	containers := []string{}
	if filter.Container != "" {
		containers = domain.ContainerValues(domain.CanonicalContainer(filter.Container))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR shift_id = $1)
			AND (cardinality($2::text[]) = 0
				OR (CASE WHEN type = 'EXPENSE' THEN source ELSE destination END) = ANY($2))
			AND ($3::timestamptz IS NULL OR created_at >= $3)
			AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, filter.ShiftID, containers, nullTimeValue(filter.From), nullTimeValue(filter.To), nullLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string, restock []domain.StockAdjustment) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// Deleting first takes the row lock, so a concurrent void of the same
	// transaction finds nothing and restocks nothing.
	deleted, err := scanTransaction(pgTx.QueryRowContext(ctx, `
		DELETE FROM transactions
		WHERE id = $1
		RETURNING `+transactionColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, adj := range restock {
		if adj.Quantity < 1 {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2, updated_at = now()
			WHERE id = $1
		`, adj.ProductID, adj.Quantity)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.OpenedBy) == "" || shift.OpeningCashCents < 0 || shift.OpeningDigitalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.ClosingCashCents = 0
	shift.ClosingDigitalCents = 0

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (
			id, business_date, period, opened_by, opened_at, opening_cash_cents, opening_digital_cents, status
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, shift.ID, shift.BusinessDate, shift.Period, shift.OpenedBy, shift.OpenedAt,
		shift.OpeningCashCents, shift.OpeningDigitalCents, shift.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := shift
	return &saved, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetOpenShift(ctx context.Context) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE status = 'open'
		LIMIT 1
	`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) ListOpenShifts(ctx context.Context) ([]domain.Shift, error) {
	return s.ListShifts(ctx, domain.ShiftStatusOpen, time.Time{}, time.Time{}, 0)
}

func (s *Store) ListShifts(ctx context.Context, status string, from time.Time, to time.Time, limit int) ([]domain.Shift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE ($1 = '' OR status = $1)
			AND ($2::timestamptz IS NULL OR opened_at >= $2)
			AND ($3::timestamptz IS NULL OR opened_at < $3)
		ORDER BY opened_at DESC, id DESC
		LIMIT $4
	`, status, nullTimeValue(from), nullTimeValue(to), nullLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, 16)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s *Store) CloseShift(ctx context.Context, id string, declared domain.ShiftCloseRequest, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	shift, err := scanShift(pgTx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrShiftNotOpen
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE shift_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	own := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		own = append(own, tx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	ledger.ApplyClose(&shift, ledger.SettleShift(shift, own))
	shift.DeclaredCashCents = declared.FinalCashCents
	shift.DeclaredDigitalCents = declared.FinalDigitalCents
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &closedAt

	_, err = pgTx.ExecContext(ctx, `
		UPDATE shifts
		SET status = $2, closed_at = $3, closing_cash_cents = $4, closing_digital_cents = $5,
			declared_cash_cents = $6, declared_digital_cents = $7,
			cash_shortfall_cents = $8, digital_shortfall_cents = $9
		WHERE id = $1
	`, shift.ID, shift.Status, closedAt, shift.ClosingCashCents, shift.ClosingDigitalCents,
		nullInt64(shift.DeclaredCashCents), nullInt64(shift.DeclaredDigitalCents),
		shift.CashShortfallCents, shift.DigitalShortfallCents)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s *Store) DeleteShift(ctx context.Context, id string) (int, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var locked string
	err = pgTx.QueryRowContext(ctx, `SELECT id FROM shifts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}

	res, err := pgTx.ExecContext(ctx, `DELETE FROM transactions WHERE shift_id = $1`, id)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id); err != nil {
		return 0, err
	}

	if err := pgTx.Commit(); err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, nullTimeValue(from), nullTimeValue(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetUserActive(ctx context.Context, username string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET active = $2, updated_at = now()
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// requireOpenShift takes a share lock on the shift row so it cannot be closed
// or deleted until the caller commits.
func requireOpenShift(ctx context.Context, tx *sql.Tx, shiftID string) error {
	if shiftID == "" {
		return store.ErrInvalidTransaction
	}
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status
		FROM shifts
		WHERE id = $1
		FOR SHARE
	`, shiftID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("shift %s: %w", shiftID, store.ErrNotFound)
		}
		return err
	}
	if status != domain.ShiftStatusOpen {
		return store.ErrShiftNotOpen
	}
	return nil
}

// lockProduct locks the product row and returns its name and reference cost.
// Stock may go negative: units sold beyond the counted stock are costed at
// the reference price.
func lockProduct(ctx context.Context, tx *sql.Tx, productID string, activeOnly bool) (string, int64, error) {
	var name string
	var referenceCost int64
	var active bool
	err := tx.QueryRowContext(ctx, `
		SELECT name, cost_price_cents, active
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&name, &referenceCost, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		return "", 0, err
	}
	if activeOnly && !active {
		return "", 0, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	return name, referenceCost, nil
}

func decrementStock(ctx context.Context, tx *sql.Tx, productID string, qty int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1
	`, productID, qty)
	return err
}

// consumeLots locks the product's remaining lots in FIFO order, allocates qty
// across them and writes the new remaining quantities.
func consumeLots(ctx context.Context, tx *sql.Tx, productID string, qty int, referenceCost int64) (domain.Allocation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM cost_lots
		WHERE product_id = $1 AND current_quantity > 0
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, productID)
	if err != nil {
		return domain.Allocation{}, err
	}
	lots, err := scanLots(rows)
	_ = rows.Close()
	if err != nil {
		return domain.Allocation{}, err
	}

	alloc := costing.Allocate(productID, lots, qty, referenceCost)
	for _, take := range alloc.Takes {
		_, err := tx.ExecContext(ctx, `
			UPDATE cost_lots
			SET current_quantity = current_quantity - $2
			WHERE id = $1
		`, take.LotID, take.Quantity)
		if err != nil {
			return domain.Allocation{}, err
		}
	}
	return alloc, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, t.ID, nullIfEmpty(t.ShiftID), t.Type, t.Category, t.AmountCents, nullIfEmpty(t.Source), nullIfEmpty(t.Destination),
		t.Description, nullJSON(t.Receipt), t.CreatedBy, t.CreatedAt)
	return err
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var barcode sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &barcode, &p.Category, &p.CostPriceCents, &p.SalePriceCents,
		&p.Stock, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	if barcode.Valid {
		p.Barcode = barcode.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanProducts(rows *sql.Rows, capacity int) ([]domain.Product, error) {
	products := make([]domain.Product, 0, capacity)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func scanLots(rows *sql.Rows) ([]domain.CostLot, error) {
	lots := make([]domain.CostLot, 0, 8)
	for rows.Next() {
		var lot domain.CostLot
		if err := rows.Scan(&lot.ID, &lot.ProductID, &lot.InitialQuantity, &lot.CurrentQuantity, &lot.UnitCostCents, &lot.Provider, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lot.CreatedAt = lot.CreatedAt.UTC()
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func scanShift(row rowScanner) (domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	var declaredCash sql.NullInt64
	var declaredDigital sql.NullInt64
	if err := row.Scan(&shift.ID, &shift.BusinessDate, &shift.Period, &shift.OpenedBy, &shift.OpenedAt,
		&shift.OpeningCashCents, &shift.OpeningDigitalCents, &shift.Status, &closedAt,
		&shift.ClosingCashCents, &shift.ClosingDigitalCents, &declaredCash, &declaredDigital,
		&shift.CashShortfallCents, &shift.DigitalShortfallCents); err != nil {
		return domain.Shift{}, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		shift.ClosedAt = &at
	}
	if declaredCash.Valid {
		v := declaredCash.Int64
		shift.DeclaredCashCents = &v
	}
	if declaredDigital.Valid {
		v := declaredDigital.Int64
		shift.DeclaredDigitalCents = &v
	}
	return shift, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var shiftID sql.NullString
	var source sql.NullString
	var destination sql.NullString
	var receipt []byte
	if err := row.Scan(&tx.ID, &shiftID, &tx.Type, &tx.Category, &tx.AmountCents, &source, &destination,
		&tx.Description, &receipt, &tx.CreatedBy, &tx.CreatedAt); err != nil {
		return domain.Transaction{}, err
	}
	tx.ShiftID = shiftID.String
	tx.Source = source.String
	tx.Destination = destination.String
	if len(receipt) > 0 {
		tx.Receipt = receipt
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTimeValue(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullJSON(val []byte) any {
	if len(val) == 0 {
		return nil
	}
	return string(val)
}

// nullLimit maps a non-positive limit to NULL, which Postgres reads as no limit.
func nullLimit(limit int) any {
	if limit < 1 {
		return nil
	}
	return limit
}
