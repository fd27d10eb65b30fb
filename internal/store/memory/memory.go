package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kiosco/backend/internal/costing"
	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/ledger"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

// Store keeps everything in maps behind one RWMutex. Every write method holds
// the write lock for its whole unit of work, which makes it atomic.
type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	productIDByBarcode map[string]string
	lotsByProduct      map[string][]domain.CostLot
	priceHistoryByID   map[string][]domain.ProductPriceHistory
	losses             []domain.ProductLoss
	transactionsByID   map[string]domain.Transaction
	shiftsByID         map[string]domain.Shift
	openShiftID        string
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		productIDByBarcode: make(map[string]string),
		lotsByProduct:      make(map[string][]domain.CostLot),
		priceHistoryByID:   make(map[string][]domain.ProductPriceHistory),
		losses:             make([]domain.ProductLoss, 0, 16),
		transactionsByID:   make(map[string]domain.Transaction),
		shiftsByID:         make(map[string]domain.Shift),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
// When unset, dev defaults are used and a warning is logged.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("component", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo products, a few cost lots and the
// default admin and cashier accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-alfajor", Name: "Alfajor Triple Chocolate", Barcode: "7790040613508", Category: "golosinas", CostPriceCents: 45000, SalePriceCents: 80000, Stock: 10, MinStock: 12},
		{ID: "prod-coca-500", Name: "Coca-Cola 500ml", Barcode: "7790895000997", Category: "bebidas", CostPriceCents: 70000, SalePriceCents: 120000, Stock: 0, MinStock: 24},
		{ID: "prod-agua-500", Name: "Agua Mineral 500ml", Barcode: "7798062540017", Category: "bebidas", CostPriceCents: 35000, SalePriceCents: 70000, Stock: 20, MinStock: 12},
		{ID: "prod-chicle", Name: "Chicle Menta", Barcode: "77982345", Category: "golosinas", CostPriceCents: 15000, SalePriceCents: 30000, Stock: 50, MinStock: 20},
		{ID: "prod-galletitas", Name: "Galletitas de Agua", Barcode: "7790040930407", Category: "almacen", CostPriceCents: 60000, SalePriceCents: 110000, Stock: 8, MinStock: 6},
		{ID: "prod-yerba-1kg", Name: "Yerba Mate 1kg", Barcode: "7790387000015", Category: "almacen", CostPriceCents: 250000, SalePriceCents: 420000, Stock: 4, MinStock: 5},
		{ID: "prod-cigarrillos", Name: "Cigarrillos x20", Category: "tabaco", CostPriceCents: 180000, SalePriceCents: 250000, Stock: 30, MinStock: 10},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		if p.Barcode != "" {
			s.productIDByBarcode[p.Barcode] = p.ID
		}
	}

	lots := []domain.CostLot{
		{ID: "lot-coca-1", ProductID: "prod-coca-500", InitialQuantity: 24, CurrentQuantity: 24, UnitCostCents: 65000, Provider: "Distribuidora Norte", CreatedAt: now.Add(-72 * time.Hour)},
		{ID: "lot-coca-2", ProductID: "prod-coca-500", InitialQuantity: 12, CurrentQuantity: 12, UnitCostCents: 70000, Provider: "Distribuidora Norte", CreatedAt: now.Add(-24 * time.Hour)},
	}
	for _, lot := range lots {
		s.lotsByProduct[lot.ProductID] = append(s.lotsByProduct[lot.ProductID], lot)
		p := s.products[lot.ProductID]
		p.Stock += lot.CurrentQuantity
		s.products[lot.ProductID] = p
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, compareProductName)
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if limit < 1 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, limit)
	seen := map[string]bool{}
	if isDigits(query) {
		if id, ok := s.productIDByBarcode[query]; ok {
			if p := s.products[id]; p.Active {
				result = append(result, p)
				seen[id] = true
			}
		}
	}

	needle := strings.ToLower(query)
	matches := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if !p.Active || seen[p.ID] {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), needle) {
			matches = append(matches, p)
		}
	}
	slices.SortFunc(matches, compareProductName)
	result = append(result, matches...)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productIDByBarcode[strings.TrimSpace(barcode)]
	if !ok {
		return nil, store.ErrNotFound
	}
	p, ok := s.products[id]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Stock < 0 || product.CostPriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if product.Barcode != "" {
		if _, taken := s.productIDByBarcode[product.Barcode]; taken {
			return nil, store.ErrConflict
		}
		s.productIDByBarcode[product.Barcode] = product.ID
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Stock < 0 || product.CostPriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Barcode != existing.Barcode {
		if product.Barcode != "" {
			if owner, taken := s.productIDByBarcode[product.Barcode]; taken && owner != product.ID {
				return nil, store.ErrConflict
			}
			s.productIDByBarcode[product.Barcode] = product.ID
		}
		if existing.Barcode != "" {
			delete(s.productIDByBarcode, existing.Barcode)
		}
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistoryByID[entry.ProductID] = append(s.priceHistoryByID[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistoryByID[productID]
	result := make([]domain.ProductPriceHistory, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		return compareNewestFirst(a.ChangedAt, b.ChangedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AddCostLot(_ context.Context, lot domain.CostLot) (*domain.CostLot, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[lot.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.lotsByProduct[lot.ProductID] = append(s.lotsByProduct[lot.ProductID], lot)
	product.Stock += lot.InitialQuantity
	product.CostPriceCents = lot.UnitCostCents
	product.UpdatedAt = time.Now().UTC()
	s.products[lot.ProductID] = product

	created := lot
	return &created, nil
}

func (s *Store) ListCostLots(_ context.Context, productID string) ([]domain.CostLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lots := make([]domain.CostLot, len(s.lotsByProduct[productID]))
	copy(lots, s.lotsByProduct[productID])
	slices.SortStableFunc(lots, costing.CompareLotsFIFO)
	return lots, nil
}

func (s *Store) ConsumeLots(_ context.Context, productID string, qty int) (domain.Allocation, error) {
	if qty < 1 {
		return domain.Allocation{}, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.Allocation{}, store.ErrNotFound
	}
	lots := s.lotsByProduct[productID]
	alloc := costing.Allocate(productID, lots, qty, product.CostPriceCents)
	s.lotsByProduct[productID] = costing.Apply(lots, alloc)
	return alloc, nil
}

func (s *Store) RecordLoss(_ context.Context, loss domain.ProductLoss) (*domain.ProductLoss, error) {
	if loss.ProductID == "" || loss.Quantity < 1 || strings.TrimSpace(loss.Reason) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if loss.ID == "" {
		loss.ID = xid.New("loss")
	}
	if loss.CreatedAt.IsZero() {
		loss.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[loss.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	lots := s.lotsByProduct[loss.ProductID]
	alloc := costing.Allocate(loss.ProductID, lots, loss.Quantity, product.CostPriceCents)
	s.lotsByProduct[loss.ProductID] = costing.Apply(lots, alloc)
	product.Stock -= loss.Quantity
	product.UpdatedAt = time.Now().UTC()
	s.products[loss.ProductID] = product

	loss.COGSCents = alloc.TotalCostCents()
	s.losses = append(s.losses, loss)
	created := loss
	return &created, nil
}

func (s *Store) ListLosses(_ context.Context, from time.Time, to time.Time) ([]domain.ProductLoss, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductLoss, 0, len(s.losses))
	for _, loss := range s.losses {
		if !inRange(loss.CreatedAt, from, to) {
			continue
		}
		result = append(result, loss)
	}
	slices.SortFunc(result, func(a, b domain.ProductLoss) int {
		return compareNewestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) ProcessSale(_ context.Context, sale domain.Transaction, lines []domain.SaleLine) (*domain.Transaction, error) {
	if len(lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenShiftLocked(sale.ShiftID); err != nil {
		return nil, err
	}

	// Plan against working copies so a failing line leaves nothing applied.
	stock := make(map[string]int, len(lines))
	lots := make(map[string][]domain.CostLot, len(lines))
	receipt := make([]domain.ReceiptLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidTransaction
		}
		product, ok := s.products[line.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		if _, planned := stock[line.ProductID]; !planned {
			stock[line.ProductID] = product.Stock
			lots[line.ProductID] = s.lotsByProduct[line.ProductID]
		}

		alloc := costing.Allocate(line.ProductID, lots[line.ProductID], line.Quantity, product.CostPriceCents)
		lots[line.ProductID] = costing.Apply(lots[line.ProductID], alloc)
		stock[line.ProductID] -= line.Quantity
		receipt = append(receipt, domain.ReceiptLine{
			ProductID:      line.ProductID,
			Name:           product.Name,
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

	now := time.Now().UTC()
	for productID, qty := range stock {
		product := s.products[productID]
		product.Stock = qty
		product.UpdatedAt = now
		s.products[productID] = product
		s.lotsByProduct[productID] = lots[productID]
	}
	s.transactionsByID[sale.ID] = cloneTransaction(sale)
	created := cloneTransaction(sale)
	return &created, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.AmountCents <= 0 || tx.Type == "" || tx.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ShiftID != "" {
		if err := s.requireOpenShiftLocked(tx.ShiftID); err != nil {
			return nil, err
		}
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrConflict
	}
	s.transactionsByID[tx.ID] = cloneTransaction(tx)
	created := cloneTransaction(tx)
	return &created, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneTransaction(tx)
	return &dup, nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	container := ""
	if filter.Container != "" {
		container = domain.CanonicalContainer(filter.Container)
	}

	result := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactionsByID {
		if filter.ShiftID != "" && tx.ShiftID != filter.ShiftID {
			continue
		}
		if container != "" && tx.Container() != container {
			continue
		}
		if !inRange(tx.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		return compareNewestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string, restock []domain.StockAdjustment) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	for _, adj := range restock {
		if adj.Quantity < 1 {
			continue
		}
		product, exists := s.products[adj.ProductID]
		if !exists {
			continue
		}
		product.Stock += adj.Quantity
		product.UpdatedAt = now
		s.products[adj.ProductID] = product
	}
	delete(s.transactionsByID, id)
	deleted := cloneTransaction(tx)
	return &deleted, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.OpenedBy) == "" || shift.OpeningCashCents < 0 || shift.OpeningDigitalCents < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openShiftID != "" {
		return nil, store.ErrConflict
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

	s.shiftsByID[shift.ID] = shift
	s.openShiftID = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) GetOpenShift(_ context.Context) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openShiftID == "" {
		return nil, store.ErrNotFound
	}
	shift, ok := s.shiftsByID[s.openShiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &shift, nil
}

func (s *Store) ListOpenShifts(_ context.Context) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shifts := make([]domain.Shift, 0, 1)
	for _, shift := range s.shiftsByID {
		if shift.Status == domain.ShiftStatusOpen {
			shifts = append(shifts, shift)
		}
	}
	return shifts, nil
}

func (s *Store) ListShifts(_ context.Context, status string, from time.Time, to time.Time, limit int) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Shift, 0, 16)
	for _, shift := range s.shiftsByID {
		if status != "" && shift.Status != status {
			continue
		}
		if !inRange(shift.OpenedAt, from, to) {
			continue
		}
		result = append(result, shift)
	}
	slices.SortFunc(result, func(a, b domain.Shift) int {
		return compareNewestFirst(a.OpenedAt, b.OpenedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CloseShift(_ context.Context, id string, declared domain.ShiftCloseRequest, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrShiftNotOpen
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	own := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactionsByID {
		if tx.ShiftID == id {
			own = append(own, tx)
		}
	}
	ledger.ApplyClose(&shift, ledger.SettleShift(shift, own))
	shift.DeclaredCashCents = declared.FinalCashCents
	shift.DeclaredDigitalCents = declared.FinalDigitalCents
	shift.Status = domain.ShiftStatusClosed
	shift.ClosedAt = &closedAt

	s.shiftsByID[id] = shift
	if s.openShiftID == id {
		s.openShiftID = ""
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) DeleteShift(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shiftsByID[id]; !ok {
		return 0, store.ErrNotFound
	}
	removed := 0
	for txID, tx := range s.transactionsByID {
		if tx.ShiftID == id {
			delete(s.transactionsByID, txID)
			removed++
		}
	}
	delete(s.shiftsByID, id)
	if s.openShiftID == id {
		s.openShiftID = ""
	}
	return removed, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !inRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return compareNewestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) SetUserActive(_ context.Context, username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Active = active
	s.usersByUsername[username] = user
	return nil
}

// requireOpenShiftLocked expects s.mu to be held.
func (s *Store) requireOpenShiftLocked(shiftID string) error {
	if shiftID == "" {
		return store.ErrInvalidTransaction
	}
	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return fmt.Errorf("shift %s: %w", shiftID, store.ErrNotFound)
	}
	if shift.Status != domain.ShiftStatusOpen {
		return store.ErrShiftNotOpen
	}
	return nil
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func compareNewestFirst(a time.Time, b time.Time, aID string, bID string) int {
	if a.Equal(b) {
		return strings.Compare(bID, aID)
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func compareProductName(a, b domain.Product) int {
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dup := src
	if src.Receipt != nil {
		dup.Receipt = append([]byte(nil), src.Receipt...)
	}
	return dup
}
