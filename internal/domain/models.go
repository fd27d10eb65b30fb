package domain

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Barcode        string    `json:"barcode,omitempty"`
	Category       string    `json:"category,omitempty"`
	CostPriceCents int64     `json:"cost_price_cents"`
	SalePriceCents int64     `json:"sale_price_cents"`
	Stock          int       `json:"stock"`
	MinStock       int       `json:"min_stock"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LowStock       bool      `json:"low_stock"`
	MarginPercent  string    `json:"margin_percent,omitempty"`
}

type ProductCreateRequest struct {
	Name           string `json:"name" validate:"required,max=120"`
	Barcode        string `json:"barcode" validate:"omitempty,numeric,max=32"`
	Category       string `json:"category" validate:"max=60"`
	CostPriceCents int64  `json:"cost_price_cents" validate:"gte=0"`
	SalePriceCents int64  `json:"sale_price_cents" validate:"gte=0"`
	Stock          int    `json:"stock" validate:"gte=0"`
	MinStock       int    `json:"min_stock" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Barcode        *string `json:"barcode,omitempty" validate:"omitempty,numeric,max=32"`
	Category       *string `json:"category,omitempty" validate:"omitempty,max=60"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty" validate:"omitempty,gte=0"`
	SalePriceCents *int64  `json:"sale_price_cents,omitempty" validate:"omitempty,gte=0"`
	Stock          *int    `json:"stock,omitempty" validate:"omitempty,gte=0"`
	MinStock       *int    `json:"min_stock,omitempty" validate:"omitempty,gte=0"`
}

type ProductPriceHistory struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	CostPriceCents int64     `json:"cost_price_cents"`
	SalePriceCents int64     `json:"sale_price_cents"`
	ChangedBy      string    `json:"changed_by"`
	ChangedAt      time.Time `json:"changed_at"`
}

// CostLot is one stock intake carrying its own unit cost. Lots drain oldest
// first and are never deleted.
type CostLot struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	InitialQuantity int       `json:"initial_quantity"`
	CurrentQuantity int       `json:"current_quantity"`
	UnitCostCents   int64     `json:"unit_cost_cents"`
	Provider        string    `json:"provider,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type BatchCreateRequest struct {
	Quantity       int    `json:"quantity"`
	CostPriceCents int64  `json:"cost_price_cents"`
	Provider       string `json:"provider" validate:"max=120"`
}

// LotTake is the quantity drawn from a single lot by a FIFO allocation.
type LotTake struct {
	LotID         string `json:"lot_id"`
	Quantity      int    `json:"quantity"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

// Allocation is the outcome of FIFO consumption. ExactCostCents comes from
// lots, FallbackCostCents prices the un-lotted remainder at the reference cost.
type Allocation struct {
	ProductID         string    `json:"product_id"`
	Quantity          int       `json:"quantity"`
	Takes             []LotTake `json:"takes"`
	ExactCostCents    int64     `json:"exact_cost_cents"`
	FallbackQuantity  int       `json:"fallback_quantity"`
	FallbackCostCents int64     `json:"fallback_cost_cents"`
}

func (a Allocation) TotalCostCents() int64 {
	return a.ExactCostCents + a.FallbackCostCents
}

type ProductLoss struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	COGSCents  int64     `json:"cogs_cents"`
	Reason     string    `json:"reason"`
	RecordedBy string    `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type LossReportRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason" validate:"max=240"`
}

type Shift struct {
	ID                    string     `json:"id"`
	BusinessDate          string     `json:"business_date"`
	Period                string     `json:"period"`
	OpenedBy              string     `json:"opened_by"`
	OpenedAt              time.Time  `json:"opened_at"`
	OpeningCashCents      int64      `json:"opening_cash_cents"`
	OpeningDigitalCents   int64      `json:"opening_digital_cents"`
	Status                string     `json:"status"`
	ClosedAt              *time.Time `json:"closed_at,omitempty"`
	ClosingCashCents      int64      `json:"closing_cash_cents"`
	ClosingDigitalCents   int64      `json:"closing_digital_cents"`
	DeclaredCashCents     *int64     `json:"declared_cash_cents,omitempty"`
	DeclaredDigitalCents  *int64     `json:"declared_digital_cents,omitempty"`
	CashShortfallCents    int64      `json:"cash_shortfall_cents"`
	DigitalShortfallCents int64      `json:"digital_shortfall_cents"`
}

type ShiftOpenRequest struct {
	BusinessDate        string `json:"business_date" validate:"omitempty,datetime=2006-01-02"`
	Period              string `json:"period" validate:"required"`
	OpeningCashCents    int64  `json:"opening_cash_cents"`
	OpeningDigitalCents int64  `json:"opening_digital_cents"`
}

type ShiftCloseRequest struct {
	FinalCashCents    *int64 `json:"final_cash_cents,omitempty"`
	FinalDigitalCents *int64 `json:"final_digital_cents,omitempty"`
}

// ShiftSettlement is a shift's running balance: opening amounts plus the
// fold of its own transactions, before any clamping.
type ShiftSettlement struct {
	CashCents    int64 `json:"cash_cents"`
	DigitalCents int64 `json:"digital_cents"`
}

type CurrentShiftResponse struct {
	Shift   Shift           `json:"shift"`
	Running ShiftSettlement `json:"running"`
}

type Transaction struct {
	ID          string          `json:"id"`
	ShiftID     string          `json:"shift_id,omitempty"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	AmountCents int64           `json:"amount_cents"`
	Source      string          `json:"source,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Description string          `json:"description"`
	Receipt     json.RawMessage `json:"receipt,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ReceiptLine is one enriched sale line as serialized into a sale receipt.
type ReceiptLine struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPrice"`
	COGSCents      int64  `json:"costOfGoodsSold"`
}

type TransactionCreateRequest struct {
	ShiftID     string `json:"shift_id" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Container   string `json:"container" validate:"required"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description" validate:"max=240"`
}

type ContainerMovementRequest struct {
	Type        string `json:"type" validate:"required"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description" validate:"max=240"`
}

type SaleItem struct {
	ProductID      string `json:"product_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
}

type SaleRequest struct {
	ShiftID       string     `json:"shift_id" validate:"required"`
	Items         []SaleItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string     `json:"payment_method" validate:"required"`
}

// SaleLine is a validated sale item handed to the repository.
type SaleLine struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

type StockAdjustment struct {
	ProductID string
	Quantity  int
}

type Balances struct {
	CashCents      int64 `json:"cash_cents"`
	DigitalCents   int64 `json:"digital_payment_cents"`
	PettyCashCents int64 `json:"petty_cash_cents"`
	SafeCents      int64 `json:"safe_cents"`
}

type TransactionFilter struct {
	ShiftID   string
	Container string
	From      time.Time
	To        time.Time
	Limit     int
}

type BarcodeLookup struct {
	Barcode string   `json:"barcode"`
	Found   bool     `json:"found"`
	Source  string   `json:"source,omitempty"`
	Name    string   `json:"name,omitempty"`
	Brand   string   `json:"brand,omitempty"`
	Product *Product `json:"product,omitempty"`
}

type ShiftReportRow struct {
	ShiftID          string `json:"shift_id"`
	BusinessDate     string `json:"business_date"`
	Period           string `json:"period"`
	Operator         string `json:"operator"`
	Status           string `json:"status"`
	SalesCents       int64  `json:"sales_cents"`
	OtherIncomeCents int64  `json:"other_income_cents"`
	ExpensesCents    int64  `json:"expenses_cents"`
	BalanceCents     int64  `json:"balance_cents"`
	COGSCents        int64  `json:"cogs_cents"`
	NetProfitCents   int64  `json:"net_profit_cents"`
	MarginPercent    string `json:"margin_percent"`
	TransactionCount int    `json:"transaction_count"`
}

type ShiftReport struct {
	From             string           `json:"from"`
	To               string           `json:"to"`
	Shifts           []ShiftReportRow `json:"shifts"`
	TotalSalesCents  int64            `json:"total_sales_cents"`
	TotalIncomeCents int64            `json:"total_income_cents"`
	TotalExpenses    int64            `json:"total_expenses_cents"`
	TotalCOGSCents   int64            `json:"total_cogs_cents"`
	TotalNetProfit   int64            `json:"total_net_profit_cents"`
	TotalLossCents   int64            `json:"total_loss_cents"`
	MarginPercent    string           `json:"margin_percent"`
}

type DailySales struct {
	Date       string `json:"date"`
	SalesCents int64  `json:"sales_cents"`
}

type DaySummary struct {
	SalesCents    int64 `json:"sales_cents"`
	ExpensesCents int64 `json:"expenses_cents"`
	NetCents      int64 `json:"net_cents"`
}

type ProductMargin struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	MarginPercent string `json:"margin_percent"`
}

type ProductSales struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"min_stock"`
}

// DashboardMetrics is the admin overview. Day buckets are UTC dates of the
// shift opening time.
type DashboardMetrics struct {
	Today                DaySummary      `json:"today"`
	MonthCashIncomeCents int64           `json:"month_cash_income_cents"`
	MonthExpensesCents   int64           `json:"month_expenses_cents"`
	Last7Days            []DailySales    `json:"last_7_days"`
	TopMargin            []ProductMargin `json:"top_margin"`
	TopSelling           []ProductSales  `json:"top_selling"`
	LowStock             []LowStockItem  `json:"low_stock"`
	RecentTransactions   []Transaction   `json:"recent_transactions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type EmployeeCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=40"`
	Password string `json:"password" validate:"required,min=6"`
}

type EmployeeStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type EmployeeUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	ActorSystem = "system"

	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)
