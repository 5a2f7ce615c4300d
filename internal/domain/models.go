package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusReturned  OrderStatus = "Returned"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusShipped, OrderStatusDelivered, OrderStatusReturned:
		return true
	}
	return false
}

type Courier string

const (
	CourierTCS    Courier = "TCS"
	CourierPostEx Courier = "PostEx"
)

// Couriers lists every supported courier in display order.
var Couriers = []Courier{CourierTCS, CourierPostEx}

func (c Courier) Valid() bool {
	return c == CourierTCS || c == CourierPostEx
}

type ExpenseCategory string

const (
	ExpenseWifi      ExpenseCategory = "Wifi Bill"
	ExpenseRent      ExpenseCategory = "Rent"
	ExpenseLabour    ExpenseCategory = "Labour Cost"
	ExpenseAds       ExpenseCategory = "Ads Cost"
	ExpensePackaging ExpenseCategory = "Packaging"
	ExpenseMisc      ExpenseCategory = "Miscellaneous"
)

var ExpenseCategories = []ExpenseCategory{
	ExpenseWifi, ExpenseRent, ExpenseLabour, ExpenseAds, ExpensePackaging, ExpenseMisc,
}

func (c ExpenseCategory) Valid() bool {
	for _, known := range ExpenseCategories {
		if c == known {
			return true
		}
	}
	return false
}

type CashAccount string

const (
	AccountMain CashAccount = "Main Cash"
	AccountAd   CashAccount = "Ad Cash"
)

func (a CashAccount) Valid() bool {
	return a == AccountMain || a == AccountAd
}

type TransactionType string

const (
	TransactionIn  TransactionType = "In"
	TransactionOut TransactionType = "Out"
)

func (t TransactionType) Valid() bool {
	return t == TransactionIn || t == TransactionOut
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DateLayout is the calendar-day format used for every entity date.
const DateLayout = "2006-01-02"

type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	SKU               string          `json:"sku"`
	Category          string          `json:"category"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SalePrice         decimal.Decimal `json:"sale_price"`
	StockCount        int             `json:"stock_count"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

type Supplier struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Address string `json:"address"`
}

type Worker struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	PerOrderRate decimal.Decimal `json:"per_order_rate"`
}

type Purchase struct {
	ID         string          `json:"id"`
	Date       string          `json:"date"`
	SupplierID string          `json:"supplier_id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	Rate       decimal.Decimal `json:"rate"`
	Total      decimal.Decimal `json:"total"`
}

type Order struct {
	ID           string          `json:"id"`
	OrderNumber  string          `json:"order_number"`
	Date         string          `json:"date"`
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	Courier      Courier         `json:"courier"`
	Status       OrderStatus     `json:"status"`
	Profit       decimal.Decimal `json:"profit"`
	DeliveryCost decimal.Decimal `json:"delivery_cost"`
	SalesTax     decimal.Decimal `json:"sales_tax"`
	TrackingID   string          `json:"tracking_id"`
	WorkerName   string          `json:"worker_name"`
	WorkerID     string          `json:"worker_id,omitempty"`
}

// Value is the order's gross sale amount.
func (o Order) Value() decimal.Decimal {
	return o.SalePrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

type Expense struct {
	ID       string          `json:"id"`
	Date     string          `json:"date"`
	Category ExpenseCategory `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note"`
	Account  CashAccount     `json:"account"`
}

type CourierPayment struct {
	ID      string          `json:"id"`
	Date    string          `json:"date"`
	Courier Courier         `json:"courier"`
	Amount  decimal.Decimal `json:"amount"`
}

type CashTransaction struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Account     CashAccount     `json:"account"`
}

// Signed returns the amount as it affects its account balance.
func (t CashTransaction) Signed() decimal.Decimal {
	if t.Type == TransactionOut {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Snapshot is the whole business state persisted as one document.
type Snapshot struct {
	MainCashBalance  decimal.Decimal   `json:"main_cash_balance"`
	AdCashBalance    decimal.Decimal   `json:"ad_cash_balance"`
	Products         []Product         `json:"products"`
	Suppliers        []Supplier        `json:"suppliers"`
	Workers          []Worker          `json:"workers"`
	Purchases        []Purchase        `json:"purchases"`
	Orders           []Order           `json:"orders"`
	Expenses         []Expense         `json:"expenses"`
	CourierPayments  []CourierPayment  `json:"courier_payments"`
	CashTransactions []CashTransaction `json:"cash_transactions"`
}

// Clone returns a copy that shares no slice storage with s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		MainCashBalance:  s.MainCashBalance,
		AdCashBalance:    s.AdCashBalance,
		Products:         cloneSlice(s.Products),
		Suppliers:        cloneSlice(s.Suppliers),
		Workers:          cloneSlice(s.Workers),
		Purchases:        cloneSlice(s.Purchases),
		Orders:           cloneSlice(s.Orders),
		Expenses:         cloneSlice(s.Expenses),
		CourierPayments:  cloneSlice(s.CourierPayments),
		CashTransactions: cloneSlice(s.CashTransactions),
	}
}

func cloneSlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func (s *Snapshot) ProductByID(id string) (int, bool) {
	for i := range s.Products {
		if s.Products[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Snapshot) SupplierByID(id string) (int, bool) {
	for i := range s.Suppliers {
		if s.Suppliers[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Snapshot) WorkerByID(id string) (int, bool) {
	for i := range s.Workers {
		if s.Workers[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Snapshot) OrderByID(id string) (int, bool) {
	for i := range s.Orders {
		if s.Orders[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

type ProductCreateRequest struct {
	Name              string          `json:"name"`
	SKU               string          `json:"sku"`
	Category          string          `json:"category"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SalePrice         decimal.Decimal `json:"sale_price"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Address string `json:"address"`
}

type WorkerCreateRequest struct {
	Name         string          `json:"name"`
	PerOrderRate decimal.Decimal `json:"per_order_rate"`
}

type WorkerUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	PerOrderRate *decimal.Decimal `json:"per_order_rate,omitempty"`
}

type PurchaseCreateRequest struct {
	Date       string          `json:"date"`
	SupplierID string          `json:"supplier_id"`
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	Rate       decimal.Decimal `json:"rate"`
}

type OrderCreateRequest struct {
	Date         string          `json:"date"`
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	Courier      Courier         `json:"courier"`
	TrackingID   string          `json:"tracking_id"`
	WorkerID     string          `json:"worker_id"`
}

// Costing is the per-delivery cost input captured when an order is delivered.
type Costing struct {
	DeliveryCost decimal.Decimal `json:"delivery_cost"`
	SalesTax     decimal.Decimal `json:"sales_tax"`
}

type OrderStatusRequest struct {
	Status  OrderStatus `json:"status"`
	Costing *Costing    `json:"costing,omitempty"`
}

type OrderTrackingRequest struct {
	TrackingID string `json:"tracking_id"`
}

type ExpenseCreateRequest struct {
	Date     string          `json:"date"`
	Category ExpenseCategory `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note"`
	Account  CashAccount     `json:"account"`
}

type CourierPaymentCreateRequest struct {
	Date    string          `json:"date"`
	Courier Courier         `json:"courier"`
	Amount  decimal.Decimal `json:"amount"`
}

type LedgerEntryRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Account     CashAccount     `json:"account"`
}

type ScanType string

const (
	ScanNew    ScanType = "NEW"
	ScanReturn ScanType = "RETURN"
	ScanError  ScanType = "ERROR"
)

type ScanRequest struct {
	TrackingCode string `json:"tracking_code"`
}

type ScanResult struct {
	Message string   `json:"message"`
	Type    ScanType `json:"type"`
	OrderID string   `json:"order_id,omitempty"`
}

// CommandRecord is one applied mutation in the engine's audit log.
type CommandRecord struct {
	Seq      int64     `json:"seq"`
	Command  string    `json:"command"`
	Actor    string    `json:"actor"`
	EntityID string    `json:"entity_id,omitempty"`
	Payload  string    `json:"payload"`
	At       time.Time `json:"at"`
}

type Summary struct {
	TotalSales        decimal.Decimal             `json:"total_sales"`
	TotalPurchases    decimal.Decimal             `json:"total_purchases"`
	TotalExpenses     decimal.Decimal             `json:"total_expenses"`
	COGS              decimal.Decimal             `json:"cogs"`
	NetProfit         decimal.Decimal             `json:"net_profit"`
	CurrentStockValue decimal.Decimal             `json:"current_stock_value"`
	MainCashBalance   decimal.Decimal             `json:"main_cash_balance"`
	AdCashBalance     decimal.Decimal             `json:"ad_cash_balance"`
	LowStockProducts  []Product                   `json:"low_stock_products"`
	Receivables       map[Courier]decimal.Decimal `json:"receivables"`
	StatusCounts      map[OrderStatus]int         `json:"status_counts"`
	TotalUnitsInStock int                         `json:"total_units_in_stock"`
	Version           int64                       `json:"version"`
}

type FinancialReport struct {
	Period         string          `json:"period"`
	WorkerName     string          `json:"worker_name,omitempty"`
	TotalSales     decimal.Decimal `json:"total_sales"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	TotalExpenses  decimal.Decimal `json:"total_expenses"`
	Profit         decimal.Decimal `json:"profit"`
	OrderCount     int             `json:"order_count"`
	PurchaseCount  int             `json:"purchase_count"`
	ExpenseCount   int             `json:"expense_count"`
}

type OrderReport struct {
	Period          string          `json:"period"`
	Count           int             `json:"count"`
	TotalValue      decimal.Decimal `json:"total_value"`
	Delivered       int             `json:"delivered"`
	Returned        int             `json:"returned"`
	InTransit       int             `json:"in_transit"`
	ReturnRate      decimal.Decimal `json:"return_rate"`
	AvgDeliveredVal decimal.Decimal `json:"avg_delivered_value"`
	Orders          []Order         `json:"orders"`
}

type WorkerReport struct {
	Period       string          `json:"period"`
	WorkerID     string          `json:"worker_id"`
	WorkerName   string          `json:"worker_name"`
	PerOrderRate decimal.Decimal `json:"per_order_rate"`
	Total        int             `json:"total"`
	Delivered    int             `json:"delivered"`
	Returned     int             `json:"returned"`
	Commission   decimal.Decimal `json:"commission"`
	Orders       []Order         `json:"orders"`
}

type CourierStatement struct {
	Courier        Courier          `json:"courier"`
	DeliveredValue decimal.Decimal  `json:"delivered_value"`
	Collected      decimal.Decimal  `json:"collected"`
	Receivable     decimal.Decimal  `json:"receivable"`
	Payments       []CourierPayment `json:"payments"`
}

// CashBook is one consistent read of the cash log and both balances.
type CashBook struct {
	Transactions    []CashTransaction `json:"transactions"`
	MainCashBalance decimal.Decimal   `json:"main_cash_balance"`
	AdCashBalance   decimal.Decimal   `json:"ad_cash_balance"`
	Version         int64             `json:"version"`
}

type Reconciliation struct {
	MainCashBalance decimal.Decimal `json:"main_cash_balance"`
	AdCashBalance   decimal.Decimal `json:"ad_cash_balance"`
	MainFromLog     decimal.Decimal `json:"main_from_log"`
	AdFromLog       decimal.Decimal `json:"ad_from_log"`
	Balanced        bool            `json:"balanced"`
}

type SyncStatus struct {
	Syncing      bool       `json:"syncing"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Version      int64      `json:"version"`
	SavedVersion int64      `json:"saved_version"`
}

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	Identity    Identity `json:"identity"`
	ExpiresAt   string   `json:"expires_at"`
}

type LoginAttempt struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	DeviceID  string    `json:"device_id"`
}

type UserCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Email     string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
	LastLogin *time.Time
}
