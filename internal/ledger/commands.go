package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"opsledger/backend/internal/domain"
)

const unknownWorkerName = "Unknown"

type AddProduct struct {
	domain.ProductCreateRequest
}

func (AddProduct) Name() string { return "add_product" }

func (c AddProduct) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	name := strings.TrimSpace(c.ProductCreateRequest.Name)
	if name == "" {
		return Effect{}, invalid("product name required")
	}
	if c.CostPrice.IsNegative() || c.SalePrice.IsNegative() || c.LowStockThreshold < 0 {
		return Effect{}, invalid("product prices and threshold must not be negative")
	}

	product := domain.Product{
		ID:                env.NewID(""),
		Name:              name,
		SKU:               strings.TrimSpace(c.SKU),
		Category:          strings.TrimSpace(c.Category),
		CostPrice:         c.CostPrice,
		SalePrice:         c.SalePrice,
		StockCount:        0,
		LowStockThreshold: c.LowStockThreshold,
	}
	s.Products = append(s.Products, product)
	return Effect{EntityID: product.ID, Entity: product}, nil
}

type AddSupplier struct {
	domain.SupplierCreateRequest
}

func (AddSupplier) Name() string { return "add_supplier" }

func (c AddSupplier) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	name := strings.TrimSpace(c.SupplierCreateRequest.Name)
	if name == "" {
		return Effect{}, invalid("supplier name required")
	}
	supplier := domain.Supplier{
		ID:      env.NewID(""),
		Name:    name,
		Contact: strings.TrimSpace(c.Contact),
		Address: strings.TrimSpace(c.Address),
	}
	s.Suppliers = append(s.Suppliers, supplier)
	return Effect{EntityID: supplier.ID, Entity: supplier}, nil
}

type AddWorker struct {
	domain.WorkerCreateRequest
}

func (AddWorker) Name() string { return "add_worker" }

func (c AddWorker) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	name := strings.TrimSpace(c.WorkerCreateRequest.Name)
	if name == "" {
		return Effect{}, invalid("worker name required")
	}
	if c.PerOrderRate.IsNegative() {
		return Effect{}, invalid("per order rate must not be negative")
	}
	worker := domain.Worker{ID: env.NewID(""), Name: name, PerOrderRate: c.PerOrderRate}
	s.Workers = append(s.Workers, worker)
	return Effect{EntityID: worker.ID, Entity: worker}, nil
}

type UpdateWorker struct {
	WorkerID string                     `json:"worker_id"`
	Patch    domain.WorkerUpdateRequest `json:"patch"`
}

func (UpdateWorker) Name() string { return "update_worker" }

func (c UpdateWorker) Apply(s *domain.Snapshot, _ Env) (Effect, error) {
	idx, ok := s.WorkerByID(c.WorkerID)
	if !ok {
		return Effect{}, ErrWorkerNotFound
	}
	worker := s.Workers[idx]
	if c.Patch.Name != nil {
		name := strings.TrimSpace(*c.Patch.Name)
		if name == "" {
			return Effect{}, invalid("worker name required")
		}
		worker.Name = name
	}
	if c.Patch.PerOrderRate != nil {
		if c.Patch.PerOrderRate.IsNegative() {
			return Effect{}, invalid("per order rate must not be negative")
		}
		worker.PerOrderRate = *c.Patch.PerOrderRate
	}
	s.Workers[idx] = worker
	return Effect{EntityID: worker.ID, Entity: worker}, nil
}

// RemoveWorker deletes the worker only. Orders keep their copied worker name.
type RemoveWorker struct {
	WorkerID string `json:"worker_id"`
}

func (RemoveWorker) Name() string { return "remove_worker" }

func (c RemoveWorker) Apply(s *domain.Snapshot, _ Env) (Effect, error) {
	idx, ok := s.WorkerByID(c.WorkerID)
	if !ok {
		return Effect{}, ErrWorkerNotFound
	}
	removed := s.Workers[idx]
	s.Workers = append(s.Workers[:idx], s.Workers[idx+1:]...)
	return Effect{EntityID: removed.ID, Entity: removed}, nil
}

type AddPurchase struct {
	domain.PurchaseCreateRequest
}

func (AddPurchase) Name() string { return "add_purchase" }

func (c AddPurchase) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	date, err := normalizeDate(c.Date, env.Today)
	if err != nil {
		return Effect{}, err
	}
	if c.Quantity <= 0 {
		return Effect{}, invalid("purchase quantity must be positive")
	}
	if !c.Rate.IsPositive() {
		return Effect{}, invalid("purchase rate must be positive")
	}
	productIdx, ok := s.ProductByID(c.ProductID)
	if !ok {
		return Effect{}, fmt.Errorf("%w: product %q", ErrUnknownReference, c.ProductID)
	}
	if _, ok := s.SupplierByID(c.SupplierID); !ok {
		return Effect{}, fmt.Errorf("%w: supplier %q", ErrUnknownReference, c.SupplierID)
	}

	total := c.Rate.Mul(decimal.NewFromInt(int64(c.Quantity)))
	purchase := domain.Purchase{
		ID:         env.NewID(""),
		Date:       date,
		SupplierID: c.SupplierID,
		ProductID:  c.ProductID,
		Quantity:   c.Quantity,
		Rate:       c.Rate,
		Total:      total,
	}

	s.Products[productIdx].StockCount += c.Quantity
	s.Purchases = append(s.Purchases, purchase)
	post(s, env, date, "Stock In: "+s.Products[productIdx].Name, total, domain.TransactionOut, domain.AccountMain)

	return Effect{EntityID: purchase.ID, Entity: purchase}, nil
}

// AddOrder reserves stock at placement. There is no availability check, so
// stock may go negative when a caller oversells.
type AddOrder struct {
	domain.OrderCreateRequest
}

func (AddOrder) Name() string { return "add_order" }

func (c AddOrder) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	date, err := normalizeDate(c.Date, env.Today)
	if err != nil {
		return Effect{}, err
	}
	trackingID := strings.TrimSpace(c.TrackingID)
	workerID := strings.TrimSpace(c.WorkerID)
	switch {
	case trackingID == "":
		return Effect{}, invalid("tracking id required")
	case workerID == "":
		return Effect{}, invalid("worker id required")
	case c.Quantity <= 0:
		return Effect{}, invalid("order quantity must be positive")
	case c.SalePrice.IsNegative():
		return Effect{}, invalid("sale price must not be negative")
	case !c.Courier.Valid():
		return Effect{}, invalid("unknown courier %q", c.Courier)
	}
	if trackingInUse(s, trackingID, "") {
		return Effect{}, invalid("tracking id %q already assigned", trackingID)
	}
	productIdx, ok := s.ProductByID(c.ProductID)
	if !ok {
		return Effect{}, fmt.Errorf("%w: product %q", ErrUnknownReference, c.ProductID)
	}

	workerName := unknownWorkerName
	if idx, ok := s.WorkerByID(workerID); ok {
		workerName = s.Workers[idx].Name
	}

	order := domain.Order{
		ID:           env.NewID(""),
		OrderNumber:  fmt.Sprintf("RT-%05d", len(s.Orders)+1),
		Date:         date,
		CustomerName: strings.TrimSpace(c.CustomerName),
		Phone:        strings.TrimSpace(c.Phone),
		Address:      strings.TrimSpace(c.Address),
		City:         strings.TrimSpace(c.City),
		ProductID:    c.ProductID,
		Quantity:     c.Quantity,
		SalePrice:    c.SalePrice,
		Courier:      c.Courier,
		Status:       domain.OrderStatusPending,
		Profit:       decimal.Zero,
		DeliveryCost: decimal.Zero,
		SalesTax:     decimal.Zero,
		TrackingID:   trackingID,
		WorkerName:   workerName,
		WorkerID:     workerID,
	}

	s.Products[productIdx].StockCount -= c.Quantity
	s.Orders = append(s.Orders, order)
	return Effect{EntityID: order.ID, Entity: order}, nil
}

// UpdateOrderStatus moves an order through its lifecycle.
//
// Entering Returned gives the stock back; leaving Returned takes it again.
// Profit and costing are per delivery event: they are cleared on every status
// change and recomputed only when Delivered is entered with fresh costing.
type UpdateOrderStatus struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Costing *domain.Costing    `json:"costing,omitempty"`
}

func (UpdateOrderStatus) Name() string { return "update_order_status" }

func (c UpdateOrderStatus) Apply(s *domain.Snapshot, _ Env) (Effect, error) {
	if !c.Status.Valid() {
		return Effect{}, invalid("unknown order status %q", c.Status)
	}
	idx, ok := s.OrderByID(c.OrderID)
	if !ok {
		return Effect{}, ErrOrderNotFound
	}
	if c.Status == domain.OrderStatusDelivered && c.Costing == nil {
		return Effect{}, ErrCostingRequired
	}
	if c.Costing != nil && (c.Costing.DeliveryCost.IsNegative() || c.Costing.SalesTax.IsNegative()) {
		return Effect{}, invalid("delivery cost and sales tax must not be negative")
	}

	order := s.Orders[idx]
	productIdx, hasProduct := s.ProductByID(order.ProductID)

	if hasProduct {
		switch {
		case c.Status == domain.OrderStatusReturned && order.Status != domain.OrderStatusReturned:
			s.Products[productIdx].StockCount += order.Quantity
		case c.Status != domain.OrderStatusReturned && order.Status == domain.OrderStatusReturned:
			s.Products[productIdx].StockCount -= order.Quantity
		}
	}

	order.Profit = decimal.Zero
	order.DeliveryCost = decimal.Zero
	order.SalesTax = decimal.Zero

	switch c.Status {
	case domain.OrderStatusDelivered:
		costPrice := decimal.Zero
		if hasProduct {
			costPrice = s.Products[productIdx].CostPrice
		}
		qty := decimal.NewFromInt(int64(order.Quantity))
		order.DeliveryCost = c.Costing.DeliveryCost
		order.SalesTax = c.Costing.SalesTax
		order.Profit = order.Value().
			Sub(costPrice.Mul(qty)).
			Sub(c.Costing.DeliveryCost).
			Sub(c.Costing.SalesTax)
	case domain.OrderStatusReturned:
		if c.Costing != nil {
			order.DeliveryCost = c.Costing.DeliveryCost
			order.SalesTax = c.Costing.SalesTax
		}
	}

	order.Status = c.Status
	s.Orders[idx] = order
	return Effect{EntityID: order.ID, Entity: order}, nil
}

type UpdateOrderTracking struct {
	OrderID    string `json:"order_id"`
	TrackingID string `json:"tracking_id"`
}

func (UpdateOrderTracking) Name() string { return "update_order_tracking" }

func (c UpdateOrderTracking) Apply(s *domain.Snapshot, _ Env) (Effect, error) {
	trackingID := strings.TrimSpace(c.TrackingID)
	if trackingID == "" {
		return Effect{}, invalid("tracking id required")
	}
	idx, ok := s.OrderByID(c.OrderID)
	if !ok {
		return Effect{}, ErrOrderNotFound
	}
	if trackingInUse(s, trackingID, c.OrderID) {
		return Effect{}, invalid("tracking id %q already assigned", trackingID)
	}
	s.Orders[idx].TrackingID = trackingID
	return Effect{EntityID: c.OrderID, Entity: s.Orders[idx]}, nil
}

type AddExpense struct {
	domain.ExpenseCreateRequest
}

func (AddExpense) Name() string { return "add_expense" }

func (c AddExpense) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	date, err := normalizeDate(c.Date, env.Today)
	if err != nil {
		return Effect{}, err
	}
	switch {
	case !c.Category.Valid():
		return Effect{}, invalid("unknown expense category %q", c.Category)
	case !c.Account.Valid():
		return Effect{}, invalid("unknown cash account %q", c.Account)
	case !c.Amount.IsPositive():
		return Effect{}, invalid("expense amount must be positive")
	}

	expense := domain.Expense{
		ID:       env.NewID(""),
		Date:     date,
		Category: c.Category,
		Amount:   c.Amount,
		Note:     strings.TrimSpace(c.Note),
		Account:  c.Account,
	}
	s.Expenses = append(s.Expenses, expense)
	post(s, env, date, "Exp: "+string(c.Category), c.Amount, domain.TransactionOut, c.Account)
	return Effect{EntityID: expense.ID, Entity: expense}, nil
}

type AddCourierPayment struct {
	domain.CourierPaymentCreateRequest
}

func (AddCourierPayment) Name() string { return "add_courier_payment" }

func (c AddCourierPayment) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	date, err := normalizeDate(c.Date, env.Today)
	if err != nil {
		return Effect{}, err
	}
	if !c.Courier.Valid() {
		return Effect{}, invalid("unknown courier %q", c.Courier)
	}
	if !c.Amount.IsPositive() {
		return Effect{}, invalid("payment amount must be positive")
	}

	payment := domain.CourierPayment{
		ID:      env.NewID(""),
		Date:    date,
		Courier: c.Courier,
		Amount:  c.Amount,
	}
	s.CourierPayments = append(s.CourierPayments, payment)
	post(s, env, date, "Collect: "+string(c.Courier), c.Amount, domain.TransactionIn, domain.AccountMain)
	return Effect{EntityID: payment.ID, Entity: payment}, nil
}

// AddLedgerEntry is a manual cash movement booked verbatim.
type AddLedgerEntry struct {
	domain.LedgerEntryRequest
}

func (AddLedgerEntry) Name() string { return "add_ledger_entry" }

func (c AddLedgerEntry) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	date, err := normalizeDate(c.Date, env.Today)
	if err != nil {
		return Effect{}, err
	}
	description := strings.TrimSpace(c.Description)
	switch {
	case description == "":
		return Effect{}, invalid("description required")
	case !c.Type.Valid():
		return Effect{}, invalid("unknown transaction type %q", c.Type)
	case !c.Account.Valid():
		return Effect{}, invalid("unknown cash account %q", c.Account)
	case !c.Amount.IsPositive():
		return Effect{}, invalid("amount must be positive")
	}

	tx := post(s, env, date, description, c.Amount, c.Type, c.Account)
	return Effect{EntityID: tx.ID, Entity: tx}, nil
}

// ProcessScan is the scanner shortcut: Pending parcels ship, Shipped parcels
// come back as returns, anything else is reported without a change.
type ProcessScan struct {
	TrackingCode string `json:"tracking_code"`
}

func (ProcessScan) Name() string { return "process_scan" }

func (c ProcessScan) Apply(s *domain.Snapshot, env Env) (Effect, error) {
	idx := -1
	for i := range s.Orders {
		if s.Orders[i].TrackingID == c.TrackingCode {
			idx = i
			break
		}
	}
	if c.TrackingCode == "" || idx < 0 {
		return Effect{Noop: true, Scan: &domain.ScanResult{Message: "Parcel not found", Type: domain.ScanError}}, nil
	}

	order := s.Orders[idx]
	var (
		next   domain.OrderStatus
		result domain.ScanResult
	)
	switch order.Status {
	case domain.OrderStatusPending:
		next = domain.OrderStatusShipped
		result = domain.ScanResult{Message: fmt.Sprintf("Order %s -> SHIPPED", order.OrderNumber), Type: domain.ScanNew}
	case domain.OrderStatusShipped:
		next = domain.OrderStatusReturned
		result = domain.ScanResult{Message: fmt.Sprintf("Order %s -> RETURNED", order.OrderNumber), Type: domain.ScanReturn}
	default:
		return Effect{Noop: true, Scan: &domain.ScanResult{
			Message: fmt.Sprintf("Order %s is %s", order.OrderNumber, order.Status),
			Type:    domain.ScanError,
			OrderID: order.ID,
		}}, nil
	}

	effect, err := UpdateOrderStatus{OrderID: order.ID, Status: next}.Apply(s, env)
	if err != nil {
		return Effect{}, err
	}
	result.OrderID = order.ID
	effect.Scan = &result
	return effect, nil
}

func trackingInUse(s *domain.Snapshot, trackingID string, exceptOrderID string) bool {
	for _, order := range s.Orders {
		if order.ID != exceptOrderID && order.TrackingID == trackingID {
			return true
		}
	}
	return false
}

// post books one cash movement and keeps the account balance in step with it.
func post(s *domain.Snapshot, env Env, date string, description string, amount decimal.Decimal, kind domain.TransactionType, account domain.CashAccount) domain.CashTransaction {
	tx := domain.CashTransaction{
		ID:          env.NewID(""),
		Date:        date,
		Description: description,
		Amount:      amount,
		Type:        kind,
		Account:     account,
	}
	switch account {
	case domain.AccountMain:
		s.MainCashBalance = s.MainCashBalance.Add(tx.Signed())
	case domain.AccountAd:
		s.AdCashBalance = s.AdCashBalance.Add(tx.Signed())
	}
	s.CashTransactions = append(s.CashTransactions, tx)
	return tx
}
