package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"opsledger/backend/internal/domain"
)

var testToday = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestEngine(opening int64) *Engine {
	counter := 0
	return NewEngine(
		NewSnapshot(decimal.NewFromInt(opening), testToday.Format(domain.DateLayout)),
		WithClock(func() time.Time { return testToday }),
		WithIDGenerator(func(prefix string) string {
			counter++
			return fmt.Sprintf("id-%d", counter)
		}),
	)
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	engine   *Engine
	product  domain.Product
	supplier domain.Supplier
	worker   domain.Worker
}

func newFixture(t *testing.T, stock int) fixture {
	t.Helper()
	ctx := context.Background()
	e := newTestEngine(100000)

	product, err := e.AddProduct(ctx, "admin", domain.ProductCreateRequest{
		Name: "Lamp", SKU: "LMP-1", CostPrice: d(200), SalePrice: d(500), LowStockThreshold: 3,
	})
	if err != nil {
		t.Fatalf("add product failed: %v", err)
	}
	supplier, err := e.AddSupplier(ctx, "admin", domain.SupplierCreateRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("add supplier failed: %v", err)
	}
	worker, err := e.AddWorker(ctx, "admin", domain.WorkerCreateRequest{Name: "Ali", PerOrderRate: d(30)})
	if err != nil {
		t.Fatalf("add worker failed: %v", err)
	}
	if stock > 0 {
		if _, err := e.AddPurchase(ctx, "admin", domain.PurchaseCreateRequest{
			SupplierID: supplier.ID, ProductID: product.ID, Quantity: stock, Rate: d(200),
		}); err != nil {
			t.Fatalf("add purchase failed: %v", err)
		}
	}
	return fixture{engine: e, product: product, supplier: supplier, worker: worker}
}

func (f fixture) order(t *testing.T, tracking string, qty int, courier domain.Courier) domain.Order {
	t.Helper()
	order, err := f.engine.AddOrder(context.Background(), "user", domain.OrderCreateRequest{
		CustomerName: "Sara",
		ProductID:    f.product.ID,
		Quantity:     qty,
		SalePrice:    d(500),
		Courier:      courier,
		TrackingID:   tracking,
		WorkerID:     f.worker.ID,
	})
	if err != nil {
		t.Fatalf("add order failed: %v", err)
	}
	return order
}

func (f fixture) stock(t *testing.T) int {
	t.Helper()
	s := f.engine.Snapshot()
	idx, ok := s.ProductByID(f.product.ID)
	if !ok {
		t.Fatalf("product %s missing", f.product.ID)
	}
	return s.Products[idx].StockCount
}

func assertBalanced(t *testing.T, e *Engine) {
	t.Helper()
	if err := Verify(e.Snapshot()); err != nil {
		t.Fatalf("expected balances to match transaction log: %v", err)
	}
}

func TestNewSnapshotBooksOpeningBalance(t *testing.T) {
	s := NewSnapshot(d(5000), "2025-01-01")
	if !s.MainCashBalance.Equal(d(5000)) {
		t.Fatalf("expected main cash 5000, got %s", s.MainCashBalance)
	}
	if len(s.CashTransactions) != 1 || s.CashTransactions[0].Description != "Starting Balance" {
		t.Fatalf("expected one starting balance transaction, got %+v", s.CashTransactions)
	}
	if err := Verify(s); err != nil {
		t.Fatalf("opening snapshot should verify: %v", err)
	}

	empty := NewSnapshot(decimal.Zero, "2025-01-01")
	if len(empty.CashTransactions) != 0 {
		t.Fatalf("expected no transactions without opening cash")
	}
}

func TestPurchaseAddsStockAndPostsCash(t *testing.T) {
	f := newFixture(t, 10)
	s := f.engine.Snapshot()

	if got := f.stock(t); got != 10 {
		t.Fatalf("expected stock 10, got %d", got)
	}
	if !s.MainCashBalance.Equal(d(98000)) {
		t.Fatalf("expected main cash 98000, got %s", s.MainCashBalance)
	}
	last := s.CashTransactions[len(s.CashTransactions)-1]
	if last.Description != "Stock In: Lamp" || last.Type != domain.TransactionOut || !last.Amount.Equal(d(2000)) {
		t.Fatalf("unexpected purchase transaction %+v", last)
	}
	if s.Purchases[0].Date != "2025-03-14" {
		t.Fatalf("expected empty date to default to today, got %s", s.Purchases[0].Date)
	}
	assertBalanced(t, f.engine)
}

func TestPurchaseRejectsUnknownReferencesAndBadQuantities(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	before := f.engine.Version()

	_, err := f.engine.AddPurchase(ctx, "admin", domain.PurchaseCreateRequest{
		SupplierID: f.supplier.ID, ProductID: "missing", Quantity: 1, Rate: d(10),
	})
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected unknown reference, got %v", err)
	}
	_, err = f.engine.AddPurchase(ctx, "admin", domain.PurchaseCreateRequest{
		SupplierID: f.supplier.ID, ProductID: f.product.ID, Quantity: 0, Rate: d(10),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
	_, err = f.engine.AddPurchase(ctx, "admin", domain.PurchaseCreateRequest{
		SupplierID: f.supplier.ID, ProductID: f.product.ID, Quantity: 1, Rate: d(10), Date: "14/03/2025",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
	if f.engine.Version() != before {
		t.Fatalf("rejected commands must not publish a new version")
	}
}

func TestOrderNumberingIsSequential(t *testing.T) {
	f := newFixture(t, 20)
	for i := 1; i <= 5; i++ {
		order := f.order(t, fmt.Sprintf("TRK-%d", i), 1, domain.CourierTCS)
		want := fmt.Sprintf("RT-%05d", i)
		if order.OrderNumber != want {
			t.Fatalf("expected %s, got %s", want, order.OrderNumber)
		}
		if _, err := f.engine.UpdateOrderStatus(context.Background(), "user", order.ID, domain.OrderStatusShipped, nil); err != nil {
			t.Fatalf("ship failed: %v", err)
		}
	}
	if next := f.order(t, "TRK-6", 1, domain.CourierPostEx); next.OrderNumber != "RT-00006" {
		t.Fatalf("expected RT-00006, got %s", next.OrderNumber)
	}
}

func TestOrderValidation(t *testing.T) {
	f := newFixture(t, 5)
	f.order(t, "DUP-1", 1, domain.CourierTCS)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.OrderCreateRequest
		want error
	}{
		{"empty tracking", domain.OrderCreateRequest{ProductID: f.product.ID, Quantity: 1, Courier: domain.CourierTCS, WorkerID: f.worker.ID}, ErrValidation},
		{"empty worker", domain.OrderCreateRequest{ProductID: f.product.ID, Quantity: 1, Courier: domain.CourierTCS, TrackingID: "X"}, ErrValidation},
		{"zero quantity", domain.OrderCreateRequest{ProductID: f.product.ID, Courier: domain.CourierTCS, TrackingID: "X", WorkerID: f.worker.ID}, ErrValidation},
		{"bad courier", domain.OrderCreateRequest{ProductID: f.product.ID, Quantity: 1, Courier: "DHL", TrackingID: "X", WorkerID: f.worker.ID}, ErrValidation},
		{"duplicate tracking", domain.OrderCreateRequest{ProductID: f.product.ID, Quantity: 1, Courier: domain.CourierTCS, TrackingID: "DUP-1", WorkerID: f.worker.ID}, ErrValidation},
		{"unknown product", domain.OrderCreateRequest{ProductID: "nope", Quantity: 1, Courier: domain.CourierTCS, TrackingID: "X", WorkerID: f.worker.ID}, ErrUnknownReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.AddOrder(ctx, "user", tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOrderKeepsWorkerNameAfterWorkerRemoval(t *testing.T) {
	f := newFixture(t, 5)
	order := f.order(t, "W-1", 1, domain.CourierTCS)
	if order.WorkerName != "Ali" {
		t.Fatalf("expected worker name Ali, got %s", order.WorkerName)
	}
	if err := f.engine.RemoveWorker(context.Background(), "admin", f.worker.ID); err != nil {
		t.Fatalf("remove worker failed: %v", err)
	}
	s := f.engine.Snapshot()
	idx, _ := s.OrderByID(order.ID)
	if s.Orders[idx].WorkerName != "Ali" {
		t.Fatalf("expected snapshotted worker name to survive, got %s", s.Orders[idx].WorkerName)
	}

	ghost, err := f.engine.AddOrder(context.Background(), "user", domain.OrderCreateRequest{
		ProductID: f.product.ID, Quantity: 1, SalePrice: d(500), Courier: domain.CourierTCS,
		TrackingID: "W-2", WorkerID: f.worker.ID,
	})
	if err != nil {
		t.Fatalf("add order failed: %v", err)
	}
	if ghost.WorkerName != "Unknown" {
		t.Fatalf("expected Unknown worker name, got %s", ghost.WorkerName)
	}
}

func TestProfitComputedOnDelivery(t *testing.T) {
	f := newFixture(t, 5)
	order := f.order(t, "P-1", 2, domain.CourierTCS)
	ctx := context.Background()

	if _, err := f.engine.UpdateOrderStatus(ctx, "user", order.ID, domain.OrderStatusDelivered, nil); !errors.Is(err, ErrCostingRequired) {
		t.Fatalf("expected costing required, got %v", err)
	}

	delivered, err := f.engine.UpdateOrderStatus(ctx, "user", order.ID, domain.OrderStatusDelivered, &domain.Costing{
		DeliveryCost: d(50), SalesTax: d(10),
	})
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if !delivered.Profit.Equal(d(540)) {
		t.Fatalf("expected profit 540, got %s", delivered.Profit)
	}

	shipped, err := f.engine.UpdateOrderStatus(ctx, "user", order.ID, domain.OrderStatusShipped, nil)
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if !shipped.Profit.IsZero() || !shipped.DeliveryCost.IsZero() || !shipped.SalesTax.IsZero() {
		t.Fatalf("expected profit and costing reset on leaving Delivered, got %+v", shipped)
	}
}

func TestStockConservation(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, 10)
	returned := f.order(t, "S-1", 3, domain.CourierTCS)
	if got := f.stock(t); got != 7 {
		t.Fatalf("expected stock 7 after order, got %d", got)
	}
	for _, status := range []domain.OrderStatus{domain.OrderStatusShipped, domain.OrderStatusReturned} {
		if _, err := f.engine.UpdateOrderStatus(ctx, "user", returned.ID, status, nil); err != nil {
			t.Fatalf("move to %s failed: %v", status, err)
		}
	}
	if got := f.stock(t); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}

	// Returned -> Returned must not restore twice.
	if _, err := f.engine.UpdateOrderStatus(ctx, "user", returned.ID, domain.OrderStatusReturned, nil); err != nil {
		t.Fatalf("repeat return failed: %v", err)
	}
	if got := f.stock(t); got != 10 {
		t.Fatalf("expected stock to stay 10, got %d", got)
	}

	if _, err := f.engine.UpdateOrderStatus(ctx, "user", returned.ID, domain.OrderStatusShipped, nil); err != nil {
		t.Fatalf("re-ship failed: %v", err)
	}
	if got := f.stock(t); got != 7 {
		t.Fatalf("expected re-activation to re-decrement to 7, got %d", got)
	}

	delivered := f.order(t, "S-2", 2, domain.CourierTCS)
	if _, err := f.engine.UpdateOrderStatus(ctx, "user", delivered.ID, domain.OrderStatusShipped, nil); err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if _, err := f.engine.UpdateOrderStatus(ctx, "user", delivered.ID, domain.OrderStatusDelivered, &domain.Costing{}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if got := f.stock(t); got != 5 {
		t.Fatalf("expected stock 5 held after delivery, got %d", got)
	}
}

func TestRandomSequencesStayBalanced(t *testing.T) {
	statuses := []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusReturned}
	accounts := []domain.CashAccount{domain.AccountMain, domain.AccountAd}
	types := []domain.TransactionType{domain.TransactionIn, domain.TransactionOut}

	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			ctx := context.Background()
			rng := rand.New(rand.NewPCG(seed, seed*7919))
			f := newFixture(t, 0)
			purchased := 0
			var orders []domain.Order

			for step := 0; step < 200; step++ {
				amount := d(int64(rng.IntN(5000) + 1))
				var err error
				switch rng.IntN(6) {
				case 0:
					qty := rng.IntN(5) + 1
					_, err = f.engine.AddPurchase(ctx, "admin", domain.PurchaseCreateRequest{
						SupplierID: f.supplier.ID, ProductID: f.product.ID, Quantity: qty, Rate: d(int64(rng.IntN(300) + 1)),
					})
					purchased += qty
				case 1:
					_, err = f.engine.AddExpense(ctx, "admin", domain.ExpenseCreateRequest{
						Category: domain.ExpenseCategories[rng.IntN(len(domain.ExpenseCategories))],
						Amount:   amount,
						Account:  accounts[rng.IntN(len(accounts))],
					})
				case 2:
					_, err = f.engine.AddCourierPayment(ctx, "admin", domain.CourierPaymentCreateRequest{
						Courier: domain.Couriers[rng.IntN(len(domain.Couriers))], Amount: amount,
					})
				case 3:
					_, err = f.engine.AddLedgerEntry(ctx, "admin", domain.LedgerEntryRequest{
						Description: "Adjustment", Amount: amount,
						Type: types[rng.IntN(len(types))], Account: accounts[rng.IntN(len(accounts))],
					})
				case 4:
					orders = append(orders, f.order(t, fmt.Sprintf("R-%d-%d", seed, step), rng.IntN(3)+1, domain.Couriers[rng.IntN(len(domain.Couriers))]))
				case 5:
					if len(orders) == 0 {
						continue
					}
					order := orders[rng.IntN(len(orders))]
					status := statuses[rng.IntN(len(statuses))]
					var costing *domain.Costing
					if status == domain.OrderStatusDelivered {
						costing = &domain.Costing{DeliveryCost: d(int64(rng.IntN(200)))}
					}
					_, err = f.engine.UpdateOrderStatus(ctx, "user", order.ID, status, costing)
				}
				if err != nil {
					t.Fatalf("step %d failed: %v", step, err)
				}
			}

			assertBalanced(t, f.engine)

			snapshot := f.engine.Snapshot()
			held := 0
			for _, order := range snapshot.Orders {
				if order.Status != domain.OrderStatusReturned {
					held += order.Quantity
				}
			}
			if got := f.stock(t); got != purchased-held {
				t.Fatalf("expected stock %d, got %d", purchased-held, got)
			}
		})
	}
}

func TestOversellDrivesStockNegative(t *testing.T) {
	f := newFixture(t, 1)
	f.order(t, "O-1", 3, domain.CourierTCS)
	if got := f.stock(t); got != -2 {
		t.Fatalf("expected stock -2, got %d", got)
	}
}

func TestScanLifecycle(t *testing.T) {
	f := newFixture(t, 5)
	order := f.order(t, "SCAN-1", 1, domain.CourierPostEx)
	ctx := context.Background()

	first, err := f.engine.ProcessScan(ctx, "user", "SCAN-1")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if first.Type != domain.ScanNew || first.Message != "Order RT-00001 -> SHIPPED" {
		t.Fatalf("unexpected first scan %+v", first)
	}

	second, err := f.engine.ProcessScan(ctx, "user", "SCAN-1")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if second.Type != domain.ScanReturn {
		t.Fatalf("expected RETURN, got %+v", second)
	}
	if got := f.stock(t); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}

	version := f.engine.Version()
	third, err := f.engine.ProcessScan(ctx, "user", "SCAN-1")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if third.Type != domain.ScanError || third.OrderID != order.ID {
		t.Fatalf("expected ERROR for returned parcel, got %+v", third)
	}
	if f.engine.Version() != version {
		t.Fatalf("error scan must not mutate")
	}

	missing, err := f.engine.ProcessScan(ctx, "user", "nope")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if missing.Type != domain.ScanError || missing.Message != "Parcel not found" {
		t.Fatalf("expected not found, got %+v", missing)
	}
}

func TestScanIsCaseSensitive(t *testing.T) {
	f := newFixture(t, 5)
	f.order(t, "AbC-1", 1, domain.CourierTCS)
	res, err := f.engine.ProcessScan(context.Background(), "user", "abc-1")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if res.Type != domain.ScanError {
		t.Fatalf("expected mismatched case to miss, got %+v", res)
	}
}

func TestReceivableAndCourierStatement(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	for i, qty := range []int{2, 4} {
		order := f.order(t, fmt.Sprintf("R-%d", i), qty, domain.CourierTCS)
		if _, err := f.engine.UpdateOrderStatus(ctx, "user", order.ID, domain.OrderStatusDelivered, &domain.Costing{}); err != nil {
			t.Fatalf("deliver failed: %v", err)
		}
	}
	f.order(t, "R-pending", 1, domain.CourierTCS)

	if _, err := f.engine.AddCourierPayment(ctx, "admin", domain.CourierPaymentCreateRequest{
		Courier: domain.CourierTCS, Amount: d(1500),
	}); err != nil {
		t.Fatalf("courier payment failed: %v", err)
	}

	s := f.engine.Snapshot()
	if got := CourierReceivable(s, domain.CourierTCS); !got.Equal(d(1500)) {
		t.Fatalf("expected receivable 1500, got %s", got)
	}
	if got := CourierReceivable(s, domain.CourierPostEx); !got.IsZero() {
		t.Fatalf("expected PostEx receivable 0, got %s", got)
	}

	stmt, err := CourierStatementFor(s, domain.CourierTCS)
	if err != nil {
		t.Fatalf("statement failed: %v", err)
	}
	if !stmt.DeliveredValue.Equal(d(3000)) || !stmt.Collected.Equal(d(1500)) || len(stmt.Payments) != 1 {
		t.Fatalf("unexpected statement %+v", stmt)
	}
	if _, err := CourierStatementFor(s, "DHL"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown courier, got %v", err)
	}
	assertBalanced(t, f.engine)
}

func TestExpensesAndLedgerEntriesKeepAccountsBalanced(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	if _, err := f.engine.AddLedgerEntry(ctx, "admin", domain.LedgerEntryRequest{
		Description: "Ad budget top-up", Amount: d(5000), Type: domain.TransactionIn, Account: domain.AccountAd,
	}); err != nil {
		t.Fatalf("ledger entry failed: %v", err)
	}
	if _, err := f.engine.AddExpense(ctx, "admin", domain.ExpenseCreateRequest{
		Category: domain.ExpenseAds, Amount: d(1200), Account: domain.AccountAd,
	}); err != nil {
		t.Fatalf("expense failed: %v", err)
	}
	if _, err := f.engine.AddExpense(ctx, "admin", domain.ExpenseCreateRequest{
		Category: domain.ExpenseRent, Amount: d(800), Account: domain.AccountMain,
	}); err != nil {
		t.Fatalf("expense failed: %v", err)
	}
	if _, err := f.engine.AddExpense(ctx, "admin", domain.ExpenseCreateRequest{
		Category: "Travel", Amount: d(1), Account: domain.AccountMain,
	}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown category, got %v", err)
	}

	s := f.engine.Snapshot()
	if !s.AdCashBalance.Equal(d(3800)) {
		t.Fatalf("expected ad cash 3800, got %s", s.AdCashBalance)
	}
	if !s.MainCashBalance.Equal(d(99200)) {
		t.Fatalf("expected main cash 99200, got %s", s.MainCashBalance)
	}
	last := s.CashTransactions[len(s.CashTransactions)-1]
	if last.Description != "Exp: Rent" {
		t.Fatalf("expected expense description, got %q", last.Description)
	}
	assertBalanced(t, f.engine)
}

func TestSummaryAggregates(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	order := f.order(t, "A-1", 2, domain.CourierTCS)
	if _, err := f.engine.UpdateOrderStatus(ctx, "user", order.ID, domain.OrderStatusDelivered, &domain.Costing{DeliveryCost: d(50)}); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if _, err := f.engine.AddExpense(ctx, "admin", domain.ExpenseCreateRequest{
		Category: domain.ExpensePackaging, Amount: d(100), Account: domain.AccountMain,
	}); err != nil {
		t.Fatalf("expense failed: %v", err)
	}

	s, version := f.engine.View()
	sum := Summarize(s, version)
	checks := map[string][2]decimal.Decimal{
		"total sales":     {sum.TotalSales, d(1000)},
		"total purchases": {sum.TotalPurchases, d(2000)},
		"total expenses":  {sum.TotalExpenses, d(100)},
		"cogs":            {sum.COGS, d(400)},
		"net profit":      {sum.NetProfit, d(500)},
		"stock value":     {sum.CurrentStockValue, d(1600)},
	}
	for name, pair := range checks {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s, got %s", name, pair[1], pair[0])
		}
	}
	if sum.StatusCounts[domain.OrderStatusDelivered] != 1 || sum.TotalUnitsInStock != 8 {
		t.Fatalf("unexpected counts %+v units=%d", sum.StatusCounts, sum.TotalUnitsInStock)
	}
	if sum.Version != version {
		t.Fatalf("expected version %d, got %d", version, sum.Version)
	}
}

func TestLowStockProducts(t *testing.T) {
	f := newFixture(t, 3)
	if low := LowStockProducts(f.engine.Snapshot()); len(low) != 1 {
		t.Fatalf("expected product at threshold to be low stock, got %d", len(low))
	}
	if _, err := f.engine.AddPurchase(context.Background(), "admin", domain.PurchaseCreateRequest{
		SupplierID: f.supplier.ID, ProductID: f.product.ID, Quantity: 1, Rate: d(200),
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if low := LowStockProducts(f.engine.Snapshot()); len(low) != 0 {
		t.Fatalf("expected no low stock products, got %d", len(low))
	}
}

func TestUpdateTrackingRejectsDuplicates(t *testing.T) {
	f := newFixture(t, 5)
	first := f.order(t, "T-1", 1, domain.CourierTCS)
	f.order(t, "T-2", 1, domain.CourierTCS)
	ctx := context.Background()

	if _, err := f.engine.UpdateOrderTracking(ctx, "user", first.ID, "T-2"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate tracking rejection, got %v", err)
	}
	updated, err := f.engine.UpdateOrderTracking(ctx, "user", first.ID, "T-1B")
	if err != nil {
		t.Fatalf("update tracking failed: %v", err)
	}
	if updated.TrackingID != "T-1B" {
		t.Fatalf("expected tracking T-1B, got %s", updated.TrackingID)
	}
	if _, err := f.engine.UpdateOrderTracking(ctx, "user", "missing", "Z"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
}

func TestUpdateWorker(t *testing.T) {
	f := newFixture(t, 0)
	name := "Ali Raza"
	rate := d(45)
	worker, err := f.engine.UpdateWorker(context.Background(), "admin", f.worker.ID, domain.WorkerUpdateRequest{Name: &name, PerOrderRate: &rate})
	if err != nil {
		t.Fatalf("update worker failed: %v", err)
	}
	if worker.Name != name || !worker.PerOrderRate.Equal(rate) {
		t.Fatalf("unexpected worker %+v", worker)
	}
	if _, err := f.engine.UpdateWorker(context.Background(), "admin", "missing", domain.WorkerUpdateRequest{}); !errors.Is(err, ErrWorkerNotFound) {
		t.Fatalf("expected worker not found, got %v", err)
	}
}

func TestMutationLogRecordsActors(t *testing.T) {
	f := newFixture(t, 2)
	log := f.engine.Log(0)
	if len(log) != 4 {
		t.Fatalf("expected 4 records, got %d", len(log))
	}
	if log[0].Command != "add_product" || log[0].Actor != "admin" || log[0].Seq != 1 {
		t.Fatalf("unexpected first record %+v", log[0])
	}
	if last := f.engine.Log(1); len(last) != 1 || last[0].Command != "add_purchase" {
		t.Fatalf("expected last record to be the purchase, got %+v", last)
	}

	small := NewEngine(NewSnapshot(decimal.Zero, ""), WithLogLimit(2))
	for i := 0; i < 3; i++ {
		if _, err := small.AddSupplier(context.Background(), "admin", domain.SupplierCreateRequest{Name: fmt.Sprintf("S%d", i)}); err != nil {
			t.Fatalf("add supplier failed: %v", err)
		}
	}
	if trimmed := small.Log(0); len(trimmed) != 2 || trimmed[0].Seq != 2 {
		t.Fatalf("expected log trimmed to last two records, got %+v", trimmed)
	}
}

func TestSnapshotIsIsolatedFromEngine(t *testing.T) {
	f := newFixture(t, 5)
	s := f.engine.Snapshot()
	s.Products[0].StockCount = 999
	if got := f.stock(t); got != 5 {
		t.Fatalf("mutating a returned snapshot leaked into the engine: %d", got)
	}
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	e := newTestEngine(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.AddSupplier(ctx, "admin", domain.SupplierCreateRequest{Name: "X"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestReconcileDetectsDrift(t *testing.T) {
	s := NewSnapshot(d(100), "2025-01-01")
	s.MainCashBalance = d(90)
	if err := Verify(s); !errors.Is(err, ErrSnapshotImbalance) {
		t.Fatalf("expected imbalance, got %v", err)
	}
	if r := Reconcile(s); r.Balanced || !r.MainFromLog.Equal(d(100)) {
		t.Fatalf("unexpected reconciliation %+v", r)
	}
}
