package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"opsledger/backend/internal/domain"
)

func TotalSales(s domain.Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, order := range s.Orders {
		if order.Status == domain.OrderStatusDelivered {
			total = total.Add(order.Value())
		}
	}
	return total
}

func TotalPurchases(s domain.Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, purchase := range s.Purchases {
		total = total.Add(purchase.Total)
	}
	return total
}

func TotalExpenses(s domain.Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, expense := range s.Expenses {
		total = total.Add(expense.Amount)
	}
	return total
}

// COGS prices delivered orders at each product's current cost price.
func COGS(s domain.Snapshot) decimal.Decimal {
	costs := make(map[string]decimal.Decimal, len(s.Products))
	for _, product := range s.Products {
		costs[product.ID] = product.CostPrice
	}
	total := decimal.Zero
	for _, order := range s.Orders {
		if order.Status != domain.OrderStatusDelivered {
			continue
		}
		total = total.Add(costs[order.ProductID].Mul(decimal.NewFromInt(int64(order.Quantity))))
	}
	return total
}

func NetProfit(s domain.Snapshot) decimal.Decimal {
	return TotalSales(s).Sub(COGS(s)).Sub(TotalExpenses(s))
}

func CurrentStockValue(s domain.Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, product := range s.Products {
		total = total.Add(product.CostPrice.Mul(decimal.NewFromInt(int64(product.StockCount))))
	}
	return total
}

func TotalUnitsInStock(s domain.Snapshot) int {
	units := 0
	for _, product := range s.Products {
		units += product.StockCount
	}
	return units
}

func LowStockProducts(s domain.Snapshot) []domain.Product {
	out := []domain.Product{}
	for _, product := range s.Products {
		if product.StockCount <= product.LowStockThreshold {
			out = append(out, product)
		}
	}
	return out
}

// CourierReceivable is the delivered value a courier still owes after the
// collections already booked against it.
func CourierReceivable(s domain.Snapshot, courier domain.Courier) decimal.Decimal {
	delivered := decimal.Zero
	for _, order := range s.Orders {
		if order.Courier == courier && order.Status == domain.OrderStatusDelivered {
			delivered = delivered.Add(order.Value())
		}
	}
	collected := decimal.Zero
	for _, payment := range s.CourierPayments {
		if payment.Courier == courier {
			collected = collected.Add(payment.Amount)
		}
	}
	return delivered.Sub(collected)
}

func StatusCounts(s domain.Snapshot) map[domain.OrderStatus]int {
	counts := map[domain.OrderStatus]int{
		domain.OrderStatusPending:   0,
		domain.OrderStatusShipped:   0,
		domain.OrderStatusDelivered: 0,
		domain.OrderStatusReturned:  0,
	}
	for _, order := range s.Orders {
		counts[order.Status]++
	}
	return counts
}

func ExpensesByCategory(s domain.Snapshot) map[domain.ExpenseCategory]decimal.Decimal {
	out := make(map[domain.ExpenseCategory]decimal.Decimal, len(domain.ExpenseCategories))
	for _, expense := range s.Expenses {
		out[expense.Category] = out[expense.Category].Add(expense.Amount)
	}
	return out
}

func PurchasesBySupplier(s domain.Snapshot) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, purchase := range s.Purchases {
		out[purchase.SupplierID] = out[purchase.SupplierID].Add(purchase.Total)
	}
	return out
}

func Summarize(s domain.Snapshot, version int64) domain.Summary {
	receivables := make(map[domain.Courier]decimal.Decimal, len(domain.Couriers))
	for _, courier := range domain.Couriers {
		receivables[courier] = CourierReceivable(s, courier)
	}
	return domain.Summary{
		TotalSales:        TotalSales(s),
		TotalPurchases:    TotalPurchases(s),
		TotalExpenses:     TotalExpenses(s),
		COGS:              COGS(s),
		NetProfit:         NetProfit(s),
		CurrentStockValue: CurrentStockValue(s),
		MainCashBalance:   s.MainCashBalance,
		AdCashBalance:     s.AdCashBalance,
		LowStockProducts:  LowStockProducts(s),
		Receivables:       receivables,
		StatusCounts:      StatusCounts(s),
		TotalUnitsInStock: TotalUnitsInStock(s),
		Version:           version,
	}
}

func CourierStatementFor(s domain.Snapshot, courier domain.Courier) (domain.CourierStatement, error) {
	if !courier.Valid() {
		return domain.CourierStatement{}, invalid("unknown courier %q", courier)
	}
	stmt := domain.CourierStatement{
		Courier:        courier,
		DeliveredValue: decimal.Zero,
		Collected:      decimal.Zero,
		Payments:       []domain.CourierPayment{},
	}
	for _, order := range s.Orders {
		if order.Courier == courier && order.Status == domain.OrderStatusDelivered {
			stmt.DeliveredValue = stmt.DeliveredValue.Add(order.Value())
		}
	}
	for _, payment := range s.CourierPayments {
		if payment.Courier == courier {
			stmt.Collected = stmt.Collected.Add(payment.Amount)
			stmt.Payments = append(stmt.Payments, payment)
		}
	}
	sort.SliceStable(stmt.Payments, func(i, j int) bool {
		return stmt.Payments[i].Date > stmt.Payments[j].Date
	})
	stmt.Receivable = stmt.DeliveredValue.Sub(stmt.Collected)
	return stmt, nil
}

// Reconcile rebuilds both account balances from the cash transaction log.
func Reconcile(s domain.Snapshot) domain.Reconciliation {
	main, ad := decimal.Zero, decimal.Zero
	for _, tx := range s.CashTransactions {
		switch tx.Account {
		case domain.AccountMain:
			main = main.Add(tx.Signed())
		case domain.AccountAd:
			ad = ad.Add(tx.Signed())
		}
	}
	return domain.Reconciliation{
		MainCashBalance: s.MainCashBalance,
		AdCashBalance:   s.AdCashBalance,
		MainFromLog:     main,
		AdFromLog:       ad,
		Balanced:        main.Equal(s.MainCashBalance) && ad.Equal(s.AdCashBalance),
	}
}

func Verify(s domain.Snapshot) error {
	r := Reconcile(s)
	if r.Balanced {
		return nil
	}
	return fmt.Errorf("%w: main %s vs %s, ad %s vs %s",
		ErrSnapshotImbalance,
		r.MainCashBalance.StringFixed(2), r.MainFromLog.StringFixed(2),
		r.AdCashBalance.StringFixed(2), r.AdFromLog.StringFixed(2))
}
