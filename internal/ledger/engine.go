// Package ledger holds the business ledger engine: the mutations that keep cash
// balances, stock counts, order profit and the cash transaction log consistent,
// plus the aggregates derived from them.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/xid"
)

const defaultLogLimit = 5000

// Env carries the values a command may not derive from the snapshot itself.
type Env struct {
	NewID func(prefix string) string
	Today string
}

// Effect describes what an applied command did.
type Effect struct {
	EntityID string
	Entity   any
	Scan     *domain.ScanResult
	// Noop marks a command that decided not to mutate anything.
	Noop bool
}

// Command is one ledger operation. Apply mutates the given snapshot copy; the
// engine publishes it only when Apply returns without error.
type Command interface {
	Name() string
	Apply(s *domain.Snapshot, env Env) (Effect, error)
}

type Engine struct {
	mu       sync.RWMutex
	snapshot domain.Snapshot
	version  int64
	seq      int64
	log      []domain.CommandRecord
	logLimit int
	now      func() time.Time
	newID    func(prefix string) string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIDGenerator(fn func(prefix string) string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func WithLogLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.logLimit = limit
		}
	}
}

func NewEngine(initial domain.Snapshot, opts ...Option) *Engine {
	e := &Engine{
		snapshot: initial.Clone(),
		logLimit: defaultLogLimit,
		now:      time.Now,
		newID:    xid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSnapshot returns an empty business state. A positive opening balance is
// booked as a Starting Balance transaction on the main account.
func NewSnapshot(openingMainCash decimal.Decimal, date string) domain.Snapshot {
	s := domain.Snapshot{
		Products:         []domain.Product{},
		Suppliers:        []domain.Supplier{},
		Workers:          []domain.Worker{},
		Purchases:        []domain.Purchase{},
		Orders:           []domain.Order{},
		Expenses:         []domain.Expense{},
		CourierPayments:  []domain.CourierPayment{},
		CashTransactions: []domain.CashTransaction{},
	}
	if openingMainCash.IsPositive() {
		s.MainCashBalance = openingMainCash
		s.CashTransactions = append(s.CashTransactions, domain.CashTransaction{
			ID:          "initial",
			Date:        date,
			Description: "Starting Balance",
			Amount:      openingMainCash,
			Type:        domain.TransactionIn,
			Account:     domain.AccountMain,
		})
	}
	return s
}

// Execute applies cmd to a copy of the current snapshot and publishes the copy
// if the command succeeds. A failed command leaves the engine untouched.
func (e *Engine) Execute(ctx context.Context, actor string, cmd Command) (Effect, error) {
	if err := ctx.Err(); err != nil {
		return Effect{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()
	next := e.snapshot.Clone()
	effect, err := cmd.Apply(&next, Env{NewID: e.newID, Today: now.Format(domain.DateLayout)})
	if err != nil {
		return Effect{}, fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	if effect.Noop {
		return effect, nil
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return Effect{}, fmt.Errorf("%s: encode command: %w", cmd.Name(), err)
	}

	e.snapshot = next
	e.version++
	e.seq++
	e.log = append(e.log, domain.CommandRecord{
		Seq:      e.seq,
		Command:  cmd.Name(),
		Actor:    actor,
		EntityID: effect.EntityID,
		Payload:  string(payload),
		At:       now,
	})
	if len(e.log) > e.logLimit {
		e.log = append([]domain.CommandRecord(nil), e.log[len(e.log)-e.logLimit:]...)
	}

	return effect, nil
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.Clone()
}

// View returns a copy of the current state together with its version.
func (e *Engine) View() (domain.Snapshot, int64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot.Clone(), e.version
}

func (e *Engine) Version() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Replace installs a restored snapshot. The mutation log is kept.
func (e *Engine) Replace(s domain.Snapshot) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = s.Clone()
	e.version++
	return e.version
}

// Log returns up to limit of the most recent command records, oldest first.
func (e *Engine) Log(limit int) []domain.CommandRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	start := 0
	if limit > 0 && len(e.log) > limit {
		start = len(e.log) - limit
	}
	out := make([]domain.CommandRecord, len(e.log)-start)
	copy(out, e.log[start:])
	return out
}

func (e *Engine) AddProduct(ctx context.Context, actor string, req domain.ProductCreateRequest) (domain.Product, error) {
	effect, err := e.Execute(ctx, actor, AddProduct{req})
	if err != nil {
		return domain.Product{}, err
	}
	product, _ := effect.Entity.(domain.Product)
	return product, nil
}

func (e *Engine) AddSupplier(ctx context.Context, actor string, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	effect, err := e.Execute(ctx, actor, AddSupplier{req})
	if err != nil {
		return domain.Supplier{}, err
	}
	supplier, _ := effect.Entity.(domain.Supplier)
	return supplier, nil
}

func (e *Engine) AddWorker(ctx context.Context, actor string, req domain.WorkerCreateRequest) (domain.Worker, error) {
	effect, err := e.Execute(ctx, actor, AddWorker{req})
	if err != nil {
		return domain.Worker{}, err
	}
	worker, _ := effect.Entity.(domain.Worker)
	return worker, nil
}

func (e *Engine) UpdateWorker(ctx context.Context, actor string, workerID string, req domain.WorkerUpdateRequest) (domain.Worker, error) {
	effect, err := e.Execute(ctx, actor, UpdateWorker{WorkerID: workerID, Patch: req})
	if err != nil {
		return domain.Worker{}, err
	}
	worker, _ := effect.Entity.(domain.Worker)
	return worker, nil
}

func (e *Engine) RemoveWorker(ctx context.Context, actor string, workerID string) error {
	_, err := e.Execute(ctx, actor, RemoveWorker{WorkerID: workerID})
	return err
}

func (e *Engine) AddPurchase(ctx context.Context, actor string, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	effect, err := e.Execute(ctx, actor, AddPurchase{req})
	if err != nil {
		return domain.Purchase{}, err
	}
	purchase, _ := effect.Entity.(domain.Purchase)
	return purchase, nil
}

func (e *Engine) AddOrder(ctx context.Context, actor string, req domain.OrderCreateRequest) (domain.Order, error) {
	effect, err := e.Execute(ctx, actor, AddOrder{req})
	if err != nil {
		return domain.Order{}, err
	}
	order, _ := effect.Entity.(domain.Order)
	return order, nil
}

func (e *Engine) UpdateOrderStatus(ctx context.Context, actor string, orderID string, status domain.OrderStatus, costing *domain.Costing) (domain.Order, error) {
	effect, err := e.Execute(ctx, actor, UpdateOrderStatus{OrderID: orderID, Status: status, Costing: costing})
	if err != nil {
		return domain.Order{}, err
	}
	order, _ := effect.Entity.(domain.Order)
	return order, nil
}

func (e *Engine) UpdateOrderTracking(ctx context.Context, actor string, orderID string, trackingID string) (domain.Order, error) {
	effect, err := e.Execute(ctx, actor, UpdateOrderTracking{OrderID: orderID, TrackingID: trackingID})
	if err != nil {
		return domain.Order{}, err
	}
	order, _ := effect.Entity.(domain.Order)
	return order, nil
}

func (e *Engine) AddExpense(ctx context.Context, actor string, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	effect, err := e.Execute(ctx, actor, AddExpense{req})
	if err != nil {
		return domain.Expense{}, err
	}
	expense, _ := effect.Entity.(domain.Expense)
	return expense, nil
}

func (e *Engine) AddCourierPayment(ctx context.Context, actor string, req domain.CourierPaymentCreateRequest) (domain.CourierPayment, error) {
	effect, err := e.Execute(ctx, actor, AddCourierPayment{req})
	if err != nil {
		return domain.CourierPayment{}, err
	}
	payment, _ := effect.Entity.(domain.CourierPayment)
	return payment, nil
}

func (e *Engine) AddLedgerEntry(ctx context.Context, actor string, req domain.LedgerEntryRequest) (domain.CashTransaction, error) {
	effect, err := e.Execute(ctx, actor, AddLedgerEntry{req})
	if err != nil {
		return domain.CashTransaction{}, err
	}
	tx, _ := effect.Entity.(domain.CashTransaction)
	return tx, nil
}

// ProcessScan never returns an error for an unknown or finished parcel; those
// come back as a ScanError result.
func (e *Engine) ProcessScan(ctx context.Context, actor string, trackingCode string) (domain.ScanResult, error) {
	effect, err := e.Execute(ctx, actor, ProcessScan{TrackingCode: trackingCode})
	if err != nil {
		return domain.ScanResult{}, err
	}
	if effect.Scan == nil {
		return domain.ScanResult{Message: "Parcel not found", Type: domain.ScanError}, nil
	}
	return *effect.Scan, nil
}

func normalizeDate(raw string, today string) (string, error) {
	date := strings.TrimSpace(raw)
	if date == "" {
		return today, nil
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return "", invalid("date %q must be YYYY-MM-DD", raw)
	}
	return date, nil
}
