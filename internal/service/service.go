package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shopspring/decimal"

	"opsledger/backend/internal/cache"
	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/ledger"
	"opsledger/backend/internal/store"
)

const systemActor = "system"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Identity) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Identity, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Identity)
	return actor, ok
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Email != "" {
		return actor.Email
	}
	return systemActor
}

type Options struct {
	LedgerID        string
	SummaryTTL      time.Duration
	OpeningMainCash decimal.Decimal
	Cache           cache.SummaryCache
	Clock           func() time.Time
}

type Service struct {
	engine     *ledger.Engine
	snapshots  store.SnapshotStore
	cache      cache.SummaryCache
	ledgerID   string
	summaryTTL time.Duration
	now        func() time.Time

	syncMu    sync.Mutex
	statusMu  sync.RWMutex
	status    domain.SyncStatus
	scheduler *gocron.Scheduler
}

func New(snapshots store.SnapshotStore, opts Options) *Service {
	if opts.LedgerID == "" {
		opts.LedgerID = "main"
	}
	if opts.SummaryTTL <= 0 {
		opts.SummaryTTL = 30 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopSummaryCache{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	today := opts.Clock().UTC().Format(domain.DateLayout)
	engine := ledger.NewEngine(
		ledger.NewSnapshot(opts.OpeningMainCash, today),
		ledger.WithClock(opts.Clock),
	)

	return &Service{
		engine:     engine,
		snapshots:  snapshots,
		cache:      opts.Cache,
		ledgerID:   opts.LedgerID,
		summaryTTL: opts.SummaryTTL,
		now:        opts.Clock,
	}
}

func (s *Service) LedgerID() string {
	return s.ledgerID
}

// Restore installs the persisted snapshot for this ledger. A missing snapshot
// keeps the fresh state. A snapshot whose balances disagree with its
// transaction log is still installed, with a warning.
func (s *Service) Restore(ctx context.Context) error {
	snapshot, err := s.snapshots.LoadSnapshot(ctx, s.ledgerID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] no saved snapshot for ledger=%s, starting fresh", s.ledgerID)
		return nil
	}
	if err != nil {
		s.recordSyncFailure(err)
		return fmt.Errorf("restore ledger %s: %w", s.ledgerID, err)
	}
	if err := ledger.Verify(snapshot); err != nil {
		log.Printf("[service] WARN: restored ledger=%s: %v", s.ledgerID, err)
	}

	version := s.engine.Replace(snapshot)
	now := s.now().UTC()
	s.statusMu.Lock()
	s.status.SavedVersion = version
	s.status.LastSyncTime = &now
	s.status.LastError = ""
	s.statusMu.Unlock()
	log.Printf("[service] restored ledger=%s orders=%d products=%d", s.ledgerID, len(snapshot.Orders), len(snapshot.Products))
	return nil
}

// Sync saves the current snapshot. A failure is kept in the sync status and
// the in-memory state stays authoritative.
func (s *Service) Sync(ctx context.Context) (domain.SyncStatus, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	snapshot, version := s.engine.View()
	s.statusMu.Lock()
	s.status.Syncing = true
	s.statusMu.Unlock()

	err := s.snapshots.SaveSnapshot(ctx, s.ledgerID, snapshot)

	now := s.now().UTC()
	s.statusMu.Lock()
	s.status.Syncing = false
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.LastSyncTime = &now
		s.status.SavedVersion = version
	}
	s.statusMu.Unlock()

	if err != nil {
		log.Printf("[service] WARN: sync ledger=%s version=%d failed: %v", s.ledgerID, version, err)
		return s.SyncStatus(), fmt.Errorf("sync ledger %s: %w", s.ledgerID, err)
	}
	return s.SyncStatus(), nil
}

func (s *Service) SyncStatus() domain.SyncStatus {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	if status.LastSyncTime != nil {
		at := *status.LastSyncTime
		status.LastSyncTime = &at
	}
	status.Version = s.engine.Version()
	return status
}

// Dirty reports whether the ledger changed since the last successful save.
func (s *Service) Dirty() bool {
	s.statusMu.RLock()
	saved := s.status.SavedVersion
	s.statusMu.RUnlock()
	return s.engine.Version() != saved
}

func (s *Service) recordSyncFailure(err error) {
	s.statusMu.Lock()
	s.status.LastError = err.Error()
	s.statusMu.Unlock()
}

// StartAutoSync saves the ledger every interval whenever it has unsaved
// changes.
func (s *Service) StartAutoSync(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("autosync interval must be positive")
	}
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(interval).Do(func() {
		if !s.Dirty() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Sync(ctx); err == nil {
			log.Printf("[autosync] saved ledger=%s version=%d", s.ledgerID, s.engine.Version())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule autosync: %w", err)
	}
	scheduler.StartAsync()
	s.scheduler = scheduler
	log.Printf("[autosync] enabled every %s for ledger=%s", interval, s.ledgerID)
	return nil
}

func (s *Service) StopAutoSync() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Service) Snapshot() (domain.Snapshot, int64) {
	return s.engine.View()
}

func (s *Service) ListProducts(_ context.Context) []domain.Product {
	return s.engine.Snapshot().Products
}

func (s *Service) ListSuppliers(_ context.Context) []domain.Supplier {
	return s.engine.Snapshot().Suppliers
}

func (s *Service) ListWorkers(_ context.Context) []domain.Worker {
	return s.engine.Snapshot().Workers
}

func (s *Service) ListPurchases(_ context.Context) []domain.Purchase {
	return s.engine.Snapshot().Purchases
}

// ListOrders returns orders newest first, optionally limited to one status.
func (s *Service) ListOrders(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ledger.ErrValidation, status)
	}
	orders := s.engine.Snapshot().Orders
	out := make([]domain.Order, 0, len(orders))
	for i := len(orders) - 1; i >= 0; i-- {
		if status == "" || orders[i].Status == status {
			out = append(out, orders[i])
		}
	}
	return out, nil
}

func (s *Service) ListExpenses(_ context.Context) []domain.Expense {
	return s.engine.Snapshot().Expenses
}

func (s *Service) ListCourierPayments(_ context.Context) []domain.CourierPayment {
	return s.engine.Snapshot().CourierPayments
}

// CashBook returns the cash log newest first, optionally limited to one
// account, with the balances of the same snapshot.
func (s *Service) CashBook(_ context.Context, account domain.CashAccount) (domain.CashBook, error) {
	if account != "" && !account.Valid() {
		return domain.CashBook{}, fmt.Errorf("%w: unknown cash account %q", ledger.ErrValidation, account)
	}
	snapshot, version := s.engine.View()
	txs := snapshot.CashTransactions
	out := make([]domain.CashTransaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		if account == "" || txs[i].Account == account {
			out = append(out, txs[i])
		}
	}
	return domain.CashBook{
		Transactions:    out,
		MainCashBalance: snapshot.MainCashBalance,
		AdCashBalance:   snapshot.AdCashBalance,
		Version:         version,
	}, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	return s.engine.AddProduct(ctx, actorName(ctx), req)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	return s.engine.AddSupplier(ctx, actorName(ctx), req)
}

func (s *Service) CreateWorker(ctx context.Context, req domain.WorkerCreateRequest) (domain.Worker, error) {
	return s.engine.AddWorker(ctx, actorName(ctx), req)
}

func (s *Service) UpdateWorker(ctx context.Context, workerID string, req domain.WorkerUpdateRequest) (domain.Worker, error) {
	return s.engine.UpdateWorker(ctx, actorName(ctx), workerID, req)
}

func (s *Service) DeleteWorker(ctx context.Context, workerID string) error {
	if err := s.engine.RemoveWorker(ctx, actorName(ctx), workerID); err != nil {
		return err
	}
	log.Printf("[service] worker removed id=%s by=%s", workerID, actorName(ctx))
	return nil
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	return s.engine.AddPurchase(ctx, actorName(ctx), req)
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	return s.engine.AddOrder(ctx, actorName(ctx), req)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, req domain.OrderStatusRequest) (domain.Order, error) {
	order, err := s.engine.UpdateOrderStatus(ctx, actorName(ctx), orderID, req.Status, req.Costing)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusDelivered {
		log.Printf("[service] order %s delivered profit=%s by=%s", order.OrderNumber, order.Profit.StringFixed(2), actorName(ctx))
	}
	return order, nil
}

func (s *Service) UpdateOrderTracking(ctx context.Context, orderID string, req domain.OrderTrackingRequest) (domain.Order, error) {
	return s.engine.UpdateOrderTracking(ctx, actorName(ctx), orderID, req.TrackingID)
}

func (s *Service) Scan(ctx context.Context, req domain.ScanRequest) (domain.ScanResult, error) {
	return s.engine.ProcessScan(ctx, actorName(ctx), req.TrackingCode)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	return s.engine.AddExpense(ctx, actorName(ctx), req)
}

func (s *Service) CreateCourierPayment(ctx context.Context, req domain.CourierPaymentCreateRequest) (domain.CourierPayment, error) {
	return s.engine.AddCourierPayment(ctx, actorName(ctx), req)
}

func (s *Service) CreateLedgerEntry(ctx context.Context, req domain.LedgerEntryRequest) (domain.CashTransaction, error) {
	return s.engine.AddLedgerEntry(ctx, actorName(ctx), req)
}

// Summary serves dashboard figures, cached by snapshot content.
func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	snapshot, version := s.engine.View()
	key, err := cache.SummaryKey(s.ledgerID, snapshot)
	if err != nil {
		log.Printf("[service] WARN: summary cache key failed ledger=%s: %v", s.ledgerID, err)
		return ledger.Summarize(snapshot, version), nil
	}

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: summary cache get failed key=%s: %v", key, err)
	} else if ok && cached != nil {
		summary := *cached
		summary.Version = version
		return summary, nil
	}

	summary := ledger.Summarize(snapshot, version)
	if err := s.cache.Set(ctx, key, &summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache set failed key=%s: %v", key, err)
	}
	return summary, nil
}

func (s *Service) Period(kind ledger.PeriodKind, start, end string, month, year int) (ledger.Period, error) {
	return ledger.NewPeriod(kind, start, end, month, year, s.now().UTC())
}

func (s *Service) FinancialReport(_ context.Context, period ledger.Period, workerName string) domain.FinancialReport {
	return ledger.FinancialReport(s.engine.Snapshot(), period, workerName)
}

func (s *Service) OrderReport(_ context.Context, period ledger.Period) domain.OrderReport {
	return ledger.OrderReport(s.engine.Snapshot(), period)
}

func (s *Service) WorkerReport(_ context.Context, workerID string, period ledger.Period) (domain.WorkerReport, error) {
	return ledger.WorkerReport(s.engine.Snapshot(), workerID, period)
}

func (s *Service) CourierStatement(_ context.Context, courier domain.Courier) (domain.CourierStatement, error) {
	return ledger.CourierStatementFor(s.engine.Snapshot(), courier)
}

func (s *Service) Reconcile(_ context.Context) domain.Reconciliation {
	return ledger.Reconcile(s.engine.Snapshot())
}

func (s *Service) CommandLog(_ context.Context, limit int) []domain.CommandRecord {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.engine.Log(limit)
}
