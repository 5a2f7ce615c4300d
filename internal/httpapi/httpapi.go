package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/ledger"
	"opsledger/backend/internal/service"
	"opsledger/backend/internal/store"
)

const (
	roleAdmin = domain.RoleAdmin
	roleUser  = domain.RoleUser
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	metrics       *metrics
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		metrics:       newMetrics(svc),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics.handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/logout", a.requireAuth(a.handleLogout, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe, roleUser, roleAdmin))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/workers", a.requireAuth(a.handleWorkers, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/workers/", a.requireAuth(a.handleWorkerActions, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/orders/", a.requireAuth(a.handleOrderActions, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/scan", a.requireAuth(a.handleScan, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/courier-payments", a.requireAuth(a.handleCourierPayments, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/couriers/", a.requireAuth(a.handleCourierStatement, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/ledger", a.requireAuth(a.handleLedger, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/ledger/reconcile", a.requireAuth(a.handleReconcile, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/summary", a.requireAuth(a.handleSummary, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/reports/financial", a.requireAuth(a.handleFinancialReport, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/reports/orders", a.requireAuth(a.handleOrderReport, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/reports/workers/", a.requireAuth(a.handleWorkerReport, roleUser, roleAdmin))
	mux.HandleFunc("/api/v1/sync", a.requireAuth(a.handleSync, roleUser, roleAdmin))

	mux.HandleFunc("/api/v1/admin/users", a.requireAuth(a.handleUsers, roleAdmin))
	mux.HandleFunc("/api/v1/admin/login-attempts", a.requireAuth(a.handleLoginAttempts, roleAdmin))
	mux.HandleFunc("/api/v1/admin/commands", a.requireAuth(a.handleCommandLog, roleAdmin))

	return a.withMiddleware(mux)
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(authorization[len("Bearer "):]), true
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"at":      time.Now().UTC().Format(time.RFC3339),
		"ledger":  a.service.LedgerID(),
		"version": a.service.SyncStatus().Version,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := a.auth.Revoke(token); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, actor)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"products": a.service.ListProducts(r.Context())})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": a.service.ListSuppliers(r.Context())})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, supplier)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleWorkers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"workers": a.service.ListWorkers(r.Context())})
	case http.MethodPost:
		var req domain.WorkerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		worker, err := a.service.CreateWorker(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, worker)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleWorkerActions(w http.ResponseWriter, r *http.Request) {
	workerID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/workers/"), "/")
	if workerID == "" || strings.Contains(workerID, "/") {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.WorkerUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		worker, err := a.service.UpdateWorker(r.Context(), workerID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, worker)
	case http.MethodDelete:
		if err := a.service.DeleteWorker(r.Context(), workerID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"purchases": a.service.ListPurchases(r.Context())})
	case http.MethodPost:
		var req domain.PurchaseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		purchase, err := a.service.CreatePurchase(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, purchase)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := domain.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status")))
		orders, err := a.service.ListOrders(r.Context(), status)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
	case http.MethodPost:
		var req domain.OrderCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.CreateOrder(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/orders/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
		return
	}
	orderID := parts[0]

	switch parts[1] {
	case "status":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.OrderStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.UpdateOrderStatus(r.Context(), orderID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	case "tracking":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.OrderTrackingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.UpdateOrderTracking(r.Context(), orderID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	default:
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	}
}

// handleScan always answers 200; an unmatched or terminal parcel is reported
// in the result type, not as an HTTP error.
func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := a.service.Scan(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"expenses": a.service.ListExpenses(r.Context())})
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, expense)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCourierPayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"courier_payments": a.service.ListCourierPayments(r.Context())})
	case http.MethodPost:
		var req domain.CourierPaymentCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		payment, err := a.service.CreateCourierPayment(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, payment)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCourierStatement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/couriers/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "statement" {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
		return
	}

	statement, err := a.service.CourierStatement(r.Context(), domain.Courier(parts[0]))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statement)
}

func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		account := domain.CashAccount(strings.TrimSpace(r.URL.Query().Get("account")))
		book, err := a.service.CashBook(r.Context(), account)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPost:
		var req domain.LedgerEntryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tx, err := a.service.CreateLedgerEntry(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.service.Reconcile(r.Context()))
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.Summary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) periodFromQuery(r *http.Request) (ledger.Period, error) {
	query := r.URL.Query()
	month, err := parseOptionalInt(query.Get("month"))
	if err != nil {
		return ledger.Period{}, fmt.Errorf("%w: month must be a number", ledger.ErrValidation)
	}
	year, err := parseOptionalInt(query.Get("year"))
	if err != nil {
		return ledger.Period{}, fmt.Errorf("%w: year must be a number", ledger.ErrValidation)
	}
	return a.service.Period(
		ledger.PeriodKind(strings.ToLower(strings.TrimSpace(query.Get("period")))),
		query.Get("start"),
		query.Get("end"),
		month,
		year,
	)
}

func (a *API) handleFinancialReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	period, err := a.periodFromQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	report := a.service.FinancialReport(r.Context(), period, strings.TrimSpace(r.URL.Query().Get("worker")))
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\"financial-report.csv\"")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(financialReportToCSV(report)))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleOrderReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	period, err := a.periodFromQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.service.OrderReport(r.Context(), period))
}

func (a *API) handleWorkerReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	workerID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/reports/workers/"), "/")
	if workerID == "" || strings.Contains(workerID, "/") {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
		return
	}
	period, err := a.periodFromQuery(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	report, err := a.service.WorkerReport(r.Context(), workerID, period)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.service.SyncStatus())
	case http.MethodPost:
		status, err := a.service.Sync(r.Context())
		if err != nil {
			log.Printf("[sync] manual sync failed: %v", err)
			writeJSON(w, http.StatusBadGateway, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateUser(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLoginAttempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 1000)
	attempts, err := a.auth.LoginAttempts(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (a *API) handleCommandLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	writeJSON(w, http.StatusOK, map[string]any{"commands": a.service.CommandLog(r.Context(), limit)})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(startedAt)
		a.metrics.observe(r, recorder.status, elapsed)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, recorder.status, elapsed)
	})
}

func financialReportToCSV(report domain.FinancialReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,period,%s", report.Period),
	}
	if report.WorkerName != "" {
		lines = append(lines, fmt.Sprintf("summary,worker,%s", csvEscape(report.WorkerName)))
	}
	lines = append(lines,
		fmt.Sprintf("summary,total_sales,%s", report.TotalSales.StringFixed(2)),
		fmt.Sprintf("summary,total_purchases,%s", report.TotalPurchases.StringFixed(2)),
		fmt.Sprintf("summary,total_expenses,%s", report.TotalExpenses.StringFixed(2)),
		fmt.Sprintf("summary,profit,%s", report.Profit.StringFixed(2)),
		fmt.Sprintf("counts,orders,%d", report.OrderCount),
		fmt.Sprintf("counts,purchases,%d", report.PurchaseCount),
		fmt.Sprintf("counts,expenses,%d", report.ExpenseCount),
	)
	return strings.Join(lines, "\n") + "\n"
}

func csvEscape(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

// writeServiceError maps ledger and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnknownReference):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, store.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ledger.ErrOrderNotFound), errors.Is(err, ledger.ErrWorkerNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parseOptionalInt(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
