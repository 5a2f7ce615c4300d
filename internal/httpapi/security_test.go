package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"opsledger/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightReturnsNoContent(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Fatalf("expected DELETE in allowed methods, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Email: testAdminEmail, Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"email":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"Fan","stock_count":99}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	res := httptest.NewRecorder()

	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t).Handler()
	for _, path := range []string{"/api/v1/products", "/api/v1/orders", "/api/v1/summary", "/api/v1/admin/users"} {
		rec := doRequest(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s expected 401 without token, got %d", path, rec.Code)
		}
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestAdminRoutesForbiddenForStaff(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, testStaffEmail, testStaffPassword)

	for _, path := range []string{"/api/v1/admin/users", "/api/v1/admin/login-attempts", "/api/v1/admin/commands"} {
		rec := doRequest(t, handler, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s expected 403 for staff, got %d", path, rec.Code)
		}
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/summary", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff should read the summary, got %d", rec.Code)
	}
}

func TestAdminManagesUsersAndSeesAudit(t *testing.T) {
	f := newFixture(t)

	rec := doRequest(t, f.handler, http.MethodPost, "/api/v1/admin/users", f.token, domain.UserCreateRequest{Email: "packer@test.local", Password: "packer1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, f.handler, http.MethodPost, "/api/v1/admin/users", f.token, domain.UserCreateRequest{Email: "packer@test.local", Password: "packer1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate user, got %d", rec.Code)
	}
	rec = doRequest(t, f.handler, http.MethodPost, "/api/v1/admin/users", f.token, domain.UserCreateRequest{Email: "short@test.local", Password: "123"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", rec.Code)
	}

	rec = doRequest(t, f.handler, http.MethodGet, "/api/v1/admin/users", f.token, nil)
	users := decodeBody[map[string][]domain.UserView](t, rec)
	if len(users["users"]) != 3 {
		t.Fatalf("expected 3 users, got %+v", users)
	}

	rec = doRequest(t, f.handler, http.MethodGet, "/api/v1/admin/login-attempts?limit=5", f.token, nil)
	attempts := decodeBody[map[string][]domain.LoginAttempt](t, rec)
	if len(attempts["attempts"]) == 0 || !attempts["attempts"][0].Success {
		t.Fatalf("expected the admin login to be recorded, got %+v", attempts)
	}

	rec = doRequest(t, f.handler, http.MethodGet, "/api/v1/admin/commands", f.token, nil)
	commands := decodeBody[map[string][]domain.CommandRecord](t, rec)
	if len(commands["commands"]) != 4 || commands["commands"][0].Actor != testAdminEmail {
		t.Fatalf("unexpected command log %+v", commands)
	}
}

func TestMetricsEndpointExposesLedgerGauges(t *testing.T) {
	f := newFixture(t)
	doRequest(t, f.handler, http.MethodGet, "/api/v1/summary", f.token, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	raw, _ := io.ReadAll(res.Body)
	text := string(raw)
	for _, want := range []string{
		"ledger_main_cash_balance 98000",
		"ledger_ad_cash_balance 0",
		`http_requests_total{method="GET",path="/api/v1/summary",status="200"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected metrics to contain %q", want)
		}
	}
}

func TestRouteLabelCollapsesIDs(t *testing.T) {
	cases := map[string]string{
		"/api/v1/orders/ord-1/status":    "/api/v1/orders/{id}/status",
		"/api/v1/workers/wrk-9":          "/api/v1/workers/{id}",
		"/api/v1/couriers/TCS/statement": "/api/v1/couriers/{id}/statement",
		"/api/v1/reports/workers/wrk-9":  "/api/v1/reports/workers/{id}",
		"/api/v1/reports/financial":      "/api/v1/reports/financial",
		"/api/v1/summary":                "/api/v1/summary",
		"/healthz":                       "/healthz",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
