package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/service"
	"restopos/backend/internal/store/memory"
)

const seededCustomerID = int64(1001)

// newTestAPI builds a full API with a seeded in-memory store, a real
// AuthManager and a real Service so handler tests exercise the complete
// request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, zap.NewNop(), "IDR")
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", zap.NewNop())
}

func tokenFor(t *testing.T, api *API, username string, role string, customerID *int64) string {
	t.Helper()
	token, err := api.auth.sign(username, credential{role: role, customerID: customerID, active: true}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, api *API, method string, path string, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, res.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, res *httptest.ResponseRecorder, want int) {
	t.Helper()
	if res.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, res.Code, res.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/healthz", "", "")
	expectStatus(t, res, http.StatusOK)

	payload := decodeBody[map[string]any](t, res)
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "")
	api := newTestAPI(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "admin123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	expectStatus(t, res, http.StatusOK)

	payload := decodeBody[domain.LoginResponse](t, res)
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	if payload.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", payload.Role)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", `{"username":"admin","password":"nope"}`)
	expectStatus(t, res, http.StatusUnauthorized)
}

func TestRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/api/v1/orders", "", "")
	expectStatus(t, res, http.StatusUnauthorized)

	res = doJSON(t, api, http.MethodGet, "/api/v1/orders", "not-a-token", "")
	expectStatus(t, res, http.StatusUnauthorized)

	customer := tokenFor(t, api, "customer", domain.RoleCustomer, ptr(seededCustomerID))
	res = doJSON(t, api, http.MethodPatch, "/api/v1/orders/1/status", customer, `{"status":"preparing"}`)
	expectStatus(t, res, http.StatusForbidden)

	cashier := tokenFor(t, api, "cashier", domain.RoleCashier, nil)
	res = doJSON(t, api, http.MethodPost, "/api/v1/admin/end-of-day", cashier, "")
	expectStatus(t, res, http.StatusForbidden)
}

func TestDeliveryLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	cashier := tokenFor(t, api, "cashier", domain.RoleCashier, nil)

	res := doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier,
		`{"type":"delivery","customer_id":1001,"payment_method":"cash","items":[{"product_id":1,"quantity":2},{"product_id":5}]}`)
	expectStatus(t, res, http.StatusCreated)
	order := decodeBody[domain.Order](t, res)
	if order.Status != domain.OrderStatusNew || order.ID != 1 {
		t.Fatalf("unexpected order %+v", order)
	}
	if !order.FinalAmount.Equal(order.TotalAmount) || order.TotalAmount.IntPart() != 55000 {
		t.Fatalf("expected total 55000, got %s", order.TotalAmount)
	}

	for _, status := range []string{"preparing", "ready"} {
		res = doJSON(t, api, http.MethodPatch, "/api/v1/orders/1/status", cashier, `{"status":"`+status+`"}`)
		expectStatus(t, res, http.StatusOK)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/deliveries", cashier, `{"order_id":1,"driver_name":"Joko","commission":"8000"}`)
	expectStatus(t, res, http.StatusCreated)
	mission := decodeBody[domain.DeliveryMission](t, res)

	res = doJSON(t, api, http.MethodPost, "/api/v1/deliveries", cashier, `{"order_id":1,"driver_name":"Wati"}`)
	expectStatus(t, res, http.StatusConflict)

	res = doJSON(t, api, http.MethodPatch, "/api/v1/deliveries/"+itoa(mission.ID)+"/status", cashier, `{"status":"delivered"}`)
	expectStatus(t, res, http.StatusOK)
	update := decodeBody[domain.DeliveryUpdateResponse](t, res)
	if update.Order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected order completed, got %s", update.Order.Status)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/orders/1/deliveries", cashier, "")
	expectStatus(t, res, http.StatusOK)
	list := decodeBody[struct {
		Items []domain.DeliveryMission `json:"items"`
	}](t, res)
	if len(list.Items) != 1 || list.Items[0].Status != domain.MissionDelivered {
		t.Fatalf("unexpected missions %+v", list.Items)
	}

	admin := tokenFor(t, api, "admin", domain.RoleAdmin, nil)
	res = doJSON(t, api, http.MethodGet, "/api/v1/ledger?related_id=1", admin, "")
	expectStatus(t, res, http.StatusOK)
	entries := decodeBody[struct {
		Items []domain.LedgerEntry `json:"items"`
	}](t, res)
	if len(entries.Items) != 1 || entries.Items[0].Type != domain.LedgerRevenue {
		t.Fatalf("expected one revenue entry, got %+v", entries.Items)
	}
}

func TestOrderErrorsMapToStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	cashier := tokenFor(t, api, "cashier", domain.RoleCashier, nil)

	res := doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier, `{"payment_method":"cash","items":[]}`)
	expectStatus(t, res, http.StatusBadRequest)

	res = doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier, `{"items":[{"product_id":1}]}`)
	expectStatus(t, res, http.StatusBadRequest)

	res = doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier, `{"payment_method":"cash","items":[{"product_id":2,"quantity":51}]}`)
	expectStatus(t, res, http.StatusConflict)
	if !strings.Contains(res.Body.String(), "Mie Ayam") {
		t.Fatalf("expected stock error to name the product, got %s", res.Body.String())
	}

	res = doJSON(t, api, http.MethodPatch, "/api/v1/orders/99/status", cashier, `{"status":"preparing"}`)
	expectStatus(t, res, http.StatusNotFound)

	res = doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier, `{"payment_method":"cash","items":[{"product_id":1}]}`)
	expectStatus(t, res, http.StatusCreated)
	res = doJSON(t, api, http.MethodPatch, "/api/v1/orders/1/status", cashier, `{"status":"preparing"}`)
	expectStatus(t, res, http.StatusConflict)

	res = doJSON(t, api, http.MethodGet, "/api/v1/orders/abc", cashier, "")
	expectStatus(t, res, http.StatusBadRequest)
}

func TestCustomerSeesOnlyOwnOrders(t *testing.T) {
	api := newTestAPI(t)
	cashier := tokenFor(t, api, "cashier", domain.RoleCashier, nil)
	customer := tokenFor(t, api, "customer", domain.RoleCustomer, ptr(seededCustomerID))
	stranger := tokenFor(t, api, "other", domain.RoleCustomer, ptr(7))

	res := doJSON(t, api, http.MethodPost, "/api/v1/orders", customer, `{"payment_method":"cash","items":[{"product_id":6}]}`)
	expectStatus(t, res, http.StatusCreated)
	res = doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier, `{"payment_method":"cash","items":[{"product_id":6}]}`)
	expectStatus(t, res, http.StatusCreated)

	res = doJSON(t, api, http.MethodGet, "/api/v1/orders", customer, "")
	expectStatus(t, res, http.StatusOK)
	list := decodeBody[struct {
		Items []domain.Order `json:"items"`
	}](t, res)
	if len(list.Items) != 1 || list.Items[0].ID != 1 {
		t.Fatalf("expected only the customer's order, got %+v", list.Items)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/orders/1", stranger, "")
	expectStatus(t, res, http.StatusNotFound)

	res = doJSON(t, api, http.MethodGet, "/api/v1/notifications", customer, "")
	expectStatus(t, res, http.StatusOK)
}

func TestEndOfDayArchivesOrders(t *testing.T) {
	api := newTestAPI(t)
	cashier := tokenFor(t, api, "cashier", domain.RoleCashier, nil)
	admin := tokenFor(t, api, "admin", domain.RoleAdmin, nil)

	for i := 0; i < 3; i++ {
		res := doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier, `{"payment_method":"cash","items":[{"product_id":5}]}`)
		expectStatus(t, res, http.StatusCreated)
	}

	res := doJSON(t, api, http.MethodPost, "/api/v1/admin/end-of-day", admin, "")
	expectStatus(t, res, http.StatusOK)
	result := decodeBody[domain.ArchiveResult](t, res)
	if result.ArchivedOrders != 3 || result.ArchivedLines != 3 {
		t.Fatalf("unexpected archive result %+v", result)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/orders", cashier, `{"payment_method":"cash","items":[{"product_id":5}]}`)
	expectStatus(t, res, http.StatusCreated)
	if order := decodeBody[domain.Order](t, res); order.ID != 1 {
		t.Fatalf("expected numbering to restart at 1, got %d", order.ID)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/admin/audit-logs", admin, "")
	expectStatus(t, res, http.StatusOK)
	if !strings.Contains(res.Body.String(), "end_of_day") {
		t.Fatalf("expected end_of_day audit row, got %s", res.Body.String())
	}
}

func TestInventoryLedgerAndReports(t *testing.T) {
	api := newTestAPI(t)
	admin := tokenFor(t, api, "admin", domain.RoleAdmin, nil)

	res := doJSON(t, api, http.MethodPost, "/api/v1/inventory/3/adjust", admin, `{"delta":-10}`)
	expectStatus(t, res, http.StatusOK)
	if record := decodeBody[domain.InventoryRecord](t, res); record.Quantity != 40 {
		t.Fatalf("expected 40 after adjust, got %d", record.Quantity)
	}

	res = doJSON(t, api, http.MethodPut, "/api/v1/inventory/3", admin, `{"quantity":-1}`)
	expectStatus(t, res, http.StatusBadRequest)

	res = doJSON(t, api, http.MethodPost, "/api/v1/ledger", admin, `{"type":"expense","classification":"salary","amount":"150000","description":"weekly wages","bank_id":2}`)
	expectStatus(t, res, http.StatusCreated)
	entry := decodeBody[domain.LedgerEntry](t, res)

	res = doJSON(t, api, http.MethodPatch, "/api/v1/ledger/"+itoa(entry.ID), admin, `{"amount":"175000"}`)
	expectStatus(t, res, http.StatusOK)

	res = doJSON(t, api, http.MethodPost, "/api/v1/banks/adjust", admin, `{"bank_name":"Mandiri","delta":"175000"}`)
	expectStatus(t, res, http.StatusOK)
	if bank := decodeBody[domain.Bank](t, res); !bank.Balance.IsZero() {
		t.Fatalf("expected Mandiri back at zero, got %s", bank.Balance)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/daily-summary", admin, "")
	expectStatus(t, res, http.StatusOK)

	res = doJSON(t, api, http.MethodPost, "/api/v1/reports/daily-summary", admin, "")
	expectStatus(t, res, http.StatusCreated)
	saved := decodeBody[domain.DailySummary](t, res)

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/daily-summary/"+saved.BusinessDate, admin, "")
	expectStatus(t, res, http.StatusOK)

	res = doJSON(t, api, http.MethodGet, "/api/v1/reports/daily-summary/2001-01-01", admin, "")
	expectStatus(t, res, http.StatusNotFound)
}

func ptr(v int64) *int64 { return &v }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
