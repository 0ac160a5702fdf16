package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store/memory"
)

// newTestHandler builds a full API with an in-memory store, real
// AuthManager and real Service so handler tests exercise the complete
// request path.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	t.Setenv("SEED_MANAGER_PASSWORD", "manager123")
	t.Setenv("SEED_STAFF_PASSWORD", "staff123")

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStatusCache{}, zap.NewNop(), service.Params{DefaultStationID: "st-0001"})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	return New(svc, auth, zap.NewNop(), "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Error   map[string]any `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, rec.Body.String())
	}
	if body.Data == nil {
		return body.Error
	}
	return body.Data
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)
	token, _ := data["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token, got %v", data)
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)
	if data["ok"] != true {
		t.Fatalf("expected ok:true, got %v", data)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "manager",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	handler := newTestHandler(t)

	payload, _ := json.Marshal(map[string]string{
		"username": "manager",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestPumpsRequireAuth(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/pumps", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStaffCannotCreatePump(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "attendant", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/pumps", token, map[string]any{
		"pump_number":    "P9",
		"product_code":   "PMS",
		"meter_capacity": "999999.9",
		"install_date":   "2024-06-01",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestManagerCreatesPump(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "manager", "manager123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/pumps", token, map[string]any{
		"pump_number":    "P9",
		"product_code":   "PMS",
		"meter_capacity": "999999.9",
		"install_date":   "2024-06-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)
	if data["pump"] == nil {
		t.Fatalf("expected pump in response, got %v", data)
	}
}

func TestReadingAndCalculateFlow(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "attendant", "staff123")

	opening := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"pump_id":      "pump-01",
		"reading_date": "2025-03-10",
		"reading_type": "opening",
		"meter_value":  "1000",
	})
	if opening.Code != http.StatusCreated {
		t.Fatalf("record opening failed: %d %s", opening.Code, opening.Body.String())
	}

	closing := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"pump_id":      "pump-01",
		"reading_date": "2025-03-10",
		"reading_type": "closing",
		"meter_value":  "1045.5",
	})
	if closing.Code != http.StatusCreated {
		t.Fatalf("record closing failed: %d %s", closing.Code, closing.Body.String())
	}

	calc := doJSON(t, handler, http.MethodPost, "/api/v1/pms/calculate", token, map[string]any{
		"date": "2025-03-10",
	})
	if calc.Code != http.StatusOK {
		t.Fatalf("calculate failed: %d %s", calc.Code, calc.Body.String())
	}
	data := decodeEnvelope(t, calc)
	if data["calculated"] != float64(1) {
		t.Fatalf("expected 1 calculated, got %v", data["calculated"])
	}

	status := doJSON(t, handler, http.MethodGet, "/api/v1/readings/status?date=2025-03-10", token, nil)
	if status.Code != http.StatusOK {
		t.Fatalf("reading status failed: %d %s", status.Code, status.Body.String())
	}
}

func TestDuplicateReadingReturnsConflict(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "attendant", "staff123")

	payload := map[string]any{
		"pump_id":      "pump-01",
		"reading_date": "2025-03-10",
		"reading_type": "opening",
		"meter_value":  "1000",
	}
	first := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, payload)
	if first.Code != http.StatusCreated {
		t.Fatalf("first reading failed: %d %s", first.Code, first.Body.String())
	}
	second := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, payload)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d (body: %s)", second.Code, second.Body.String())
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "attendant", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"pump_id":      "pump-01",
		"reading_date": "2025-03-10",
		"reading_type": "opening",
		"meter_value":  "1000",
		"unexpected":   true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestStaffManagementRequiresManager(t *testing.T) {
	handler := newTestHandler(t)
	staffToken := loginAs(t, handler, "attendant", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/staff", staffToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	managerToken := loginAs(t, handler, "manager", "manager123")
	created := doJSON(t, handler, http.MethodPost, "/api/v1/users/staff", managerToken, map[string]string{
		"username": "newhire",
		"password": "secret99",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create staff failed: %d %s", created.Code, created.Body.String())
	}

	list := doJSON(t, handler, http.MethodGet, "/api/v1/users/staff", managerToken, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list staff failed: %d", list.Code)
	}
}
