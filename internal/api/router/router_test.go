package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zaltech/callops/internal/appointments"
	"github.com/zaltech/callops/internal/calls"
	"github.com/zaltech/callops/internal/leads"
	"github.com/zaltech/callops/internal/notify"
	"github.com/zaltech/callops/internal/realtime"
	"github.com/zaltech/callops/internal/services"
	"github.com/zaltech/callops/pkg/logging"
)

const testSecret = "router-test-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	state := realtime.NewStreamState(logger, nil)
	summary := notify.NewCallSummaryService(notify.NewStubEmailSender(logger), logger)

	cfg := &Config{
		Logger:              logger,
		CallsHandler:        calls.NewHandler(state, nil, calls.NewInMemoryRepository(), summary, logger),
		LeadsHandler:        leads.NewHandler(leads.NewInMemoryRepository(), logger),
		AppointmentsHandler: appointments.NewHandler(appointments.NewInMemoryRepository(), logger),
		ServicesHandler:     services.NewHandler(services.NewInMemoryRepository(), logger),
		OperatorJWTSecret:   testSecret,
	}
	return New(cfg)
}

func operatorToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "operator-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterOpsRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	paths := []string{
		"/ops/calls",
		"/ops/calls/live",
		"/ops/leads",
		"/ops/appointments",
		"/ops/services",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without token, got %d", path, rr.Code)
		}
	}
}

func TestRouterOpsWithToken(t *testing.T) {
	router := newTestRouter(t)
	token := operatorToken(t)

	req := httptest.NewRequest(http.MethodGet, "/ops/calls/live", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp calls.ListLiveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("expected empty live list, got %+v", resp)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}
