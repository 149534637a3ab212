package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"livermore/internal/alertengine"
	"livermore/internal/config"
)

func TestHandleExchangesReturnsActiveDescriptors(t *testing.T) {
	api := New(nil, config.Default(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/exchanges", nil)
	rec := httptest.NewRecorder()

	api.HandleExchanges(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env successEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !env.Success {
		t.Fatal("expected success envelope")
	}
	if env.Meta.Count == 0 {
		t.Fatal("expected at least one exchange")
	}
}

func TestHandleSymbolsRejectsMissingExchange(t *testing.T) {
	api := New(nil, config.Default(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/symbols", nil)
	rec := httptest.NewRecorder()

	api.HandleSymbols(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error.Code != CodeBadRequest {
		t.Fatalf("expected BAD_REQUEST, got %s", env.Error.Code)
	}
}

func TestHandleSymbolsRejectsUnknownExchange(t *testing.T) {
	api := New(nil, config.Default(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/symbols?exchange=does-not-exist", nil)
	rec := httptest.NewRecorder()

	api.HandleSymbols(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleAlertsRejectsUnknownExchange(t *testing.T) {
	api := New(nil, config.Default(), map[string]*alertengine.Store{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?exchange=1&symbol=BTC-USD&tf=1h", nil)
	rec := httptest.NewRecorder()

	api.HandleAlerts(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestParseLimitClampsToDefaultOnInvalidInput(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles?limit=not-a-number", nil)
	if got := parseLimit(req); got != defaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
}

func TestParseLimitRejectsOutOfRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles?limit=5000", nil)
	if got := parseLimit(req); got != defaultLimit {
		t.Fatalf("expected default limit for out-of-range input, got %d", got)
	}
}

func TestParseCursorDefaultsToZeroOnMissingOrInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/candles", nil)
	if got := parseCursor(req); got != 0 {
		t.Fatalf("expected zero cursor, got %d", got)
	}
	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/candles?cursor=abc", nil)
	if got := parseCursor(req2); got != 0 {
		t.Fatalf("expected zero cursor for invalid input, got %d", got)
	}
}
