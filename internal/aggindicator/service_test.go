package aggindicator

import (
	"context"
	"log/slog"
	"testing"

	"livermore/internal/model"
)

func newTestService() *Service {
	return &Service{
		ExchangeID: "1",
		Log:        slog.Default(),
		Params:     model.DefaultMACDVParams(),
	}
}

func TestHandleCloseIgnoresNon5mChannels(t *testing.T) {
	s := newTestService()
	if err := s.handleClose(context.Background(), "channel:exchange:1:candle:close:BTC-USD:15m"); err != nil {
		t.Fatalf("expected non-5m channel to be ignored without touching the store, got %v", err)
	}
}

func TestHandleCloseIgnoresMalformedChannel(t *testing.T) {
	s := newTestService()
	if err := s.handleClose(context.Background(), "not-a-candle-channel"); err != nil {
		t.Fatalf("expected malformed channel to be ignored, got %v", err)
	}
}

func TestCalculateAndPublishSkipsBelowReadinessGate(t *testing.T) {
	s := newTestService()
	short := make([]model.Candle, model.MinBarsForReadiness-1)
	if err := s.calculateAndPublish(context.Background(), "BTC-USD", "5m", "cache_direct", short); err != nil {
		t.Fatalf("expected readiness gate to skip without touching the store, got %v", err)
	}
}
