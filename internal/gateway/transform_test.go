package gateway

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"livermore/internal/model"
)

func TestTransformCandleRendersDecimalStrings(t *testing.T) {
	c := model.Candle{
		Symbol: "BTC-USD", Timeframe: "1h",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		Open:      100.5, High: 101.25, Low: 99.75, Close: 100.9, Volume: 12.345,
	}
	out := TransformCandle(c)
	if out.Open != "100.5" || out.High != "101.25" || out.Low != "99.75" || out.Close != "100.9" {
		t.Fatalf("unexpected decimal rendering: %+v", out)
	}
	if out.Timestamp != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected timestamp: %s", out.Timestamp)
	}
}

func TestTransformAlertDerivesDirectionAndStrengthFromLabel(t *testing.T) {
	a := model.AlertRecord{
		Symbol: "ETH-USD", Timeframe: "15m",
		TriggerValue: -160, TriggerLabel: "level_-150", Price: 3000.1,
		TriggeredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}
	out := TransformAlert("coinbase", a)
	if out.Exchange != "coinbase" {
		t.Fatalf("exchange not propagated: %+v", out)
	}
	if out.SignalType != SignalTypeMomentum {
		t.Fatalf("expected momentum signal type, got %s", out.SignalType)
	}
	if out.Direction != "bearish" {
		t.Fatalf("expected bearish for a downward oversold crossing, got %q", out.Direction)
	}
	if out.Strength != "strong" {
		t.Fatalf("expected strong for the crossed |150| level, got %q", out.Strength)
	}
}

// No internal field may survive serialisation of a transformed payload,
// regardless of what the input structs carry.
func TestTransformedPayloadsCarryNoInternalFields(t *testing.T) {
	c := model.Candle{
		Symbol: "BTC-USD", Timeframe: "1h", Timestamp: 1704067200000,
		Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
		IsSynthetic: true, SequenceNum: 42,
	}
	a := model.AlertRecord{
		Symbol: "BTC-USD", Timeframe: "1h", TriggeredAt: 1704067200000,
		TriggerValue: -160, TriggerLabel: "level_-150", PreviousLabel: "level_-200",
	}

	candleJSON, err := json.Marshal(TransformCandle(c))
	if err != nil {
		t.Fatalf("marshal candle: %v", err)
	}
	signalJSON, err := json.Marshal(TransformAlert("coinbase", a))
	if err != nil {
		t.Fatalf("marshal signal: %v", err)
	}

	for _, leak := range []string{
		"macdV", "fastEMA", "slowEMA", "atr", "isSynthetic", "sequenceNum",
		"triggerLabel", "previousLabel", "level_",
	} {
		if strings.Contains(string(candleJSON), leak) {
			t.Errorf("candle payload leaks %q: %s", leak, candleJSON)
		}
		if strings.Contains(string(signalJSON), leak) {
			t.Errorf("signal payload leaks %q: %s", leak, signalJSON)
		}
	}
}
