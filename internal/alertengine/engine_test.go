package alertengine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"

	"livermore/internal/indicator"
	"livermore/internal/model"
)

type captureNotifier struct {
	mu      sync.Mutex
	records []model.AlertRecord
}

func (c *captureNotifier) Notify(ctx context.Context, record model.AlertRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *captureNotifier) last() model.AlertRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records[len(c.records)-1]
}

func newTestEngine(n *captureNotifier) *Engine {
	return New("1", nil, nil, nil, n, slog.Default())
}

func TestFirstUpdateNeverTriggers(t *testing.T) {
	n := &captureNotifier{}
	e := newTestEngine(n)
	v := model.MACDVValue{Timestamp: 1000, MACDV: -160}
	if err := e.evaluate(context.Background(), "BTC-USD", "5m", v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.count() != 0 {
		t.Fatalf("expected no alert on first observation, got %d", n.count())
	}
}

// previousMacdV=-140, new value -160, histogram=-5: crosses -150 downward.
func TestLevelCrossingOversold(t *testing.T) {
	n := &captureNotifier{}
	e := newTestEngine(n)
	ctx := context.Background()

	first := model.MACDVValue{Timestamp: 1000, MACDV: -140}
	if err := e.evaluate(ctx, "BTC-USD", "5m", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := model.MACDVValue{Timestamp: 2000, MACDV: -160, Histogram: -5}
	if err := e.evaluate(ctx, "BTC-USD", "5m", second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected exactly one alert, got %d", n.count())
	}
	rec := n.last()
	if rec.TriggerLabel != "level_-150" {
		t.Fatalf("expected level_-150, got %q", rec.TriggerLabel)
	}
	if rec.Details.Direction != "bearish" {
		t.Fatalf("expected bearish direction for a downward crossing, got %q", rec.Details.Direction)
	}
}

func TestLevelCrossingCooldownSuppressesRetrigger(t *testing.T) {
	n := &captureNotifier{}
	e := newTestEngine(n)
	ctx := context.Background()

	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 1000, MACDV: -140})
	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 2000, MACDV: -160})
	if n.count() != 1 {
		t.Fatalf("expected 1 alert after first crossing, got %d", n.count())
	}

	// Cross back above and below -150 again within the cooldown window:
	// second crossing must not re-trigger.
	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 3000, MACDV: -140})
	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 4000, MACDV: -160})
	if n.count() != 1 {
		t.Fatalf("expected cooldown to suppress retrigger, got %d alerts", n.count())
	}

	// After the cooldown window elapses, a fresh crossing fires again.
	afterCooldown := int64(4000) + defaultCooldown.Milliseconds() + 1000
	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: afterCooldown, MACDV: -140})
	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: afterCooldown + 1000, MACDV: -160})
	if n.count() != 2 {
		t.Fatalf("expected retrigger after cooldown elapsed, got %d alerts", n.count())
	}
	if got := n.last().PreviousLabel; got != "level_-150" {
		t.Fatalf("expected the retrigger to carry the prior trigger's label, got %q", got)
	}
}

// macdV=-180, histogram=+10, previousMacdV=-185, reversal
// state clear. buffer = 180*0.05 = 9; since 10 > 9, reversal_oversold
// fires. A following tick at macdV=-178, histogram=+12 must not refire
// since reversal state is now set.
func TestReversalOversoldThenSuppressed(t *testing.T) {
	n := &captureNotifier{}
	e := newTestEngine(n)
	ctx := context.Background()

	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 1000, MACDV: -185})
	if err := e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 2000, MACDV: -180, Histogram: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected one reversal alert, got %d", n.count())
	}
	if got := n.last().TriggerLabel; got != "reversal_oversold" {
		t.Fatalf("expected reversal_oversold, got %q", got)
	}

	if err := e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 3000, MACDV: -178, Histogram: 12}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected reversal state to suppress a second reversal alert, got %d", n.count())
	}
}

func TestReversalBufferNotExceededEmitsNothing(t *testing.T) {
	n := &captureNotifier{}
	e := newTestEngine(n)
	ctx := context.Background()

	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 1000, MACDV: -185})
	// buffer = 180*0.05 = 9; histogram of 5 does not exceed it.
	if err := e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 2000, MACDV: -180, Histogram: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.count() != 0 {
		t.Fatalf("expected no alert when histogram does not exceed the reversal buffer, got %d", n.count())
	}
}

func TestSeriesStateIsolatedPerSymbolAndTimeframe(t *testing.T) {
	n := &captureNotifier{}
	e := newTestEngine(n)
	ctx := context.Background()

	_ = e.evaluate(ctx, "BTC-USD", "5m", model.MACDVValue{Timestamp: 1000, MACDV: -140})
	_ = e.evaluate(ctx, "ETH-USD", "5m", model.MACDVValue{Timestamp: 1000, MACDV: -140})
	// ETH-USD's first observation must not be primed by BTC-USD's state.
	if err := e.evaluate(ctx, "ETH-USD", "5m", model.MACDVValue{Timestamp: 2000, MACDV: -160}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected exactly one alert scoped to ETH-USD, got %d", n.count())
	}

	var sawSymbols int
	for _, r := range n.records {
		if r.Symbol == "ETH-USD" {
			sawSymbols++
		}
	}
	if sawSymbols != 1 {
		t.Fatalf("expected the alert to be attributed to ETH-USD, got %d matching records", sawSymbols)
	}
}

func TestLevelLabelFormatting(t *testing.T) {
	if got := levelLabel(-150); got != "level_-150" {
		t.Fatalf("got %q", got)
	}
	if got := levelLabel(400); got != "level_400" {
		t.Fatalf("got %q", got)
	}
}

// decliningCandles builds a 5-minute series that holds flat for the first
// 80 bars (past the 60-bar readiness gate, so the engine's first, priming
// update sees macdV at 0) and then falls steadily, enough bars and enough
// drop for the fast/slow EMA gap to run well past a multiple of ATR and
// carry macdV down through the oversold levels.
func decliningCandles(n int) []model.Candle {
	const flatBars = 80
	out := make([]model.Candle, n)
	price := 10000.0
	for i := 0; i < n; i++ {
		if i >= flatBars {
			price -= 8
		}
		out[i] = model.Candle{
			Symbol:    "BTC-USD",
			Timeframe: "5m",
			Timestamp: int64(i) * 300_000,
			Open:      price + 1,
			High:      price + 2,
			Low:       price - 2,
			Close:     price,
			Volume:    1000,
		}
	}
	return out
}

// Drives the engine off indicator.MACDV's real output for a sustained
// decline, rather than a hand-built model.MACDVValue literal, so the
// NaN-signal/histogram regression this indicator package is prone to
// (EMA/RMA seeding poisoned by a leading NaN region) would be caught here
// too: a NaN Signal/Histogram reaching evaluate would either fail the
// explicit NaN check below or never cross a level (histogram feeds the
// reversal path, and a NaN compares false against every threshold).
func TestAlertEngineOnRealMACDVOutputFiresOnSustainedDecline(t *testing.T) {
	n := &captureNotifier{}
	e := newTestEngine(n)
	ctx := context.Background()

	candles := decliningCandles(160)
	series := indicator.MACDV(candles, model.DefaultMACDVParams())

	fired := false
	for i, v := range series {
		if !indicator.Ready(series, i) {
			continue
		}
		if math.IsNaN(v.Signal) || math.IsNaN(v.Histogram) {
			t.Fatalf("ready index %d has NaN signal/histogram: %+v", i, v)
		}
		if err := e.evaluate(ctx, "BTC-USD", "5m", v); err != nil {
			t.Fatalf("evaluate failed at index %d: %v", i, err)
		}
		if n.count() > 0 {
			fired = true
		}
	}
	if !fired {
		t.Fatalf("expected a sustained price decline to trigger at least one alert from real MACDV output")
	}
	if got := n.last().Details.Direction; got != "bearish" {
		t.Fatalf("expected bearish alert from declining series, got %q", got)
	}
}
