package control

import (
	"container/heap"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"livermore/internal/exchange"
)

type fakeAdapter struct {
	subscribed   []string
	unsubscribed []string
	failSub      bool
}

func (f *fakeAdapter) ExchangeID() string { return "1" }

func (f *fakeAdapter) Connect(ctx context.Context) error { return nil }

func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }

func (f *fakeAdapter) Run(ctx context.Context) error { return nil }

func (f *fakeAdapter) State() exchange.State { return exchange.StateDisconnected }
func (f *fakeAdapter) Subscribe(ctx context.Context, symbols []string, tf string) error {
	if f.failSub {
		return context.DeadlineExceeded
	}
	f.subscribed = append(f.subscribed, symbols...)
	return nil
}
func (f *fakeAdapter) Unsubscribe(ctx context.Context, symbols []string) error {
	f.unsubscribed = append(f.unsubscribed, symbols...)
	return nil
}

var _ exchange.Adapter = (*fakeAdapter)(nil)

type fakeBackfiller struct {
	calls int
	fail  bool
}

func (f *fakeBackfiller) Backfill(ctx context.Context, exchangeID, symbol, tf string) error {
	f.calls++
	if f.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func newTestController() *Controller {
	c := New("operator", nil, nil, nil, "", slog.Default())
	return c
}

func TestCommandExpired(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	if commandExpired(now.Add(-10*time.Second).UnixMilli(), now) {
		t.Fatal("10s old command must not be expired")
	}
	if !commandExpired(now.Add(-31*time.Second).UnixMilli(), now) {
		t.Fatal("31s old command must be expired")
	}
}

func TestResolvePriorityStaticTable(t *testing.T) {
	if got := resolvePriority(Command{Type: "pause"}); got != 1 {
		t.Fatalf("expected priority 1 for pause, got %d", got)
	}
	if got := resolvePriority(Command{Type: "force-backfill"}); got != 20 {
		t.Fatalf("expected priority 20 for force-backfill, got %d", got)
	}
	if got := resolvePriority(Command{Type: "unknown-type"}); got != 99 {
		t.Fatalf("expected fallback priority 99, got %d", got)
	}
	explicit := 5
	if got := resolvePriority(Command{Type: "pause", Priority: &explicit}); got != 5 {
		t.Fatalf("expected explicit priority to win, got %d", got)
	}
}

func TestPriorityQueueOrdersByPriorityThenSequence(t *testing.T) {
	var pq priorityQueue
	heap.Init(&pq)
	heap.Push(&pq, &queueItem{cmd: Command{Type: "force-backfill"}, priority: 20, seq: 1})
	heap.Push(&pq, &queueItem{cmd: Command{Type: "pause"}, priority: 1, seq: 2})
	heap.Push(&pq, &queueItem{cmd: Command{Type: "reload-settings"}, priority: 10, seq: 3})

	first := heap.Pop(&pq).(*queueItem)
	if first.cmd.Type != "pause" {
		t.Fatalf("expected pause first, got %s", first.cmd.Type)
	}
	second := heap.Pop(&pq).(*queueItem)
	if second.cmd.Type != "reload-settings" {
		t.Fatalf("expected reload-settings second, got %s", second.cmd.Type)
	}
	third := heap.Pop(&pq).(*queueItem)
	if third.cmd.Type != "force-backfill" {
		t.Fatalf("expected force-backfill last, got %s", third.cmd.Type)
	}
}

func TestPriorityQueueTiebreaksOnInsertionOrder(t *testing.T) {
	var pq priorityQueue
	heap.Init(&pq)
	heap.Push(&pq, &queueItem{cmd: Command{CorrelationID: "b"}, priority: 10, seq: 2})
	heap.Push(&pq, &queueItem{cmd: Command{CorrelationID: "a"}, priority: 10, seq: 1})

	first := heap.Pop(&pq).(*queueItem)
	if first.cmd.CorrelationID != "a" {
		t.Fatalf("expected earlier sequence to win a priority tie, got %s", first.cmd.CorrelationID)
	}
}

func TestHandleSwitchModeRejectsMissingMode(t *testing.T) {
	c := newTestController()
	c.Registry = nil // not reached: handler returns before touching Registry
	if _, err := c.handleSwitchMode(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing mode")
	}
}

func TestHandleAddSymbolUnknownAdapter(t *testing.T) {
	c := newTestController()
	_, err := c.handleAddSymbol(context.Background(), json.RawMessage(`{"exchangeId":"9","symbol":"BTC-USD"}`))
	if err != ErrAdapterNotFound {
		t.Fatalf("expected ErrAdapterNotFound, got %v", err)
	}
}

func TestHandleAddSymbolSubscribesAndBackfills(t *testing.T) {
	c := newTestController()
	fa := &fakeAdapter{}
	c.Adapters["1"] = fa
	fb := &fakeBackfiller{}
	c.Backfill = fb

	_, err := c.handleAddSymbol(context.Background(), json.RawMessage(`{"exchangeId":"1","symbol":"BTC-USD","timeframe":"5m"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fa.subscribed) != 1 || fa.subscribed[0] != "BTC-USD" {
		t.Fatalf("expected adapter to record subscription, got %v", fa.subscribed)
	}
	if fb.calls != 1 {
		t.Fatalf("expected backfill invoked once, got %d", fb.calls)
	}
}

func TestHandleAddSymbolBackfillFailureDoesNotFailCommand(t *testing.T) {
	c := newTestController()
	c.Adapters["1"] = &fakeAdapter{}
	c.Backfill = &fakeBackfiller{fail: true}

	if _, err := c.handleAddSymbol(context.Background(), json.RawMessage(`{"exchangeId":"1","symbol":"BTC-USD","timeframe":"5m"}`)); err != nil {
		t.Fatalf("add-symbol must succeed even if the best-effort backfill kick-off fails: %v", err)
	}
}

func TestHandleForceBackfillRequiresBackfiller(t *testing.T) {
	c := newTestController()
	_, err := c.handleForceBackfill(context.Background(), json.RawMessage(`{"exchangeId":"1","symbol":"BTC-USD","timeframe":"5m"}`))
	if err == nil {
		t.Fatal("expected error when no backfiller is configured")
	}
}

func TestHandleClearCacheUnknownScope(t *testing.T) {
	c := newTestController()
	_, err := c.handleClearCache(context.Background(), json.RawMessage(`{"exchangeId":"1","scope":"bogus"}`))
	if err == nil {
		t.Fatal("expected error for unknown scope")
	}
}

func TestHandleClearCacheRequiresCacheConfigured(t *testing.T) {
	c := newTestController()
	_, err := c.handleClearCache(context.Background(), json.RawMessage(`{"exchangeId":"1","scope":"all"}`))
	if err == nil {
		t.Fatal("expected error when cache store is not configured")
	}
}

func TestRequiresStepUp(t *testing.T) {
	if !requiresStepUp("force-backfill") || !requiresStepUp("clear-cache") {
		t.Fatal("force-backfill and clear-cache must require step-up auth")
	}
	if requiresStepUp("pause") || requiresStepUp("add-symbol") {
		t.Fatal("only the two destructive commands require step-up auth")
	}
}

func TestCheckStepUpSkippedWhenDisabled(t *testing.T) {
	c := newTestController() // stepUpSecret "" -> disabled
	if err := c.checkStepUp(json.RawMessage(`{}`)); err != nil {
		t.Fatalf("expected no error when step-up auth is disabled, got %v", err)
	}
}

func TestCheckStepUpRejectsMissingCodeWhenEnabled(t *testing.T) {
	c := New("operator", nil, nil, nil, "JBSWY3DPEHPK3PXP", slog.Default())
	if err := c.checkStepUp(json.RawMessage(`{}`)); err != ErrStepUpRequired {
		t.Fatalf("expected ErrStepUpRequired, got %v", err)
	}
}

func TestCheckStepUpRejectsWrongCodeWhenEnabled(t *testing.T) {
	c := New("operator", nil, nil, nil, "JBSWY3DPEHPK3PXP", slog.Default())
	if err := c.checkStepUp(json.RawMessage(`{"totp":"000000"}`)); err != ErrStepUpRequired {
		t.Fatalf("expected ErrStepUpRequired for a wrong code, got %v", err)
	}
}
