package binance

import (
	"testing"

	"livermore/internal/exchange"
)

func TestToCandle(t *testing.T) {
	c, err := toCandle("BTCUSDT", "5m", 1700000000000, "100", "110", "95", "105", "12.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Symbol != "BTCUSDT" || c.Timeframe != "5m" || c.Timestamp != 1700000000000 {
		t.Fatalf("unexpected identity: %+v", c)
	}
	if c.Open != 100 || c.High != 110 || c.Low != 95 || c.Close != 105 || c.Volume != 12.5 {
		t.Fatalf("unexpected ohlcv: %+v", c)
	}
}

func TestToCandleMalformed(t *testing.T) {
	if _, err := toCandle("BTCUSDT", "5m", 0, "nope", "1", "1", "1", "1"); err == nil {
		t.Fatal("expected error for malformed open")
	}
}

func TestToTickerComputesChange(t *testing.T) {
	tk, err := toTicker("ETHUSDT", "3100", "3000", "3150", "2950", "500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Price != 3100 || tk.High24h != 3150 || tk.Low24h != 2950 || tk.Volume24h != 500 {
		t.Fatalf("unexpected ticker: %+v", tk)
	}
	if tk.Change24h != 100 {
		t.Fatalf("expected change24h 100, got %v", tk.Change24h)
	}
	wantPct := (100.0 / 3000.0) * 100
	if tk.ChangePercent24h != wantPct {
		t.Fatalf("expected changePercent24h %v, got %v", wantPct, tk.ChangePercent24h)
	}
}

func TestToTickerZeroOpenAvoidsDivideByZero(t *testing.T) {
	tk, err := toTicker("ETHUSDT", "10", "0", "10", "10", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.ChangePercent24h != 0 {
		t.Fatalf("expected 0 percent change on zero open, got %v", tk.ChangePercent24h)
	}
}

func TestBinanceInterval(t *testing.T) {
	cases := map[string]string{
		"1m": "1m", "5m": "5m", "15m": "15m", "1h": "1h", "4h": "4h", "1d": "1d",
		"bogus": "5m",
	}
	for in, want := range cases {
		if got := binanceInterval(in); got != want {
			t.Errorf("binanceInterval(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewDefaultsSilence(t *testing.T) {
	a := New(Config{}, nil, nil)
	if a.cfg.Silence <= 0 {
		t.Fatalf("expected default silence window, got %v", a.cfg.Silence)
	}
	if a.ExchangeID() != "2" {
		t.Fatalf("expected exchange id 2, got %s", a.ExchangeID())
	}
}

func TestStreamListGroupsByTimeframe(t *testing.T) {
	a := New(Config{}, nil, nil)
	a.subscriptions[exchange.Subscription{Symbol: "BTCUSDT", Timeframe: "5m"}] = struct{}{}
	a.subscriptions[exchange.Subscription{Symbol: "ETHUSDT", Timeframe: "5m"}] = struct{}{}
	streams := a.streamList()
	if len(streams) != 4 {
		t.Fatalf("expected 4 streams (kline+miniTicker per symbol), got %d: %v", len(streams), streams)
	}
}
