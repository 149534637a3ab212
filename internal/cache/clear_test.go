package cache

import "testing"

func TestCandlePatternWidensEmptySegments(t *testing.T) {
	if got := CandlePattern("1", "BTC-USD", "5m"); got != "candles:1:BTC-USD:5m" {
		t.Fatalf("got %q", got)
	}
	if got := CandlePattern("1", "BTC-USD", ""); got != "candles:1:BTC-USD:*" {
		t.Fatalf("got %q", got)
	}
	if got := CandlePattern("1", "", ""); got != "candles:1:*:*" {
		t.Fatalf("got %q", got)
	}
}

func TestIndicatorPatternAlwaysWildcardsKind(t *testing.T) {
	if got := IndicatorPattern("1", "BTC-USD", "5m"); got != "indicator:1:BTC-USD:5m:*" {
		t.Fatalf("got %q", got)
	}
}

func TestTickerPattern(t *testing.T) {
	if got := TickerPattern("1", ""); got != "ticker:1:*" {
		t.Fatalf("got %q", got)
	}
}
