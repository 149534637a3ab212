package cache

import "testing"

func TestCandleKey(t *testing.T) {
	if got := CandleKey("1", "BTC-USD", "5m"); got != "candles:1:BTC-USD:5m" {
		t.Fatalf("got %q", got)
	}
}

func TestUserCandleKey(t *testing.T) {
	if got := UserCandleKey("u1", "1", "BTC-USD", "5m"); got != "usercandles:u1:1:BTC-USD:5m" {
		t.Fatalf("got %q", got)
	}
}

func TestIndicatorKey_WithAndWithoutParams(t *testing.T) {
	if got := IndicatorKey("1", "BTC-USD", "15m", "macd-v", ""); got != "indicator:1:BTC-USD:15m:macd-v" {
		t.Fatalf("got %q", got)
	}
	if got := IndicatorKey("1", "BTC-USD", "15m", "macd-v", "fast12-slow26"); got != "indicator:1:BTC-USD:15m:macd-v:fast12-slow26" {
		t.Fatalf("got %q", got)
	}
}

func TestTickerKey(t *testing.T) {
	if got := TickerKey("1", "ETH-USD"); got != "ticker:1:ETH-USD" {
		t.Fatalf("got %q", got)
	}
}

func TestTickerChannel(t *testing.T) {
	if got := TickerChannel("1", "ETH-USD"); got != "channel:ticker:1:ETH-USD" {
		t.Fatalf("got %q", got)
	}
}

func TestCandleCloseChannel(t *testing.T) {
	if got := CandleCloseChannel("1", "BTC-USD", "5m"); got != "channel:exchange:1:candle:close:BTC-USD:5m" {
		t.Fatalf("got %q", got)
	}
	if got := CandleClosePattern("1"); got != "channel:exchange:1:candle:close:*:*" {
		t.Fatalf("got %q", got)
	}
}

func TestParseCandleCloseChannel(t *testing.T) {
	symbol, tf, ok := ParseCandleCloseChannel("channel:exchange:1:candle:close:BTC-USD:5m")
	if !ok || symbol != "BTC-USD" || tf != "5m" {
		t.Fatalf("got %q %q %v", symbol, tf, ok)
	}
	if _, _, ok := ParseCandleCloseChannel("not:a:candle:channel"); ok {
		t.Fatalf("expected ok=false for malformed channel")
	}
}

func TestIndicatorChannel(t *testing.T) {
	if got := IndicatorChannel("1", "BTC-USD", "15m", "macd-v"); got != "channel:indicator:1:BTC-USD:15m:macd-v" {
		t.Fatalf("got %q", got)
	}
}

func TestIndicatorChannelPattern(t *testing.T) {
	if got := IndicatorChannelPattern("1", "macd-v"); got != "channel:indicator:1:*:*:macd-v" {
		t.Fatalf("got %q", got)
	}
}

func TestParseIndicatorChannel(t *testing.T) {
	symbol, tf, ok := ParseIndicatorChannel("channel:indicator:1:BTC-USD:15m:macd-v")
	if !ok || symbol != "BTC-USD" || tf != "15m" {
		t.Fatalf("got %q %q %v", symbol, tf, ok)
	}
	if _, _, ok := ParseIndicatorChannel("not:a:channel"); ok {
		t.Fatalf("expected ok=false for malformed channel")
	}
}

func TestCommandResponseChannels(t *testing.T) {
	if got := CommandChannel("sub-1"); got != "livermore:commands:sub-1" {
		t.Fatalf("got %q", got)
	}
	if got := ResponseChannel("sub-1"); got != "livermore:responses:sub-1" {
		t.Fatalf("got %q", got)
	}
}
