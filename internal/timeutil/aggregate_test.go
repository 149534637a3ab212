package timeutil

import (
	"testing"

	"livermore/internal/model"
)

func fiveMinSeries() []model.Candle {
	base := int64(1704067200000)
	return []model.Candle{
		{Symbol: "BTC-USD", Timeframe: "5m", Timestamp: base, Open: 100, High: 105, Low: 99, Close: 103, Volume: 1000},
		{Symbol: "BTC-USD", Timeframe: "5m", Timestamp: base + 300_000, Open: 103, High: 108, Low: 102, Close: 106, Volume: 1100},
		{Symbol: "BTC-USD", Timeframe: "5m", Timestamp: base + 600_000, Open: 106, High: 107, Low: 104, Close: 105, Volume: 900},
	}
}

func TestAggregate_CompleteGroup(t *testing.T) {
	out, err := Aggregate(fiveMinSeries(), "5m", "15m")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 complete 15m candle, got %d", len(out))
	}
	c := out[0]
	if c.Open != 100 || c.Close != 105 || c.High != 108 || c.Low != 99 || c.Volume != 3000 {
		t.Errorf("unexpected roll-up: %+v", c)
	}
	if c.Timestamp != 1704067200000 {
		t.Errorf("unexpected boundary timestamp: %d", c.Timestamp)
	}
}

func TestAggregate_IncompleteGroupDropped(t *testing.T) {
	series := fiveMinSeries()[:2] // only 2 of 3 members — incomplete
	out, err := Aggregate(series, "5m", "15m")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected incomplete group to be dropped, got %d candles", len(out))
	}
}

func TestAggregate_InvalidTimeframePair(t *testing.T) {
	if _, err := Aggregate(fiveMinSeries(), "15m", "5m"); err == nil {
		t.Fatal("expected error when target is smaller than source")
	}
}
