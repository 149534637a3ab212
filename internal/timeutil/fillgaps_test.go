package timeutil

import (
	"testing"

	"livermore/internal/model"
)

func TestFillGaps_InsertsSynthetic(t *testing.T) {
	base := int64(1704067200000)
	series := []model.Candle{
		{Symbol: "BTC-USD", Timeframe: "5m", Timestamp: base, Close: 100},
		{Symbol: "BTC-USD", Timeframe: "5m", Timestamp: base + 900_000, Close: 110}, // skips two 5m buckets
	}

	out, err := FillGaps(series, "5m")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 candles after fill, got %d", len(out))
	}
	for _, c := range out[1:3] {
		if !c.IsSynthetic || c.Open != 100 || c.Close != 100 || c.Volume != 0 {
			t.Errorf("expected synthetic carry-forward candle, got %+v", c)
		}
	}
	if out[3].Close != 110 || out[3].IsSynthetic {
		t.Errorf("final candle should be the real one, got %+v", out[3])
	}
}

func TestFillGaps_NoGapIsNoOp(t *testing.T) {
	base := int64(1704067200000)
	series := []model.Candle{
		{Timestamp: base, Close: 100},
		{Timestamp: base + 300_000, Close: 101},
	}
	out, err := FillGaps(series, "5m")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected no synthetic insert, got %d candles", len(out))
	}
}
