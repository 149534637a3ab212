package indicator

import (
	"math"
	"testing"
)

func TestSMA_UndefinedBeforeWindow(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	out := SMA(xs, 3)
	for i := 0; i < 2; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("SMA[%d] = %v, want NaN (index < n-1)", i, out[i])
		}
	}
	if out[2] != 2 {
		t.Errorf("SMA[2] = %v, want 2", out[2])
	}
	if out[4] != 4 {
		t.Errorf("SMA[4] = %v, want 4", out[4])
	}
}

func TestEMA_SeededBySMA(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6}
	out := EMA(xs, 3)
	if out[2] != 2 {
		t.Fatalf("EMA seed at n-1 = %v, want SMA value 2", out[2])
	}
	alpha := 2.0 / 4.0
	want := alpha*xs[3] + (1-alpha)*out[2]
	if math.Abs(out[3]-want) > 1e-9 {
		t.Errorf("EMA[3] = %v, want %v", out[3], want)
	}
}

func TestRMA_WilderRecurrence(t *testing.T) {
	xs := []float64{10, 20, 30, 40}
	out := RMA(xs, 2)
	if out[1] != 15 {
		t.Fatalf("RMA seed = %v, want SMA(10,20)=15", out[1])
	}
	want := (15*float64(1) + 30) / 2
	if out[2] != want {
		t.Errorf("RMA[2] = %v, want %v", out[2], want)
	}
}

func TestRMA_InvalidPeriod(t *testing.T) {
	out := RMA([]float64{1, 2, 3}, 0)
	for _, v := range out {
		if !math.IsNaN(v) {
			t.Errorf("expected all-NaN for zero period, got %v", v)
		}
	}
}
