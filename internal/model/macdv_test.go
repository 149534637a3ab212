package model

import "testing"

func TestDeriveStage(t *testing.T) {
	cases := []struct {
		macdV float64
		want  string
	}{
		{0, "neutral"},
		{149.9, "neutral"},
		{-149.9, "neutral"},
		{150, "overbought"},
		{-150, "oversold"},
		{399.9, "overbought"},
		{-399.9, "oversold"},
		{400, "extreme_overbought"},
		{-400, "extreme_oversold"},
		{1000, "extreme_overbought"},
	}
	for _, c := range cases {
		if got := DeriveStage(c.macdV); got != c.want {
			t.Errorf("DeriveStage(%v) = %q, want %q", c.macdV, got, c.want)
		}
	}
}

func TestDefaultMACDVParams(t *testing.T) {
	p := DefaultMACDVParams()
	if p.Fast != 12 || p.Slow != 26 || p.ATRPeriod != 26 || p.Signal != 9 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}
