package model

import "testing"

func TestPublicDirection(t *testing.T) {
	cases := []struct {
		label string
		value float64
		want  string
	}{
		{"level_-150", -160, "bearish"},
		{"level_-400", -410, "bearish"},
		{"level_150", 160, "bullish"},
		{"level_400", 410, "bullish"},
		{"reversal_oversold", -180, "bullish"},
		{"reversal_overbought", 180, "bearish"},
	}
	for _, c := range cases {
		a := AlertRecord{TriggerLabel: c.label, TriggerValue: c.value}
		if got := a.PublicDirection(); got != c.want {
			t.Errorf("%s (macdV=%v): got %q, want %q", c.label, c.value, got, c.want)
		}
	}
}

func TestLevelFromLabel(t *testing.T) {
	if level, ok := LevelFromLabel("level_-150"); !ok || level != -150 {
		t.Fatalf("got %v %v", level, ok)
	}
	if level, ok := LevelFromLabel("level_400"); !ok || level != 400 {
		t.Fatalf("got %v %v", level, ok)
	}
	if _, ok := LevelFromLabel("reversal_oversold"); ok {
		t.Fatal("reversal labels carry no level")
	}
	if _, ok := LevelFromLabel("level_abc"); ok {
		t.Fatal("unparseable level must not resolve")
	}
}

// Strength follows the crossed level, not wherever macdV sits between
// levels: an alert for level_-150 is "strong" even when macdV is -160.
func TestPublicStrength(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"level_-150", "strong"},
		{"level_150", "strong"},
		{"level_-200", "strong"},
		{"level_-250", "extreme"},
		{"level_300", "extreme"},
		{"level_-400", "extreme"},
		{"reversal_oversold", "moderate"},
		{"reversal_overbought", "moderate"},
		{"", "weak"},
	}
	for _, c := range cases {
		a := AlertRecord{TriggerLabel: c.label, TriggerValue: -160}
		if got := a.PublicStrength(); got != c.want {
			t.Errorf("%q: got %q, want %q", c.label, got, c.want)
		}
	}
}
