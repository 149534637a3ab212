package model

import (
	"strconv"
	"strings"
)

// AlertRecord is an immutable record of one triggered alert. Once inserted
// into the alert store it is never mutated.
type AlertRecord struct {
	ID                string       `json:"id"`
	ExchangeID        string       `json:"exchangeId"`
	Symbol            string       `json:"symbol"`
	Timeframe         string       `json:"timeframe"`
	AlertType         string       `json:"alertType"` // always "macdv"
	TriggeredAt       int64        `json:"triggeredAt"`
	Price             float64      `json:"price"`
	TriggerValue      float64      `json:"triggerValue"` // macdV at trigger time
	TriggerLabel      string       `json:"triggerLabel"` // "level_<N>" | "reversal_oversold" | "reversal_overbought"
	PreviousLabel     string       `json:"previousLabel,omitempty"`
	Details           AlertDetails `json:"details"`
	NotificationSent  bool         `json:"notificationSent"`
	NotificationError string       `json:"notificationError,omitempty"`
}

// AlertDetails is the free-form JSON blob attached to an alert record.
type AlertDetails struct {
	Direction          string  `json:"direction"`
	Histogram          float64 `json:"histogram"`
	Signal             float64 `json:"signal"`
	TimeframesSnapshot string  `json:"timeframesSnapshot,omitempty"`
}

// PublicDirection maps an internal trigger label to the public direction
// field. Only "bullish"/"bearish" ever cross the boundary: crossing deeper
// into oversold is bearish momentum and a reversal out of it is the
// bullish turn, with the overbought mirror of each.
func (a *AlertRecord) PublicDirection() string {
	switch a.TriggerLabel {
	case "reversal_oversold":
		return "bullish"
	case "reversal_overbought":
		return "bearish"
	}
	if a.TriggerValue < 0 {
		return "bearish"
	}
	return "bullish"
}

// LevelFromLabel parses the crossed level out of a "level_<N>" trigger
// label. ok is false for reversal labels and anything else that carries no
// level.
func LevelFromLabel(label string) (level float64, ok bool) {
	const prefix = "level_"
	if !strings.HasPrefix(label, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(label[len(prefix):])
	if err != nil {
		return 0, false
	}
	return float64(n), true
}

// PublicStrength derives the public strength label from the magnitude of
// the crossed level, never from wherever macdV happens to sit between
// levels: entering the ladder at |150| or |200| is a strong signal, |250|
// and deeper is extreme. Reversal signals carry no level and map to
// "moderate"; a label with no parseable level falls back to "weak".
func (a *AlertRecord) PublicStrength() string {
	switch a.TriggerLabel {
	case "reversal_oversold", "reversal_overbought":
		return "moderate"
	}
	level, ok := LevelFromLabel(a.TriggerLabel)
	if !ok {
		return "weak"
	}
	if level < 0 {
		level = -level
	}
	if level >= 250 {
		return "extreme"
	}
	return "strong"
}
