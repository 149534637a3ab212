// Package timeutil provides timeframe arithmetic and OHLC roll-up shared by
// the exchange adapter, the aggregation service, and the public boundary.
package timeutil

import (
	"errors"
	"fmt"
)

// ErrInvalidTimeframe is returned when a timeframe string is unrecognised or
// a target/source pair is not a positive integer multiple.
var ErrInvalidTimeframe = errors.New("timeutil: invalid timeframe")

// msByTimeframe is the canonical duration table. All timestamps the system
// handles are UTC milliseconds aligned to one of these boundaries.
var msByTimeframe = map[string]int64{
	"1m":  60_000,
	"5m":  300_000,
	"15m": 900_000,
	"1h":  3_600_000,
	"4h":  14_400_000,
	"1d":  86_400_000,
}

// AllowedTimeframes is the public-boundary allow-list, in ascending order.
var AllowedTimeframes = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// TimeframeToMs returns the duration of a timeframe in milliseconds.
func TimeframeToMs(tf string) (int64, error) {
	ms, ok := msByTimeframe[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, tf)
	}
	return ms, nil
}

// CandleBoundary floors a millisecond timestamp to the start of the
// enclosing timeframe bucket: floor(ts/ms(tf))*ms(tf).
func CandleBoundary(ts int64, tf string) (int64, error) {
	ms, err := TimeframeToMs(tf)
	if err != nil {
		return 0, err
	}
	return floorDiv(ts, ms) * ms, nil
}

// Factor returns target/source as an integer, erroring if target is not a
// positive integer multiple of source.
func Factor(source, target string) (int64, error) {
	sourceMs, err := TimeframeToMs(source)
	if err != nil {
		return 0, err
	}
	targetMs, err := TimeframeToMs(target)
	if err != nil {
		return 0, err
	}
	if targetMs <= 0 || sourceMs <= 0 || targetMs%sourceMs != 0 {
		return 0, fmt.Errorf("%w: %s is not a positive integer multiple of %s", ErrInvalidTimeframe, target, source)
	}
	return targetMs / sourceMs, nil
}

// Closed reports whether advancing the clock from closeTs by sourceMs
// crosses a target-timeframe boundary — i.e. whether a candle closing at
// closeTs also closes the higher timeframe target.
func Closed(closeTs, sourceMs int64, target string) (bool, error) {
	before, err := CandleBoundary(closeTs, target)
	if err != nil {
		return false, err
	}
	after, err := CandleBoundary(closeTs+sourceMs, target)
	if err != nil {
		return false, err
	}
	return before != after, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
