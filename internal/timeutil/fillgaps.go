package timeutil

import (
	"sort"

	"livermore/internal/model"
)

// FillGaps walks a sorted candle series and inserts synthetic candles
// (open=high=low=close=prior close, volume=0) for any missing boundaries
// between consecutive real candles. The input need not be pre-sorted; the
// output always is. Series shorter than 2 candles are returned unchanged.
func FillGaps(series []model.Candle, tf string) ([]model.Candle, error) {
	if len(series) < 2 {
		return series, nil
	}

	sorted := make([]model.Candle, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	step, err := TimeframeToMs(tf)
	if err != nil {
		return nil, err
	}

	out := make([]model.Candle, 0, len(sorted))
	out = append(out, sorted[0])

	for i := 1; i < len(sorted); i++ {
		prev := out[len(out)-1]
		cur := sorted[i]
		for ts := prev.Timestamp + step; ts < cur.Timestamp; ts += step {
			out = append(out, model.Synthetic(cur.Symbol, tf, ts, prev.Close))
		}
		out = append(out, cur)
	}

	return out, nil
}
