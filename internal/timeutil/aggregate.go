package timeutil

import (
	"sort"

	"livermore/internal/model"
)

// Aggregate groups source candles by their target-timeframe boundary and
// emits one target candle per group, but only for groups whose member count
// equals the exact source-per-target factor (a complete period). Incomplete
// trailing groups (the target bucket is still forming) are dropped, not
// emitted partially. Output is sorted ascending by timestamp.
func Aggregate(series []model.Candle, source, target string) ([]model.Candle, error) {
	factor, err := Factor(source, target)
	if err != nil {
		return nil, err
	}

	groups := make(map[int64][]model.Candle, len(series)/int(factor)+1)
	for _, c := range series {
		boundary, err := CandleBoundary(c.Timestamp, target)
		if err != nil {
			return nil, err
		}
		groups[boundary] = append(groups[boundary], c)
	}

	out := make([]model.Candle, 0, len(groups))
	for boundary, members := range groups {
		if int64(len(members)) != factor {
			continue // incomplete period — never emit partial roll-ups
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Timestamp < members[j].Timestamp })
		out = append(out, rollUp(members, target, boundary))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func rollUp(members []model.Candle, target string, boundary int64) model.Candle {
	c := model.Candle{
		Symbol:    members[0].Symbol,
		Timeframe: target,
		Timestamp: boundary,
		Open:      members[0].Open,
		Close:     members[len(members)-1].Close,
		High:      members[0].High,
		Low:       members[0].Low,
	}
	for _, m := range members {
		if m.High > c.High {
			c.High = m.High
		}
		if m.Low < c.Low {
			c.Low = m.Low
		}
		c.Volume += m.Volume
		c.IsSynthetic = c.IsSynthetic || m.IsSynthetic
	}
	return c
}
