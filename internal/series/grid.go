package series

import (
	"github.com/wonny/rigledger/internal/contracts"
	"github.com/wonny/rigledger/internal/localday"
)

// buildGrid lays minute buckets onto the fixed 1440-point grid of a local
// day. Minutes without a bucket stay nil for every channel; buckets outside
// the day are ignored. The grid length never depends on the input.
func buildGrid(day string, buckets []MinuteBucket) *contracts.DailySeries {
	series := make(map[string][]*float64, contracts.NumChannels)
	for _, c := range contracts.Channels() {
		series[c.String()] = make([]*float64, localday.MinutesPerDay)
	}

	for _, b := range buckets {
		if b.Minute < 0 || b.Minute >= localday.MinutesPerDay {
			continue
		}
		for _, c := range contracts.Channels() {
			if v := b.Means[c]; v != nil {
				x := *v
				series[c.String()][b.Minute] = &x
			}
		}
	}

	return &contracts.DailySeries{
		Date:   day,
		Labels: localday.MinuteLabels(),
		Series: series,
	}
}
