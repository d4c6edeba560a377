package features

import (
	"sort"
	"time"

	"vwap-lag-predictor/internal/domain"
)

// CleanBars drops invalid bars and returns the rest ordered by timestamp with
// strictly increasing timestamps. When two bars share a timestamp the later one wins.
func CleanBars(in []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(in))
	for _, b := range in {
		if !b.Valid() {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}

// DropPartial removes a trailing bar whose interval has not closed by now.
func DropPartial(bars []domain.Bar, now time.Time, interval time.Duration) []domain.Bar {
	if len(bars) == 0 || interval <= 0 {
		return bars
	}
	last := bars[len(bars)-1]
	if last.Timestamp.Add(interval).After(now) {
		return bars[:len(bars)-1]
	}
	return bars
}
