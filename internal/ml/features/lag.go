package features

import (
	"fmt"

	"vwap-lag-predictor/internal/domain"
)

// LagCountForWidth derives the lag count from a model width.
func LagCountForWidth(width int) int {
	return width / domain.FeaturesPerLag
}

// LatestVector returns the feature vector anchored at the latest eligible
// position. Position t is eligible when t, t-1, ..., t-(lagCount-1) all exist
// and all carry a VWAP. Lag i is taken from position t-i.
func LatestVector(bars []domain.AnnotatedBar, lagCount int) (domain.FeatureVector, error) {
	if lagCount <= 0 {
		return domain.FeatureVector{}, fmt.Errorf("lag count must be positive, got %d", lagCount)
	}
	if len(bars) < lagCount {
		return domain.FeatureVector{}, &domain.InsufficientDataError{Have: len(bars), Need: lagCount}
	}

	for t := len(bars) - 1; t >= lagCount-1; t-- {
		if !eligible(bars, t, lagCount) {
			continue
		}
		return vectorAt(bars, t, lagCount), nil
	}
	return domain.FeatureVector{}, &domain.InsufficientDataError{Have: withVWAP(bars), Need: lagCount}
}

func eligible(bars []domain.AnnotatedBar, t, lagCount int) bool {
	if t-(lagCount-1) < 0 || t >= len(bars) {
		return false
	}
	for i := 0; i < lagCount; i++ {
		if !bars[t-i].HasVWAP() {
			return false
		}
	}
	return true
}

func vectorAt(bars []domain.AnnotatedBar, t, lagCount int) domain.FeatureVector {
	lags := make([]domain.LagFields, lagCount)
	for i := range lags {
		b := bars[t-i]
		lags[i] = domain.LagFields{
			Open:  b.Open,
			High:  b.High,
			Low:   b.Low,
			Close: b.Close,
			VWAP:  b.VWAP,
		}
	}
	return domain.FeatureVector{AnchorTime: bars[t].Timestamp, Lags: lags}
}

func withVWAP(bars []domain.AnnotatedBar) int {
	n := 0
	for i := range bars {
		if bars[i].HasVWAP() {
			n++
		}
	}
	return n
}
