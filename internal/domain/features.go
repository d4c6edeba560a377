package domain

import "time"

// FeaturesPerLag is the number of columns each lag contributes.
const FeaturesPerLag = 5

// LagFields holds the columns drawn from one bar. Field order is the column order.
type LagFields struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	VWAP  float64
}

func (l LagFields) append(out []float64) []float64 {
	return append(out, l.Open, l.High, l.Low, l.Close, l.VWAP)
}

// FeatureVector is the fixed-layout model input anchored at one bar.
// Lags[0] is the anchor bar and Lags[i] is the bar i intervals earlier.
type FeatureVector struct {
	AnchorTime time.Time
	Lags       []LagFields
}

// LagCount returns the number of lags in the vector.
func (f FeatureVector) LagCount() int {
	return len(f.Lags)
}

// Len returns the flattened length, FeaturesPerLag * LagCount.
func (f FeatureVector) Len() int {
	return FeaturesPerLag * len(f.Lags)
}

// Values flattens the vector as open_i, high_i, low_i, close_i, vwap_i for i = 0..LagCount-1.
func (f FeatureVector) Values() []float64 {
	out := make([]float64, 0, f.Len())
	for _, lag := range f.Lags {
		out = lag.append(out)
	}
	return out
}

// EntryPrice is the open of the anchor bar.
func (f FeatureVector) EntryPrice() float64 {
	if len(f.Lags) == 0 {
		return 0
	}
	return f.Lags[0].Open
}
