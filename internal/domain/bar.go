package domain

import (
	"math"
	"time"
)

// Bar represents a single OHLCV bar for the tracked instrument at a fixed interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Valid reports whether every OHLCV field is present and finite.
func (b Bar) Valid() bool {
	if b.Timestamp.IsZero() {
		return false
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Volume >= 0
}

// TypicalPrice is (high+low+close)/3.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// AnnotatedBar is a Bar plus the running VWAP statistics up to and including it.
// VWAP is NaN while the cumulative volume is still zero.
type AnnotatedBar struct {
	Bar
	TypicalPrice          float64 `json:"typical_price"`
	CumulativePriceVolume float64 `json:"cumulative_price_volume"`
	CumulativeVolume      float64 `json:"cumulative_volume"`
	VWAP                  float64 `json:"vwap"`
}

// HasVWAP reports whether the running VWAP is defined at this bar.
func (a AnnotatedBar) HasVWAP() bool {
	return !math.IsNaN(a.VWAP) && !math.IsInf(a.VWAP, 0)
}
