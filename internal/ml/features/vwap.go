package features

import (
	"math"

	"vwap-lag-predictor/internal/domain"
)

// Annotate computes the running VWAP over the whole sequence in a single
// left-to-right pass. Each value only sees bars at or before its position.
func Annotate(bars []domain.Bar) ([]domain.AnnotatedBar, error) {
	if len(bars) == 0 {
		return nil, &domain.InsufficientDataError{Have: 0, Need: 1}
	}

	out := make([]domain.AnnotatedBar, len(bars))
	cumPV := 0.0
	cumVol := 0.0
	for i, b := range bars {
		tp := b.TypicalPrice()
		cumPV += tp * b.Volume
		cumVol += b.Volume

		vwap := math.NaN()
		if cumVol != 0 {
			vwap = cumPV / cumVol
		}
		out[i] = domain.AnnotatedBar{
			Bar:                   b,
			TypicalPrice:          tp,
			CumulativePriceVolume: cumPV,
			CumulativeVolume:      cumVol,
			VWAP:                  vwap,
		}
	}
	return out, nil
}
