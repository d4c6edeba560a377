package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"vwap-lag-predictor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func makeBars(n int) []domain.Bar {
	out := make([]domain.Bar, 0, n)
	price := 180.0
	for i := 0; i < n; i++ {
		price += 0.25 * float64(i%3-1)
		out = append(out, domain.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      price - 0.1,
			High:      price + 0.3,
			Low:       price - 0.4,
			Close:     price,
			Volume:    1000 + float64(i*50),
		})
	}
	return out
}

func TestAnnotateEmptyIsInsufficient(t *testing.T) {
	_, err := Annotate(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestAnnotateHasNoLookAhead(t *testing.T) {
	bars := makeBars(10)
	full, err := Annotate(bars)
	require.NoError(t, err)

	mutated := append([]domain.Bar(nil), bars...)
	tail := mutated[6:]
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	reordered, err := Annotate(mutated)
	require.NoError(t, err)

	require.Len(t, reordered, len(full))
	for i := 0; i < 6; i++ {
		assert.Equal(t, full[i].VWAP, reordered[i].VWAP, "prefix vwap changed at %d", i)
		assert.True(t, full[i].Timestamp.Equal(reordered[i].Timestamp))
	}
	for i := range full {
		assert.True(t, full[i].Timestamp.Equal(bars[i].Timestamp), "order not preserved at %d", i)
	}
}

func TestAnnotateZeroVolumeFirstBar(t *testing.T) {
	bars := makeBars(3)
	bars[0].Volume = 0

	annotated, err := Annotate(bars)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(annotated[0].VWAP))
	assert.False(t, annotated[0].HasVWAP())
	assert.True(t, annotated[1].HasVWAP())
	assert.InDelta(t, bars[1].TypicalPrice(), annotated[1].VWAP, 1e-12)
}

func TestLatestVectorEligibility(t *testing.T) {
	annotated, err := Annotate(makeBars(5))
	require.NoError(t, err)

	fv, err := LatestVector(annotated, 3)
	require.NoError(t, err)
	require.Equal(t, 3, fv.LagCount())
	assert.Equal(t, 15, fv.Len())
	assert.True(t, fv.AnchorTime.Equal(annotated[4].Timestamp))

	for i, pos := range []int{4, 3, 2} {
		src := annotated[pos]
		assert.Equal(t, domain.LagFields{
			Open: src.Open, High: src.High, Low: src.Low, Close: src.Close, VWAP: src.VWAP,
		}, fv.Lags[i], "lag %d should come from position %d", i, pos)
	}

	_, err = LatestVector(annotated[:2], 3)
	require.Error(t, err)
	var ide *domain.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 2, ide.Have)
	assert.Equal(t, 3, ide.Need)
}

func TestLatestVectorSkipsRowsWithoutVWAP(t *testing.T) {
	bars := makeBars(4)
	bars[0].Volume = 0
	bars[1].Volume = 0
	annotated, err := Annotate(bars)
	require.NoError(t, err)

	fv, err := LatestVector(annotated, 2)
	require.NoError(t, err)
	assert.True(t, fv.AnchorTime.Equal(bars[3].Timestamp))

	_, err = LatestVector(annotated, 3)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestLatestVectorRejectsNonPositiveLagCount(t *testing.T) {
	annotated, err := Annotate(makeBars(2))
	require.NoError(t, err)
	_, err = LatestVector(annotated, 0)
	assert.Error(t, err)
}

func TestEndToEndSingleLag(t *testing.T) {
	bars := []domain.Bar{
		{Timestamp: start, Open: 10, High: 11, Low: 9, Close: 10, Volume: 100},
		{Timestamp: start.Add(time.Minute), Open: 10, High: 12, Low: 10, Close: 11, Volume: 200},
	}
	annotated, err := Annotate(bars)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, annotated[0].VWAP, 1e-12)
	assert.InDelta(t, (10.0*100+11.0*200)/300, annotated[1].VWAP, 1e-12)

	fv, err := LatestVector(annotated, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 12, 10, 11, annotated[1].VWAP}, fv.Values())
}

func TestCleanBars(t *testing.T) {
	bars := makeBars(4)
	dup := bars[2]
	dup.Close = 999
	bad := bars[1]
	bad.Timestamp = start.Add(10 * time.Minute)
	bad.Open = math.NaN()

	in := []domain.Bar{bars[3], bars[0], bars[2], bad, bars[1], dup}
	out := CleanBars(in)

	require.Len(t, out, 4)
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i].Timestamp.After(out[i-1].Timestamp))
	}
	assert.Equal(t, 999.0, out[2].Close)
}

func TestDropPartial(t *testing.T) {
	bars := makeBars(3)
	last := bars[2].Timestamp

	assert.Len(t, DropPartial(bars, last.Add(30*time.Second), time.Minute), 2)
	assert.Len(t, DropPartial(bars, last.Add(time.Minute), time.Minute), 3)
	assert.Len(t, DropPartial(bars, last, 0), 3)
}

func TestLagCountForWidth(t *testing.T) {
	assert.Equal(t, 10, LagCountForWidth(50))
	assert.Equal(t, 1, LagCountForWidth(7))
	assert.Equal(t, 0, LagCountForWidth(4))
}
