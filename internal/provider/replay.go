package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vwap-lag-predictor/internal/domain"

	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReplayRow is the parquet layout of a recorded bar. Timestamp is unix milliseconds.
type ReplayRow struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    float64 `parquet:"v"`
}

func (r ReplayRow) toBar() domain.Bar {
	return domain.Bar{
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

// ReplaySource serves recorded bars from a parquet file as if they were
// arriving live: every fetch reveals one more bar than the previous one.
type ReplaySource struct {
	tracer trace.Tracer

	mu     sync.Mutex
	bars   []domain.Bar
	cursor int
}

var readReplayFile = parquet.ReadFile[ReplayRow]

// NewReplaySource loads the whole file up front. warmup bars are visible on the first fetch.
func NewReplaySource(tracer trace.Tracer, path string, warmup int) (*ReplaySource, error) {
	rows, err := readReplayFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("replay file %s has no rows", path)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })

	bars := make([]domain.Bar, len(rows))
	for i := range rows {
		bars[i] = rows[i].toBar()
	}
	if warmup < 1 {
		warmup = 1
	}
	return &ReplaySource{tracer: tracer, bars: bars, cursor: min(warmup, len(bars)) - 1}, nil
}

// WriteReplayFile records bars in the layout ReplaySource reads.
func WriteReplayFile(path string, bars []domain.Bar) error {
	rows := make([]ReplayRow, len(bars))
	for i, b := range bars {
		rows[i] = ReplayRow{
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}

// FetchBars ignores symbol, interval and lookback; the file defines all three.
// Once the file is exhausted the full history keeps being returned.
func (s *ReplaySource) FetchBars(ctx context.Context, symbol, interval, lookback string) ([]domain.Bar, error) {
	_, span := s.tracer.Start(ctx, "replay.fetch-bars")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransientFetch, err)
	}
	end := s.cursor + 1
	if s.cursor < len(s.bars)-1 {
		s.cursor++
	}
	out := make([]domain.Bar, end)
	copy(out, s.bars[:end])
	span.SetAttributes(attribute.Int("bars", len(out)))
	return out, nil
}

// Len returns the number of bars in the file.
func (s *ReplaySource) Len() int {
	return len(s.bars)
}
