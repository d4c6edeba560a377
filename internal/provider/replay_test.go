package provider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vwap-lag-predictor/internal/domain"

	"go.opentelemetry.io/otel/trace/noop"
)

func replayBars(n int) []domain.Bar {
	start := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)
	out := make([]domain.Bar, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = domain.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 10 * float64(i+1),
		}
	}
	return out
}

func TestReplaySourceRevealsOneBarPerFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.parquet")
	bars := replayBars(4)
	if err := WriteReplayFile(path, bars); err != nil {
		t.Fatalf("write replay file: %v", err)
	}

	src, err := NewReplaySource(noop.NewTracerProvider().Tracer("test"), path, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Len() != 4 {
		t.Fatalf("expected 4 bars, got %d", src.Len())
	}

	wantLens := []int{2, 3, 4, 4}
	for i, want := range wantLens {
		got, err := src.FetchBars(context.Background(), "GLD", "1m", "1d")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(got) != want {
			t.Fatalf("fetch %d: expected %d bars, got %d", i, want, len(got))
		}
	}

	got, _ := src.FetchBars(context.Background(), "GLD", "1m", "1d")
	if !got[3].Timestamp.Equal(bars[3].Timestamp) || got[3].Close != bars[3].Close {
		t.Fatalf("unexpected replayed bar: %+v", got[3])
	}
}

func TestReplaySourceMissingFile(t *testing.T) {
	_, err := NewReplaySource(noop.NewTracerProvider().Tracer("test"), filepath.Join(t.TempDir(), "nope.parquet"), 1)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReplaySourceHonorsCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.parquet")
	if err := WriteReplayFile(path, replayBars(2)); err != nil {
		t.Fatalf("write replay file: %v", err)
	}
	src, err := NewReplaySource(noop.NewTracerProvider().Tracer("test"), path, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.FetchBars(ctx, "GLD", "1m", "1d"); !errors.Is(err, domain.ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch, got %v", err)
	}
}
