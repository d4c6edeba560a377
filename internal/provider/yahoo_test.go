package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"vwap-lag-predictor/internal/domain"

	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubProvider(t *testing.T, status int, body string) *YahooProvider {
	t.Helper()
	p := NewYahooProvider(noop.NewTracerProvider().Tracer("test"), "http://example", 60)
	p.limiter = rate.NewLimiter(rate.Inf, 1)
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if !strings.Contains(req.URL.Path, "/v8/finance/chart/GLD") {
				t.Fatalf("unexpected path: %s", req.URL.Path)
			}
			if req.URL.Query().Get("interval") != "1m" || req.URL.Query().Get("range") != "1d" {
				t.Fatalf("unexpected query: %s", req.URL.RawQuery)
			}
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(bytes.NewReader([]byte(body))),
				Header:     make(http.Header),
			}, nil
		}),
	}
	return p
}

func TestYahooFetchBars(t *testing.T) {
	t.Parallel()

	body := `{"chart":{"result":[{
		"timestamp":[1767364200,1767364260,1767364320,1767364380],
		"indicators":{"quote":[{
			"open":[10,10,null,11],
			"high":[11,12,12,12],
			"low":[9,10,10,10.5],
			"close":[10,11,11.5,11.8],
			"volume":[100,200,50]
		}]}}],"error":null}}`
	p := stubProvider(t, http.StatusOK, body)

	bars, err := p.FetchBars(context.Background(), "GLD", "1m", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 complete bars, got %d: %+v", len(bars), bars)
	}
	if !bars[0].Timestamp.Equal(time.Unix(1767364200, 0)) || bars[1].Close != 11 || bars[1].Volume != 200 {
		t.Fatalf("unexpected bars: %+v", bars)
	}
}

func TestYahooFetchBarsEmptyIsNoData(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusOK, `{"chart":{"result":[{"timestamp":[],"indicators":{"quote":[{}]}}],"error":null}}`)
	_, err := p.FetchBars(context.Background(), "GLD", "1m", "1d")
	if !errors.Is(err, domain.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestYahooFetchBarsHTTPErrorIsTransient(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusTooManyRequests, "slow down")
	_, err := p.FetchBars(context.Background(), "GLD", "1m", "1d")
	if !errors.Is(err, domain.ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch, got %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestYahooFetchBarsChartErrorIsTransient(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	_, err := p.FetchBars(context.Background(), "GLD", "1m", "1d")
	if !errors.Is(err, domain.ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch, got %v", err)
	}
}

func TestYahooFetchBarsBadJSON(t *testing.T) {
	t.Parallel()

	p := stubProvider(t, http.StatusOK, `{"chart":`)
	_, err := p.FetchBars(context.Background(), "GLD", "1m", "1d")
	if !errors.Is(err, domain.ErrTransientFetch) {
		t.Fatalf("expected ErrTransientFetch, got %v", err)
	}
}

func TestNewYahooProviderDefaults(t *testing.T) {
	p := NewYahooProvider(noop.NewTracerProvider().Tracer("test"), "", 0)
	if p.baseURL != yahooBaseURL {
		t.Fatalf("expected default base url, got %s", p.baseURL)
	}
	if p.limiter.Limit() != rate.Every(2*time.Second) {
		t.Fatalf("expected 30 requests per minute, got %v", p.limiter.Limit())
	}
}
