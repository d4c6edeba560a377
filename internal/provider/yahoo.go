package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"vwap-lag-predictor/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider fetches intraday bars from the Yahoo Finance chart API.
// It performs no retries; retry policy belongs to the caller.
type YahooProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *rate.Limiter
}

// NewYahooProvider creates a provider throttled to requestsPerMin calls per minute.
func NewYahooProvider(tracer trace.Tracer, baseURL string, requestsPerMin int) *YahooProvider {
	if baseURL == "" {
		baseURL = yahooBaseURL
	}
	if requestsPerMin <= 0 {
		requestsPerMin = 30
	}
	return &YahooProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		tracer:  tracer,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMin)), 2),
	}
}

// Response shape:
// {"chart":{"result":[{"timestamp":[...],"indicators":{"quote":[{"open":[...],...}]}}],"error":null}}
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

// Yahoo reports missing samples as null, hence the pointers.
type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// FetchBars returns the bars for symbol at the given interval over the lookback range.
// Bars with any missing OHLCV field are left out. An empty result is ErrNoData and
// every other failure wraps ErrTransientFetch.
func (p *YahooProvider) FetchBars(ctx context.Context, symbol, interval, lookback string) ([]domain.Bar, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.fetch-bars", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("interval", interval),
		attribute.String("range", lookback),
	))
	defer span.End()

	bars, err := p.fetchBars(ctx, symbol, interval, lookback)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("bars", len(bars)))
	return bars, nil
}

func (p *YahooProvider) fetchBars(ctx context.Context, symbol, interval, lookback string) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("range", lookback)
	q.Set("includePrePost", "false")
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(symbol), q.Encode())

	body, err := p.doRequest(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch bars for %s: %w", domain.ErrTransientFetch, symbol, err)
	}

	var raw chartResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse chart for %s: %w", domain.ErrTransientFetch, symbol, err)
	}
	if raw.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo chart error for %s: %s: %s",
			domain.ErrTransientFetch, symbol, raw.Chart.Error.Code, raw.Chart.Error.Description)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: empty chart for %s", domain.ErrNoData, symbol)
	}

	bars := barsFromChart(raw.Chart.Result[0])
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no complete bars for %s", domain.ErrNoData, symbol)
	}
	return bars, nil
}

func (p *YahooProvider) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; vwap-lag-predictor)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("yahoo API error %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// barsFromChart zips the parallel timestamp and quote arrays into bars,
// skipping positions where any field is null or an array is short.
func barsFromChart(r chartResult) []domain.Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, ok1 := at(q.Open, i)
		high, ok2 := at(q.High, i)
		low, ok3 := at(q.Low, i)
		cl, ok4 := at(q.Close, i)
		vol, ok5 := at(q.Volume, i)
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
			continue
		}
		bars = append(bars, domain.Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cl,
			Volume:    vol,
		})
	}
	return bars
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}
