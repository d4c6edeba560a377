package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vwap-lag-predictor/internal/domain"
	"vwap-lag-predictor/internal/ml/features"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type State int

const (
	StateFetching State = iota
	StateAnnotating
	StateBuildingFeatures
	StateScoring
	StateAwaitingVerification
	StateVerifying
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StateAnnotating:
		return "ANNOTATING"
	case StateBuildingFeatures:
		return "BUILDING_FEATURES"
	case StateScoring:
		return "SCORING"
	case StateAwaitingVerification:
		return "AWAITING_VERIFICATION"
	case StateVerifying:
		return "VERIFYING"
	case StateBackoff:
		return "BACKOFF"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// BarSource supplies ordered bars for one instrument. It does not retry.
type BarSource interface {
	FetchBars(ctx context.Context, symbol, interval, lookback string) ([]domain.Bar, error)
}

// Scorer is the loaded decision model.
type Scorer interface {
	Width() int
	Predict(fv domain.FeatureVector) (domain.Label, float64, error)
}

type OutcomePublisher interface {
	Publish(ctx context.Context, outcome domain.Outcome) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var errUnhandled = errors.New("unhandled cycle failure")

type CycleConfig struct {
	Symbol         string
	Interval       string
	Lookback       string
	BarDuration    time.Duration
	DropPartialBar bool

	NoDataBackoff time.Duration
	ShortBackoff  time.Duration
	VerifyDelay   time.Duration
	CyclePause    time.Duration
}

// Stats counts cycle results since start.
type Stats struct {
	Cycles     int
	Decisions  int
	Correct    int
	Wrong      int
	Unverified int
	Backoffs   int
}

// HitRate is correct / (correct + wrong); unverified decisions are not counted.
func (s Stats) HitRate() float64 {
	judged := s.Correct + s.Wrong
	if judged == 0 {
		return 0
	}
	return float64(s.Correct) / float64(judged)
}

// PredictionCycle drives fetch, annotate, build, score, verify for one instrument,
// strictly sequentially. Every failure inside a cycle becomes a backoff.
type PredictionCycle struct {
	tracer    trace.Tracer
	logger    *slog.Logger
	source    BarSource
	model     Scorer
	publisher OutcomePublisher
	cfg       CycleConfig
	lagCount  int

	sleeper      Sleeper
	now          func() time.Time
	newID        func() string
	onTransition func(from, to State)

	mu    sync.Mutex
	stats Stats
}

// cycleData is discarded at the end of every cycle.
type cycleData struct {
	bars      []domain.Bar
	annotated []domain.AnnotatedBar
	vector    domain.FeatureVector
	decision  domain.Decision
	err       error
}

func NewPredictionCycle(
	tracer trace.Tracer,
	logger *slog.Logger,
	source BarSource,
	model Scorer,
	publisher OutcomePublisher,
	cfg CycleConfig,
) *PredictionCycle {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NoDataBackoff <= 0 {
		cfg.NoDataBackoff = 60 * time.Second
	}
	if cfg.ShortBackoff <= 0 {
		cfg.ShortBackoff = 10 * time.Second
	}
	if cfg.VerifyDelay <= 0 {
		cfg.VerifyDelay = 5 * time.Minute
	}
	if cfg.CyclePause < 0 {
		cfg.CyclePause = 0
	}
	return &PredictionCycle{
		tracer:    tracer,
		logger:    logger.With("symbol", cfg.Symbol),
		source:    source,
		model:     model,
		publisher: publisher,
		cfg:       cfg,
		lagCount:  features.LagCountForWidth(model.Width()),
		sleeper:   SleeperFunc(sleepContext),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// OnTransition registers a hook called on every state change.
func (c *PredictionCycle) OnTransition(fn func(from, to State)) {
	c.onTransition = fn
}

func (c *PredictionCycle) LagCount() int {
	return c.lagCount
}

func (c *PredictionCycle) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Start runs cycles until ctx is cancelled.
func (c *PredictionCycle) Start(ctx context.Context) {
	c.logger.Info("prediction cycle starting",
		"interval", c.cfg.Interval,
		"lookback", c.cfg.Lookback,
		"lag_count", c.lagCount,
		"model_width", c.model.Width(),
	)
	for ctx.Err() == nil {
		c.RunCycle(ctx)
	}
	c.logger.Info("prediction cycle stopped", "stats", fmt.Sprintf("%+v", c.Stats()))
}

// RunCycle runs the state machine from FETCHING until it is about to return to FETCHING.
// It never panics and never returns an error; failures end in BACKOFF.
func (c *PredictionCycle) RunCycle(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "prediction-cycle.run")
	defer span.End()

	c.bump(func(s *Stats) { s.Cycles++ })

	data := &cycleData{}
	state := StateFetching
	defer func() {
		if r := recover(); r != nil {
			data.err = fmt.Errorf("%w in %s: %v", errUnhandled, state, r)
			span.RecordError(data.err)
			c.transition(state, StateBackoff)
			c.backoff(ctx, data)
			c.transition(StateBackoff, StateFetching)
		}
	}()

	for {
		next := c.step(ctx, state, data)
		c.transition(state, next)
		if next == StateFetching || ctx.Err() != nil {
			if data.err != nil {
				span.SetStatus(codes.Error, data.err.Error())
			}
			return
		}
		state = next
	}
}

func (c *PredictionCycle) step(ctx context.Context, state State, data *cycleData) State {
	switch state {
	case StateFetching:
		bars, err := c.fetch(ctx)
		if err != nil {
			return c.fail(data, err)
		}
		data.bars = bars
		return StateAnnotating

	case StateAnnotating:
		annotated, err := features.Annotate(data.bars)
		if err != nil {
			return c.fail(data, fmt.Errorf("annotate: %w", err))
		}
		data.annotated = annotated
		return StateBuildingFeatures

	case StateBuildingFeatures:
		fv, err := features.LatestVector(data.annotated, c.lagCount)
		if err != nil {
			return c.fail(data, fmt.Errorf("build features: %w", err))
		}
		data.vector = fv
		return StateScoring

	case StateScoring:
		label, score, err := c.model.Predict(data.vector)
		if err != nil {
			return c.fail(data, fmt.Errorf("score: %w", err))
		}
		data.decision = domain.Decision{
			ID:         c.newID(),
			Symbol:     c.cfg.Symbol,
			AnchorTime: data.vector.AnchorTime,
			DecidedAt:  c.now().UTC(),
			EntryPrice: data.vector.EntryPrice(),
			Label:      label,
			Score:      score,
		}
		c.bump(func(s *Stats) { s.Decisions++ })
		c.logger.Info("prediction made",
			"decision_id", data.decision.ID,
			"label", data.decision.Label,
			"score", data.decision.Score,
			"entry_price", data.decision.EntryPrice,
			"anchor_time", data.decision.AnchorTime,
		)
		return StateAwaitingVerification

	case StateAwaitingVerification:
		if err := c.sleeper.Sleep(ctx, c.cfg.VerifyDelay); err != nil {
			c.logger.Info("verification abandoned", "decision_id", data.decision.ID, "error", err)
			return StateFetching
		}
		return StateVerifying

	case StateVerifying:
		outcome := c.verify(ctx, data.decision)
		c.record(ctx, outcome)
		_ = c.sleeper.Sleep(ctx, c.cfg.CyclePause)
		return StateFetching

	case StateBackoff:
		c.backoff(ctx, data)
		return StateFetching

	default:
		panic(fmt.Sprintf("unknown state %s", state))
	}
}

func (c *PredictionCycle) fetch(ctx context.Context) ([]domain.Bar, error) {
	ctx, span := c.tracer.Start(ctx, "prediction-cycle.fetch")
	defer span.End()

	raw, err := c.source.FetchBars(ctx, c.cfg.Symbol, c.cfg.Interval, c.cfg.Lookback)
	if err != nil {
		if !errors.Is(err, domain.ErrNoData) && !errors.Is(err, domain.ErrTransientFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrTransientFetch, err)
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: source returned no bars", domain.ErrNoData)
	}

	// A result that cleans down to nothing is left for the annotator to reject
	// as insufficient data.
	bars := features.CleanBars(raw)
	if c.cfg.DropPartialBar {
		bars = features.DropPartial(bars, c.now(), c.cfg.BarDuration)
	}
	span.SetAttributes(attribute.Int("bars.raw", len(raw)), attribute.Int("bars.clean", len(bars)))
	return bars, nil
}

func (c *PredictionCycle) verify(ctx context.Context, d domain.Decision) domain.Outcome {
	ctx, span := c.tracer.Start(ctx, "prediction-cycle.verify")
	defer span.End()

	outcome := domain.Outcome{Decision: d, Verdict: domain.VerdictUnverified, VerifiedAt: c.now().UTC()}

	raw, err := c.source.FetchBars(ctx, c.cfg.Symbol, c.cfg.Interval, c.cfg.Lookback)
	if err != nil {
		outcome.Reason = err.Error()
		return outcome
	}
	bars := features.CleanBars(raw)
	if len(bars) == 0 {
		outcome.Reason = domain.ErrNoData.Error()
		return outcome
	}
	latest := bars[len(bars)-1]
	if !latest.Timestamp.After(d.AnchorTime) {
		outcome.Reason = fmt.Sprintf("no bar after %s", d.AnchorTime.UTC().Format(time.RFC3339))
		return outcome
	}

	realized := latest.Close
	realizedAt := latest.Timestamp
	outcome.RealizedPrice = &realized
	outcome.RealizedTime = &realizedAt
	outcome.Verdict = domain.Judge(d, realized)
	span.SetAttributes(attribute.String("verdict", string(outcome.Verdict)))
	return outcome
}

func (c *PredictionCycle) record(ctx context.Context, outcome domain.Outcome) {
	c.bump(func(s *Stats) {
		switch outcome.Verdict {
		case domain.VerdictCorrect:
			s.Correct++
		case domain.VerdictWrong:
			s.Wrong++
		default:
			s.Unverified++
		}
	})
	stats := c.Stats()

	attrs := []any{
		"decision_id", outcome.Decision.ID,
		"label", outcome.Decision.Label,
		"entry_price", outcome.Decision.EntryPrice,
		"verdict", outcome.Verdict,
		"hit_rate", stats.HitRate(),
	}
	if outcome.RealizedPrice != nil {
		attrs = append(attrs, "realized_price", *outcome.RealizedPrice)
	}
	if outcome.Reason != "" {
		attrs = append(attrs, "reason", outcome.Reason)
	}
	c.logger.Info("prediction verified", attrs...)

	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, outcome); err != nil {
		c.logger.Warn("outcome publish failed", "decision_id", outcome.Decision.ID, "error", err)
	}
}

func (c *PredictionCycle) fail(data *cycleData, err error) State {
	data.err = err
	return StateBackoff
}

func (c *PredictionCycle) backoff(ctx context.Context, data *cycleData) {
	reason, d := c.classify(data.err)
	c.bump(func(s *Stats) { s.Backoffs++ })

	level := slog.LevelWarn
	if reason == "dimension_mismatch" || reason == "unhandled" {
		level = slog.LevelError
	}
	c.logger.Log(ctx, level, "cycle backing off", "reason", reason, "error", data.err, "backoff", d)

	_ = c.sleeper.Sleep(ctx, d)
}

// classify maps a cycle error to a reason and a backoff duration.
func (c *PredictionCycle) classify(err error) (string, time.Duration) {
	switch {
	case errors.Is(err, domain.ErrNoData):
		return "no_data", c.cfg.NoDataBackoff
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data", c.cfg.ShortBackoff
	case errors.Is(err, domain.ErrDimensionMismatch):
		return "dimension_mismatch", c.cfg.ShortBackoff
	case errors.Is(err, domain.ErrTransientFetch):
		return "transient_fetch", c.cfg.NoDataBackoff
	default:
		return "unhandled", c.cfg.NoDataBackoff
	}
}

func (c *PredictionCycle) transition(from, to State) {
	c.logger.Debug("state transition", "from", from, "to", to)
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

func (c *PredictionCycle) bump(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
