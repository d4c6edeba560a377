package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vwap-lag-predictor/internal/cache"
	"vwap-lag-predictor/internal/config"
	"vwap-lag-predictor/internal/domain"
	"vwap-lag-predictor/internal/job"
	"vwap-lag-predictor/internal/logging"
	"vwap-lag-predictor/internal/ml/features"
	"vwap-lag-predictor/internal/ml/models/linear"
	"vwap-lag-predictor/internal/provider"
	"vwap-lag-predictor/pkg/tracing"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type replaySource interface {
	job.BarSource
	Len() int
}

type outcomeSink interface {
	job.OutcomePublisher
	Close() error
}

var (
	loadEnvFunc    = godotenv.Load
	loadConfigFunc = config.Load
	initTracerFunc = tracing.InitTracer
	loadModelFunc  = linear.Load
	newYahooFunc   = func(tracer trace.Tracer, cfg *config.Config) job.BarSource {
		return provider.NewYahooProvider(tracer, cfg.YahooBaseURL, cfg.YahooRequestsPerMin)
	}
	newReplayFunc = func(tracer trace.Tracer, path string, warmup int) (replaySource, error) {
		src, err := provider.NewReplaySource(tracer, path, warmup)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	newPublisherFunc = func(ctx context.Context, addr, channel string) (outcomeSink, error) {
		p, err := cache.NewOutcomePublisher(ctx, addr, channel)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	setupSignalNotify = signal.Notify
	startCycleFunc    = func(c *job.PredictionCycle, ctx context.Context) { c.Start(ctx) }
)

func main() {
	if err := run(); err != nil {
		slog.Error("predictor refused to start", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traceOpts := tracing.Options{
		Enabled:  cfg.TracingEnabled,
		Endpoint: cfg.OTLPEndpoint,
		Version:  version,
		Symbol:   cfg.Symbol,
	}
	tp, tracer, err := initTracerFunc(ctx, traceOpts)
	if err != nil && traceOpts.Enabled {
		logger.Error("trace export unavailable, continuing without it", "endpoint", cfg.OTLPEndpoint, "error", err)
		traceOpts.Enabled = false
		tp, tracer, err = initTracerFunc(ctx, traceOpts)
	}
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("error shutting down tracer provider", "error", err)
		}
	}()

	// The model is the only thing allowed to stop the process.
	model, err := loadModelFunc(cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("load model %s: %w", cfg.ModelPath, err)
	}
	lagCount := features.LagCountForWidth(model.Width())
	if model.Width() != lagCount*domain.FeaturesPerLag {
		logger.Error("model width is not a whole number of lags, every cycle will fail",
			"width", model.Width(), "lag_count", lagCount)
	}
	logger.Info("model loaded", "path", cfg.ModelPath, "width", model.Width(), "lag_count", lagCount, "bias", model.Bias())

	source := newBarSource(tracer, logger, cfg, lagCount)

	var publisher job.OutcomePublisher
	if cfg.RedisURL != "" {
		sink, err := newPublisherFunc(ctx, cfg.RedisURL, cfg.OutcomeChannel)
		if err != nil {
			logger.Warn("outcome publishing disabled", "error", err)
		} else {
			publisher = sink
			defer sink.Close()
			logger.Info("publishing outcomes", "channel", cfg.OutcomeChannel)
		}
	}

	cycle := job.NewPredictionCycle(tracer, logger, source, model, publisher, job.CycleConfig{
		Symbol:         cfg.Symbol,
		Interval:       cfg.BarInterval,
		Lookback:       cfg.BarLookback,
		BarDuration:    cfg.Interval(),
		DropPartialBar: cfg.DropPartialBar,
		NoDataBackoff:  cfg.NoDataBackoff,
		ShortBackoff:   cfg.ShortBackoff,
		VerifyDelay:    cfg.VerifyDelay,
		CyclePause:     cfg.CyclePause,
	})

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	startCycleFunc(cycle, ctx)
	return nil
}

// newBarSource opens the replay file when asked to and falls back to Yahoo
// when it cannot be read.
func newBarSource(tracer trace.Tracer, logger *slog.Logger, cfg *config.Config, lagCount int) job.BarSource {
	if cfg.BarSource == "replay" {
		src, err := newReplayFunc(tracer, cfg.ReplayFile, lagCount)
		if err == nil {
			logger.Info("replaying bars", "file", cfg.ReplayFile, "bars", src.Len(), "warmup", lagCount)
			return src
		}
		logger.Error("replay file unusable, falling back to yahoo", "file", cfg.ReplayFile, "error", err)
	}
	return newYahooFunc(tracer, cfg)
}
