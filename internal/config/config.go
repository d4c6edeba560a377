package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Symbol      string
	BarInterval string
	BarLookback string
	BarSource   string
	ReplayFile  string

	YahooBaseURL        string // empty selects the provider default
	YahooRequestsPerMin int

	ModelPath string

	NoDataBackoff  time.Duration
	ShortBackoff   time.Duration
	VerifyDelay    time.Duration
	CyclePause     time.Duration
	DropPartialBar bool

	RedisURL       string
	OutcomeChannel string

	LogLevel string

	TracingEnabled bool
	OTLPEndpoint   string
}

func Load() *Config {
	cfg := &Config{
		Symbol:       strings.ToUpper(getEnv("SYMBOL", "GLD")),
		BarInterval:  getEnv("BAR_INTERVAL", "1m"),
		BarLookback:  getEnv("BAR_LOOKBACK", "1d"),
		ReplayFile:   strings.TrimSpace(os.Getenv("REPLAY_FILE")),
		YahooBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("YAHOO_BASE_URL")), "/"),
		ModelPath:    getEnv("MODEL_PATH", "model.json"),
		RedisURL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	cfg.BarSource = strings.ToLower(getEnv("BAR_SOURCE", "yahoo"))
	if cfg.BarSource != "yahoo" && cfg.BarSource != "replay" {
		slog.Warn("unsupported BAR_SOURCE, defaulting to yahoo", "value", cfg.BarSource)
		cfg.BarSource = "yahoo"
	}
	if cfg.BarSource == "replay" && cfg.ReplayFile == "" {
		slog.Warn("BAR_SOURCE=replay without REPLAY_FILE, defaulting to yahoo")
		cfg.BarSource = "yahoo"
	}

	cfg.YahooRequestsPerMin = positiveInt("YAHOO_REQUESTS_PER_MIN", 30)

	cfg.NoDataBackoff = time.Duration(positiveInt("NO_DATA_BACKOFF_SECS", 60)) * time.Second
	cfg.ShortBackoff = time.Duration(positiveInt("SHORT_BACKOFF_SECS", 10)) * time.Second
	cfg.VerifyDelay = time.Duration(positiveInt("VERIFY_DELAY_MINS", 5)) * time.Minute

	cfg.CyclePause = 60 * time.Second
	if v := strings.TrimSpace(os.Getenv("CYCLE_PAUSE_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.CyclePause = time.Duration(n) * time.Second
		} else {
			slog.Warn("invalid CYCLE_PAUSE_SECS, using default", "value", v)
		}
	}

	cfg.DropPartialBar = true
	if v := strings.TrimSpace(os.Getenv("DROP_PARTIAL_BAR")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DropPartialBar = b
		}
	}

	if v := strings.TrimSpace(os.Getenv("TRACING_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TracingEnabled = b
		} else {
			slog.Warn("invalid TRACING_ENABLED, tracing export stays off", "value", v)
		}
	}
	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if cfg.DropPartialBar && cfg.Interval() == 0 {
		slog.Warn("BAR_INTERVAL has no fixed length, partial bars will not be dropped", "interval", cfg.BarInterval)
	}

	cfg.OutcomeChannel = getEnv("OUTCOME_CHANNEL", "predictor:outcomes")
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, outcome publishing disabled")
	}

	return cfg
}

// Interval returns the bar interval as a duration, or 0 if it is not recognised.
// Calendar intervals such as 1mo have no fixed length and are not recognised.
func (c *Config) Interval() time.Duration {
	return IntervalToDuration(c.BarInterval)
}

func IntervalToDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "2m":
		return 2 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "60m", "1h":
		return time.Hour
	case "90m":
		return 90 * time.Minute
	case "1d":
		return 24 * time.Hour
	case "5d":
		return 5 * 24 * time.Hour
	case "1wk":
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}
