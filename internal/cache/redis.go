package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vwap-lag-predictor/internal/domain"

	"github.com/redis/go-redis/v9"
)

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// OutcomePublisher broadcasts verification outcomes on a Redis pub/sub channel.
// Nothing is stored; subscribers that are not listening miss the message.
type OutcomePublisher struct {
	client  publisher
	channel string
}

// NewOutcomePublisher connects to addr, which is either host:port or a redis:// URL.
func NewOutcomePublisher(ctx context.Context, addr, channel string) (*OutcomePublisher, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &OutcomePublisher{client: client, channel: channel}, nil
}

func (p *OutcomePublisher) Publish(ctx context.Context, outcome domain.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}

func (p *OutcomePublisher) Close() error {
	return p.client.Close()
}
