package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRecentEvents is how many envelopes RedisSink keeps in its list.
const DefaultRecentEvents = 1000

// RedisSink publishes envelopes on a channel and keeps the most recent ones
// in a capped list named "<channel>:recent".
type RedisSink struct {
	client  *redis.Client
	channel string
	keep    int64
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel, keep: DefaultRecentEvents}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", env.Type, err)
	}

	recent := s.channel + ":recent"
	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.channel, data)
	pipe.LPush(ctx, recent, data)
	pipe.LTrim(ctx, recent, 0, s.keep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s event: %w", env.Type, err)
	}
	return nil
}
