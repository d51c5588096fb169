package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "wamirror:events:"

// redisClient is the part of *redis.Client the sink uses
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisSink republishes events on Redis pub/sub, one channel per session
type RedisSink struct {
	client redisClient
}

// NewRedisSink connects to Redis and verifies the connection
func NewRedisSink(ctx context.Context, redisURL string) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisSink{client: client}, nil
}

// ChannelFor returns the pub/sub channel for a session's events
func ChannelFor(session string) string {
	return redisChannelPrefix + session
}

func (r *RedisSink) Name() string {
	return "redis"
}

func (r *RedisSink) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.client.Publish(ctx, ChannelFor(ev.Session), data).Err()
}

// Ping checks the Redis connection.
func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisSink) Close() error {
	return r.client.Close()
}
