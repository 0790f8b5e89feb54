package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is used when no channel is configured
const DefaultRedisChannel = "shipyard:events"

// RedisConfig holds the Redis event bus configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisBus publishes events on a Redis channel so several server instances
// can serve the same subscribers
type RedisBus struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to Redis and verifies the connection
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{rdb: rdb, channel: channel}, nil
}

// Publish wraps data in a Message and publishes it on the bus channel
func (b *RedisBus) Publish(ctx context.Context, topic string, data []byte) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	raw, err := json.Marshal(Message{Topic: topic, Data: data})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Forward subscribes to the bus channel and republishes every message into
// local until ctx is done
func (b *RedisBus) Forward(ctx context.Context, local Publisher) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis event bus not initialized")
	}
	if local == nil {
		return fmt.Errorf("local publisher required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Warn("Bad event payload on redis channel", "error", err)
					continue
				}
				_ = local.Publish(ctx, msg.Topic, msg.Data)
			}
		}
	}()

	return nil
}

// Close closes the Redis client
func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
