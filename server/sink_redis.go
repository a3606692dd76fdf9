package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis layout used by RedisSink.
const (
	RedisTagKeyPrefix = "nfc:tag:"
	RedisLastTagKey   = "nfc:last"
	RedisTagChannel   = "nfc:tags"
)

// RedisTagKey returns the key the latest event for uid is stored under.
func RedisTagKey(uid string) string {
	return RedisTagKeyPrefix + uid
}

// RedisSink stores every tag event in Redis and publishes it on
// RedisTagChannel. Values are the JSON encoding of TagEvent.
type RedisSink struct {
	db *redis.Client
}

// NewRedisSink connects to the Redis server at addr, database 0.
func NewRedisSink(addr string) *RedisSink {
	return &RedisSink{db: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping checks that the server answers.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.db.Ping(ctx).Err()
}

// Record implements TagSink.
func (s *RedisSink) Record(ctx context.Context, ev TagEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode tag event: %w", err)
	}

	pipe := s.db.TxPipeline()
	pipe.Set(ctx, RedisTagKey(ev.UID), value, 0)
	pipe.Set(ctx, RedisLastTagKey, value, 0)
	pipe.Publish(ctx, RedisTagChannel, value)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record tag %s: %w", ev.UID, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *RedisSink) Close() error {
	return s.db.Close()
}
