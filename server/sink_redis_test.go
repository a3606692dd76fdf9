package server

import (
	"context"
	"testing"
	"time"
)

func TestRedisTagKey(t *testing.T) {
	if got := RedisTagKey("04A1B2C3"); got != "nfc:tag:04A1B2C3" {
		t.Errorf("RedisTagKey() = %s", got)
	}
}

func TestRedisSink_Unreachable(t *testing.T) {
	// Nothing listens on port 1.
	sink := NewRedisSink("127.0.0.1:1")
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sink.Ping(ctx); err == nil {
		t.Error("Ping() succeeded against a closed port")
	}
	if err := sink.Record(ctx, TagEvent{UID: "04A1B2C3"}); err == nil {
		t.Error("Record() succeeded against a closed port")
	}
}
