package track

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const redisLogTimeout = 2 * time.Second

// Redis streams per-step payloads to a Redis stream keyed by run ID, so a
// dashboard can tail training progress live. Every operation is bounded by
// a short timeout; the loop must never stall on a slow broker.
type Redis struct {
	client *redis.Client
	stream string
}

// NewRedis connects to url and verifies the connection with a ping.
func NewRedis(ctx context.Context, url, runID string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &SinkUnavailableError{Sink: "redis", Err: err}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisLogTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, &SinkUnavailableError{Sink: "redis", Err: err}
	}
	return &Redis{client: client, stream: "icltrain:" + runID + ":metrics"}, nil
}

func (s *Redis) Log(ctx context.Context, p Payload) error {
	b, err := sonic.Marshal(p)
	if err != nil {
		return &SinkUnavailableError{Sink: "redis", Err: err}
	}
	opCtx, cancel := context.WithTimeout(ctx, redisLogTimeout)
	defer cancel()
	err = s.client.XAdd(opCtx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"step": p.Step, "payload": b},
	}).Err()
	if err != nil {
		return &SinkUnavailableError{Sink: "redis", Err: err}
	}
	return nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}
