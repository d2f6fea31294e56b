// Package sequence hands out receipt numbers from a Redis counter so that
// concurrent captures never share a number.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"talahum/internal/core"
	"talahum/internal/ports"
)

// DefaultKey is the Redis key of the counter.
const DefaultKey = "talahum:receipt_seq"

// errRedisUnavailable marks failures of the counter itself, as opposed to
// failures of the seed.
var errRedisUnavailable = errors.New("redis unavailable")

// Counter is the subset of the Redis client the sequencer uses.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisSequencer increments a counter per receipt. The first call seeds
// the counter from seed (usually the remote max-id scan) when the key is
// missing, so numbering continues where the association left off. When Redis
// fails, numbers come from seed directly.
type RedisSequencer struct {
	client Counter
	key    string
	seed   ports.ReceiptSequencer

	mu     sync.Mutex
	seeded bool
}

var _ ports.ReceiptSequencer = (*RedisSequencer)(nil)

func NewRedisSequencer(client Counter, key string, seed ports.ReceiptSequencer) *RedisSequencer {
	if key == "" {
		key = DefaultKey
	}
	return &RedisSequencer{client: client, key: key, seed: seed}
}

// NewClient opens a Redis client and checks the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	slog.InfoContext(ctx, "Connected to redis", "addr", addr)
	return client, nil
}

func (s *RedisSequencer) NextReceiptNumber(ctx context.Context) (string, error) {
	if err := s.ensureSeeded(ctx); err != nil {
		if errors.Is(err, errRedisUnavailable) {
			return s.fallback(ctx, err)
		}
		return "", err
	}
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return s.fallback(ctx, fmt.Errorf("incr %s: %w: %w", s.key, errRedisUnavailable, err))
	}
	return core.FormatReceiptNumber(n), nil
}

func (s *RedisSequencer) fallback(ctx context.Context, cause error) (string, error) {
	if s.seed == nil {
		return "", cause
	}
	slog.WarnContext(ctx, "Redis sequence unavailable, using the backend scan", "key", s.key, "error", cause)
	num, err := s.seed.NextReceiptNumber(ctx)
	if err != nil {
		return "", fmt.Errorf("%w; fallback: %w", cause, err)
	}
	return num, nil
}

func (s *RedisSequencer) ensureSeeded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded || s.seed == nil {
		s.seeded = true
		return nil
	}

	start, err := s.seedValue(ctx)
	if err != nil {
		return err
	}
	set, err := s.client.SetNX(ctx, s.key, start, 0).Result()
	if err != nil {
		return fmt.Errorf("seed %s: %w: %w", s.key, errRedisUnavailable, err)
	}
	if set {
		slog.InfoContext(ctx, "Receipt sequence seeded", "key", s.key, "start", start)
	}
	s.seeded = true
	return nil
}

func (s *RedisSequencer) seedValue(ctx context.Context) (int64, error) {
	num, err := s.seed.NextReceiptNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("read sequence seed: %w", err)
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sequence seed %q: %w", num, err)
	}
	return n, nil
}
