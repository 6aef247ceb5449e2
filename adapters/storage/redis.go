package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

// RedisStore is an alternate history backend holding the blob in one
// Redis key.
type RedisStore struct {
	client   *redis.Client
	key      string
	maxBytes int
	logger   *zap.Logger
}

// RedisConfig configures the Redis-backed blob store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxBytes bounds the serialized blob; zero falls back to 1MiB.
	MaxBytes int
}

// NewRedisStore connects to Redis and returns the blob store.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = 1 << 20
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	logger.Info("connected to Redis history store",
		zap.String("addr", addr),
		zap.Int("max_bytes", maxBytes))

	return &RedisStore{
		client:   client,
		key:      historyKey,
		maxBytes: maxBytes,
		logger:   logger,
	}, nil
}

// Load implements repositories.BlobStore.
func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load history blob: %w", err)
	}
	return data, nil
}

// Save implements repositories.BlobStore.
func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	if len(data) > s.maxBytes {
		return repositories.ErrQuotaExceeded
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save history blob: %w", err)
	}
	return nil
}
