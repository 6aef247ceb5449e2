package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

func testRedisStore(t *testing.T, maxBytes int) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return &RedisStore{
		client:   redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		key:      historyKey,
		maxBytes: maxBytes,
		logger:   zap.NewNop(),
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := testRedisStore(t, 1024)
	ctx := context.Background()

	data, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data != nil {
		t.Errorf("Expected nil blob before first save, got %d bytes", len(data))
	}

	blob := []byte(`[{"id":"voice-a","pairs":[{"0":"hi","1":"hello!"}],"timestamp":1}]`)
	if err := store.Save(ctx, blob); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded) != string(blob) {
		t.Errorf("Loaded blob differs from saved blob")
	}
}

func TestRedisStoreQuota(t *testing.T) {
	store := testRedisStore(t, 8)
	ctx := context.Background()

	err := store.Save(ctx, []byte("this is more than eight bytes"))
	if !errors.Is(err, repositories.ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}
}

func TestMemoryStoreQuota(t *testing.T) {
	store := NewMemoryStore(8)
	ctx := context.Background()

	if err := store.Save(ctx, []byte("small")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	err := store.Save(ctx, []byte("this is more than eight bytes"))
	if !errors.Is(err, repositories.ErrQuotaExceeded) {
		t.Errorf("Expected ErrQuotaExceeded, got %v", err)
	}

	// The failed save must not clobber the existing blob.
	data, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != "small" {
		t.Errorf("Expected surviving blob %q, got %q", "small", string(data))
	}
}
