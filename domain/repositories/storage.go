package repositories

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by Save when the blob would exceed the
// backend's size bound. Callers evict and retry once before surfacing.
var ErrQuotaExceeded = errors.New("history blob exceeds storage quota")

// BlobStore persists the full serialized conversation collection as one
// blob under a single well-known key. Save is all-or-nothing: a failed
// write never leaves a partially updated blob behind.
type BlobStore interface {
	// Load returns the current blob, or nil when none has been saved.
	Load(ctx context.Context) ([]byte, error)

	// Save atomically replaces the blob. Returns ErrQuotaExceeded when
	// the data is larger than the configured bound.
	Save(ctx context.Context, data []byte) error
}
