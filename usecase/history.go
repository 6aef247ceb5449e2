package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/entities"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/metrics"
)

// exportSystemPrompt prefixes every exported conversation.
const exportSystemPrompt = "You are a helpful voice assistant. Answer naturally and conversationally."

// History is the single source of truth for conversation history. The
// voice and text controllers both mutate it; each merge is one
// synchronous read-modify-write under the service mutex, so no caller
// ever observes a partially applied update.
type History struct {
	store   repositories.BlobStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() int64

	mu          sync.Mutex
	subscribers []func()
}

// NewHistory creates the history service over a blob store.
func NewHistory(store repositories.BlobStore, m *metrics.Metrics, logger *zap.Logger) *History {
	return &History{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Subscribe registers a callback invoked after every successful
// mutation. This replaces the DOM-event broadcast the web client used
// to tell siblings "conversations changed". Callbacks run with the
// service lock held and must not call back into the service.
func (h *History) Subscribe(fn func()) {
	h.mu.Lock()
	h.subscribers = append(h.subscribers, fn)
	h.mu.Unlock()
}

// RecordTurn merges one completed (user, assistant) pair into the
// conversation derived for the session. An existing conversation gets
// the pair appended and moves to the front; otherwise a new record is
// created. On a quota failure the oldest ~20% of conversations are
// evicted and the write retried once; a second failure is returned.
func (h *History) RecordTurn(ctx context.Context, conversationID, userText, assistantText string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversations, err := h.loadLocked(ctx)
	if err != nil {
		return err
	}

	now := h.now()
	found := false
	for i := range conversations {
		if conversations[i].ID == conversationID {
			conversations[i].AppendPair(userText, assistantText, now)
			found = true
			break
		}
	}
	if !found {
		conversation := entities.Conversation{ID: conversationID}
		conversation.AppendPair(userText, assistantText, now)
		conversations = append(conversations, conversation)
	}

	// Re-sort on every mutation; insertion order alone is not trusted
	// because two controllers share this collection.
	entities.SortConversations(conversations)

	if err := h.saveLocked(ctx, conversations); err != nil {
		if !errors.Is(err, repositories.ErrQuotaExceeded) {
			return err
		}
		conversations = evictOldest(conversations)
		h.metrics.IncEviction()
		h.logger.Warn("history quota exceeded, evicted oldest conversations",
			zap.Int("remaining", len(conversations)))
		if err := h.saveLocked(ctx, conversations); err != nil {
			return fmt.Errorf("history write failed after eviction: %w", err)
		}
	}

	h.notifyLocked()
	return nil
}

// List returns all conversations, most recent first.
func (h *History) List(ctx context.Context) ([]entities.Conversation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadLocked(ctx)
}

// Delete removes one conversation by id.
func (h *History) Delete(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversations, err := h.loadLocked(ctx)
	if err != nil {
		return err
	}

	kept := conversations[:0]
	for _, c := range conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(conversations) {
		return nil
	}
	if err := h.saveLocked(ctx, kept); err != nil {
		return err
	}
	h.notifyLocked()
	return nil
}

// ExportMessage is one message of the export artifact.
type ExportMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExportConversation is one exported conversation record.
type ExportConversation struct {
	Messages []ExportMessage `json:"messages"`
}

// Export builds the export artifact: one record per conversation,
// oldest conversation first, each prefixed with the fixed system
// prompt.
func (h *History) Export(ctx context.Context) ([]ExportConversation, error) {
	h.mu.Lock()
	conversations, err := h.loadLocked(ctx)
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]ExportConversation, 0, len(conversations))
	// Reverse the most-recent-first order.
	for i := len(conversations) - 1; i >= 0; i-- {
		c := conversations[i]
		messages := make([]ExportMessage, 0, 1+2*len(c.Pairs))
		messages = append(messages, ExportMessage{Role: "system", Content: exportSystemPrompt})
		for _, pair := range c.Pairs {
			messages = append(messages,
				ExportMessage{Role: "user", Content: pair.User},
				ExportMessage{Role: "assistant", Content: pair.Assistant})
		}
		out = append(out, ExportConversation{Messages: messages})
	}
	return out, nil
}

func (h *History) loadLocked(ctx context.Context) ([]entities.Conversation, error) {
	data, err := h.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var conversations []entities.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("corrupt history blob: %w", err)
	}
	return conversations, nil
}

func (h *History) saveLocked(ctx context.Context, conversations []entities.Conversation) error {
	data, err := json.Marshal(conversations)
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}
	return h.store.Save(ctx, data)
}

func (h *History) notifyLocked() {
	for _, fn := range h.subscribers {
		fn()
	}
}

// evictOldest trims the collection to 80% of its current count,
// dropping the lowest-timestamp entries. Input is already sorted most
// recent first, so the tail goes. Surviving entries are never touched.
func evictOldest(conversations []entities.Conversation) []entities.Conversation {
	keep := len(conversations) * 80 / 100
	if keep < 1 {
		keep = 1
	}
	if keep > len(conversations) {
		keep = len(conversations)
	}
	return conversations[:keep]
}
