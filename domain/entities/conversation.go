package entities

import (
	"encoding/json"
	"fmt"
	"sort"
)

// TurnPair is one completed exchange: what the user said and what the
// assistant answered. Immutable once created.
//
// The persisted JSON layout uses "0"/"1" string keys instead of named
// fields. Existing history blobs and the export tooling both depend on
// this exact shape, so it is preserved bit-for-bit.
type TurnPair struct {
	User      string
	Assistant string
}

// MarshalJSON serializes the pair as {"0": user, "1": assistant}.
func (p TurnPair) MarshalJSON() ([]byte, error) {
	userJSON, err := json.Marshal(p.User)
	if err != nil {
		return nil, err
	}
	assistantJSON, err := json.Marshal(p.Assistant)
	if err != nil {
		return nil, err
	}
	// Hand-assembled so key order is stable across encodings.
	return []byte(fmt.Sprintf(`{"0":%s,"1":%s}`, userJSON, assistantJSON)), nil
}

// UnmarshalJSON reads the {"0": ..., "1": ...} layout.
func (p *TurnPair) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.User = raw["0"]
	p.Assistant = raw["1"]
	return nil
}

// Conversation is one persisted conversation: an ordered list of turn
// pairs plus the timestamp of its latest mutation. Pairs are only ever
// appended; updates replace the whole record in the owning collection.
type Conversation struct {
	ID        string     `json:"id"`
	Pairs     []TurnPair `json:"pairs"`
	Timestamp int64      `json:"timestamp"`
}

// AppendPair adds a completed turn and bumps the timestamp.
func (c *Conversation) AppendPair(user, assistant string, now int64) {
	c.Pairs = append(c.Pairs, TurnPair{User: user, Assistant: assistant})
	c.Timestamp = now
}

// VoiceConversationID derives the conversation id for a voice session.
// It is stable across turns of the same session, so every flush in one
// session merges into one conversation record.
func VoiceConversationID(sessionID string) string {
	return "voice-" + sessionID
}

// ChatConversationID derives the conversation id for a text-chat session.
func ChatConversationID(sessionID string) string {
	return "chat-" + sessionID
}

// SortConversations orders a collection most-recent-first. Insertion
// order is never trusted because voice and text controllers mutate the
// same collection.
func SortConversations(conversations []Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].Timestamp > conversations[j].Timestamp
	})
}
