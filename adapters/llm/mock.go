package llm

import (
	"context"
	"fmt"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

// MockResponder is a placeholder implementation for local development
// without a Gemini API key.
type MockResponder struct{}

// NewMockResponder creates a new mock responder
func NewMockResponder() repositories.Responder {
	return &MockResponder{}
}

// Respond implements repositories.Responder
func (m *MockResponder) Respond(ctx context.Context, sessionID, message string) (string, error) {
	if message == "" {
		return "Hello! What would you like to talk about?", nil
	}
	return fmt.Sprintf("Thanks for telling me about that! You said: '%s'. What else is on your mind?", message), nil
}
