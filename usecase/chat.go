package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/entities"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/voice"
)

// ChatService handles the text-chat mode. It shares the History
// service with voice sessions: both merge into the same persisted
// collection, so switching modes never loses a turn.
type ChatService struct {
	responder repositories.Responder
	history   *History
	logger    *zap.Logger
}

// NewChatService creates a new chat service.
func NewChatService(responder repositories.Responder, history *History, logger *zap.Logger) *ChatService {
	return &ChatService{
		responder: responder,
		history:   history,
		logger:    logger,
	}
}

// Send submits one user message for a session, records the completed
// pair, and returns the cleaned reply.
func (s *ChatService) Send(ctx context.Context, sessionID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message cannot be empty")
	}

	reply, err := s.responder.Respond(ctx, sessionID, message)
	if err != nil {
		return "", fmt.Errorf("responder failed: %w", err)
	}

	// The same normalization voice turns get, so persisted history
	// stays uniform across modes.
	userText := voice.CleanText(message)
	replyText := voice.CleanText(reply)

	if err := s.history.RecordTurn(ctx, entities.ChatConversationID(sessionID), userText, replyText); err != nil {
		s.logger.Error("failed to record chat turn",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return "", err
	}

	return replyText, nil
}
