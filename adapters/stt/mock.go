package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech
// recognition, useful for local development without Google credentials.
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) repositories.SpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	s.logger.Info("Mock transcription",
		zap.Int("bytes", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("language", config.Language))
	return fmt.Sprintf("mock transcript of %d audio bytes", len(audioData)), nil
}
