package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.9
	defaultTopK           = 40
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 30
)

const systemPrompt = "You are a friendly voice assistant. Keep answers short and " +
	"conversational; they will be spoken aloud."

// GeminiConfig holds configuration for the Gemini responder.
// Required fields:
// - APIKey: Google AI API key
// Optional fields with defaults:
// - Model: generation model (default "gemini-2.0-flash")
// - Temperature: sampling temperature between 0 and 1 (default 0.7)
// - TopP: nucleus sampling value between 0 and 1 (default 0.9)
// - TopK: top-k sampling value (default 40)
// - MaxOutputTokens: response token cap (default 1024)
// - TimeoutSeconds: per-request timeout (default 30)
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// GeminiResponder implements the Responder interface using Google's
// Gemini API, keeping an in-memory chat history per session.
type GeminiResponder struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	topK            float32
	maxOutputTokens int
	timeoutSeconds  int

	mu        sync.Mutex
	histories map[string][]*genai.Content
}

// Ensure GeminiResponder implements the Responder interface
var _ repositories.Responder = (*GeminiResponder)(nil)

// ValidateGeminiConfig validates the GeminiConfig.
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// NewGeminiResponder creates a new Gemini responder instance.
func NewGeminiResponder(config GeminiConfig, logger *zap.Logger) (*GeminiResponder, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
	}
	topP := config.TopP
	if topP == 0 {
		topP = float32(defaultTopP)
	}
	topK := config.TopK
	if topK == 0 {
		topK = float32(defaultTopK)
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiResponder{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		topK:            topK,
		maxOutputTokens: maxOutputTokens,
		timeoutSeconds:  timeoutSeconds,
		histories:       make(map[string][]*genai.Content),
	}, nil
}

// Respond sends the user message and returns the model reply, updating
// the per-session history on success.
func (g *GeminiResponder) Respond(ctx context.Context, sessionID, message string) (string, error) {
	g.mu.Lock()
	history := g.histories[sessionID]
	g.mu.Unlock()

	var contents []*genai.Content
	contents = append(contents, genai.NewContentFromText(systemPrompt, genai.RoleUser))
	contents = append(contents, history...)
	userContent := genai.NewContentFromText(message, genai.RoleUser)
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		TopP:            genai.Ptr(g.topP),
		TopK:            genai.Ptr(g.topK),
		MaxOutputTokens: int32(g.maxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	var responseText string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			responseText += part.Text
		}
	}
	if responseText == "" {
		return "", fmt.Errorf("empty response")
	}

	g.mu.Lock()
	g.histories[sessionID] = append(g.histories[sessionID],
		userContent, genai.NewContentFromText(responseText, genai.RoleModel))
	g.mu.Unlock()

	g.logger.Info("Generated response",
		zap.String("session_id", sessionID),
		zap.Int("response_length", len(responseText)))

	return responseText, nil
}

// ForgetSession drops the in-memory history for a session.
func (g *GeminiResponder) ForgetSession(sessionID string) {
	g.mu.Lock()
	delete(g.histories, sessionID)
	g.mu.Unlock()
}
