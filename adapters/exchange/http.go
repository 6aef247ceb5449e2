package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

const (
	defaultExchangePath   = "/exchange"
	defaultSynthesizePath = "/synthesize"
	defaultTimeout        = 60 * time.Second
	maxErrorBodyBytes     = 512
)

// Config holds configuration for the remote exchange client.
// Required fields:
// - BaseURL: base URL of the remote AI service
// Optional fields with defaults:
// - ExchangePath: transcribe+respond path (default "/exchange")
// - SynthesizePath: speech synthesis path (default "/synthesize")
// - Timeout: per-request timeout (default 60s)
type Config struct {
	BaseURL        string
	ExchangePath   string
	SynthesizePath string
	Timeout        time.Duration
}

// Client talks to the remote transcribe+respond and synthesize
// endpoints. Both calls are fail-fast: no retry, and an empty payload
// counts as a failure.
type Client struct {
	baseURL        string
	exchangePath   string
	synthesizePath string
	httpClient     *http.Client
	logger         *zap.Logger
}

// Ensure Client implements the ExchangeClient interface
var _ repositories.ExchangeClient = (*Client)(nil)

// ValidateConfig validates the exchange client configuration.
func ValidateConfig(config Config) error {
	if config.BaseURL == "" {
		return fmt.Errorf("exchange base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return fmt.Errorf("invalid exchange base URL: %w", err)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %v", config.Timeout)
	}
	return nil
}

// NewClient creates a new remote exchange client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	exchangePath := config.ExchangePath
	if exchangePath == "" {
		exchangePath = defaultExchangePath
		logger.Info("Using default exchange path", zap.String("path", exchangePath))
	}
	synthesizePath := config.SynthesizePath
	if synthesizePath == "" {
		synthesizePath = defaultSynthesizePath
		logger.Info("Using default synthesize path", zap.String("path", synthesizePath))
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
		logger.Info("Using default timeout", zap.Duration("timeout", timeout))
	}

	return &Client{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		exchangePath:   exchangePath,
		synthesizePath: synthesizePath,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

// TranscribeAndRespond posts the WAV bytes and returns the transcript
// plus the assistant reply. The continuation marker, when present, is
// attached as the "prompt" request parameter.
func (c *Client) TranscribeAndRespond(ctx context.Context, wav []byte, sessionID, continuation string) (repositories.ExchangeResult, error) {
	var result repositories.ExchangeResult
	if len(wav) == 0 {
		return result, &repositories.RemoteError{Message: "empty audio payload"}
	}

	query := url.Values{"session_id": {sessionID}}
	if continuation != "" {
		query.Set("prompt", continuation)
	}
	endpoint := c.baseURL + c.exchangePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return result, &repositories.RemoteError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	c.logger.Info("posting utterance for exchange",
		zap.String("session_id", sessionID),
		zap.Int("wav_bytes", len(wav)),
		zap.Bool("continuation", continuation != ""))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, &repositories.RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, &repositories.RemoteError{
			Status:  resp.StatusCode,
			Message: readErrorBody(resp.Body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, &repositories.RemoteError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("malformed response: %v", err),
		}
	}
	if result.Transcript == "" && result.Response == "" {
		return result, &repositories.RemoteError{
			Status:  resp.StatusCode,
			Message: "empty exchange payload",
		}
	}
	return result, nil
}

// Synthesize posts the cleaned reply text and returns raw audio bytes.
func (c *Client) Synthesize(ctx context.Context, text, sessionID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &repositories.RemoteError{Message: "text cannot be empty"}
	}

	payload, err := json.Marshal(map[string]string{"result": text})
	if err != nil {
		return nil, &repositories.RemoteError{Message: err.Error()}
	}

	query := url.Values{"session_id": {sessionID}}
	endpoint := c.baseURL + c.synthesizePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &repositories.RemoteError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &repositories.RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &repositories.RemoteError{
			Status:  resp.StatusCode,
			Message: readErrorBody(resp.Body),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &repositories.RemoteError{Status: resp.StatusCode, Message: err.Error()}
	}
	if len(audio) == 0 {
		return nil, &repositories.RemoteError{Status: resp.StatusCode, Message: "empty audio payload"}
	}

	c.logger.Info("synthesized reply audio",
		zap.String("session_id", sessionID),
		zap.Int("audio_bytes", len(audio)))
	return audio, nil
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(data) == 0 {
		return "no error detail"
	}
	return strings.TrimSpace(string(data))
}
