package repositories

import (
	"context"
	"fmt"
)

// ExchangeResult is the outcome of one transcribe-and-respond round trip.
type ExchangeResult struct {
	Transcript string `json:"transcription"`
	Response   string `json:"result"`
}

// RemoteError is a failed round trip against a remote AI endpoint.
// Status is the HTTP status code, or zero when the failure happened
// before a response was received.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote exchange failed (status %d): %s", e.Status, e.Message)
}

// ExchangeClient abstracts the transcription+response and speech
// synthesis services. Both operations are fail-fast: no retry, no
// partial success.
type ExchangeClient interface {
	// TranscribeAndRespond posts WAV audio for a session and returns
	// the transcript plus the assistant's reply. continuation, when
	// non-empty, is the interrupted-reply marker attached as extra
	// request context; the caller consumes it exactly once.
	TranscribeAndRespond(ctx context.Context, wav []byte, sessionID, continuation string) (ExchangeResult, error)

	// Synthesize converts cleaned reply text into playable audio bytes.
	Synthesize(ctx context.Context, text, sessionID string) ([]byte, error)
}

// Responder produces an assistant reply for a text message. The text
// chat controller uses it directly, bypassing audio entirely.
type Responder interface {
	Respond(ctx context.Context, sessionID, message string) (string, error)
}
