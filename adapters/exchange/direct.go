package exchange

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
)

// Direct is an in-process exchange backend composing speech-to-text,
// a responder and an optional synthesizer. It serves deployments with
// no remote exchange service configured.
type Direct struct {
	stt       repositories.SpeechToText
	responder repositories.Responder
	synth     repositories.Synthesizer
	language  string
	logger    *zap.Logger
}

// Ensure Direct implements the ExchangeClient interface
var _ repositories.ExchangeClient = (*Direct)(nil)

// NewDirect creates the in-process backend. synth may be nil, in which
// case Synthesize reports failure and the caller falls back to its own
// synthesizer.
func NewDirect(
	stt repositories.SpeechToText,
	responder repositories.Responder,
	synth repositories.Synthesizer,
	language string,
	logger *zap.Logger,
) *Direct {
	if language == "" {
		language = "en-US"
	}
	return &Direct{
		stt:       stt,
		responder: responder,
		synth:     synth,
		language:  language,
		logger:    logger,
	}
}

// TranscribeAndRespond transcribes the WAV utterance and generates a
// reply. A non-empty continuation marker is prepended to the prompt so
// the responder sees the interrupted context.
func (d *Direct) TranscribeAndRespond(ctx context.Context, wav []byte, sessionID, continuation string) (repositories.ExchangeResult, error) {
	var result repositories.ExchangeResult

	transcript, err := d.stt.TranscribeAudio(ctx, wav, repositories.AudioConfig{
		SampleRate: wavSampleRate(wav),
		Encoding:   "WAV",
		Language:   d.language,
	})
	if err != nil {
		return result, &repositories.RemoteError{Message: fmt.Sprintf("transcription failed: %v", err)}
	}

	prompt := transcript
	if continuation != "" {
		prompt = continuation + " " + transcript
	}

	d.logger.Info("transcribed utterance",
		zap.String("session_id", sessionID),
		zap.Int("transcript_length", len(transcript)),
		zap.Bool("continuation", continuation != ""))

	response, err := d.responder.Respond(ctx, sessionID, prompt)
	if err != nil {
		return result, &repositories.RemoteError{Message: fmt.Sprintf("response generation failed: %v", err)}
	}

	result.Transcript = transcript
	result.Response = response
	return result, nil
}

// Synthesize delegates to the configured synthesizer.
func (d *Direct) Synthesize(ctx context.Context, text, sessionID string) ([]byte, error) {
	if d.synth == nil {
		return nil, &repositories.RemoteError{Message: "no synthesizer configured"}
	}
	audio, err := d.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, &repositories.RemoteError{Message: err.Error()}
	}
	return audio, nil
}

// wavSampleRate reads the sample rate field of a RIFF header; malformed
// input falls back to 16kHz.
func wavSampleRate(wav []byte) int {
	if len(wav) < 28 {
		return 16000
	}
	return int(binary.LittleEndian.Uint32(wav[24:28]))
}
