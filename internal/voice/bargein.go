package voice

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/audio"
)

// interruptionNote is appended to the truncated reply prefix so the
// next request carries the context of where playback was cut off.
const interruptionNote = "{The AI response was interrupted by the question that follows}"

// bargeMonitor watches live microphone frames while synthesized speech
// plays. It runs its own VAD instance, independent of the capture
// segmenter, and fires once after sustained speech: a single positive
// frame never interrupts playback, only continuous voice activity held
// for the full hold window does.
type bargeMonitor struct {
	vad       *audio.RMSVAD
	hold      time.Duration
	onTrigger func()
	logger    *zap.Logger

	speechSince time.Time
	inSpeech    bool
	triggered   bool
	now         func() time.Time
}

func newBargeMonitor(vadCfg audio.VADConfig, hold time.Duration, onTrigger func(), logger *zap.Logger) *bargeMonitor {
	if hold == 0 {
		hold = time.Second
	}
	return &bargeMonitor{
		vad:       audio.NewRMSVAD(vadCfg),
		hold:      hold,
		onTrigger: onTrigger,
		logger:    logger,
		now:       time.Now,
	}
}

// Feed processes one microphone frame captured during playback.
func (m *bargeMonitor) Feed(frame []float32) {
	if m.triggered {
		return
	}

	if !m.vad.Process(frame) {
		m.inSpeech = false
		return
	}

	if !m.inSpeech {
		m.inSpeech = true
		m.speechSince = m.now()
		return
	}

	if m.now().Sub(m.speechSince) >= m.hold {
		m.triggered = true
		m.logger.Info("barge-in detected",
			zap.Duration("sustained", m.now().Sub(m.speechSince)))
		m.onTrigger()
	}
}

// interruptionMarker maps a playback progress fraction onto the spoken
// text, snaps backward to the nearest whitespace boundary so the prefix
// never ends mid-word, and returns the continuation marker for the next
// exchange request.
func interruptionMarker(spokenText string, fraction float64) string {
	prefix := truncateAtWordBoundary(spokenText, fraction)
	if prefix == "" {
		return interruptionNote
	}
	return prefix + " " + interruptionNote
}

func truncateAtWordBoundary(text string, fraction float64) string {
	if fraction <= 0 {
		return ""
	}
	if fraction >= 1 {
		return strings.TrimSpace(text)
	}

	runes := []rune(text)
	offset := int(fraction * float64(len(runes)))
	if offset >= len(runes) {
		return strings.TrimSpace(text)
	}

	// Walk back to the last whitespace at or before the offset.
	boundary := -1
	for i := offset; i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
			boundary = i
			break
		}
	}
	if boundary <= 0 {
		return ""
	}
	return strings.TrimSpace(string(runes[:boundary]))
}
