package voice

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/entities"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/audio"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/metrics"
)

// Phase is the single active state of a voice session.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseAwakening       Phase = "awakening"
	PhaseListening       Phase = "listening"
	PhaseProcessing      Phase = "processing"
	PhaseWaitingResponse Phase = "waiting_response"
	PhaseSpeaking        Phase = "speaking"
)

// Player plays synthesized audio back to the user. Play must not block
// and must not call back into the session synchronously; the returned
// channel receives exactly one value when playback finishes (nil) or
// fails, then is closed. Stop aborts playback and must be idempotent.
type Player interface {
	Play(wav []byte) (<-chan error, error)
	Stop()
}

// SessionObserver receives lifecycle notifications. It replaces the
// ambient global callback the web client used: observers are injected
// at construction and may be nil.
type SessionObserver interface {
	OnPhaseChange(from, to Phase)
	OnTurn(userText, assistantText string)
	OnError(err error)
}

// HistoryRecorder is the slice of the history service a session needs.
type HistoryRecorder interface {
	RecordTurn(ctx context.Context, conversationID, userText, assistantText string) error
}

// Config tunes a voice session.
type Config struct {
	SampleRate     int
	SilenceTimeout time.Duration
	Segmenter      audio.SegmenterConfig
	BargeVAD       audio.VADConfig
	// BargeHold is how long continuous speech must persist during
	// playback before it counts as an interruption.
	BargeHold time.Duration
}

// DefaultConfig returns session settings for 16kHz mono capture.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		SilenceTimeout: 2500 * time.Millisecond,
		BargeHold:      time.Second,
	}
}

// Session is the voice interaction state machine. It owns the pending
// segment buffer, the single silence timer, and the processing guard;
// every transition happens under one mutex, with observer callbacks
// delivered after the lock is released.
type Session struct {
	id       string
	cfg      Config
	exchange repositories.ExchangeClient
	fallback repositories.Synthesizer
	history  HistoryRecorder
	player   Player
	observer SessionObserver
	metrics  *metrics.Metrics
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	phase        Phase
	pending      [][]float32
	processing   bool
	silenceTimer *time.Timer
	timerGen     uint64
	continuation string
	seq          uint64
	closed       bool
	segmenter    *audio.Segmenter
	barge        *bargeMonitor
	playStart    time.Time
	playTotal    time.Duration
	spokenText   string
	notify       []func()
}

// NewSession constructs a session in the Idle phase. fallback and
// observer may be nil; metrics may be nil.
func NewSession(
	id string,
	cfg Config,
	exchange repositories.ExchangeClient,
	fallback repositories.Synthesizer,
	history HistoryRecorder,
	player Player,
	observer SessionObserver,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Session {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = 2500 * time.Millisecond
	}
	if cfg.BargeHold == 0 {
		cfg.BargeHold = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		cfg:      cfg,
		exchange: exchange,
		fallback: fallback,
		history:  history,
		player:   player,
		observer: observer,
		metrics:  m,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		phase:    PhaseIdle,
	}
	s.segmenter = audio.NewSegmenter(cfg.Segmenter, audio.SegmenterEvents{
		OnSegmentStart: s.handleSegmentStartLocked,
		OnSegmentEnd:   s.handleSegmentEndLocked,
		OnMisfire:      s.handleMisfireLocked,
	}, logger)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start moves an Idle session into Awakening while the client acquires
// the microphone. Called when the user enters voice mode.
func (s *Session) Start() {
	s.mu.Lock()
	if s.closed || s.phase != PhaseIdle {
		s.mu.Unlock()
		return
	}
	s.setPhaseLocked(PhaseAwakening)
	s.runNotifications(s.unlockAndTake())
}

// CaptureReady reports that the client's microphone is live; the
// session starts listening.
func (s *Session) CaptureReady() {
	s.mu.Lock()
	if s.closed || s.phase != PhaseAwakening {
		s.mu.Unlock()
		return
	}
	s.enterListeningLocked()
	s.runNotifications(s.unlockAndTake())
}

// CaptureFailed reports that microphone access could not be granted.
// The session falls back to Idle and the error is surfaced.
func (s *Session) CaptureFailed(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.logger.Error("capture failed", zap.String("session_id", s.id), zap.Error(err))
	s.notifyErrorLocked(err)
	s.enterIdleLocked()
	s.runNotifications(s.unlockAndTake())
}

// FeedAudio routes one frame of live microphone samples. During
// Listening the capture segmenter consumes it; during Speaking the
// barge-in monitor does; other phases drop it.
func (s *Session) FeedAudio(frame []float32) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch s.phase {
	case PhaseListening:
		s.segmenter.Feed(frame)
	case PhaseSpeaking:
		if s.barge != nil {
			s.barge.Feed(frame)
		}
	}
	s.runNotifications(s.unlockAndTake())
}

// Click handles the user's tap/command for the current phase:
// Idle starts the session, Listening forces an immediate flush (or
// returns to Idle with nothing pending), Processing/WaitingResponse
// reject it, Speaking stops playback and returns to Idle.
func (s *Session) Click() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch s.phase {
	case PhaseIdle:
		s.setPhaseLocked(PhaseAwakening)
	case PhaseListening:
		if len(s.pending) == 0 {
			s.enterIdleLocked()
		} else {
			s.flushLocked("click")
		}
	case PhaseProcessing, PhaseWaitingResponse:
		// Mid-flight turns cannot be cancelled; the click is dropped,
		// not queued.
		s.logger.Info("click ignored during processing",
			zap.String("session_id", s.id),
			zap.String("phase", string(s.phase)))
	case PhaseSpeaking:
		s.player.Stop()
		s.barge = nil
		s.enterIdleLocked()
	}
	s.runNotifications(s.unlockAndTake())
}

// Close tears the session down: timers cleared, playback stopped,
// capture released. Idempotent, callable from any phase.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.stopSilenceTimerLocked()
	s.segmenter.Reset()
	s.barge = nil
	s.player.Stop()
	s.setPhaseLocked(PhaseIdle)
	s.runNotifications(s.unlockAndTake())
}

// --- segmenter callbacks (mu held: only FeedAudio invokes the segmenter) ---

func (s *Session) handleSegmentStartLocked() {
	s.logger.Debug("segment start", zap.String("session_id", s.id))
}

func (s *Session) handleSegmentEndLocked(samples []float32) {
	if s.phase != PhaseListening {
		return
	}
	s.pending = append(s.pending, samples)
	s.resetSilenceTimerLocked()
	s.logger.Debug("segment buffered",
		zap.String("session_id", s.id),
		zap.Int("samples", len(samples)),
		zap.Int("pending_segments", len(s.pending)))
}

func (s *Session) handleMisfireLocked() {
	s.logger.Debug("segment misfire discarded", zap.String("session_id", s.id))
}

// --- silence timer ---

func (s *Session) resetSilenceTimerLocked() {
	// A new segment always cancels the prior pending timer before
	// arming a new one; the generation counter invalidates late fires
	// from a timer that Stop raced with.
	s.stopSilenceTimerLocked()
	s.timerGen++
	gen := s.timerGen
	s.silenceTimer = time.AfterFunc(s.cfg.SilenceTimeout, func() {
		s.onSilenceTimeout(gen)
	})
}

func (s *Session) stopSilenceTimerLocked() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	s.timerGen++
}

func (s *Session) onSilenceTimeout(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.timerGen || s.phase != PhaseListening {
		s.mu.Unlock()
		return
	}
	s.flushLocked("silence")
	s.runNotifications(s.unlockAndTake())
}

// --- flush and the exchange round trip ---

// flushLocked finalizes pending segments into one utterance and starts
// the remote round trip. At most one flush is ever in flight: the
// processing latch is checked and set in the same critical section that
// snapshots and clears the pending buffer, so a racing second trigger
// sees either the latch or an empty buffer.
func (s *Session) flushLocked(trigger string) {
	if s.processing {
		s.metrics.IncReentrantFlush()
		s.logger.Warn("flush suppressed, already in flight",
			zap.String("session_id", s.id),
			zap.String("trigger", trigger),
			zap.Error(ErrReentrantFlush))
		return
	}
	if len(s.pending) == 0 {
		return
	}

	s.processing = true
	s.stopSilenceTimerLocked()
	s.seq++
	utterance := &entities.Utterance{
		Segments:   s.pending,
		SampleRate: s.cfg.SampleRate,
		Seq:        s.seq,
		CapturedAt: time.Now().UnixMilli(),
	}
	s.pending = nil

	continuation := s.continuation
	s.continuation = ""

	s.setPhaseLocked(PhaseProcessing)
	s.metrics.IncFlush()
	s.logger.Info("flush",
		zap.String("session_id", s.id),
		zap.String("trigger", trigger),
		zap.Uint64("seq", utterance.Seq),
		zap.Int("segments", len(utterance.Segments)),
		zap.Bool("continuation", continuation != ""))

	go s.processTurn(utterance, continuation)
}

func (s *Session) processTurn(utterance *entities.Utterance, continuation string) {
	wav, err := audio.EncodeWAV(utterance.Segments, utterance.SampleRate)
	if err != nil {
		// Unreachable while the flush guard holds its invariants.
		s.logger.Error("encoding invariant violated", zap.String("session_id", s.id), zap.Error(err))
		s.abortTurn(err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.setPhaseLocked(PhaseWaitingResponse)
	s.runNotifications(s.unlockAndTake())

	result, err := s.exchange.TranscribeAndRespond(s.ctx, wav, s.id, continuation)
	if err != nil {
		s.metrics.IncRemoteError()
		s.logger.Error("exchange failed", zap.String("session_id", s.id), zap.Error(err))
		s.abortTurn(err)
		return
	}

	userText := CleanText(result.Transcript)
	replyText := CleanText(result.Response)
	if userText == "" && replyText == "" {
		s.logger.Info("empty exchange result", zap.String("session_id", s.id))
		s.finishTurnToIdle()
		return
	}

	if err := s.history.RecordTurn(s.ctx, entities.VoiceConversationID(s.id), userText, replyText); err != nil {
		// Persistence failures are surfaced but do not abort the turn.
		s.logger.Error("failed to record turn", zap.String("session_id", s.id), zap.Error(err))
		s.notifyError(err)
	} else {
		s.metrics.IncTurn()
	}
	s.notifyTurn(userText, replyText)

	if replyText == "" {
		s.finishTurnToIdle()
		return
	}

	replyAudio, err := s.exchange.Synthesize(s.ctx, replyText, s.id)
	if err != nil || len(replyAudio) == 0 {
		s.metrics.IncRemoteError()
		s.logger.Warn("remote synthesize failed, trying fallback",
			zap.String("session_id", s.id), zap.Error(err))
		replyAudio = s.fallbackSynthesize(replyText)
	}
	if len(replyAudio) == 0 {
		// Muted failure: the turn is already persisted, only playback
		// is lost.
		s.notifyError(&repositories.RemoteError{Message: "speech synthesis unavailable"})
		s.finishTurnToIdle()
		return
	}

	s.startSpeaking(replyText, replyAudio)
}

func (s *Session) fallbackSynthesize(text string) []byte {
	if s.fallback == nil {
		return nil
	}
	data, err := s.fallback.Synthesize(s.ctx, text)
	if err != nil {
		s.logger.Error("fallback synthesize failed", zap.String("session_id", s.id), zap.Error(err))
		return nil
	}
	return data
}

// abortTurn clears the guard and falls through to Idle after an error.
// No retry: the user gets a clean ready-to-retry Idle state instead.
func (s *Session) abortTurn(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.notifyErrorLocked(err)
	s.enterIdleLocked()
	s.runNotifications(s.unlockAndTake())
}

func (s *Session) finishTurnToIdle() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.enterIdleLocked()
	s.runNotifications(s.unlockAndTake())
}

// --- speaking and barge-in ---

func (s *Session) startSpeaking(text string, wav []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	// The round trip is complete: release the flush guard before
	// playback so a post-barge-in flush is possible.
	s.processing = false
	s.spokenText = text
	s.playTotal = audio.WAVDuration(wav)
	s.playStart = time.Now()

	// The capture segmenter is quiesced before the barge-in detector
	// starts so only one consumer reads the microphone.
	s.segmenter.Reset()
	s.barge = newBargeMonitor(s.cfg.BargeVAD, s.cfg.BargeHold, s.handleBargeInLocked, s.logger)

	s.setPhaseLocked(PhaseSpeaking)

	done, err := s.player.Play(wav)
	if err != nil {
		s.logger.Error("playback failed to start", zap.String("session_id", s.id), zap.Error(err))
		s.barge = nil
		s.notifyErrorLocked(err)
		s.enterIdleLocked()
		s.runNotifications(s.unlockAndTake())
		return
	}
	s.runNotifications(s.unlockAndTake())

	go func() {
		playErr := <-done
		s.onPlaybackDone(playErr)
	}()
}

func (s *Session) onPlaybackDone(err error) {
	s.mu.Lock()
	if s.closed || s.phase != PhaseSpeaking {
		// Barge-in or click already moved the session on.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.logger.Error("playback error", zap.String("session_id", s.id), zap.Error(err))
		s.notifyErrorLocked(err)
	}
	s.barge = nil
	s.enterIdleLocked()
	s.runNotifications(s.unlockAndTake())
}

// handleBargeInLocked runs when the monitor saw sustained speech during
// playback. mu is held: the monitor is only fed from FeedAudio.
func (s *Session) handleBargeInLocked() {
	if s.phase != PhaseSpeaking {
		return
	}

	fraction := 0.0
	if s.playTotal > 0 {
		fraction = float64(time.Since(s.playStart)) / float64(s.playTotal)
		if fraction > 1 {
			fraction = 1
		}
	}
	s.continuation = interruptionMarker(s.spokenText, fraction)
	s.metrics.IncBargeIn()
	s.logger.Info("playback interrupted",
		zap.String("session_id", s.id),
		zap.Float64("fraction", fraction))

	s.player.Stop()
	s.barge = nil

	// Second entry path into Listening: identical reset to the
	// Idle->Listening path, without passing through Idle.
	s.enterListeningLocked()
}

// --- phase entry helpers (mu held) ---

func (s *Session) enterListeningLocked() {
	s.pending = nil
	s.processing = false
	s.stopSilenceTimerLocked()
	s.barge = nil
	s.segmenter.Reset()
	s.setPhaseLocked(PhaseListening)
}

func (s *Session) enterIdleLocked() {
	s.pending = nil
	s.processing = false
	s.continuation = ""
	s.stopSilenceTimerLocked()
	s.barge = nil
	s.segmenter.Reset()
	s.setPhaseLocked(PhaseIdle)
}

func (s *Session) setPhaseLocked(to Phase) {
	from := s.phase
	if from == to {
		return
	}
	s.phase = to
	if s.observer != nil {
		obs := s.observer
		s.notify = append(s.notify, func() { obs.OnPhaseChange(from, to) })
	}
}

// --- observer plumbing ---

func (s *Session) notifyErrorLocked(err error) {
	if s.observer != nil {
		obs := s.observer
		s.notify = append(s.notify, func() { obs.OnError(err) })
	}
}

func (s *Session) notifyError(err error) {
	s.mu.Lock()
	s.notifyErrorLocked(err)
	s.runNotifications(s.unlockAndTake())
}

func (s *Session) notifyTurn(user, assistant string) {
	s.mu.Lock()
	if s.observer != nil {
		obs := s.observer
		s.notify = append(s.notify, func() { obs.OnTurn(user, assistant) })
	}
	s.runNotifications(s.unlockAndTake())
}

// unlockAndTake drains queued notifications and releases the lock.
func (s *Session) unlockAndTake() []func() {
	notes := s.notify
	s.notify = nil
	s.mu.Unlock()
	return notes
}

func (s *Session) runNotifications(notes []func()) {
	for _, fn := range notes {
		fn()
	}
}
