package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/audio"
)

// --- fakes ---

type fakeExchange struct {
	mu            sync.Mutex
	calls         []fakeExchangeCall
	result        repositories.ExchangeResult
	err           error
	synthAudio    []byte
	synthErr      error
	blockExchange chan struct{}
}

type fakeExchangeCall struct {
	wavBytes     int
	continuation string
}

func (f *fakeExchange) TranscribeAndRespond(ctx context.Context, wav []byte, sessionID, continuation string) (repositories.ExchangeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeExchangeCall{wavBytes: len(wav), continuation: continuation})
	block := f.blockExchange
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.result, f.err
}

func (f *fakeExchange) Synthesize(ctx context.Context, text, sessionID string) ([]byte, error) {
	return f.synthAudio, f.synthErr
}

func (f *fakeExchange) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExchange) call(i int) fakeExchangeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakePlayer struct {
	mu      sync.Mutex
	done    chan error
	stopped int
	played  int
}

func (p *fakePlayer) Play(wav []byte) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played++
	p.done = make(chan error, 1)
	return p.done, nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped++
}

func (p *fakePlayer) finish() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *fakePlayer) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeHistory struct {
	mu    sync.Mutex
	turns [][2]string
	err   error
}

func (h *fakeHistory) RecordTurn(ctx context.Context, conversationID, userText, assistantText string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.turns = append(h.turns, [2]string{userText, assistantText})
	return nil
}

func (h *fakeHistory) turnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

type fakeObserver struct {
	mu     sync.Mutex
	phases []Phase
	errs   []error
}

func (o *fakeObserver) OnPhaseChange(from, to Phase) {
	o.mu.Lock()
	o.phases = append(o.phases, to)
	o.mu.Unlock()
}

func (o *fakeObserver) OnTurn(userText, assistantText string) {}

func (o *fakeObserver) OnError(err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func (o *fakeObserver) errorCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errs)
}

// --- helpers ---

func testConfig() Config {
	return Config{
		SampleRate:     16000,
		SilenceTimeout: time.Minute, // tests flush explicitly unless stated
		Segmenter: audio.SegmenterConfig{
			VAD:               audio.VADConfig{StartFrames: 1, EndFrames: 1},
			MinSegmentSamples: 8,
		},
		BargeVAD:  audio.VADConfig{StartFrames: 1, EndFrames: 1},
		BargeHold: 2 * time.Millisecond,
	}
}

func loudFrame() []float32 {
	frame := make([]float32, 160)
	for i := range frame {
		frame[i] = 0.5
	}
	return frame
}

func quietFrame() []float32 {
	return make([]float32, 160)
}

func synthWAV(t *testing.T) []byte {
	t.Helper()
	wav, err := audio.EncodeWAV([][]float32{make([]float32, 1600)}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	return wav
}

func waitForPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Phase() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for phase %s, stuck at %s", want, s.Phase())
}

// feedSegment pushes one complete speech segment through the session.
func feedSegment(s *Session) {
	s.FeedAudio(loudFrame())
	s.FeedAudio(loudFrame())
	s.FeedAudio(quietFrame())
}

func newTestSession(t *testing.T, ex *fakeExchange, h *fakeHistory, p *fakePlayer, o *fakeObserver) *Session {
	t.Helper()
	s := NewSession("test-session", testConfig(), ex, nil, h, p, o, nil, zap.NewNop())
	t.Cleanup(s.Close)
	return s
}

// --- tests ---

func TestStartAndCaptureReady(t *testing.T) {
	s := newTestSession(t, &fakeExchange{}, &fakeHistory{}, &fakePlayer{}, &fakeObserver{})

	if s.Phase() != PhaseIdle {
		t.Fatalf("Expected Idle, got %s", s.Phase())
	}
	s.Start()
	if s.Phase() != PhaseAwakening {
		t.Fatalf("Expected Awakening, got %s", s.Phase())
	}
	s.CaptureReady()
	if s.Phase() != PhaseListening {
		t.Fatalf("Expected Listening, got %s", s.Phase())
	}
}

func TestCaptureFailedReturnsToIdle(t *testing.T) {
	obs := &fakeObserver{}
	s := newTestSession(t, &fakeExchange{}, &fakeHistory{}, &fakePlayer{}, obs)

	s.Start()
	s.CaptureFailed(errors.New("permission denied"))

	if s.Phase() != PhaseIdle {
		t.Errorf("Expected Idle after capture failure, got %s", s.Phase())
	}
	if obs.errorCount() != 1 {
		t.Errorf("Expected 1 observed error, got %d", obs.errorCount())
	}
}

func TestFullTurnFlow(t *testing.T) {
	ex := &fakeExchange{
		result:     repositories.ExchangeResult{Transcript: "hi there", Response: "**hello!**"},
		synthAudio: synthWAV(t),
	}
	hist := &fakeHistory{}
	player := &fakePlayer{}
	s := newTestSession(t, ex, hist, player, &fakeObserver{})

	s.Start()
	s.CaptureReady()
	feedSegment(s)
	s.Click()

	waitForPhase(t, s, PhaseSpeaking)

	if ex.callCount() != 1 {
		t.Fatalf("Expected 1 exchange call, got %d", ex.callCount())
	}
	if ex.call(0).continuation != "" {
		t.Errorf("First turn should carry no continuation, got %q", ex.call(0).continuation)
	}
	if hist.turnCount() != 1 {
		t.Fatalf("Expected 1 recorded turn, got %d", hist.turnCount())
	}
	hist.mu.Lock()
	turn := hist.turns[0]
	hist.mu.Unlock()
	if turn[0] != "hi there" || turn[1] != "hello!" {
		t.Errorf("Expected cleaned turn, got %q / %q", turn[0], turn[1])
	}

	player.finish()
	waitForPhase(t, s, PhaseIdle)
}

func TestClickWithNothingPendingReturnsToIdle(t *testing.T) {
	ex := &fakeExchange{}
	s := newTestSession(t, ex, &fakeHistory{}, &fakePlayer{}, &fakeObserver{})

	s.Start()
	s.CaptureReady()
	s.Click()

	if s.Phase() != PhaseIdle {
		t.Errorf("Expected Idle, got %s", s.Phase())
	}
	if ex.callCount() != 0 {
		t.Errorf("Expected no exchange call, got %d", ex.callCount())
	}
}

func TestClickIgnoredMidFlight(t *testing.T) {
	block := make(chan struct{})
	ex := &fakeExchange{
		result:        repositories.ExchangeResult{Transcript: "hi", Response: "yo"},
		blockExchange: block,
	}
	s := newTestSession(t, ex, &fakeHistory{}, &fakePlayer{}, &fakeObserver{})

	s.Start()
	s.CaptureReady()
	feedSegment(s)
	s.Click()

	waitForPhase(t, s, PhaseWaitingResponse)
	s.Click()
	if s.Phase() != PhaseWaitingResponse {
		t.Errorf("Click mid-flight must not change phase, got %s", s.Phase())
	}
	close(block)
}

func TestMisfireDoesNotFlush(t *testing.T) {
	ex := &fakeExchange{}
	s := newTestSession(t, ex, &fakeHistory{}, &fakePlayer{}, &fakeObserver{})

	s.Start()
	s.CaptureReady()
	// A single loud frame (160 samples) is over the 8 sample minimum,
	// so shrink the segment below it with a tiny frame instead.
	s.FeedAudio(loudFrame()[:4])
	s.FeedAudio(quietFrame())
	s.Click()

	if s.Phase() != PhaseIdle {
		t.Errorf("Expected Idle after misfire-only capture, got %s", s.Phase())
	}
	if ex.callCount() != 0 {
		t.Errorf("Misfire must not reach the exchange, got %d calls", ex.callCount())
	}
}

func TestSilenceTimeoutFlushes(t *testing.T) {
	ex := &fakeExchange{
		result:     repositories.ExchangeResult{Transcript: "hi", Response: "yo"},
		synthAudio: synthWAV(t),
	}
	s := NewSession("test-session", func() Config {
		cfg := testConfig()
		cfg.SilenceTimeout = 20 * time.Millisecond
		return cfg
	}(), ex, nil, &fakeHistory{}, &fakePlayer{}, &fakeObserver{}, nil, zap.NewNop())
	t.Cleanup(s.Close)

	s.Start()
	s.CaptureReady()
	feedSegment(s)

	waitForPhase(t, s, PhaseSpeaking)
	if ex.callCount() != 1 {
		t.Errorf("Expected the silence timeout to flush, got %d calls", ex.callCount())
	}
}

func TestMultipleSegmentsFlushOnce(t *testing.T) {
	ex := &fakeExchange{
		result:     repositories.ExchangeResult{Transcript: "hi", Response: "yo"},
		synthAudio: synthWAV(t),
	}
	s := NewSession("test-session", func() Config {
		cfg := testConfig()
		cfg.SilenceTimeout = 30 * time.Millisecond
		return cfg
	}(), ex, nil, &fakeHistory{}, &fakePlayer{}, &fakeObserver{}, nil, zap.NewNop())
	t.Cleanup(s.Close)

	s.Start()
	s.CaptureReady()
	// Three segments in a row, each re-arming the single silence timer.
	feedSegment(s)
	feedSegment(s)
	feedSegment(s)

	waitForPhase(t, s, PhaseSpeaking)
	// Give any stray second timer a chance to misfire.
	time.Sleep(50 * time.Millisecond)

	if ex.callCount() != 1 {
		t.Errorf("Expected all segments in one flush, got %d exchange calls", ex.callCount())
	}
	if got := ex.call(0).wavBytes; got <= 44 {
		t.Errorf("Expected the flush to carry audio data, got %d bytes", got)
	}
}

func TestBargeInInterruptsAndCarriesMarker(t *testing.T) {
	ex := &fakeExchange{
		result:     repositories.ExchangeResult{Transcript: "question", Response: "The quick brown fox jumps over the lazy dog"},
		synthAudio: synthWAV(t),
	}
	player := &fakePlayer{}
	s := newTestSession(t, ex, &fakeHistory{}, player, &fakeObserver{})

	s.Start()
	s.CaptureReady()
	feedSegment(s)
	s.Click()
	waitForPhase(t, s, PhaseSpeaking)

	// Sustained speech during playback: first frame arms the monitor,
	// the second lands after the hold window.
	s.FeedAudio(loudFrame())
	time.Sleep(5 * time.Millisecond)
	s.FeedAudio(loudFrame())

	waitForPhase(t, s, PhaseListening)
	if player.stopCount() == 0 {
		t.Error("Barge-in must stop playback")
	}

	// The next flush must carry the interruption marker exactly once.
	feedSegment(s)
	s.Click()
	waitForPhase(t, s, PhaseSpeaking)

	if ex.callCount() != 2 {
		t.Fatalf("Expected 2 exchange calls, got %d", ex.callCount())
	}
	continuation := ex.call(1).continuation
	if !strings.Contains(continuation, "interrupted by the question that follows") {
		t.Errorf("Expected interruption marker, got %q", continuation)
	}

	// Marker is single-use: a third turn carries none.
	s.FeedAudio(loudFrame())
	time.Sleep(5 * time.Millisecond)
	s.FeedAudio(loudFrame())
	waitForPhase(t, s, PhaseListening)

	// This barge-in set a fresh marker; consume the turn normally and
	// verify the one after it is clean.
	feedSegment(s)
	s.Click()
	waitForPhase(t, s, PhaseSpeaking)
	player.finish()
	waitForPhase(t, s, PhaseIdle)

	s.Click() // Idle -> Awakening
	s.CaptureReady()
	feedSegment(s)
	s.Click()
	waitForPhase(t, s, PhaseSpeaking)

	if got := ex.call(3).continuation; got != "" {
		t.Errorf("Continuation must be single-use, got %q on a clean turn", got)
	}
}

func TestClickWhileSpeakingStopsToIdle(t *testing.T) {
	ex := &fakeExchange{
		result:     repositories.ExchangeResult{Transcript: "hi", Response: "yo"},
		synthAudio: synthWAV(t),
	}
	player := &fakePlayer{}
	s := newTestSession(t, ex, &fakeHistory{}, player, &fakeObserver{})

	s.Start()
	s.CaptureReady()
	feedSegment(s)
	s.Click()
	waitForPhase(t, s, PhaseSpeaking)

	s.Click()
	if s.Phase() != PhaseIdle {
		t.Errorf("Expected Idle after click while speaking, got %s", s.Phase())
	}
	if player.stopCount() == 0 {
		t.Error("Click while speaking must stop playback")
	}
}

func TestExchangeFailureFallsBackToIdle(t *testing.T) {
	ex := &fakeExchange{err: &repositories.RemoteError{Status: 500, Message: "boom"}}
	obs := &fakeObserver{}
	s := newTestSession(t, ex, &fakeHistory{}, &fakePlayer{}, obs)

	s.Start()
	s.CaptureReady()
	feedSegment(s)
	s.Click()

	waitForPhase(t, s, PhaseIdle)
	if obs.errorCount() != 1 {
		t.Errorf("Expected 1 observed error, got %d", obs.errorCount())
	}
	if ex.callCount() != 1 {
		t.Errorf("Expected exactly one attempt, no retry, got %d", ex.callCount())
	}
}

func TestHistoryFailureDoesNotAbortTurn(t *testing.T) {
	ex := &fakeExchange{
		result:     repositories.ExchangeResult{Transcript: "hi", Response: "yo"},
		synthAudio: synthWAV(t),
	}
	hist := &fakeHistory{err: errors.New("disk full")}
	obs := &fakeObserver{}
	s := newTestSession(t, ex, hist, &fakePlayer{}, obs)

	s.Start()
	s.CaptureReady()
	feedSegment(s)
	s.Click()

	// The reply still plays even though persistence failed.
	waitForPhase(t, s, PhaseSpeaking)
	if obs.errorCount() != 1 {
		t.Errorf("Expected the persistence error to surface, got %d errors", obs.errorCount())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(t, &fakeExchange{}, &fakeHistory{}, &fakePlayer{}, &fakeObserver{})
	s.Start()
	s.Close()
	s.Close()
	if s.Phase() != PhaseIdle {
		t.Errorf("Expected Idle after close, got %s", s.Phase())
	}
}
