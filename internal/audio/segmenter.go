package audio

import "go.uber.org/zap"

// SegmenterEvents are the callbacks raised while segmenting a live
// microphone stream. Any of them may be nil.
type SegmenterEvents struct {
	// OnSegmentStart fires when speech energy crossed the start
	// threshold for the configured minimum frame count.
	OnSegmentStart func()

	// OnSegmentEnd delivers the accumulated samples for one utterance
	// segment after energy stayed below the end threshold through the
	// redemption window.
	OnSegmentEnd func(samples []float32)

	// OnMisfire fires when a candidate segment ended up shorter than
	// the minimum viable length; no buffer is delivered.
	OnMisfire func()
}

// SegmenterConfig tunes segmentation.
type SegmenterConfig struct {
	VAD VADConfig
	// MinSegmentSamples is the minimum viable segment length; shorter
	// candidates are discarded as misfires (click/pop suppression).
	MinSegmentSamples int
}

// Segmenter splits a continuous mono float32 stream into discrete
// speech segments using the RMS detector. It owns no goroutines: the
// caller feeds frames and callbacks run inline on the feeding side.
type Segmenter struct {
	vad        *RMSVAD
	events     SegmenterEvents
	minSamples int
	logger     *zap.Logger

	active bool
	buf    []float32
}

// NewSegmenter constructs a segmenter.
func NewSegmenter(cfg SegmenterConfig, events SegmenterEvents, logger *zap.Logger) *Segmenter {
	minSamples := cfg.MinSegmentSamples
	if minSamples == 0 {
		minSamples = 4000 // 250ms at 16kHz
	}
	return &Segmenter{
		vad:        NewRMSVAD(cfg.VAD),
		events:     events,
		minSamples: minSamples,
		logger:     logger,
	}
}

// Feed processes one frame of raw samples.
func (s *Segmenter) Feed(frame []float32) {
	inSpeech := s.vad.Process(frame)

	if inSpeech {
		if !s.active {
			s.active = true
			if s.events.OnSegmentStart != nil {
				s.events.OnSegmentStart()
			}
		}
		s.buf = append(s.buf, frame...)
		return
	}

	if !s.active {
		return
	}

	// Speech just ended. The redemption window already elapsed inside
	// the detector, so the buffer holds the complete segment.
	s.active = false
	segment := s.buf
	s.buf = nil

	if len(segment) < s.minSamples {
		s.logger.Debug("segment misfire",
			zap.Int("samples", len(segment)),
			zap.Int("min_samples", s.minSamples))
		if s.events.OnMisfire != nil {
			s.events.OnMisfire()
		}
		return
	}

	if s.events.OnSegmentEnd != nil {
		s.events.OnSegmentEnd(segment)
	}
}

// Reset discards any in-progress segment and clears detector state.
// Safe to call from any phase, any number of times.
func (s *Segmenter) Reset() {
	s.active = false
	s.buf = nil
	s.vad.Reset()
}
