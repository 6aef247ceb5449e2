package audio

import "math"

// RMSVAD is a pure-Go voice activity detector based on RMS energy.
// The start threshold sits above the end threshold on purpose: the
// hysteresis keeps the detector from flapping at the speech boundary.
type RMSVAD struct {
	startThreshold float64 // RMS level to enter speech
	endThreshold   float64 // RMS level to leave speech
	startFrames    int     // consecutive speech frames needed to trigger
	endFrames      int     // consecutive silent frames needed to end (redemption window)

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// VADConfig holds detector thresholds. Zero values fall back to
// defaults suitable for 16kHz mono frames of 10-30ms.
type VADConfig struct {
	StartThreshold float64
	EndThreshold   float64
	StartFrames    int
	EndFrames      int
}

// NewRMSVAD returns a detector with the given thresholds.
func NewRMSVAD(cfg VADConfig) *RMSVAD {
	v := &RMSVAD{
		startThreshold: cfg.StartThreshold,
		endThreshold:   cfg.EndThreshold,
		startFrames:    cfg.StartFrames,
		endFrames:      cfg.EndFrames,
	}
	if v.startThreshold == 0 {
		v.startThreshold = 0.015
	}
	if v.endThreshold == 0 {
		v.endThreshold = 0.008
	}
	if v.startFrames == 0 {
		v.startFrames = 3
	}
	if v.endFrames == 0 {
		v.endFrames = 30
	}
	return v
}

// Process feeds one frame and reports whether the detector currently
// considers the stream to be inside speech.
func (v *RMSVAD) Process(frame []float32) bool {
	level := rms(frame)

	if v.inSpeech {
		if level < v.endThreshold {
			v.silenceCount++
			v.speechCount = 0
			if v.silenceCount >= v.endFrames {
				v.inSpeech = false
				v.silenceCount = 0
			}
		} else {
			v.silenceCount = 0
		}
	} else {
		if level >= v.startThreshold {
			v.speechCount++
			v.silenceCount = 0
			if v.speechCount >= v.startFrames {
				v.inSpeech = true
				v.speechCount = 0
			}
		} else {
			v.speechCount = 0
		}
	}

	return v.inSpeech
}

// Reset clears internal state.
func (v *RMSVAD) Reset() {
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(frame)))
}
