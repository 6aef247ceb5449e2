package entities

// Utterance is one complete user speech turn, produced exactly once per
// flush. Segments keep the order the voice-activity detector delivered
// them in; the encoder concatenates in that order and nothing else.
type Utterance struct {
	Segments   [][]float32
	SampleRate int
	// Seq increases monotonically within a session, one per flush.
	Seq uint64
	// CapturedAt is the flush time in unix milliseconds.
	CapturedAt int64
}

// SampleCount returns the total number of samples across all segments.
func (u *Utterance) SampleCount() int {
	total := 0
	for _, seg := range u.Segments {
		total += len(seg)
	}
	return total
}
