package repositories

import "context"

// Synthesizer converts text to playable audio. It backs the fallback
// path taken when the primary exchange synthesize call fails; the reply
// text is persisted whether or not any synthesizer succeeds.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
