package voice

import "errors"

// Capture failures reported by the client when microphone access could
// not be granted. Both abort the session back to Idle and are surfaced
// to the user, never just logged.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio capture device unavailable")
)

// ErrReentrantFlush marks a flush attempted while one was already in
// flight. It is logged and swallowed by design: overlapping triggers
// are an expected race, not a failure.
var ErrReentrantFlush = errors.New("flush already in flight")
