package domain

import (
	"context"
	"io"
)

// Transcriber converts recorded audio into text segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
	Available() bool
}

// Synthesizer turns text into audio for spoken playback.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
	Available() bool
}

// Player consumes synthesized audio. Playback is best-effort; errors are
// logged, never surfaced to the conversation.
type Player interface {
	Play(ctx context.Context, audio io.Reader) error
}
