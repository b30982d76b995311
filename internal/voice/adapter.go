// Package voice bridges speech capture and playback into the text
// pipeline. Transcribed segments land in the input buffer exactly as if
// the user had typed them; spoken replies mirror what the transcript
// shows.
package voice

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"paintsense/internal/domain"
)

// InputBuffer is the slice of the view the adapter needs: read and
// replace the pending input text.
type InputBuffer interface {
	InputText() string
	SetInputText(text string)
}

// Adapter gates speech features behind availability checks and the
// user-facing voice-reply toggle. A nil transcriber or synthesizer
// simply disables that side.
type Adapter struct {
	stt    domain.Transcriber
	tts    domain.Synthesizer
	player domain.Player
	input  InputBuffer
	logger *slog.Logger

	mu           sync.Mutex
	replyEnabled bool
	cancelSpeak  context.CancelFunc
	speaking     sync.WaitGroup
}

type AdapterConfig struct {
	STT          domain.Transcriber
	TTS          domain.Synthesizer
	Player       domain.Player
	Input        InputBuffer
	ReplyEnabled bool
	Logger       *slog.Logger
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{
		stt:          cfg.STT,
		tts:          cfg.TTS,
		player:       cfg.Player,
		input:        cfg.Input,
		replyEnabled: cfg.ReplyEnabled,
		logger:       cfg.Logger,
	}
}

// CanListen reports whether transcription is usable right now.
func (a *Adapter) CanListen() bool {
	return a.stt != nil && a.stt.Available()
}

// CanSpeak reports whether spoken replies are usable right now.
func (a *Adapter) CanSpeak() bool {
	return a.tts != nil && a.tts.Available() && a.player != nil
}

// ReplyEnabled reports the state of the voice-reply toggle.
func (a *Adapter) ReplyEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.replyEnabled
}

// SetReplyEnabled flips the voice-reply toggle. Turning it off cancels
// any utterance already in flight.
func (a *Adapter) SetReplyEnabled(on bool) {
	a.mu.Lock()
	a.replyEnabled = on
	cancel := a.cancelSpeak
	a.mu.Unlock()
	if !on && cancel != nil {
		cancel()
	}
}

// AppendTranscript joins a finalized transcription segment onto the input
// buffer, separated from existing text by a single space. Empty segments
// are dropped.
func (a *Adapter) AppendTranscript(segment string) {
	segment = strings.TrimSpace(segment)
	if segment == "" || a.input == nil {
		return
	}
	current := a.input.InputText()
	if current == "" {
		a.input.SetInputText(segment)
		return
	}
	a.input.SetInputText(strings.TrimRight(current, " ") + " " + segment)
}

// Transcribe runs captured audio through the speech-to-text backend and
// appends the result to the input buffer.
func (a *Adapter) Transcribe(ctx context.Context, audio io.Reader, filename string) error {
	text, err := a.TranscribeText(ctx, audio, filename)
	if err != nil {
		return err
	}
	a.AppendTranscript(text)
	return nil
}

// TranscribeText is Transcribe without the buffer append, for channels
// that route the text straight into a submission.
func (a *Adapter) TranscribeText(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if !a.CanListen() {
		return "", nil
	}
	return a.stt.Transcribe(ctx, audio, filename)
}

// Speak voices an assistant reply. At most one utterance plays at a time;
// a new call cancels whatever is still playing. Synthesis and playback
// run in the background so the pipeline never blocks on audio.
func (a *Adapter) Speak(text string) {
	if text == "" || !a.CanSpeak() {
		return
	}

	a.mu.Lock()
	if !a.replyEnabled {
		a.mu.Unlock()
		return
	}
	if a.cancelSpeak != nil {
		a.cancelSpeak()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelSpeak = cancel
	a.speaking.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.speaking.Done()
		defer cancel()

		audio, err := a.tts.Synthesize(ctx, text)
		if err != nil {
			if ctx.Err() == nil {
				a.logger.Warn("speech synthesis failed", "error", err)
			}
			return
		}
		defer audio.Close()

		if err := a.player.Play(ctx, audio); err != nil && ctx.Err() == nil {
			a.logger.Warn("audio playback failed", "error", err)
		}
	}()
}

// Wait blocks until any in-flight utterance finishes. Used on shutdown.
func (a *Adapter) Wait() {
	a.speaking.Wait()
}
