package voice

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBuffer struct {
	mu   sync.Mutex
	text string
}

func (b *fakeBuffer) InputText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *fakeBuffer) SetInputText(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()
}

type fakeSTT struct {
	text      string
	available bool
}

func (f *fakeSTT) Available() bool { return f.available }
func (f *fakeSTT) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	return f.text, nil
}

type fakeTTS struct{ available bool }

func (f *fakeTTS) Available() bool { return f.available }
func (f *fakeTTS) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("mp3data")), nil
}

// blockingPlayer plays until its context is canceled, recording each call.
type blockingPlayer struct {
	mu      sync.Mutex
	started chan struct{}
	plays   int
	ends    []error
}

func newBlockingPlayer() *blockingPlayer {
	return &blockingPlayer{started: make(chan struct{}, 8)}
}

func (p *blockingPlayer) Play(ctx context.Context, audio io.Reader) error {
	p.mu.Lock()
	p.plays++
	p.mu.Unlock()
	p.started <- struct{}{}
	<-ctx.Done()
	p.mu.Lock()
	p.ends = append(p.ends, ctx.Err())
	p.mu.Unlock()
	return ctx.Err()
}

func TestAppendTranscript_JoinsWithSingleSpace(t *testing.T) {
	buf := &fakeBuffer{}
	a := NewAdapter(AdapterConfig{Input: buf, Logger: testLogger()})

	a.AppendTranscript("paint the")
	if buf.InputText() != "paint the" {
		t.Fatalf("got %q", buf.InputText())
	}

	a.AppendTranscript("hallway blue")
	if buf.InputText() != "paint the hallway blue" {
		t.Fatalf("got %q", buf.InputText())
	}
}

func TestAppendTranscript_TrimsAndSkipsEmpty(t *testing.T) {
	buf := &fakeBuffer{text: "existing "}
	a := NewAdapter(AdapterConfig{Input: buf, Logger: testLogger()})

	a.AppendTranscript("   ")
	if buf.InputText() != "existing " {
		t.Fatalf("empty segment must not touch the buffer, got %q", buf.InputText())
	}

	a.AppendTranscript("  more  ")
	if buf.InputText() != "existing more" {
		t.Fatalf("got %q", buf.InputText())
	}
}

func TestTranscribe_RoutesThroughBuffer(t *testing.T) {
	buf := &fakeBuffer{}
	a := NewAdapter(AdapterConfig{
		STT:    &fakeSTT{text: "a sunny kitchen", available: true},
		Input:  buf,
		Logger: testLogger(),
	})

	if !a.CanListen() {
		t.Fatal("expected listening available")
	}
	if err := a.Transcribe(context.Background(), strings.NewReader("audio"), "clip.ogg"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if buf.InputText() != "a sunny kitchen" {
		t.Fatalf("got %q", buf.InputText())
	}
}

func TestCanListen_FalseWithoutBackendOrKey(t *testing.T) {
	a := NewAdapter(AdapterConfig{Logger: testLogger()})
	if a.CanListen() {
		t.Fatal("no STT wired, must not listen")
	}
	a = NewAdapter(AdapterConfig{STT: &fakeSTT{available: false}, Logger: testLogger()})
	if a.CanListen() {
		t.Fatal("unavailable STT, must not listen")
	}
}

func TestSpeak_RespectsReplyToggle(t *testing.T) {
	player := newBlockingPlayer()
	a := NewAdapter(AdapterConfig{
		TTS:          &fakeTTS{available: true},
		Player:       player,
		ReplyEnabled: false,
		Logger:       testLogger(),
	})

	a.Speak("hello")
	select {
	case <-player.started:
		t.Fatal("toggle off must suppress playback")
	case <-time.After(50 * time.Millisecond):
	}

	a.SetReplyEnabled(true)
	a.Speak("hello")
	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("toggle on should start playback")
	}
	a.SetReplyEnabled(false) // cancels in-flight utterance
	a.Wait()
}

func TestSpeak_NewUtteranceCancelsPrevious(t *testing.T) {
	player := newBlockingPlayer()
	a := NewAdapter(AdapterConfig{
		TTS:          &fakeTTS{available: true},
		Player:       player,
		ReplyEnabled: true,
		Logger:       testLogger(),
	})

	a.Speak("first")
	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first utterance never started")
	}

	a.Speak("second")
	select {
	case <-player.started:
	case <-time.After(2 * time.Second):
		t.Fatal("second utterance never started")
	}

	a.SetReplyEnabled(false)
	a.Wait()

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.plays != 2 {
		t.Fatalf("expected 2 playback attempts, got %d", player.plays)
	}
	for _, err := range player.ends {
		if err != context.Canceled {
			t.Fatalf("expected cancellation, got %v", err)
		}
	}
}

func TestSpeak_NoopWithoutPlayer(t *testing.T) {
	a := NewAdapter(AdapterConfig{
		TTS:          &fakeTTS{available: true},
		ReplyEnabled: true,
		Logger:       testLogger(),
	})
	if a.CanSpeak() {
		t.Fatal("no player wired, must not speak")
	}
	a.Speak("silent")
	a.Wait()
}
