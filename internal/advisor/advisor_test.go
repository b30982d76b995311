package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"paintsense/internal/client"
	"paintsense/internal/domain"
	"paintsense/internal/transcript"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type fakeService struct {
	submitEnv  *client.Envelope
	submitErr  error
	confirmEnv *client.Envelope
	confirmErr error

	submitCalls  int
	confirmCalls int
	lastDecision bool
	lastRoomDesc string
	lastImages   []domain.Attachment
}

func (f *fakeService) Submit(ctx context.Context, bundle domain.Bundle) (*client.Envelope, error) {
	f.submitCalls++
	return f.submitEnv, f.submitErr
}

func (f *fakeService) Confirm(ctx context.Context, decision bool, roomDescription string, images []domain.Attachment) (*client.Envelope, error) {
	f.confirmCalls++
	f.lastDecision = decision
	f.lastRoomDesc = roomDescription
	f.lastImages = images
	return f.confirmEnv, f.confirmErr
}

type fakeEntry struct {
	role domain.Role
	text string
}

func (e *fakeEntry) SetText(text string) { e.text = text }

type fakeView struct {
	entries []*fakeEntry
	notices []string
	alerts  []string
	input   string
	cleared int
	focused int
}

func (v *fakeView) Append(role domain.Role, text string) domain.EntryHandle {
	e := &fakeEntry{role: role, text: text}
	v.entries = append(v.entries, e)
	return e
}

func (v *fakeView) InputText() string        { return v.input }
func (v *fakeView) SetInputText(text string) { v.input = text }
func (v *fakeView) ClearInput()              { v.cleared++ }
func (v *fakeView) FocusInput()              { v.focused++ }
func (v *fakeView) Notify(text string)       { v.notices = append(v.notices, text) }
func (v *fakeView) Alert(text string)        { v.alerts = append(v.alerts, text) }

func (v *fakeView) entryTexts() []string {
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.text
	}
	return out
}

type fakeSurface struct {
	presented [][]domain.ReviewItem
	onAccept  func()
	onReject  func()
	rebinds   int
	hides     int
}

func (s *fakeSurface) Present(items []domain.ReviewItem) {
	s.presented = append(s.presented, items)
}

func (s *fakeSurface) Hide() { s.hides++ }

func (s *fakeSurface) Rebind(onAccept, onReject func()) {
	s.onAccept, s.onReject = onAccept, onReject
	s.rebinds++
}

// --- helpers ---

func newTestAdvisor(t *testing.T, svc Service, opts ...func(*Config)) (*Advisor, *fakeView, *fakeSurface) {
	t.Helper()
	view := &fakeView{}
	surface := &fakeSurface{}
	cfg := Config{
		Service:    svc,
		View:       view,
		Surface:    surface,
		Transcript: transcript.NewLog("test-conv", nil, testLogger()),
		Logger:     testLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return New(context.Background(), cfg), view, surface
}

// firstPhaseEnvelope builds the submit-side envelope: the reply field is a
// JSON string that itself encodes the description payload.
func firstPhaseEnvelope(t *testing.T, inner string) *client.Envelope {
	t.Helper()
	quoted, err := json.Marshal(inner)
	if err != nil {
		t.Fatalf("marshal inner reply: %v", err)
	}
	return &client.Envelope{OK: true, Reply: quoted}
}

func roomBundle() domain.Bundle {
	return domain.Bundle{
		Text: "what color should I paint this?",
		Images: []domain.Attachment{
			{Filename: "room.jpg", MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}},
		},
	}
}

// --- submission pipeline ---

func TestSubmit_EmptyBundleIsRefused(t *testing.T) {
	svc := &fakeService{}
	adv, view, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), domain.Bundle{})

	if svc.submitCalls != 0 {
		t.Fatalf("expected no service call for empty bundle, got %d", svc.submitCalls)
	}
	if len(view.entries) != 0 {
		t.Fatalf("expected no entries, got %v", view.entryTexts())
	}
	if view.focused != 1 {
		t.Fatalf("expected input refocus, got %d", view.focused)
	}
	if len(surface.presented) != 0 {
		t.Fatalf("expected no review presentation")
	}
}

func TestSubmit_SuggestionFlow(t *testing.T) {
	svc := &fakeService{
		submitEnv: firstPhaseEnvelope(t, `{"reply":[{"room_description":"a cozy living room"}]}`),
	}
	adv, view, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())

	if svc.submitCalls != 1 {
		t.Fatalf("expected 1 submit, got %d", svc.submitCalls)
	}
	if view.cleared != 1 {
		t.Fatalf("expected input cleared once, got %d", view.cleared)
	}
	if view.entries[0].text != "what color should I paint this?" {
		t.Fatalf("expected user echo first, got %q", view.entries[0].text)
	}
	if view.entries[1].text != ReviewPromptText {
		t.Fatalf("expected placeholder to settle to review prompt, got %q", view.entries[1].text)
	}

	if len(surface.presented) != 1 {
		t.Fatalf("expected 1 presentation, got %d", len(surface.presented))
	}
	items := surface.presented[0]
	if len(items) != 1 {
		t.Fatalf("expected 1 review item, got %d", len(items))
	}
	if items[0].Attachment.Filename != "room.jpg" {
		t.Fatalf("wrong attachment: %q", items[0].Attachment.Filename)
	}
	if items[0].Description != "a cozy living room" {
		t.Fatalf("wrong description: %q", items[0].Description)
	}

	if adv.Review().State() != StateAwaitingDecision {
		t.Fatalf("expected awaiting_decision, got %v", adv.Review().State())
	}
	if adv.Review().Pending() == nil || adv.Review().Pending().ID == "" {
		t.Fatal("expected a pending suggestion with an ID")
	}
}

func TestSubmit_AttachmentsOnlyEchoesPlaceholderText(t *testing.T) {
	svc := &fakeService{submitEnv: firstPhaseEnvelope(t, `{"reply":[]}`)}
	adv, view, _ := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), domain.Bundle{
		Images: []domain.Attachment{{Filename: "wall.png", MimeType: "image/png"}},
	})

	if view.entries[0].text != EmptyTextEcho {
		t.Fatalf("expected %q echo, got %q", EmptyTextEcho, view.entries[0].text)
	}
}

func TestSubmit_TransportError(t *testing.T) {
	svc := &fakeService{submitErr: errors.New("connection refused")}
	adv, view, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())

	placeholder := view.entries[1]
	if !strings.HasPrefix(placeholder.text, "Network error:") {
		t.Fatalf("expected network error placeholder, got %q", placeholder.text)
	}
	if !strings.Contains(placeholder.text, "connection refused") {
		t.Fatalf("expected cause in placeholder, got %q", placeholder.text)
	}
	if adv.Review().State() != StateIdle {
		t.Fatal("failed submission must not enter review")
	}
	if len(surface.presented) != 0 {
		t.Fatal("failed submission must not present the surface")
	}
}

func TestNilLoggerDefaults(t *testing.T) {
	svc := &fakeService{submitErr: errors.New("connection refused")}
	adv, view, surface := newTestAdvisor(t, svc, func(cfg *Config) {
		cfg.Logger = nil
	})

	adv.Submit(context.Background(), roomBundle())
	if !strings.HasPrefix(view.entries[1].text, "Network error:") {
		t.Fatalf("expected network error placeholder, got %q", view.entries[1].text)
	}

	// A full suggestion flow also logs during review resolution.
	svc.submitErr = nil
	svc.submitEnv = firstPhaseEnvelope(t, `{"reply":[{"room_description":"a cozy living room"}]}`)
	svc.confirmEnv = &client.Envelope{OK: true, Reply: json.RawMessage(`"noted"`)}

	adv.Submit(context.Background(), roomBundle())
	adv.Submit(context.Background(), roomBundle()) // supersedes, logs the replacement
	surface.onAccept()

	if svc.confirmCalls != 1 {
		t.Fatalf("expected one confirmation dispatch, got %d", svc.confirmCalls)
	}
}

func TestSubmit_ServerRefusal(t *testing.T) {
	svc := &fakeService{submitEnv: &client.Envelope{OK: false, Error: "no images supplied"}}
	adv, view, _ := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())

	if got := view.entries[1].text; got != "Error: no images supplied" {
		t.Fatalf("expected server error placeholder, got %q", got)
	}
	if adv.Review().State() != StateIdle {
		t.Fatal("refused submission must not enter review")
	}
}

func TestSubmit_MalformedReplyStillEntersReview(t *testing.T) {
	svc := &fakeService{submitEnv: firstPhaseEnvelope(t, `not json at all`)}
	adv, _, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())

	if adv.Review().State() != StateAwaitingDecision {
		t.Fatal("malformed reply should still produce a reviewable suggestion")
	}
	if surface.presented[0][0].Description != "" {
		t.Fatalf("expected empty description, got %q", surface.presented[0][0].Description)
	}
}

// --- review resolution and confirmation dispatch ---

func TestAccept_DispatchesConfirmationOnce(t *testing.T) {
	inner := `{"reply":[{"room_description":"a cozy living room"}]}`
	svc := &fakeService{
		submitEnv: firstPhaseEnvelope(t, inner),
		confirmEnv: &client.Envelope{OK: true, Reply: json.RawMessage(`{
			"reply": {
				"recommendations": [{
					"image": "room.jpg",
					"colors": [{"color": "Sage Whisper", "hex": "#A8C3A0", "finish": "eggshell", "rationale": "calms the space"}]
				}],
				"preparation_tips": "Clean the walls first."
			}
		}`)},
	}
	adv, view, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())
	accept := surface.onAccept
	accept()

	if svc.confirmCalls != 1 {
		t.Fatalf("expected exactly 1 confirm dispatch, got %d", svc.confirmCalls)
	}
	if !svc.lastDecision {
		t.Fatal("expected decision=true")
	}
	if svc.lastRoomDesc != inner {
		t.Fatalf("expected the submit-phase reply forwarded verbatim, got %q", svc.lastRoomDesc)
	}
	if len(svc.lastImages) != 1 || svc.lastImages[0].Filename != "room.jpg" {
		t.Fatalf("expected original images forwarded, got %v", svc.lastImages)
	}

	if surface.hides != 1 {
		t.Fatalf("expected surface hidden once, got %d", surface.hides)
	}
	if adv.Review().State() != StateIdle {
		t.Fatal("resolution must return to idle")
	}
	if len(view.notices) != 1 || view.notices[0] != confirmationAck {
		t.Fatalf("expected confirmation acknowledgment, got %v", view.notices)
	}

	final := view.entries[len(view.entries)-1]
	if final.role != domain.RolePaintSuggestion {
		t.Fatalf("expected paint suggestion entry, got role %q", final.role)
	}
	if !strings.Contains(final.text, "Sage Whisper") || !strings.Contains(final.text, "#A8C3A0") {
		t.Fatalf("expected rendered recommendation, got %q", final.text)
	}
	if !strings.Contains(final.text, "Clean the walls first.") {
		t.Fatalf("expected preparation tips, got %q", final.text)
	}

	// Firing the already-resolved handler again must be a no-op.
	accept()
	if svc.confirmCalls != 1 {
		t.Fatalf("stale handler dispatched again: %d calls", svc.confirmCalls)
	}
}

func TestReject_DispatchesDecisionFalse(t *testing.T) {
	svc := &fakeService{
		submitEnv:  firstPhaseEnvelope(t, `{"reply":[]}`),
		confirmEnv: &client.Envelope{OK: true, Reply: json.RawMessage(`"noted"`)},
	}
	adv, _, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())
	surface.onReject()

	if svc.confirmCalls != 1 {
		t.Fatalf("expected 1 confirm, got %d", svc.confirmCalls)
	}
	if svc.lastDecision {
		t.Fatal("expected decision=false")
	}
	if adv.Review().State() != StateIdle {
		t.Fatal("rejection must return to idle")
	}
}

func TestSupersededSuggestionHandlersAreDead(t *testing.T) {
	svc := &fakeService{
		submitEnv:  firstPhaseEnvelope(t, `{"reply":[]}`),
		confirmEnv: &client.Envelope{OK: true, Reply: json.RawMessage(`"ok"`)},
	}
	adv, _, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())
	first := adv.Review().Pending()
	firstAccept := surface.onAccept

	adv.Submit(context.Background(), roomBundle())
	second := adv.Review().Pending()
	if first == second {
		t.Fatal("expected a fresh suggestion on resubmission")
	}
	if surface.rebinds != 2 {
		t.Fatalf("expected handlers rebound on each presentation, got %d", surface.rebinds)
	}

	// The superseded suggestion's handler must not dispatch.
	firstAccept()
	if svc.confirmCalls != 0 {
		t.Fatalf("stale handler dispatched: %d calls", svc.confirmCalls)
	}
	if adv.Review().State() != StateAwaitingDecision {
		t.Fatal("current suggestion must survive a stale decision")
	}

	surface.onAccept()
	if svc.confirmCalls != 1 {
		t.Fatalf("expected current handler to dispatch once, got %d", svc.confirmCalls)
	}
}

func TestConfirm_TransportErrorAlerts(t *testing.T) {
	svc := &fakeService{
		submitEnv:  firstPhaseEnvelope(t, `{"reply":[]}`),
		confirmErr: errors.New("timeout"),
	}
	adv, view, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())
	surface.onAccept()

	if len(view.alerts) != 1 || !strings.Contains(view.alerts[0], "timeout") {
		t.Fatalf("expected network alert, got %v", view.alerts)
	}
	if len(view.notices) != 0 {
		t.Fatalf("failed confirmation must not acknowledge, got %v", view.notices)
	}
	if adv.Review().State() != StateIdle {
		t.Fatal("resolution is final even when dispatch fails")
	}
}

func TestConfirm_RawReplyFallsBackToTextAndSwatches(t *testing.T) {
	raw, _ := json.Marshal("I'd go with a soft green like #A8C3A0 or #a8c3a0 for trim.")
	svc := &fakeService{
		submitEnv:  firstPhaseEnvelope(t, `{"reply":[]}`),
		confirmEnv: &client.Envelope{OK: true, Reply: raw},
	}
	adv, view, surface := newTestAdvisor(t, svc)

	adv.Submit(context.Background(), roomBundle())
	surface.onAccept()

	final := view.entries[len(view.entries)-1].text
	if !strings.Contains(final, "soft green") {
		t.Fatalf("expected raw reply text, got %q", final)
	}
	if !strings.Contains(final, "Swatches: #A8C3A0") {
		t.Fatalf("expected deduplicated swatch line, got %q", final)
	}
	if strings.Contains(final, "Swatches: #A8C3A0 #a8c3a0") {
		t.Fatalf("swatches must be case-insensitively deduplicated, got %q", final)
	}
	if p := adv.LastRecommendations(); !p.IsZero() {
		t.Fatalf("raw reply must not fabricate a structured payload: %+v", p)
	}
}

func TestDescriptionSourceConfirm_RederivesAtReviewTime(t *testing.T) {
	svc := &fakeService{
		submitEnv: firstPhaseEnvelope(t, `{"reply":[{"room_description":"north-facing bedroom"}]}`),
	}
	adv, _, surface := newTestAdvisor(t, svc, func(c *Config) {
		c.DescriptionSource = SourceConfirm
	})

	adv.Submit(context.Background(), roomBundle())

	if descs := adv.Review().Pending().Descriptions; len(descs) != 0 {
		t.Fatalf("confirm-sourced flow must not store descriptions at submit, got %v", descs)
	}
	if got := surface.presented[0][0].Description; got != "north-facing bedroom" {
		t.Fatalf("expected re-derived description on the surface, got %q", got)
	}
}

func TestPreviewTextListsAttachments(t *testing.T) {
	items := []domain.ReviewItem{
		{Attachment: domain.Attachment{Filename: "a.jpg"}, Description: "hallway"},
		{Attachment: domain.Attachment{Filename: "b.jpg"}},
	}
	got := previewText(items)
	want := "[image 1: a.jpg] hallway\n[image 2: b.jpg]"
	if got != want {
		t.Fatalf("previewText = %q, want %q", got, want)
	}
}
