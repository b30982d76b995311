package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"paintsense/internal/client"
	"paintsense/internal/domain"
	"paintsense/internal/render"
	"paintsense/internal/transcript"
)

// Literal strings surfaced to the user. These mirror the service's chat
// wording and are matched by the channels, so they live in one place.
const (
	ThinkingText     = "Thinking…"
	ReviewPromptText = "I have a suggestion for you. Please review it below."
	EmptyTextEcho    = "(no text)"
	confirmationAck  = "Confirmation sent successfully."
)

// Description sources for the review surface: "submit" parses per-image
// descriptions from the first-phase reply at submit time, "confirm"
// re-derives them on entry into review. The two call sites of the original
// service disagree, so the choice is configuration, not guesswork.
const (
	SourceSubmit  = "submit"
	SourceConfirm = "confirm"
)

// Service is the advice endpoint pair the advisor drives. *client.Client
// satisfies it; tests substitute fakes.
type Service interface {
	Submit(ctx context.Context, bundle domain.Bundle) (*client.Envelope, error)
	Confirm(ctx context.Context, decision bool, roomDescription string, images []domain.Attachment) (*client.Envelope, error)
}

// Speaker voices assistant output when the user has voice replies on.
type Speaker interface {
	Speak(text string)
}

// Previewer opens the service's review page out-of-band (browser window
// with a fallback). Optional.
type Previewer interface {
	Open(ctx context.Context)
}

// Config wires an Advisor. Service, View, Surface and Transcript are
// required; the rest are optional collaborators.
type Config struct {
	Service           Service
	View              domain.View
	Surface           domain.ReviewSurface
	Transcript        *transcript.Log
	DescriptionSource string
	Speaker           Speaker
	Preview           Previewer
	Logger            *slog.Logger
}

// Advisor orchestrates the two-phase consultation: submission pipeline,
// suggestion review, confirmation dispatch and result rendering. All
// mutable state is the single pending suggestion (owned by the Review) and
// the last rendered payload.
type Advisor struct {
	service    Service
	view       domain.View
	transcript *transcript.Log
	review     *Review
	descSource string
	speaker    Speaker
	preview    Previewer
	logger     *slog.Logger
	baseCtx    context.Context

	mu          sync.Mutex
	lastPayload domain.RecommendationPayload
}

func New(ctx context.Context, cfg Config) *Advisor {
	if cfg.DescriptionSource == "" {
		cfg.DescriptionSource = SourceSubmit
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Advisor{
		service:    cfg.Service,
		view:       cfg.View,
		transcript: cfg.Transcript,
		descSource: cfg.DescriptionSource,
		speaker:    cfg.Speaker,
		preview:    cfg.Preview,
		logger:     cfg.Logger,
		baseCtx:    ctx,
	}
	a.review = NewReview(cfg.Surface, cfg.Logger, a.dispatchConfirm)
	return a
}

// Review exposes the state machine for channels and tests.
func (a *Advisor) Review() *Review { return a.review }

// LastRecommendations returns the most recently rendered payload, for
// swatch copy commands.
func (a *Advisor) LastRecommendations() domain.RecommendationPayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPayload
}

// Submit runs the submission pipeline for one bundle. An empty bundle is
// refused without side effects beyond focusing the input. Each call is a
// single attempt; there is no retry and no cancellation of earlier
// in-flight submissions.
func (a *Advisor) Submit(ctx context.Context, bundle domain.Bundle) {
	if bundle.Empty() {
		a.view.FocusInput()
		return
	}

	echo := bundle.Text
	if echo == "" {
		echo = EmptyTextEcho
	}
	a.append(domain.RoleUser, echo)
	a.view.ClearInput()
	placeholder := a.append(domain.RoleAssistant, ThinkingText)

	env, err := a.service.Submit(ctx, bundle)
	if err != nil {
		placeholder.SetText(fmt.Sprintf("Network error: %v", err))
		a.logger.Error("submission failed", "err", err)
		return
	}
	if !env.OK {
		placeholder.SetText(fmt.Sprintf("Error: %s", env.Error))
		return
	}

	reply := normalizeReply(env.Reply)
	suggestion := &domain.PendingSuggestion{
		ID:     uuid.NewString(),
		Reply:  reply,
		Bundle: bundle,
	}
	if a.descSource == SourceSubmit {
		suggestion.Descriptions = parseDescriptions(reply)
	}

	placeholder.SetText(ReviewPromptText)
	items := a.reviewItems(suggestion)
	if text := previewText(items); text != "" {
		a.append(domain.RoleSuggestion, text)
	}
	if a.preview != nil {
		a.preview.Open(ctx)
	}
	a.review.Begin(suggestion, items)
}

// reviewItems pairs each submitted image with its description, re-deriving
// descriptions from the stored reply when configured for the confirm-time
// variant.
func (a *Advisor) reviewItems(s *domain.PendingSuggestion) []domain.ReviewItem {
	descs := s.Descriptions
	if a.descSource == SourceConfirm {
		descs = parseDescriptions(s.Reply)
	}
	items := make([]domain.ReviewItem, len(s.Bundle.Images))
	for i, img := range s.Bundle.Images {
		items[i] = domain.ReviewItem{Attachment: img}
		if i < len(descs) {
			items[i].Description = descs[i]
		}
	}
	return items
}

// dispatchConfirm sends the user's decision and routes the structured
// result to the renderer. Failures are terminal for this request.
func (a *Advisor) dispatchConfirm(decision bool, s *domain.PendingSuggestion) {
	env, err := a.service.Confirm(a.baseCtx, decision, s.Reply.Text(), s.Bundle.Images)
	if err != nil {
		a.view.Alert(fmt.Sprintf("Network error: %v", err))
		a.logger.Error("confirmation dispatch failed", "suggestion", s.ID, "err", err)
		return
	}
	if !env.OK {
		a.view.Alert(fmt.Sprintf("Error: %s", env.Error))
		return
	}

	a.view.Notify(confirmationAck)

	payload := parseRecommendations(normalizeReply(env.Reply))
	a.mu.Lock()
	a.lastPayload = payload
	a.mu.Unlock()

	body := render.PlainText(payload)
	if payload.IsZero() {
		// No structured result: fall back to the raw reply text plus any
		// hex codes scraped out of it.
		body = normalizeReply(env.Reply).Text()
		if codes := extractHexCodes(body); len(codes) > 0 {
			body += "\n\nSwatches: " + strings.Join(codes, " ")
		}
	}
	a.append(domain.RolePaintSuggestion, body)
	if a.speaker != nil {
		a.speaker.Speak(body)
	}
}

// append adds an entry to both the transcript sink and the view, returning
// a handle that keeps the two in sync on in-place replacement.
func (a *Advisor) append(role domain.Role, text string) domain.EntryHandle {
	logEntry := a.transcript.Append(role, text)
	viewEntry := a.view.Append(role, text)
	return &dualHandle{log: logEntry, view: viewEntry}
}

type dualHandle struct {
	log  *transcript.Entry
	view domain.EntryHandle
}

func (h *dualHandle) SetText(text string) {
	h.log.SetText(text)
	h.view.SetText(text)
}

// previewText flattens the reconstructed attachment previews into a
// transcript-friendly block, one line per image.
func previewText(items []domain.ReviewItem) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[image %d: %s]", i+1, item.Attachment.Filename)
		if item.Description != "" {
			b.WriteString(" ")
			b.WriteString(item.Description)
		}
	}
	return b.String()
}
