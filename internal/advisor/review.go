package advisor

import (
	"log/slog"
	"sync"

	"paintsense/internal/domain"
)

// ReviewState is the review flow's observable state. Resolved states are
// transient: resolution synchronously returns the machine to Idle.
type ReviewState int

const (
	StateIdle ReviewState = iota
	StateAwaitingDecision
)

func (s ReviewState) String() string {
	if s == StateAwaitingDecision {
		return "awaiting_decision"
	}
	return "idle"
}

// Review holds at most one pending suggestion and drives the modal
// confirmation surface. Every entry re-presents the surface and REBINDS
// the decision controls, so a suggestion superseded by a newer submission
// leaves no live handlers behind: resolution is matched by suggestion
// reference, and stale callbacks are dropped.
type Review struct {
	surface   domain.ReviewSurface
	logger    *slog.Logger
	onResolve func(decision bool, s *domain.PendingSuggestion)

	mu      sync.Mutex
	pending *domain.PendingSuggestion
}

func NewReview(surface domain.ReviewSurface, logger *slog.Logger, onResolve func(bool, *domain.PendingSuggestion)) *Review {
	return &Review{
		surface:   surface,
		logger:    logger,
		onResolve: onResolve,
	}
}

// State reports the current machine state.
func (r *Review) State() ReviewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		return StateAwaitingDecision
	}
	return StateIdle
}

// Pending returns the live suggestion, or nil when Idle.
func (r *Review) Pending() *domain.PendingSuggestion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Begin enters AwaitingDecision for s, replacing any unresolved suggestion
// outright. The surface is re-presented with the per-image items and both
// controls are rebound fresh; the closures capture s so a decision always
// resolves exactly the suggestion it was bound for.
func (r *Review) Begin(s *domain.PendingSuggestion, items []domain.ReviewItem) {
	r.mu.Lock()
	if r.pending != nil {
		r.logger.Info("pending suggestion superseded", "old", r.pending.ID, "new", s.ID)
	}
	r.pending = s
	r.mu.Unlock()

	r.surface.Present(items)
	r.surface.Rebind(
		func() { r.resolve(s, true) },
		func() { r.resolve(s, false) },
	)
}

func (r *Review) resolve(s *domain.PendingSuggestion, decision bool) {
	r.mu.Lock()
	if r.pending != s {
		// A handler fired for a suggestion that is no longer current.
		r.mu.Unlock()
		r.logger.Warn("ignoring stale review decision", "suggestion", s.ID)
		return
	}
	r.pending = nil
	r.mu.Unlock()

	// Hide before dispatching so the surface disappears synchronously with
	// the user's click.
	r.surface.Hide()
	r.logger.Info("suggestion resolved", "suggestion", s.ID, "accepted", decision)
	r.onResolve(decision, s)
}
