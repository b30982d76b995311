package domain

// EntryHandle points at a live transcript entry whose text can still be
// replaced in place (the "Thinking…" placeholder flow).
type EntryHandle interface {
	SetText(text string)
}

// View is the injected rendering surface. The orchestration core depends
// only on this interface so it is testable without a real terminal or bot.
type View interface {
	// Append adds a role-tagged entry to the visible transcript and
	// returns a handle for in-place replacement.
	Append(role Role, text string) EntryHandle

	// Input buffer operations. The buffer is appended to by both user
	// keystrokes and the voice adapter.
	InputText() string
	SetInputText(text string)
	ClearInput()
	FocusInput()

	// Notify surfaces a non-blocking notice; Alert a blocking one.
	Notify(text string)
	Alert(text string)
}

// ReviewItem pairs one submitted image with its parsed description for
// display inside the review surface.
type ReviewItem struct {
	Attachment  Attachment
	Description string
}

// ReviewSurface is the modal confirmation surface. Present and Rebind are
// called together on every entry into review; Rebind REPLACES the previous
// handler pair so stale handlers from an earlier suggestion can never fire.
type ReviewSurface interface {
	Present(items []ReviewItem)
	Hide()
	Rebind(onAccept, onReject func())
}
