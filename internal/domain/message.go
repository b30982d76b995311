package domain

// Role tags a transcript entry with its speaker.
type Role string

const (
	RoleUser            Role = "user"
	RoleAssistant       Role = "assistant"
	RoleSuggestion      Role = "suggestion"
	RolePaintSuggestion Role = "paint_suggestion"
)

// Message is a single transcript entry. Immutable once appended; the
// transcript sink owns ordering via Ordinal.
type Message struct {
	Role    Role
	Text    string
	Ordinal int
}

// Attachment is one uploaded file. Data is shared-read: the same bytes are
// sent on the initial submission and again on confirmation, never mutated
// or copied in between.
type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// Bundle is the text plus attachment set collected for one submission.
type Bundle struct {
	Text   string
	Images []Attachment
	Docs   []Attachment
}

// Empty reports whether there is nothing to submit.
func (b Bundle) Empty() bool {
	return b.Text == "" && len(b.Images) == 0 && len(b.Docs) == 0
}
