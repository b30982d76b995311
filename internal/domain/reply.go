package domain

import "encoding/json"

// ServerReply is the advice service's `reply` field. The service is
// inconsistent about its shape: sometimes it is a JSON-encoded string that
// needs a second parse, sometimes an already-structured object. The tagged
// variant is normalized once at the pipeline boundary so downstream code
// never branches on shape.
type ServerReply struct {
	Raw        string
	Structured json.RawMessage
}

// IsRaw reports whether the reply arrived as text needing a second parse.
func (r ServerReply) IsRaw() bool { return r.Structured == nil }

// Text returns the reply as the string form sent back verbatim on
// confirmation (the `room_description` field of the second call).
func (r ServerReply) Text() string {
	if r.IsRaw() {
		return r.Raw
	}
	return string(r.Structured)
}

// PendingSuggestion is a first-phase reply awaiting human accept/reject.
// At most one exists at a time; a superseding submission replaces it
// outright. Resolution matches by pointer identity, never by index.
type PendingSuggestion struct {
	ID           string
	Reply        ServerReply
	Bundle       Bundle
	Descriptions []string // per-image, "" where the server sent none
}

// Description returns the parsed description for the i-th image, or ""
// when the server sent none at that position.
func (p *PendingSuggestion) Description(i int) string {
	if i < 0 || i >= len(p.Descriptions) {
		return ""
	}
	return p.Descriptions[i]
}

// ColorOption is one recommended paint color.
type ColorOption struct {
	Name      string
	Hex       string
	Finish    string
	Rationale string
}

// Recommendation groups the color options proposed for one image.
type Recommendation struct {
	Image  string
	Colors []ColorOption
}

// RecommendationPayload is the structured result of a confirmed
// consultation. Both fields are independently optional: an absent section
// renders nothing, never an error.
type RecommendationPayload struct {
	Recommendations []Recommendation
	PreparationTips string
}

// IsZero reports whether the payload carries nothing renderable.
func (p RecommendationPayload) IsZero() bool {
	return len(p.Recommendations) == 0 && p.PreparationTips == ""
}
