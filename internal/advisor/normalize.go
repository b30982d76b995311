package advisor

import (
	"encoding/json"
	"regexp"
	"strings"

	"paintsense/internal/domain"
)

// normalizeReply converts the envelope's raw reply field into the tagged
// variant. The first-phase endpoint JSON-encodes its reply as a string, the
// confirmation endpoint as an object; downstream code only ever sees the
// normalized form.
func normalizeReply(raw json.RawMessage) domain.ServerReply {
	if len(raw) == 0 {
		return domain.ServerReply{Raw: ""}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.ServerReply{Raw: s}
	}
	return domain.ServerReply{Structured: raw}
}

// parseDescriptions extracts per-image room descriptions from a reply of
// the shape {"reply":[{"room_description": ...}, ...]}, aligned by position
// with the submitted images. Any parse failure yields an empty list; the
// interaction never fails on malformed payloads.
func parseDescriptions(reply domain.ServerReply) []string {
	payload := replyBytes(reply)
	if payload == nil {
		return nil
	}

	var wire struct {
		Reply []struct {
			RoomDescription string `json:"room_description"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil
	}

	descs := make([]string, len(wire.Reply))
	for i, item := range wire.Reply {
		descs[i] = item.RoomDescription
	}
	return descs
}

// parseRecommendations extracts the structured consultation result from a
// confirmation reply of the shape {"reply":{"recommendations":[...],
// "preparation_tips":...}}. Missing fields are each independently optional.
func parseRecommendations(reply domain.ServerReply) domain.RecommendationPayload {
	payload := replyBytes(reply)
	if payload == nil {
		return domain.RecommendationPayload{}
	}

	var wire struct {
		Reply struct {
			Recommendations []struct {
				Image  string `json:"image"`
				Colors []struct {
					Color     string `json:"color"`
					Hex       string `json:"hex"`
					Finish    string `json:"finish"`
					Rationale string `json:"rationale"`
				} `json:"colors"`
			} `json:"recommendations"`
			PreparationTips string `json:"preparation_tips"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.RecommendationPayload{}
	}

	out := domain.RecommendationPayload{PreparationTips: wire.Reply.PreparationTips}
	for _, rec := range wire.Reply.Recommendations {
		r := domain.Recommendation{Image: rec.Image}
		for _, c := range rec.Colors {
			r.Colors = append(r.Colors, domain.ColorOption{
				Name:      c.Color,
				Hex:       c.Hex,
				Finish:    c.Finish,
				Rationale: c.Rationale,
			})
		}
		out.Recommendations = append(out.Recommendations, r)
	}
	return out
}

// replyBytes returns the JSON bytes to decode for either variant. Raw text
// is model-produced and may arrive code-fenced or wrapped in prose, so the
// JSON body is located inside the surrounding text first.
func replyBytes(reply domain.ServerReply) []byte {
	if !reply.IsRaw() {
		return reply.Structured
	}
	text := strings.TrimSpace(reply.Raw)
	if text == "" {
		return nil
	}

	// Strip markdown code fences if present.
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			text = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if json.Valid([]byte(text)) {
		return []byte(text)
	}

	// Fallback: find JSON object/array boundaries within surrounding text.
	if start, end := findJSONBounds(text); start >= 0 && end > start {
		return []byte(text[start:end])
	}
	return nil
}

// findJSONBounds locates the first top-level JSON object ({}) or array ([])
// in s. Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	var closeChar byte
	if openChar == '{' {
		closeChar = '}'
	} else {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++ // skip escaped character
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

var hexCodePattern = regexp.MustCompile(`#[0-9a-fA-F]{6}`)

// extractHexCodes scans free-form reply text for #RRGGBB codes, preserving
// first-seen order, deduplicated and capped at 8 swatches.
func extractHexCodes(text string) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, m := range hexCodePattern.FindAllString(text, -1) {
		key := strings.ToLower(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		codes = append(codes, m)
		if len(codes) == 8 {
			break
		}
	}
	return codes
}
