package advisor

import (
	"encoding/json"
	"testing"

	"paintsense/internal/domain"
)

func TestNormalizeReply_StringBecomesRaw(t *testing.T) {
	reply := normalizeReply(json.RawMessage(`"hello there"`))
	if !reply.IsRaw() {
		t.Fatal("expected raw variant")
	}
	if reply.Text() != "hello there" {
		t.Fatalf("got %q", reply.Text())
	}
}

func TestNormalizeReply_ObjectStaysStructured(t *testing.T) {
	reply := normalizeReply(json.RawMessage(`{"reply":{}}`))
	if reply.IsRaw() {
		t.Fatal("expected structured variant")
	}
}

func TestNormalizeReply_EmptyIsRawEmpty(t *testing.T) {
	reply := normalizeReply(nil)
	if !reply.IsRaw() || reply.Text() != "" {
		t.Fatalf("expected empty raw reply, got %+v", reply)
	}
}

func TestParseDescriptions_PositionalAlignment(t *testing.T) {
	reply := domain.ServerReply{Raw: `{"reply":[{"room_description":"kitchen"},{"room_description":"den"}]}`}
	descs := parseDescriptions(reply)
	if len(descs) != 2 || descs[0] != "kitchen" || descs[1] != "den" {
		t.Fatalf("got %v", descs)
	}
}

func TestParseDescriptions_MalformedYieldsNil(t *testing.T) {
	for _, raw := range []string{"", "plain prose", `{"reply": 7}`} {
		if descs := parseDescriptions(domain.ServerReply{Raw: raw}); descs != nil {
			t.Fatalf("raw %q: expected nil, got %v", raw, descs)
		}
	}
}

func TestParseDescriptions_CodeFenced(t *testing.T) {
	raw := "```json\n{\"reply\":[{\"room_description\":\"sunroom\"}]}\n```"
	descs := parseDescriptions(domain.ServerReply{Raw: raw})
	if len(descs) != 1 || descs[0] != "sunroom" {
		t.Fatalf("got %v", descs)
	}
}

func TestParseDescriptions_JSONEmbeddedInProse(t *testing.T) {
	raw := `Here is what I see: {"reply":[{"room_description":"attic studio"}]} hope that helps!`
	descs := parseDescriptions(domain.ServerReply{Raw: raw})
	if len(descs) != 1 || descs[0] != "attic studio" {
		t.Fatalf("got %v", descs)
	}
}

func TestParseRecommendations_FullPayload(t *testing.T) {
	reply := domain.ServerReply{Structured: json.RawMessage(`{
		"reply": {
			"recommendations": [
				{"image": "room.jpg", "colors": [
					{"color": "Dusk Blue", "hex": "#46597A", "finish": "matte", "rationale": "depth"},
					{"color": "Warm Ivory", "hex": "#F4EDE0", "finish": "satin", "rationale": "light"}
				]}
			],
			"preparation_tips": "Sand glossy spots."
		}
	}`)}

	p := parseRecommendations(reply)
	if len(p.Recommendations) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(p.Recommendations))
	}
	rec := p.Recommendations[0]
	if rec.Image != "room.jpg" || len(rec.Colors) != 2 {
		t.Fatalf("got %+v", rec)
	}
	if rec.Colors[0].Name != "Dusk Blue" || rec.Colors[0].Hex != "#46597A" {
		t.Fatalf("got %+v", rec.Colors[0])
	}
	if p.PreparationTips != "Sand glossy spots." {
		t.Fatalf("got %q", p.PreparationTips)
	}
}

func TestParseRecommendations_TipsOnly(t *testing.T) {
	reply := domain.ServerReply{Structured: json.RawMessage(`{"reply":{"preparation_tips":"Mask the trim."}}`)}
	p := parseRecommendations(reply)
	if len(p.Recommendations) != 0 {
		t.Fatalf("expected no recommendations, got %v", p.Recommendations)
	}
	if p.PreparationTips != "Mask the trim." {
		t.Fatalf("got %q", p.PreparationTips)
	}
	if p.IsZero() {
		t.Fatal("tips-only payload is not zero")
	}
}

func TestParseRecommendations_MalformedIsZero(t *testing.T) {
	p := parseRecommendations(domain.ServerReply{Raw: "none of this is json"})
	if !p.IsZero() {
		t.Fatalf("expected zero payload, got %+v", p)
	}
}

func TestFindJSONBounds_SkipsBracesInStrings(t *testing.T) {
	s := `note {"k": "a } inside", "n": [1, 2]} trailing`
	start, end := findJSONBounds(s)
	if start < 0 {
		t.Fatal("bounds not found")
	}
	if !json.Valid([]byte(s[start:end])) {
		t.Fatalf("extracted invalid JSON: %q", s[start:end])
	}
}

func TestExtractHexCodes(t *testing.T) {
	text := "Walls #A8C3A0, trim #F4EDE0, again #a8c3a0, short #abc, and #46597A."
	codes := extractHexCodes(text)
	want := []string{"#A8C3A0", "#F4EDE0", "#46597A"}
	if len(codes) != len(want) {
		t.Fatalf("got %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("got %v, want %v", codes, want)
		}
	}
}

func TestExtractHexCodes_CapsAtEight(t *testing.T) {
	text := "#000001 #000002 #000003 #000004 #000005 #000006 #000007 #000008 #000009 #00000a"
	if codes := extractHexCodes(text); len(codes) != 8 {
		t.Fatalf("expected cap of 8, got %d", len(codes))
	}
}
