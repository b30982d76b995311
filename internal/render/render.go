// Package render turns recommendation payloads into presentation trees.
// Everything here is a pure function of its input: no network, no state,
// equal inputs produce equivalent output.
package render

import (
	"fmt"
	"regexp"
	"strings"

	"paintsense/internal/domain"
)

// Kind classifies a presentation node.
type Kind int

const (
	// KindRecommendation is one image's block; Text carries the image label.
	KindRecommendation Kind = iota
	// KindColor is one color option; Text carries the color name.
	KindColor
	// KindSwatch is the clickable hex chip; activating it copies Hex to the
	// clipboard, best-effort.
	KindSwatch
	// KindDetail is a finish or rationale line.
	KindDetail
	// KindTips is the titled preparation-tips section; Text carries the body.
	KindTips
)

// Node is one element of the presentation tree. Channels walk the tree and
// decide how to draw each kind.
type Node struct {
	Kind     Kind
	Text     string
	Hex      string
	Children []Node
}

// Recommendations maps a payload to its presentation tree. Absent sections
// produce no nodes; a fully empty payload yields nil.
func Recommendations(p domain.RecommendationPayload) []Node {
	var nodes []Node
	for _, rec := range p.Recommendations {
		block := Node{Kind: KindRecommendation, Text: rec.Image}
		for _, c := range rec.Colors {
			color := Node{
				Kind: KindColor,
				Text: c.Name,
				Children: []Node{
					{Kind: KindSwatch, Hex: c.Hex},
					{Kind: KindDetail, Text: "Finish: " + c.Finish},
					{Kind: KindDetail, Text: c.Rationale},
				},
			}
			block.Children = append(block.Children, color)
		}
		nodes = append(nodes, block)
	}
	if p.PreparationTips != "" {
		nodes = append(nodes, Node{Kind: KindTips, Text: p.PreparationTips})
	}
	return nodes
}

// PlainText flattens the payload for transcript bodies and terminals.
func PlainText(p domain.RecommendationPayload) string {
	var b strings.Builder
	for _, rec := range p.Recommendations {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		label := rec.Image
		if label == "" {
			label = "Paint Recommendations"
		}
		b.WriteString(label)
		for _, c := range rec.Colors {
			fmt.Fprintf(&b, "\n  %s — %s (%s)", c.Name, c.Hex, c.Finish)
			if c.Rationale != "" {
				fmt.Fprintf(&b, "\n    %s", c.Rationale)
			}
		}
	}
	if p.PreparationTips != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Preparation Tips\n")
		b.WriteString(p.PreparationTips)
	}
	return b.String()
}

// Markdown renders the payload for markdown-capable channels.
func Markdown(p domain.RecommendationPayload) string {
	var b strings.Builder
	for _, rec := range p.Recommendations {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		label := rec.Image
		if label == "" {
			label = "Paint Recommendations"
		}
		fmt.Fprintf(&b, "*%s*", label)
		for _, c := range rec.Colors {
			fmt.Fprintf(&b, "\n• *%s* `%s` (%s)", c.Name, c.Hex, c.Finish)
			if c.Rationale != "" {
				fmt.Fprintf(&b, "\n  _%s_", c.Rationale)
			}
		}
	}
	if p.PreparationTips != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("*Preparation Tips*\n")
		b.WriteString(p.PreparationTips)
	}
	return b.String()
}

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// IsHexColor reports whether s is a valid 3 or 6 digit hex color string.
// Malformed values still render as-is; this only informs channels whether
// a swatch can be drawn in color.
func IsHexColor(s string) bool {
	return hexColorPattern.MatchString(s)
}

// Swatches collects every swatch hex in tree order, valid or not, so
// channels can offer positional copy commands.
func Swatches(nodes []Node) []string {
	var out []string
	for _, n := range nodes {
		if n.Kind == KindSwatch {
			out = append(out, n.Hex)
		}
		out = append(out, Swatches(n.Children)...)
	}
	return out
}
