package domcapture

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultRenderLimit is the number of events rendered for synthesis.
const DefaultRenderLimit = 120

// Timeline is the result of a stopped capture session.
type Timeline struct {
	Events  []Event        `json:"events"`
	Dropped map[string]int `json:"dropped"`
}

// TotalDropped sums the dropped counts of all frames.
func (t Timeline) TotalDropped() int {
	n := 0
	for _, d := range t.Dropped {
		n += d
	}
	return n
}

// Render formats at most limit events as a readable block. A non-positive
// limit uses DefaultRenderLimit.
func (t Timeline) Render(limit int) string {
	if limit <= 0 {
		limit = DefaultRenderLimit
	}
	if len(t.Events) == 0 && t.TotalDropped() == 0 {
		return "No DOM events captured."
	}

	var b strings.Builder
	shown := t.Events
	if len(shown) > limit {
		shown = shown[:limit]
	}
	for i, ev := range shown {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] +%dms %s (mutations: %d) frame=%s\n", i+1, ev.OffsetMs, ev.Kind, ev.MutationCount, ev.FrameURL)
		fmt.Fprintf(&b, "    target: %s\n", describe(ev.Target))
		if len(ev.Ancestry) > 0 {
			chain := make([]string, 0, len(ev.Ancestry))
			for _, n := range ev.Ancestry {
				chain = append(chain, shortName(n))
			}
			fmt.Fprintf(&b, "    ancestry: %s\n", strings.Join(chain, " < "))
		}
		if ev.CSSPath != "" {
			fmt.Fprintf(&b, "    css: %s\n", ev.CSSPath)
		}
		if ev.ValuePreview != "" {
			fmt.Fprintf(&b, "    value: %q\n", ev.ValuePreview)
		}
	}

	if omitted := len(t.Events) - len(shown); omitted > 0 {
		fmt.Fprintf(&b, "\n... %d more event(s) omitted\n", omitted)
	}

	frames := make([]string, 0, len(t.Dropped))
	for url := range t.Dropped {
		frames = append(frames, url)
	}
	sort.Strings(frames)
	for _, url := range frames {
		if t.Dropped[url] > 0 {
			fmt.Fprintf(&b, "\nDropped %d event(s) from frame %s\n", t.Dropped[url], url)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortName(n NodeSummary) string {
	s := n.Tag
	if s == "" {
		s = "?"
	}
	if n.ID != "" {
		s += "#" + n.ID
	}
	if len(n.Classes) > 0 {
		s += "." + strings.Join(n.Classes, ".")
	}
	return s
}

func describe(n NodeSummary) string {
	parts := []string{shortName(n)}
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", key, value))
		}
	}
	add("role", n.Role)
	add("name", n.Name)
	add("type", n.Type)
	add("aria-label", n.AriaLabel)
	add("title", n.Title)
	add("testid", n.TestID)
	add("text", n.Text)
	return strings.Join(parts, " ")
}
