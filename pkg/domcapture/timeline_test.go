package domcapture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeline_Render(t *testing.T) {
	button := 0
	tl := Timeline{
		Events: []Event{
			{
				Kind:          KindClick,
				OffsetMs:      1200,
				FrameURL:      "https://shop.example/",
				Target:        NodeSummary{Tag: "button", ID: "buy", Role: "button", Text: "Buy now"},
				Ancestry:      []NodeSummary{{Tag: "button", ID: "buy"}, {Tag: "form", Classes: []string{"checkout"}}},
				CSSPath:       "form.checkout > button#buy",
				MutationCount: 4,
				Button:        &button,
			},
			{
				Kind:         KindInput,
				OffsetMs:     1800,
				FrameURL:     "https://shop.example/",
				Target:       NodeSummary{Tag: "input", Name: "q"},
				ValuePreview: "red shoes",
			},
		},
		Dropped: map[string]int{"https://ads.example/": 3},
	}

	out := tl.Render(0)
	assert.Equal(t, `[1] +1200ms click (mutations: 4) frame=https://shop.example/
    target: button#buy role="button" text="Buy now"
    ancestry: button#buy < form.checkout
    css: form.checkout > button#buy

[2] +1800ms input (mutations: 0) frame=https://shop.example/
    target: input name="q"
    value: "red shoes"

Dropped 3 event(s) from frame https://ads.example/`, out)
}

func TestTimeline_RenderLimit(t *testing.T) {
	events := make([]Event, 130)
	for i := range events {
		events[i] = Event{Kind: KindClick, OffsetMs: int64(i), Target: NodeSummary{Tag: "a"}}
	}
	tl := Timeline{Events: events}

	out := tl.Render(0)
	assert.Equal(t, DefaultRenderLimit, strings.Count(out, "target: "))
	assert.Contains(t, out, "... 10 more event(s) omitted")

	assert.Equal(t, 5, strings.Count(tl.Render(5), "target: "))
}

func TestTimeline_RenderEmpty(t *testing.T) {
	assert.Equal(t, "No DOM events captured.", Timeline{}.Render(0))
}
