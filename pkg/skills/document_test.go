package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSkill = `# Add Item To Cart
type: atomic
site: shop.example.com
confidence: High

## Intent
Add the currently open product to the cart.

## Preconditions
- A product page is open
- User is signed in

## Actions
1. intent: "Choose a size"
   element: "Size dropdown"
   act_hint: "Select size M in the size dropdown"
2. intent: "Add to cart"
   element: "Add to cart button"
   act_hint: "Click the Add to cart button"
   dom_event_ref: "#3 click button.add"

## Self-Healing Notes
If the button is hidden, scroll down first.

## Confidence Rationale
Narration was clear.
`

func TestParseDocument(t *testing.T) {
	doc := ParseDocument(sampleSkill)

	assert.Equal(t, "Add Item To Cart", doc.Name)
	assert.Equal(t, TypeAtomic, doc.Type)
	assert.Equal(t, "shop.example.com", doc.Site)
	assert.Equal(t, ConfidenceHigh, doc.Confidence)
	assert.Equal(t, "Add the currently open product to the cart.", doc.Intent)
	assert.Equal(t, []string{"A product page is open", "User is signed in"}, doc.Preconditions)
	require.Len(t, doc.Actions, 2)
	assert.Equal(t, Action{Intent: "Choose a size", Element: "Size dropdown", ActHint: "Select size M in the size dropdown"}, doc.Actions[0])
	assert.Equal(t, "#3 click button.add", doc.Actions[1].DOMEventRef)
	assert.Equal(t, "If the button is hidden, scroll down first.", doc.SelfHealingNotes)
	assert.Equal(t, "Narration was clear.", doc.ConfidenceRationale)
	assert.Equal(t, sampleSkill, doc.Content)
}

func TestParseDocument_Tolerant(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, doc Document)
	}{
		{
			name:    "empty",
			content: "",
			check: func(t *testing.T, doc Document) {
				assert.Empty(t, doc.Name)
				assert.Empty(t, doc.Actions)
			},
		},
		{
			name:    "title only",
			content: "# Just a title",
			check: func(t *testing.T, doc Document) {
				assert.Equal(t, "Just a title", doc.Name)
				assert.Empty(t, doc.Confidence)
			},
		},
		{
			name:    "unquoted fields and unknown sections",
			content: "# T\n\n## Extra\nconfidence: low\n\n## Actions\n1. intent: open\n   element: Menu\n",
			check: func(t *testing.T, doc Document) {
				assert.Empty(t, doc.Confidence, "metadata outside the preamble is ignored")
				require.Len(t, doc.Actions, 1)
				assert.Equal(t, "open", doc.Actions[0].Intent)
				assert.Equal(t, "Menu", doc.Actions[0].Element)
			},
		},
		{
			name:    "first level one heading wins",
			content: "# First\n# Second\n",
			check: func(t *testing.T, doc Document) {
				assert.Equal(t, "First", doc.Name)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ParseDocument(tt.content))
		})
	}
}

func TestMetadataOf(t *testing.T) {
	meta := MetadataOf(Entry{Name: "Add Item To Cart", Filename: "shop.example.com__add_item_to_cart.md", Content: sampleSkill})
	assert.Equal(t, "shop.example.com", meta.Site)
	assert.Equal(t, ConfidenceHigh, meta.Confidence)
	assert.Equal(t, "Add the currently open product to the cart.", meta.Intent)

	bare := MetadataOf(Entry{Name: "X", Filename: "example.org__x.md", Content: "# X\n"})
	assert.Equal(t, "example.org", bare.Site)
	assert.Empty(t, bare.Confidence)
}
