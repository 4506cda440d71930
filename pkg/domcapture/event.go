// Package domcapture correlates DOM events captured during a demonstration
// into a per-tab timeline. Events arrive from a capture script running in each
// frame of the tab; mutation notifications feed a counter that is attached to,
// and reset by, every captured event.
package domcapture

import (
	"strings"
	"unicode/utf8"
)

// Kind is a captured DOM event type.
type Kind string

const (
	KindClick  Kind = "click"
	KindInput  Kind = "input"
	KindChange Kind = "change"
	KindSubmit Kind = "submit"
)

// Valid reports whether k is a captured kind.
func (k Kind) Valid() bool {
	switch k {
	case KindClick, KindInput, KindChange, KindSubmit:
		return true
	}
	return false
}

const (
	maxTextLen    = 180
	maxClasses    = 4
	maxAncestry   = 4
	maxValueLen   = 80
	maxCSSPathLen = 400
	unknownFrame  = "about:blank"
	passwordInput = "password"
)

// NodeSummary identifies an element.
type NodeSummary struct {
	Tag       string   `json:"tag"`
	ID        string   `json:"id,omitempty"`
	Role      string   `json:"role,omitempty"`
	Name      string   `json:"name,omitempty"`
	Type      string   `json:"type,omitempty"`
	AriaLabel string   `json:"ariaLabel,omitempty"`
	Title     string   `json:"title,omitempty"`
	TestID    string   `json:"testId,omitempty"`
	Classes   []string `json:"classes,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// Event is one captured interaction.
type Event struct {
	Kind          Kind          `json:"kind"`
	OffsetMs      int64         `json:"offsetMs"`
	FrameURL      string        `json:"frameUrl"`
	Target        NodeSummary   `json:"target"`
	CSSPath       string        `json:"cssPath,omitempty"`
	Ancestry      []NodeSummary `json:"ancestry,omitempty"`
	MutationCount int           `json:"mutationCount"`
	ValuePreview  string        `json:"valuePreview,omitempty"`
	Button        *int          `json:"button,omitempty"`
}

// RawNode is an element as reported by a capture script.
type RawNode struct {
	Tag       string   `mapstructure:"tag"`
	ID        string   `mapstructure:"id"`
	Role      string   `mapstructure:"role"`
	Name      string   `mapstructure:"name"`
	Type      string   `mapstructure:"type"`
	AriaLabel string   `mapstructure:"ariaLabel"`
	Title     string   `mapstructure:"title"`
	TestID    string   `mapstructure:"dataTestId"`
	DataTest  string   `mapstructure:"dataTest"`
	DataQA    string   `mapstructure:"dataQa"`
	DataCy    string   `mapstructure:"dataCy"`
	Classes   []string `mapstructure:"classes"`
	Text      string   `mapstructure:"text"`
}

// RawEvent is an event as reported by a capture script, before normalisation.
type RawEvent struct {
	Kind Kind `mapstructure:"kind"`
	// TimestampMs is the wall-clock time of the event in unix milliseconds.
	TimestampMs int64     `mapstructure:"ts"`
	FrameURL    string    `mapstructure:"frameUrl"`
	Target      RawNode   `mapstructure:"target"`
	Ancestry    []RawNode `mapstructure:"ancestry"`
	CSSPath     string    `mapstructure:"css"`
	Value       string    `mapstructure:"value"`
	Button      *int      `mapstructure:"button"`
}

func summarize(n RawNode) NodeSummary {
	testID := firstNonEmpty(n.TestID, n.DataTest, n.DataQA, n.DataCy)
	var classes []string
	for _, c := range n.Classes {
		if c = strings.TrimSpace(c); c != "" {
			classes = append(classes, c)
		}
		if len(classes) == maxClasses {
			break
		}
	}
	return NodeSummary{
		Tag:       strings.ToLower(normalizeText(n.Tag)),
		ID:        normalizeText(n.ID),
		Role:      normalizeText(n.Role),
		Name:      normalizeText(n.Name),
		Type:      normalizeText(n.Type),
		AriaLabel: normalizeText(n.AriaLabel),
		Title:     normalizeText(n.Title),
		TestID:    normalizeText(testID),
		Classes:   classes,
		Text:      normalizeText(n.Text),
	}
}

func (n RawNode) isPassword() bool {
	return strings.EqualFold(strings.TrimSpace(n.Type), passwordInput)
}

// normalizeText collapses whitespace and truncates to maxTextLen runes.
func normalizeText(s string) string {
	return truncate(strings.Join(strings.Fields(s), " "), maxTextLen)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
