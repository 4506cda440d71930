// Package skills stores learned browser skills as markdown documents in a flat
// directory keyed by site and skill name.
package skills

// Skill types.
const (
	TypeAtomic   = "atomic"
	TypeWorkflow = "workflow"
)

// Confidence levels, ordered from most to least trusted.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Entry is a stored skill as loaded from the repository.
type Entry struct {
	Name     string // heading of the document
	Filename string // repository key
	Path     string
	Content  string
}

// Action is one numbered step of a skill document.
type Action struct {
	Intent      string `json:"intent"`
	Element     string `json:"element"`
	ActHint     string `json:"act_hint"`
	DOMEventRef string `json:"dom_event_ref,omitempty"`
}

// Document is the parsed form of a skill file. Every field except Content is
// optional; missing sections yield zero values.
type Document struct {
	Name                string   `json:"name"`
	Type                string   `json:"type,omitempty"`
	Site                string   `json:"site,omitempty"`
	Confidence          string   `json:"confidence,omitempty"`
	Intent              string   `json:"intent,omitempty"`
	Preconditions       []string `json:"preconditions,omitempty"`
	Actions             []Action `json:"actions,omitempty"`
	SelfHealingNotes    string   `json:"self_healing_notes,omitempty"`
	ConfidenceRationale string   `json:"confidence_rationale,omitempty"`
	Content             string   `json:"-"`
}

// Metadata summarises a stored skill for listings.
type Metadata struct {
	Name       string `json:"name"`
	Filename   string `json:"filename"`
	Site       string `json:"site"`
	Confidence string `json:"confidence"`
	Intent     string `json:"intent"`
	Content    string `json:"content"`
}

// ConfidenceRank orders confidence levels; higher is more trusted. Unknown
// levels rank below low.
func ConfidenceRank(level string) int {
	switch level {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}
