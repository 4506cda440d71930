package skills

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section headings of a skill document.
const (
	SectionIntent              = "Intent"
	SectionPreconditions       = "Preconditions"
	SectionActions             = "Actions"
	SectionSelfHealingNotes    = "Self-Healing Notes"
	SectionConfidenceRationale = "Confidence Rationale"
)

var (
	metadataLine   = regexp.MustCompile(`(?i)^(type|site|confidence):\s*(.*?)\s*$`)
	actionStart    = regexp.MustCompile(`^\d+[.)]\s*(.*)$`)
	actionField    = regexp.MustCompile(`(?i)^(intent|element|act_hint|dom_event_ref):\s*(.*?)\s*$`)
	preconditionLn = regexp.MustCompile(`^[-*+]\s+(.*)$`)
)

var markdown = goldmark.New()

type heading struct {
	level     int
	title     string
	lineStart int // offset of the line holding the heading
	bodyStart int // offset just past the heading line
}

// ParseDocument reads the skill file format. It never fails: malformed or
// missing parts are left empty.
func ParseDocument(content string) Document {
	source := []byte(content)
	headings := scanHeadings(source)

	doc := Document{Content: content}
	preambleEnd := len(source)
	preambleStart := 0

	for i, h := range headings {
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		body := string(source[h.bodyStart:end])

		switch {
		case h.level == 1 && doc.Name == "":
			doc.Name = h.title
			preambleStart = h.bodyStart
			preambleEnd = end
		case h.level == 2:
			assignSection(&doc, h.title, body)
		}
	}

	if doc.Name != "" {
		parseMetadata(&doc, string(source[preambleStart:preambleEnd]))
	}
	return doc
}

func scanHeadings(source []byte) []heading {
	root := markdown.Parser().Parse(text.NewReader(source))

	var out []heading
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}

		var title bytes.Buffer
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			title.Write(seg.Value(source))
		}

		first := lines.At(0)
		last := lines.At(lines.Len() - 1)
		lineStart := bytes.LastIndexByte(source[:first.Start], '\n') + 1
		bodyStart := len(source)
		if nl := bytes.IndexByte(source[last.Stop:], '\n'); nl >= 0 {
			bodyStart = last.Stop + nl + 1
		}

		out = append(out, heading{
			level:     h.Level,
			title:     strings.TrimSpace(title.String()),
			lineStart: lineStart,
			bodyStart: bodyStart,
		})
	}
	return out
}

func assignSection(doc *Document, title, body string) {
	trimmed := strings.TrimSpace(body)
	switch strings.ToLower(title) {
	case strings.ToLower(SectionIntent):
		doc.Intent = trimmed
	case strings.ToLower(SectionPreconditions):
		doc.Preconditions = parsePreconditions(trimmed)
	case strings.ToLower(SectionActions):
		doc.Actions = parseActions(trimmed)
	case strings.ToLower(SectionSelfHealingNotes):
		doc.SelfHealingNotes = trimmed
	case strings.ToLower(SectionConfidenceRationale):
		doc.ConfidenceRationale = trimmed
	}
}

func parseMetadata(doc *Document, preamble string) {
	for _, line := range strings.Split(preamble, "\n") {
		m := metadataLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		value := strings.ToLower(unquote(m[2]))
		switch strings.ToLower(m[1]) {
		case "type":
			doc.Type = value
		case "site":
			doc.Site = value
		case "confidence":
			doc.Confidence = value
		}
	}
}

func parsePreconditions(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if m := preconditionLn.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

func parseActions(body string) []Action {
	var (
		out     []Action
		current *Action
	)
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if m := actionStart.FindStringSubmatch(line); m != nil {
			out = append(out, Action{})
			current = &out[len(out)-1]
			line = m[1]
		}
		if current == nil {
			continue
		}
		m := actionField.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := unquote(m[2])
		switch strings.ToLower(m[1]) {
		case "intent":
			current.Intent = value
		case "element":
			current.Element = value
		case "act_hint":
			current.ActHint = value
		case "dom_event_ref":
			current.DOMEventRef = value
		}
	}
	return out
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// MetadataOf summarises a stored entry for listings.
func MetadataOf(e Entry) Metadata {
	doc := ParseDocument(e.Content)
	site := doc.Site
	if site == "" {
		site = SiteFromKey(e.Filename)
	}
	return Metadata{
		Name:       e.Name,
		Filename:   e.Filename,
		Site:       site,
		Confidence: doc.Confidence,
		Intent:     doc.Intent,
		Content:    e.Content,
	}
}
