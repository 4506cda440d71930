package author

import (
	"regexp"
	"strings"

	"github.com/antoinenguyen27/siren/pkg/skills"
)

var (
	confidenceLine = regexp.MustCompile(`(?im)^confidence:\s*(high|medium|low)\b.*$`)
	titleLine      = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t]*$`)
	fenceLine      = regexp.MustCompile("^```[a-zA-Z]*$")

	// The field runs to the last quote on the line: descriptions such as
	// button "Submit" carry their own quotes.
	elementField = regexp.MustCompile(`(?m)element:[ \t]*"(.*)"[ \t]*$`)
)

// cleanOutput strips wrappers models like to put around a document: code
// fences and leading or trailing horizontal rules.
func cleanOutput(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if first == "---" || fenceLine.MatchString(first) {
			lines = lines[1:]
			continue
		}
		break
	}
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "---" || last == "```" {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func currentConfidence(md string) string {
	m := confidenceLine.FindStringSubmatch(md)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// setConfidence rewrites the first confidence line, inserting one under the
// title when the document has none.
func setConfidence(md, level string) string {
	line := "confidence: " + level
	if loc := confidenceLine.FindStringIndex(md); loc != nil {
		return md[:loc[0]] + line + md[loc[1]:]
	}
	if loc := titleLine.FindStringIndex(md); loc != nil {
		return md[:loc[1]] + "\n" + line + md[loc[1]:]
	}
	return line + "\n" + md
}

// lowerConfidence sets level only when it is less trusted than the current one.
func lowerConfidence(md, level string) string {
	current := currentConfidence(md)
	if current != "" && skills.ConfidenceRank(current) <= skills.ConfidenceRank(level) {
		return md
	}
	return setConfidence(md, level)
}

func skillName(md string) string {
	m := titleLine.FindStringSubmatch(md)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// appendNote adds note to the named level-two section, creating the section
// at the end of the document when missing. Notes already present are kept once.
func appendNote(md, section, note string) string {
	if note == "" {
		return md
	}
	lines := strings.Split(md, "\n")
	header := "## " + section

	start := -1
	for i, l := range lines {
		if strings.EqualFold(strings.TrimSpace(l), header) {
			start = i
			break
		}
	}
	if start < 0 {
		return strings.TrimRight(md, "\n") + "\n\n" + header + "\n" + note + "\n"
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if strings.HasPrefix(t, "# ") || strings.HasPrefix(t, "## ") || t == "---" {
			end = i
			break
		}
	}

	body := strings.TrimSpace(strings.Join(lines[start+1:end], "\n"))
	if strings.Contains(strings.ToLower(body), strings.ToLower(note)) {
		return md
	}

	out := append([]string{}, lines[:start+1]...)
	if body != "" {
		out = append(out, body)
	}
	out = append(out, note)
	if end < len(lines) {
		out = append(out, "")
		out = append(out, lines[end:]...)
	} else {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

// enforceVerbatim rewrites every quoted element field that is not an exact
// observed description. Replacements are positional, clamped to the last
// description.
func enforceVerbatim(md string, descriptions []string) (string, int) {
	if len(descriptions) == 0 {
		return md, 0
	}
	known := make(map[string]struct{}, len(descriptions))
	for _, d := range descriptions {
		known[d] = struct{}{}
	}

	matches := elementField.FindAllStringSubmatchIndex(md, -1)
	if len(matches) == 0 {
		return md, 0
	}

	var b strings.Builder
	corrected := 0
	last := 0
	for i, m := range matches {
		existing := strings.TrimSpace(md[m[2]:m[3]])
		if _, ok := known[existing]; ok {
			continue
		}
		if _, ok := known[strings.ReplaceAll(existing, `\"`, `"`)]; ok {
			continue
		}
		pos := i
		if pos >= len(descriptions) {
			pos = len(descriptions) - 1
		}
		b.WriteString(md[last:m[0]])
		b.WriteString(`element: "` + descriptions[pos] + `"`)
		last = m[1]
		corrected++
	}
	b.WriteString(md[last:])
	return b.String(), corrected
}
