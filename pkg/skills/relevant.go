package skills

import "strings"

// DefaultRelevantLimit is how many entries Relevant returns when nothing in
// the query matches.
const DefaultRelevantLimit = 8

// Relevant filters entries to those whose name or content mention a word of
// query longer than two characters. When nothing matches, the first
// DefaultRelevantLimit entries are returned instead.
func Relevant(entries []Entry, query string) []Entry {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) > 2 {
			words = append(words, w)
		}
	}

	var matched []Entry
	for _, e := range entries {
		haystack := strings.ToLower(e.Name + "\n" + e.Content)
		for _, w := range words {
			if strings.Contains(haystack, w) {
				matched = append(matched, e)
				break
			}
		}
	}
	if len(matched) > 0 {
		return matched
	}

	if len(entries) > DefaultRelevantLimit {
		return entries[:DefaultRelevantLimit]
	}
	return entries
}

// Format renders entries for inclusion in a model prompt.
func Format(entries []Entry) string {
	if len(entries) == 0 {
		return "No skills recorded for this site."
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, "## SKILL: "+e.Name+"\n"+e.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
