package agent

import (
	"regexp"
	"strings"
)

// RefusalMessage answers tasks that touch credentials, payment or personal data.
const RefusalMessage = "I can help with navigation and general actions, but I cannot fill passwords, payment details, or other personal information."

// short signals only match whole words so "lesson" does not trip "ssn"
var refusalSignals = []*regexp.Regexp{
	regexp.MustCompile(`password`),
	regexp.MustCompile(`passcode`),
	regexp.MustCompile(`payment`),
	regexp.MustCompile(`credit\s+card`),
	regexp.MustCompile(`\bcvv\b`),
	regexp.MustCompile(`social\s+security`),
	regexp.MustCompile(`\bssn\b`),
	regexp.MustCompile(`personally\s+identifiable`),
	regexp.MustCompile(`\bpii\b`),
}

// ShouldRefuse reports whether a task must be declined before any browser work.
func ShouldRefuse(transcript string) bool {
	lowered := strings.ToLower(transcript)
	for _, re := range refusalSignals {
		if re.MatchString(lowered) {
			return true
		}
	}
	return false
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// FinalResponse trims the agent's last message to its first two sentences.
func FinalResponse(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return "Done."
	}

	var sentences []string
	rest := cleaned
	for len(sentences) < 2 {
		loc := sentenceEnd.FindStringIndex(rest)
		if loc == nil {
			sentences = append(sentences, rest)
			break
		}
		// keep the punctuation, drop the whitespace
		sentences = append(sentences, rest[:loc[0]+1])
		rest = rest[loc[1]:]
	}
	return strings.TrimSpace(strings.Join(sentences, " "))
}
