package author

import "regexp"

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Applied in order; later rules see the output of earlier ones.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`), "[redacted_email]"},
	{regexp.MustCompile(`(?i)\b[a-z0-9]{16,}\b`), "[redacted_id]"},
	{regexp.MustCompile(`(?i)\b[\w.-]+\.(pdf|doc|docx|ppt|pptx|xls|xlsx|csv|txt|zip)\b`), "[redacted_file]"},
}

// Redact scrubs user-specific tokens from s and returns the scrubbed text with
// the number of substitutions made.
func Redact(s string) (string, int) {
	count := 0
	for _, rule := range redactionRules {
		s = rule.pattern.ReplaceAllStringFunc(s, func(string) string {
			count++
			return rule.replacement
		})
	}
	return s, count
}
