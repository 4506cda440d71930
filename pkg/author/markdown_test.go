package author

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		count    int
	}{
		{"email", "mail Foo.Bar@Example.COM now", "mail [redacted_email] now", 1},
		{"opaque id", "open doc 1a2b3c4d5e6f7a8b9c0d", "open doc [redacted_id]", 1},
		{"fifteen chars kept", "abcdefghijklmno", "abcdefghijklmno", 0},
		{"file", "attach Q3-report.final.PDF please", "attach [redacted_file] please", 1},
		{"several", "a@b.io and c@d.io with x.csv", "[redacted_email] and [redacted_email] with [redacted_file]", 3},
		{"nothing", "click the blue button", "click the blue button", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, n := Redact(tt.input)
			assert.Equal(t, tt.expected, out)
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestEnforceVerbatim(t *testing.T) {
	md := `1. element: "Search Box"
2. element: "Go"
3. element: "Results list"`

	t.Run("positional replacement clamped", func(t *testing.T) {
		out, n := enforceVerbatim(md, []string{"Search box", "Go"})
		assert.Equal(t, 2, n)
		assert.Equal(t, "1. element: \"Search box\"\n2. element: \"Go\"\n3. element: \"Go\"", out)
	})

	t.Run("no descriptions leaves text alone", func(t *testing.T) {
		out, n := enforceVerbatim(md, nil)
		assert.Zero(t, n)
		assert.Equal(t, md, out)
	})

	t.Run("surrounding whitespace in field is tolerated", func(t *testing.T) {
		out, n := enforceVerbatim(`element: " Go "`, []string{"Go"})
		assert.Zero(t, n)
		assert.Equal(t, `element: " Go "`, out)
	})

	t.Run("descriptions with inner quotes match whole field", func(t *testing.T) {
		in := "1. element: \"button \"Submit\"\"\n   act_hint: \"Click it\""
		out, n := enforceVerbatim(in, []string{`button "Submit"`})
		assert.Zero(t, n)
		assert.Equal(t, in, out)
	})

	t.Run("escaped inner quotes match", func(t *testing.T) {
		in := `element: "button \"Submit\""`
		out, n := enforceVerbatim(in, []string{`button "Submit"`})
		assert.Zero(t, n)
		assert.Equal(t, in, out)
	})

	t.Run("quoted description replaces the whole field", func(t *testing.T) {
		in := "element: \"button \"Send\"\"\nact_hint: \"Click\""
		out, n := enforceVerbatim(in, []string{`button "Submit"`})
		assert.Equal(t, 1, n)
		assert.Equal(t, "element: \"button \"Submit\"\"\nact_hint: \"Click\"", out)
	})
}

func TestSetConfidence(t *testing.T) {
	assert.Equal(t, "# T\nconfidence: low\n", setConfidence("# T\nconfidence: High\n", "low"))
	assert.Equal(t, "# T\nconfidence: medium\ntype: atomic", setConfidence("# T\ntype: atomic", "medium"))
	assert.Equal(t, "confidence: low\nbody", setConfidence("body", "low"))
}

func TestLowerConfidence(t *testing.T) {
	assert.Equal(t, "confidence: medium", lowerConfidence("confidence: high", "medium"))
	assert.Equal(t, "confidence: low", lowerConfidence("confidence: low", "medium"))
	assert.Equal(t, "confidence: medium", lowerConfidence("confidence: medium", "medium"))
	assert.Equal(t, "# T\nconfidence: medium", lowerConfidence("# T", "medium"))
}

func TestAppendNote(t *testing.T) {
	t.Run("appends to existing section before the next one", func(t *testing.T) {
		md := "# T\n\n## Self-Healing Notes\nscroll first\n\n## Confidence Rationale\nclear"
		out := appendNote(md, "Self-Healing Notes", "retry")
		assert.Equal(t, "# T\n\n## Self-Healing Notes\nscroll first\nretry\n\n## Confidence Rationale\nclear", out)
	})

	t.Run("creates missing section", func(t *testing.T) {
		out := appendNote("# T\n", "Confidence Rationale", "why")
		assert.Equal(t, "# T\n\n## Confidence Rationale\nwhy\n", out)
	})

	t.Run("does not duplicate", func(t *testing.T) {
		md := "## Confidence Rationale\nAlready RETRY noted"
		assert.Equal(t, md, appendNote(md, "Confidence Rationale", "retry noted"))
	})

	t.Run("empty section", func(t *testing.T) {
		out := appendNote("## Confidence Rationale\n", "Confidence Rationale", "why")
		assert.Equal(t, "## Confidence Rationale\nwhy\n", out)
	})
}

func TestSkillName(t *testing.T) {
	assert.Equal(t, "Open Menu", skillName("type: atomic\n# Open Menu  \n## Intent"))
	assert.Equal(t, "", skillName("## Intent\nno title"))
}
