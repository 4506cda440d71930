package browser

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pkg/errors"
)

// MaxExtractChars bounds the markdown handed back to the agent.
const MaxExtractChars = 20000

// htmlToMarkdown converts page HTML into markdown, dropping scripts and
// styles, truncated to limit runes.
func htmlToMarkdown(html, baseURL string, limit int) (string, error) {
	converter := md.NewConverter(baseURL, true, nil)
	converter.Remove("script", "style", "noscript", "svg")
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert page to markdown")
	}
	out = strings.TrimSpace(out)

	runes := []rune(out)
	if limit > 0 && len(runes) > limit {
		out = string(runes[:limit]) + fmt.Sprintf("\n\n[truncated: %d of %d characters shown]", limit, len(runes))
	}
	return out, nil
}
