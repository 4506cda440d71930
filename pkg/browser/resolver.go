package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

// Resolver picks the snapshot candidates that answer a natural-language
// query, best first. Descriptions must come back unchanged.
type Resolver interface {
	Resolve(ctx context.Context, query string, candidates []page.ObservedElement) ([]page.ObservedElement, error)
}

// Completer is the single-turn completion call the LLM resolver needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const resolverPrompt = `You map a request to elements of a web page.
You receive a numbered list of interactive elements and a request.
Reply with a JSON array only, best match first, at most 10 items:
[{"index": <number>, "method": "<click|fill|type|hover|selectOption|scrollTo>", "arguments": ["<text to enter, if any>"]}]
Only use indexes from the list. Leave arguments empty unless the request supplies text or an option.
Reply [] when nothing matches.`

// LLMResolver ranks candidates with a language model and falls back to
// keyword ranking when the model fails or answers with garbage.
type LLMResolver struct {
	llm Completer
}

func NewLLMResolver(c Completer) *LLMResolver {
	return &LLMResolver{llm: c}
}

type resolvedChoice struct {
	Index     int      `json:"index"`
	Method    string   `json:"method"`
	Arguments []string `json:"arguments"`
}

func (r *LLMResolver) Resolve(ctx context.Context, query string, candidates []page.ObservedElement) ([]page.ObservedElement, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i, c.Description)
	}
	user := fmt.Sprintf("Elements:\n%s\nRequest: %s", b.String(), query)

	reply, err := r.llm.Complete(ctx, resolverPrompt, user)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("element resolution failed, using keyword ranking")
		return RankByKeywords(query, candidates), nil
	}

	resolved, err := applyChoices(reply, candidates)
	if err != nil {
		logger.G(ctx).WithError(err).Debug("unusable resolver reply, using keyword ranking")
		return RankByKeywords(query, candidates), nil
	}
	return resolved, nil
}

// applyChoices decodes a resolver reply against the candidate list. Invalid
// or repeated indexes are skipped; methods default to the candidate's own.
func applyChoices(reply string, candidates []page.ObservedElement) ([]page.ObservedElement, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	start, end := strings.Index(reply, "["), strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, errors.New("no JSON array in reply")
	}

	var choices []resolvedChoice
	if err := json.Unmarshal([]byte(reply[start:end+1]), &choices); err != nil {
		return nil, errors.Wrap(err, "failed to decode resolver reply")
	}

	seen := make(map[int]bool)
	out := make([]page.ObservedElement, 0, len(choices))
	for _, c := range choices {
		if c.Index < 0 || c.Index >= len(candidates) || seen[c.Index] {
			continue
		}
		seen[c.Index] = true
		el := candidates[c.Index]
		if op := page.LocateOperation(c.Method); op.Valid() {
			el.Method = c.Method
		}
		if len(c.Arguments) > 0 && c.Arguments[0] != "" {
			el.Arguments = c.Arguments
		}
		out = append(out, el)
	}
	return out, nil
}
