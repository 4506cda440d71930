// Package observe rate-limits and de-duplicates page observation calls made
// during one task. Budget exhaustion and staleness are reported as sentinel
// results rather than errors so the calling policy can change course.
package observe

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/task"
	"github.com/antoinenguyen27/siren/pkg/telemetry"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

const (
	// CallBudget is the maximum number of observation calls per task.
	CallBudget = 12
	// TopResults is how many elements are returned and compared per call.
	TopResults = 10
	// StaleRepeats is the number of consecutive repeats that marks results stale.
	StaleRepeats = 2

	GuardrailSentinel = "OBSERVE_GUARDRAIL"
	StaleSentinel     = "OBSERVE_STALE"

	guardrailMessage = GuardrailSentinel + ": observe_page call budget exceeded for this task. Stop calling observe_page and proceed with best-effort act() or report failure."
	staleMessage     = StaleSentinel + ": results unchanged across repeated calls. Stop calling observe_page repeatedly. Execute a fallback action (for example scroll, open filters, or act on best candidate) or report failure."
)

// ResultKind classifies a Result.
type ResultKind string

const (
	Fresh          ResultKind = "fresh"
	Stale          ResultKind = "stale"
	BudgetExceeded ResultKind = "budget_exceeded"
	Failed         ResultKind = "failed"
)

// Result is what one guarded observation returns.
type Result struct {
	Kind     ResultKind
	Elements []page.ObservedElement
	// Text is the rendering handed back to the calling policy.
	Text string
	Err  error
}

// Guard wraps a page capability's Observe.
type Guard struct {
	page page.Page
}

// NewGuard returns a Guard over p.
func NewGuard(p page.Page) *Guard {
	return &Guard{page: p}
}

// Observe performs one guarded observation for query using the trackers in st.
func (g *Guard) Observe(ctx context.Context, st *task.State, query string) Result {
	call := st.NextObserveCall()
	log := logger.G(ctx).WithField("tool", "observe_page").WithField("call", call)
	logger.Debugf(ctx, "[tool:observe_page] query=%q", query)

	if call > CallBudget {
		log.Warn("observation budget exceeded")
		return Result{Kind: BudgetExceeded, Text: guardrailMessage}
	}

	ctx, span := telemetry.StartSpan(ctx, "observe.guarded",
		attribute.String("observe.query", query),
		attribute.Int("observe.call", call),
	)
	defer span.End()

	elements, err := g.page.Observe(ctx, query, page.ObserveOptions{IncludeIframes: true})
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Warn("observation failed")
		return Result{Kind: Failed, Err: err, Text: "observe_page failed: " + err.Error()}
	}
	logger.Debugf(ctx, "[tool:observe_page] found=%d", len(elements))

	top := Top(elements)
	rendered := render(top)

	repeats := st.TrackSignature(Signature(top))
	span.SetAttributes(attribute.Int("observe.repeats", repeats), attribute.Int("observe.found", len(elements)))
	if repeats >= StaleRepeats {
		log.WithField("repeats", repeats).Warn("observation results are stale")
		return Result{Kind: Stale, Elements: top, Text: staleMessage + "\n" + rendered}
	}

	return Result{Kind: Fresh, Elements: top, Text: rendered}
}

// Top returns a copy of at most TopResults elements.
func Top(elements []page.ObservedElement) []page.ObservedElement {
	n := len(elements)
	if n > TopResults {
		n = TopResults
	}
	out := make([]page.ObservedElement, n)
	copy(out, elements[:n])
	return out
}

// Signature canonicalizes a result set for staleness comparison.
func Signature(elements []page.ObservedElement) string {
	parts := make([]string, 0, len(elements))
	for _, e := range elements {
		parts = append(parts, e.Description+"|"+e.Method+"|"+e.Selector)
	}
	return strings.Join(parts, "||")
}

func render(elements []page.ObservedElement) string {
	b, err := json.Marshal(elements)
	if err != nil {
		return "[]"
	}
	return string(b)
}
