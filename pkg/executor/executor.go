// Package executor implements the action escalation ladder. Every action
// attempt either succeeds, or is converted into retry guidance carrying fresh
// page hints, or, after three failures of the same step, into a permanent
// failure report. Nothing is ever returned as an error: the calling policy
// decides whether to escalate, retry, or abandon.
package executor

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/task"
	"github.com/antoinenguyen27/siren/pkg/telemetry"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

const (
	// MaxHints is the number of element descriptions attached to failure guidance.
	MaxHints = 8

	hintQuery = "What interactive elements are currently visible and available?"
)

// OutcomeKind classifies an Outcome.
type OutcomeKind string

const (
	Succeeded        OutcomeKind = "succeeded"
	Retry            OutcomeKind = "retry"
	PermanentFailure OutcomeKind = "permanent_failure"
)

// Outcome is the structured guidance returned for one attempt.
type Outcome struct {
	Kind    OutcomeKind
	Step    string
	Variant Variant
	// Attempt is the failure count for the step after this attempt. Zero on success.
	Attempt int
	Err     error
	Hints   []string
	Message string
}

// Executor runs actions against a page capability.
type Executor struct {
	page page.Page
}

// New returns an Executor bound to p.
func New(p page.Page) *Executor {
	return &Executor{page: p}
}

// Key returns the retry key for a: the explicit step id if one is set,
// otherwise the normalized step description.
func Key(a Action) string {
	if id := strings.TrimSpace(a.stepID()); id != "" {
		return "id:" + id
	}
	return task.StepKey(a.StepDescription())
}

// Execute attempts a once and records the result in st.
func (e *Executor) Execute(ctx context.Context, st *task.State, a Action) Outcome {
	step := a.StepDescription()
	key := Key(a)
	log := logger.G(ctx).WithField("tool", a.Variant()).WithField("step", step)

	ctx, span := telemetry.StartSpan(ctx, "executor.execute",
		attribute.String("executor.variant", string(a.Variant())),
		attribute.String("executor.step", step),
	)
	defer span.End()

	err := a.perform(ctx, e.page)
	if err == nil {
		st.ClearStep(key)
		log.Info("action succeeded")
		logger.Debugf(ctx, "[tool:%s] success step=%q", a.Variant(), step)
		span.SetStatus(codes.Ok, "")
		return Outcome{
			Kind:    Succeeded,
			Step:    step,
			Variant: a.Variant(),
			Message: "Success: " + step,
		}
	}

	attempt := st.RecordFailure(key)
	span.RecordError(err)
	span.SetAttributes(attribute.Int("executor.attempt", attempt))
	log.WithError(err).WithField("attempt", attempt).Warn("action failed")
	logger.Debugf(ctx, "[tool:%s] failure step=%q attempt=%d error=%q", a.Variant(), step, attempt, err.Error())

	hints := e.hints(ctx)
	out := Outcome{
		Step:    step,
		Variant: a.Variant(),
		Attempt: attempt,
		Err:     err,
		Hints:   hints,
	}

	if attempt >= task.MaxRetriesPerStep {
		st.ClearStep(key)
		span.SetStatus(codes.Error, "step failed permanently")
		log.WithField("attempt", attempt).Error("giving up on step")
		logger.Debugf(ctx, "[tool:%s] giving up step=%q after %d retries", a.Variant(), step, task.MaxRetriesPerStep)
		out.Kind = PermanentFailure
		out.Message = fmt.Sprintf(
			"Failed permanently after %d retries for step %q. Last error: %s. Current page hints: %s. Stop retrying this step and report failure in final response.",
			task.MaxRetriesPerStep, step, err.Error(), formatHints(hints),
		)
		return out
	}

	span.SetStatus(codes.Error, "attempt failed")
	out.Kind = Retry
	out.Message = fmt.Sprintf(
		"Failed attempt %d/%d for step %q. Error: %s. Current page hints: %s. Adapt your next act() instruction using these hints.",
		attempt, task.MaxRetriesPerStep, step, err.Error(), formatHints(hints),
	)
	return out
}

// hints makes a best-effort observation of the current page. Errors yield no hints.
func (e *Executor) hints(ctx context.Context) []string {
	elements, err := e.page.Observe(ctx, hintQuery, page.ObserveOptions{IncludeIframes: true})
	if err != nil {
		logger.G(ctx).WithError(err).Debug("hint observation failed")
		return []string{}
	}
	if len(elements) > MaxHints {
		elements = elements[:MaxHints]
	}
	return page.Descriptions(elements)
}

func formatHints(hints []string) string {
	if len(hints) == 0 {
		return "none"
	}
	return strings.Join(hints, " | ")
}
