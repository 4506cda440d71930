// Package agent runs the work agent: a tool-calling loop that turns one
// spoken task into browser actions through the executor and the
// observation guard.
package agent

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/antoinenguyen27/siren/pkg/executor"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/telemetry"
)

// DefaultMaxTurns caps model round trips per task.
const DefaultMaxTurns = 25

// ErrTurnLimit is returned when the model keeps calling tools past the limit.
var ErrTurnLimit = errors.New("agent reached its turn limit")

// ChatClient is the model call the loop needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error)
}

// Agent drives tasks with a fixed tool set.
type Agent struct {
	llm      ChatClient
	tools    []Tool
	byName   map[string]Tool
	maxTurns int
}

func New(llm ChatClient, maxTurns int) *Agent {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	tools := Tools()
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &Agent{llm: llm, tools: tools, byName: byName, maxTurns: maxTurns}
}

// Report summarises one finished task.
type Report struct {
	// Response is the user-facing confirmation.
	Response          string
	Turns             int
	ToolCalls         int
	PermanentFailures int
	ObserveCalls      int
}

// Run executes transcript against env. The task bookkeeping in env.State is
// used for this run only.
func (a *Agent) Run(ctx context.Context, env *Env, transcript string) (report Report, err error) {
	ctx, span := telemetry.StartSpan(ctx, "agent.run",
		attribute.String("agent.site", env.Site),
		attribute.String("agent.task_id", env.State.ID()),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("agent.turns", report.Turns),
			attribute.Int("agent.permanent_failures", report.PermanentFailures),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := logger.G(ctx).WithField("task_id", env.State.ID()).WithField("site", env.Site)
	ctx = logger.WithLogger(ctx, log)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userMessage(env.Site, transcript)},
	}
	defs := ToOpenAITools(a.tools)

	var last string
	for report.Turns < a.maxTurns {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		msg, err := a.llm.Chat(ctx, messages, defs)
		if err != nil {
			return report, errors.Wrap(err, "model call failed")
		}
		report.Turns++
		messages = append(messages, msg)
		if msg.Content != "" {
			last = msg.Content
		}

		if len(msg.ToolCalls) == 0 {
			report.Response = FinalResponse(last)
			report.ObserveCalls = env.State.ObserveCalls()
			log.WithField("turns", report.Turns).Info("task finished")
			return report, nil
		}

		for _, call := range msg.ToolCalls {
			res := a.runTool(ctx, env, call.Function.Name, call.Function.Arguments)
			report.ToolCalls++
			if res.Outcome != nil && res.Outcome.Kind == executor.PermanentFailure {
				report.PermanentFailures++
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    res.AssistantFacing(),
				ToolCallID: call.ID,
			})
		}
	}

	report.ObserveCalls = env.State.ObserveCalls()
	log.WithField("max_turns", a.maxTurns).Warn("reached maximum turn limit")
	return report, errors.Wrapf(ErrTurnLimit, "stopped after %d turns", a.maxTurns)
}

// runTool validates and executes one call inside its own span.
func (a *Agent) runTool(ctx context.Context, env *Env, name, parameters string) Result {
	tool, ok := a.byName[name]
	if !ok {
		logger.G(ctx).WithField("tool", name).Warn("model called an unknown tool")
		return Result{Err: fmt.Sprintf("unknown tool %q", name)}
	}

	kvs, err := tool.TracingKVs(parameters)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("tool", name).Debug("failed to get tracing kvs")
	}
	ctx, span := telemetry.StartSpan(ctx, "agent.tool."+name, kvs...)
	defer span.End()

	if err := tool.ValidateInput(parameters); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{Err: err.Error()}
	}
	res := tool.Execute(ctx, env, parameters)
	if res.IsError() {
		span.SetStatus(codes.Error, res.Err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return res
}
