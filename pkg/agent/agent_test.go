package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoinenguyen27/siren/pkg/memory"
	"github.com/antoinenguyen27/siren/pkg/observe"
	"github.com/antoinenguyen27/siren/pkg/skills"
	"github.com/antoinenguyen27/siren/pkg/types/page"
	"github.com/antoinenguyen27/siren/pkg/types/page/pagetest"
)

// scriptedChat replays assistant messages and records what it was sent.
type scriptedChat struct {
	mu       sync.Mutex
	replies  []openai.ChatCompletionMessage
	err      error
	requests [][]openai.ChatCompletionMessage
	tools    []openai.Tool
}

func (s *scriptedChat) Chat(_ context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, append([]openai.ChatCompletionMessage(nil), messages...))
	s.tools = tools
	if s.err != nil {
		return openai.ChatCompletionMessage{}, s.err
	}
	if len(s.replies) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Nothing left to do."}, nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func call(id, name, args string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: args},
		}},
	}
}

func answer(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
}

type staticSkills struct {
	entries []skills.Entry
	domain  string
}

func (s *staticSkills) LoadForDomain(domain string) ([]skills.Entry, error) {
	s.domain = domain
	return s.entries, nil
}

func (s *staticSkills) LoadAll() ([]skills.Entry, error) { return s.entries, nil }

func toolMessages(msgs []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, m := range msgs {
		if m.Role == openai.ChatMessageRoleTool {
			out = append(out, m)
		}
	}
	return out
}

func TestRun_SuccessfulTask(t *testing.T) {
	fake := &pagetest.Fake{}
	chat := &scriptedChat{replies: []openai.ChatCompletionMessage{
		call("1", "read_skills", `{"query":"compose an email"}`),
		call("2", "act", `{"actInstruction":"click the Compose button","stepDescription":"Open composer"}`),
		answer("I opened the composer. It is ready for your message. Anything else?"),
	}}
	src := &staticSkills{}
	env := NewEnv(fake, "mail.example.com", src, memory.New())

	report, err := New(chat, 10).Run(context.Background(), env, "compose an email")
	require.NoError(t, err)

	assert.Equal(t, "I opened the composer. It is ready for your message.", report.Response)
	assert.Equal(t, 3, report.Turns)
	assert.Equal(t, 2, report.ToolCalls)
	assert.Zero(t, report.PermanentFailures)
	assert.Equal(t, 1, fake.CountCalls("Act"))

	first := chat.requests[0]
	require.Len(t, first, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, first[0].Role)
	assert.Equal(t, "Site: mail.example.com\nTask: compose an email", first[1].Content)
	assert.Len(t, chat.tools, 8)

	tools := toolMessages(chat.requests[2])
	require.Len(t, tools, 2)
	assert.Equal(t, "No skills recorded for this site.", tools[0].Content)
	assert.Equal(t, "1", tools[0].ToolCallID)
	assert.Equal(t, "Success: Open composer", tools[1].Content)
}

func TestRun_PermanentFailureIsCounted(t *testing.T) {
	fake := &pagetest.Fake{
		ActFunc:  func(context.Context, string) error { return errors.New("element not found") },
		Elements: []page.ObservedElement{{Description: "Compose"}},
	}
	act := `{"actInstruction":"click Send","stepDescription":"Send mail"}`
	chat := &scriptedChat{replies: []openai.ChatCompletionMessage{
		call("1", "act", act),
		call("2", "act", act),
		call("3", "act", act),
		answer("I could not find the Send button."),
	}}
	env := NewEnv(fake, "mail.example.com", nil, nil)

	report, err := New(chat, 10).Run(context.Background(), env, "send it")
	require.NoError(t, err)
	assert.Equal(t, 1, report.PermanentFailures)
	assert.Equal(t, "I could not find the Send button.", report.Response)

	tools := toolMessages(chat.requests[3])
	require.Len(t, tools, 3)
	assert.True(t, strings.HasPrefix(tools[0].Content, "Failed attempt 1/3"))
	assert.True(t, strings.HasPrefix(tools[2].Content, "Failed permanently after 3 retries"))
	assert.Contains(t, tools[2].Content, "Current page hints: Compose")
}

func TestRun_ToolErrorsGoBackToTheModel(t *testing.T) {
	fake := &pagetest.Fake{}
	chat := &scriptedChat{replies: []openai.ChatCompletionMessage{
		call("1", "teleport", `{}`),
		call("2", "act", `{"actInstruction":""}`),
		call("3", "navigate", `{"url":"https://example.com"}`),
		call("4", "deep_locator_action", `{"selector":"#x","operation":"doubleClick","stepDescription":"x"}`),
		answer(""),
	}}
	env := NewEnv(fake, "example.com", nil, nil)

	report, err := New(chat, 10).Run(context.Background(), env, "do things")
	require.NoError(t, err)
	assert.Equal(t, "Done.", report.Response)

	tools := toolMessages(chat.requests[4])
	require.Len(t, tools, 4)
	assert.Equal(t, `Error: unknown tool "teleport"`, tools[0].Content)
	assert.Equal(t, "Error: actInstruction is required", tools[1].Content)
	assert.Equal(t, "Error: navigation is not available", tools[2].Content)
	assert.Equal(t, `Error: unsupported operation "doubleClick"`, tools[3].Content)
	assert.Empty(t, fake.Calls())
}

func TestRun_ObserveGoesThroughGuard(t *testing.T) {
	fake := &pagetest.Fake{Elements: []page.ObservedElement{{Selector: "#c", Description: "Compose", Method: "click"}}}
	obs := `{"query":"compose button"}`
	chat := &scriptedChat{replies: []openai.ChatCompletionMessage{
		call("1", "observe_page", obs),
		call("2", "observe_page", obs),
		call("3", "observe_page", obs),
		answer("Found it."),
	}}
	env := NewEnv(fake, "mail.example.com", nil, nil)

	report, err := New(chat, 10).Run(context.Background(), env, "find compose")
	require.NoError(t, err)
	assert.Equal(t, 3, report.ObserveCalls)

	tools := toolMessages(chat.requests[3])
	require.Len(t, tools, 3)
	assert.Equal(t, `[{"selector":"#c","description":"Compose","method":"click"}]`, tools[0].Content)
	assert.True(t, strings.HasPrefix(tools[2].Content, observe.StaleSentinel))
}

func TestRun_TurnLimit(t *testing.T) {
	var replies []openai.ChatCompletionMessage
	for i := 0; i < 5; i++ {
		replies = append(replies, call("x", "read_session_memory", `{}`))
	}
	chat := &scriptedChat{replies: replies}
	env := NewEnv(&pagetest.Fake{}, "example.com", nil, nil)

	report, err := New(chat, 3).Run(context.Background(), env, "loop")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTurnLimit)
	assert.Equal(t, 3, report.Turns)
}

func TestRun_ModelError(t *testing.T) {
	chat := &scriptedChat{err: errors.New("upstream 500")}
	env := NewEnv(&pagetest.Fake{}, "example.com", nil, nil)

	_, err := New(chat, 3).Run(context.Background(), env, "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chat := &scriptedChat{}
	_, err := New(chat, 3).Run(ctx, NewEnv(&pagetest.Fake{}, "example.com", nil, nil), "anything")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, chat.requests)
}

func TestTools_ReadSkillsAndMemory(t *testing.T) {
	ctx := context.Background()
	src := &staticSkills{entries: []skills.Entry{
		{Name: "Compose email", Content: "# Compose email\n..."},
		{Name: "Archive thread", Content: "# Archive thread\n..."},
	}}
	mem := memory.New()
	mem.Add(memory.Entry{Task: "open inbox", Result: "Opened.", Timestamp: time.Date(2026, 10, 18, 9, 5, 0, 0, time.Local)})
	env := NewEnv(&pagetest.Fake{}, "mail.example.com", src, mem)

	res := ReadSkillsTool{}.Execute(ctx, env, `{"query":"archive this thread","siteHint":"mail.example.com"}`)
	assert.Equal(t, "## SKILL: Archive thread\n# Archive thread\n...", res.Output)
	assert.Equal(t, "mail.example.com", src.domain)

	res = ReadMemoryTool{}.Execute(ctx, env, "")
	assert.Equal(t, `[09:05:00] "open inbox" -> Opened.`, res.Output)

	res = ReadMemoryTool{}.Execute(ctx, NewEnv(&pagetest.Fake{}, "x", nil, nil), "")
	assert.Equal(t, "No prior tasks this session.", res.Output)
}

func TestTools_ActObservedAndDeepLocator(t *testing.T) {
	ctx := context.Background()
	fake := &pagetest.Fake{}
	env := NewEnv(fake, "example.com", nil, nil)

	res := ActObservedTool{}.Execute(ctx, env, `{"observedAction":{"selector":"#q","description":"textbox \"Search\"","method":"fill","arguments":["shoes"]},"stepDescription":"Fill search"}`)
	assert.Equal(t, "Success: Fill search", res.Output)

	res = DeepLocatorTool{}.Execute(ctx, env, `{"selector":"frame:1 #go","operation":"click","stepDescription":"Press go"}`)
	assert.Equal(t, "Success: Press go", res.Output)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"shoes"}, calls[0].Element.Arguments)
	assert.Equal(t, "frame:1 #go", calls[1].Argument)
	assert.Equal(t, page.OpClick, calls[1].Operation)
}

func TestTools_Extract(t *testing.T) {
	fake := &pagetest.Fake{ExtractFunc: func(_ context.Context, q string) (string, error) {
		return "# Orders\n\nTotal 42", nil
	}}
	res := ExtractTool{}.Execute(context.Background(), NewEnv(fake, "shop.example.com", nil, nil), `{"query":"order total"}`)
	assert.Equal(t, "# Orders\n\nTotal 42", res.Output)
}

func TestTools_Schemas(t *testing.T) {
	for _, tool := range Tools() {
		schema := tool.GenerateSchema()
		require.NotNil(t, schema, tool.Name())
		assert.Equal(t, "object", schema.Type, tool.Name())
		_, err := tool.TracingKVs(`{}`)
		assert.NoError(t, err, tool.Name())
	}

	schema := DeepLocatorTool{}.GenerateSchema()
	op, ok := schema.Properties.Get("operation")
	require.True(t, ok)
	assert.Len(t, op.Enum, 6)
	assert.Contains(t, schema.Required, "selector")
}
