package agent

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/antoinenguyen27/siren/pkg/executor"
	"github.com/antoinenguyen27/siren/pkg/memory"
	"github.com/antoinenguyen27/siren/pkg/observe"
	"github.com/antoinenguyen27/siren/pkg/skills"
	"github.com/antoinenguyen27/siren/pkg/task"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

// SkillSource is the read side of the skill repository.
type SkillSource interface {
	LoadForDomain(domain string) ([]skills.Entry, error)
	LoadAll() ([]skills.Entry, error)
}

// Env is everything the tools of one task operate on.
type Env struct {
	State    *task.State
	Page     page.Page
	Executor *executor.Executor
	Guard    *observe.Guard
	Skills   SkillSource
	Memory   *memory.Memory
	Site     string
}

// NewEnv builds the tool environment for a fresh task on p.
func NewEnv(p page.Page, site string, source SkillSource, mem *memory.Memory) *Env {
	return &Env{
		State:    task.NewState(),
		Page:     p,
		Executor: executor.New(p),
		Guard:    observe.NewGuard(p),
		Skills:   source,
		Memory:   mem,
		Site:     site,
	}
}

// Result is what a tool hands back to the model.
type Result struct {
	Output string
	Err    string
	// Outcome is set by the action tools.
	Outcome *executor.Outcome
}

func (r Result) IsError() bool { return r.Err != "" }

// AssistantFacing renders the result as tool message content.
func (r Result) AssistantFacing() string {
	if r.Err != "" {
		return "Error: " + r.Err
	}
	return r.Output
}

func errorResult(err error) Result {
	return Result{Err: err.Error()}
}

// Tool is one function the work agent may call.
type Tool interface {
	Name() string
	Description() string
	GenerateSchema() *jsonschema.Schema
	ValidateInput(parameters string) error
	Execute(ctx context.Context, env *Env, parameters string) Result
	TracingKVs(parameters string) ([]attribute.KeyValue, error)
}

// GenerateSchema reflects the input struct of a tool.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func parse[T any](parameters string) (T, error) {
	var in T
	if parameters == "" {
		parameters = "{}"
	}
	if err := json.Unmarshal([]byte(parameters), &in); err != nil {
		return in, errors.Wrap(err, "failed to parse input")
	}
	return in, nil
}

// Tools returns the work agent's tool set in the order it is offered.
func Tools() []Tool {
	return []Tool{
		ActTool{},
		ActObservedTool{},
		DeepLocatorTool{},
		ObserveTool{},
		ExtractTool{},
		ReadSkillsTool{},
		ReadMemoryTool{},
		NavigateTool{},
	}
}

// ToOpenAITools converts tools into function definitions.
func ToOpenAITools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.GenerateSchema(),
			},
		}
	}
	return out
}
