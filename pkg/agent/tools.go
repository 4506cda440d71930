package agent

import (
	"context"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/antoinenguyen27/siren/pkg/executor"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/sites"
	"github.com/antoinenguyen27/siren/pkg/skills"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

func requireStep(step string) error {
	if strings.TrimSpace(step) == "" {
		return errors.New("stepDescription is required")
	}
	return nil
}

func actionResult(out executor.Outcome) Result {
	return Result{Output: out.Message, Outcome: &out}
}

// ActTool performs one natural-language instruction.
type ActTool struct{}

type ActInput struct {
	ActInstruction  string `json:"actInstruction" jsonschema:"required,description=One specific interaction naming the target label location and purpose"`
	StepDescription string `json:"stepDescription" jsonschema:"required,description=Human-readable description of the current step"`
	StepID          string `json:"stepId,omitempty" jsonschema:"description=Optional stable id for the step when descriptions vary between attempts"`
}

func (ActTool) Name() string { return string(executor.VariantGeneral) }

func (ActTool) Description() string {
	return "Perform one atomic browser interaction described in natural language. One interaction per call."
}

func (ActTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[ActInput]() }

func (ActTool) ValidateInput(parameters string) error {
	in, err := parse[ActInput](parameters)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.ActInstruction) == "" {
		return errors.New("actInstruction is required")
	}
	return requireStep(in.StepDescription)
}

func (ActTool) Execute(ctx context.Context, env *Env, parameters string) Result {
	in, err := parse[ActInput](parameters)
	if err != nil {
		return errorResult(err)
	}
	logger.Debugf(ctx, "[tool:act] step=%q instruction=%q", in.StepDescription, in.ActInstruction)
	return actionResult(env.Executor.Execute(ctx, env.State, executor.General{
		Instruction: in.ActInstruction,
		Step:        in.StepDescription,
		StepID:      in.StepID,
	}))
}

func (ActTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	in, err := parse[ActInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{
		attribute.String("agent.act.step", in.StepDescription),
		attribute.String("agent.act.instruction", in.ActInstruction),
	}, nil
}

// ActObservedTool executes an element returned by observe_page.
type ActObservedTool struct{}

type ObservedActionInput struct {
	Selector    string   `json:"selector,omitempty" jsonschema:"description=Observed selector of the target element"`
	Description string   `json:"description" jsonschema:"required,description=Observed element description"`
	Method      string   `json:"method,omitempty" jsonschema:"description=Observed method such as click or fill"`
	Arguments   []string `json:"arguments,omitempty" jsonschema:"description=Arguments for the method"`
}

type ActObservedInput struct {
	ObservedAction  ObservedActionInput `json:"observedAction" jsonschema:"required"`
	StepDescription string              `json:"stepDescription" jsonschema:"required,description=Human-readable description of the current step"`
	StepID          string              `json:"stepId,omitempty" jsonschema:"description=Optional stable id for the step"`
}

func (ActObservedTool) Name() string { return string(executor.VariantConfirmedTarget) }

func (ActObservedTool) Description() string {
	return "Execute one element returned by observe_page exactly as observed. Use it after choosing the precise target from an observation."
}

func (ActObservedTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[ActObservedInput]() }

func (ActObservedTool) ValidateInput(parameters string) error {
	in, err := parse[ActObservedInput](parameters)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.ObservedAction.Description) == "" {
		return errors.New("observedAction.description is required")
	}
	return requireStep(in.StepDescription)
}

func (ActObservedTool) Execute(ctx context.Context, env *Env, parameters string) Result {
	in, err := parse[ActObservedInput](parameters)
	if err != nil {
		return errorResult(err)
	}
	el := in.ObservedAction
	logger.Debugf(ctx, "[tool:act_observed] step=%q action=%q method=%q selector=%q", in.StepDescription, el.Description, el.Method, el.Selector)
	return actionResult(env.Executor.Execute(ctx, env.State, executor.ConfirmedTarget{
		Element: page.ObservedElement{
			Selector:    el.Selector,
			Description: el.Description,
			Method:      el.Method,
			Arguments:   el.Arguments,
		},
		Step:   in.StepDescription,
		StepID: in.StepID,
	}))
}

func (ActObservedTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	in, err := parse[ActObservedInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{
		attribute.String("agent.act_observed.step", in.StepDescription),
		attribute.String("agent.act_observed.method", in.ObservedAction.Method),
	}, nil
}

// DeepLocatorTool runs one operation on an explicit selector.
type DeepLocatorTool struct{}

type DeepLocatorInput struct {
	Selector        string `json:"selector" jsonschema:"required,description=Selector of a confirmed target. Child frame targets keep the frame prefix returned by observe_page"`
	Operation       string `json:"operation" jsonschema:"required,enum=click,enum=fill,enum=type,enum=hover,enum=selectOption,enum=scrollTo"`
	Value           string `json:"value,omitempty" jsonschema:"description=Text or option for fill type and selectOption"`
	StepDescription string `json:"stepDescription" jsonschema:"required,description=Human-readable description of the current step"`
	StepID          string `json:"stepId,omitempty" jsonschema:"description=Optional stable id for the step"`
}

func (DeepLocatorTool) Name() string { return string(executor.VariantPrecision) }

func (DeepLocatorTool) Description() string {
	return "Perform a precise selector-based operation. Only use it for targets confirmed by observe_page or captured DOM evidence when act is not precise enough."
}

func (DeepLocatorTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[DeepLocatorInput]() }

func (DeepLocatorTool) ValidateInput(parameters string) error {
	in, err := parse[DeepLocatorInput](parameters)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Selector) == "" {
		return errors.New("selector is required")
	}
	if !page.LocateOperation(in.Operation).Valid() {
		return errors.Errorf("unsupported operation %q", in.Operation)
	}
	return requireStep(in.StepDescription)
}

func (DeepLocatorTool) Execute(ctx context.Context, env *Env, parameters string) Result {
	in, err := parse[DeepLocatorInput](parameters)
	if err != nil {
		return errorResult(err)
	}
	logger.Debugf(ctx, "[tool:deep_locator_action] step=%q selector=%q operation=%q", in.StepDescription, in.Selector, in.Operation)
	return actionResult(env.Executor.Execute(ctx, env.State, executor.Precision{
		Selector:  in.Selector,
		Operation: page.LocateOperation(in.Operation),
		Value:     in.Value,
		Step:      in.StepDescription,
		StepID:    in.StepID,
	}))
}

func (DeepLocatorTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	in, err := parse[DeepLocatorInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{
		attribute.String("agent.deep_locator.selector", in.Selector),
		attribute.String("agent.deep_locator.operation", in.Operation),
	}, nil
}

// ObserveTool inspects the page through the observation guard.
type ObserveTool struct{}

type ObserveInput struct {
	Query string `json:"query" jsonschema:"required,description=What to look for on the page"`
}

func (ObserveTool) Name() string { return "observe_page" }

func (ObserveTool) Description() string {
	return "List interactive elements on the current page, including inside iframes. Returns at most 10 elements as JSON."
}

func (ObserveTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[ObserveInput]() }

func (ObserveTool) ValidateInput(parameters string) error {
	in, err := parse[ObserveInput](parameters)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Query) == "" {
		return errors.New("query is required")
	}
	return nil
}

func (ObserveTool) Execute(ctx context.Context, env *Env, parameters string) Result {
	in, err := parse[ObserveInput](parameters)
	if err != nil {
		return errorResult(err)
	}
	logger.Debugf(ctx, "[tool:observe_page] query=%q", in.Query)
	res := env.Guard.Observe(ctx, env.State, in.Query)
	logger.Debugf(ctx, "[tool:observe_page] result=%s found=%d", res.Kind, len(res.Elements))
	return Result{Output: res.Text}
}

func (ObserveTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	in, err := parse[ObserveInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{attribute.String("agent.observe.query", in.Query)}, nil
}

// ExtractTool reads non-interactive data from the page.
type ExtractTool struct{}

type ExtractInput struct {
	Query string `json:"query" jsonschema:"required,description=The data to read from the page"`
}

func (ExtractTool) Name() string { return "extract_page_data" }

func (ExtractTool) Description() string {
	return "Read data from the current page such as titles, values or summaries. Use it for questions about page content instead of observe_page."
}

func (ExtractTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[ExtractInput]() }

func (ExtractTool) ValidateInput(parameters string) error {
	in, err := parse[ExtractInput](parameters)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Query) == "" {
		return errors.New("query is required")
	}
	return nil
}

func (ExtractTool) Execute(ctx context.Context, env *Env, parameters string) Result {
	in, err := parse[ExtractInput](parameters)
	if err != nil {
		return errorResult(err)
	}
	logger.Debugf(ctx, "[tool:extract_page_data] query=%q", in.Query)
	ex, ok := env.Page.(page.Extractor)
	if !ok {
		return Result{Err: "page data extraction is not available"}
	}
	out, err := ex.Extract(ctx, in.Query)
	if err != nil {
		return errorResult(err)
	}
	return Result{Output: out}
}

func (ExtractTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	in, err := parse[ExtractInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{attribute.String("agent.extract.query", in.Query)}, nil
}

// ReadSkillsTool returns recorded skills relevant to the task.
type ReadSkillsTool struct{}

type ReadSkillsInput struct {
	Query    string `json:"query" jsonschema:"required,description=The user's task"`
	SiteHint string `json:"siteHint,omitempty" jsonschema:"description=Domain to restrict skills to such as mail.example.com"`
}

func (ReadSkillsTool) Name() string { return "read_skills" }

func (ReadSkillsTool) Description() string {
	return "Read recorded skills for grounding. Call this first, before any act call."
}

func (ReadSkillsTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[ReadSkillsInput]() }

func (ReadSkillsTool) ValidateInput(parameters string) error {
	_, err := parse[ReadSkillsInput](parameters)
	return err
}

func (ReadSkillsTool) Execute(ctx context.Context, env *Env, parameters string) Result {
	in, err := parse[ReadSkillsInput](parameters)
	if err != nil {
		return errorResult(err)
	}
	logger.Debugf(ctx, "[tool:read_skills] siteHint=%q query=%q", in.SiteHint, in.Query)
	if env.Skills == nil {
		return Result{Output: skills.Format(nil)}
	}

	var entries []skills.Entry
	if hint := strings.TrimSpace(in.SiteHint); hint != "" {
		entries, err = env.Skills.LoadForDomain(hint)
	} else {
		entries, err = env.Skills.LoadAll()
	}
	if err != nil {
		return errorResult(errors.Wrap(err, "failed to load skills"))
	}

	chosen := skills.Relevant(entries, in.Query)
	logger.Debugf(ctx, "[tool:read_skills] returned=%d", len(chosen))
	return Result{Output: skills.Format(chosen)}
}

func (ReadSkillsTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	in, err := parse[ReadSkillsInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{attribute.String("agent.read_skills.site_hint", in.SiteHint)}, nil
}

// ReadMemoryTool returns the session's completed tasks.
type ReadMemoryTool struct{}

type ReadMemoryInput struct{}

func (ReadMemoryTool) Name() string { return "read_session_memory" }

func (ReadMemoryTool) Description() string {
	return "Read the tasks already completed in this server session."
}

func (ReadMemoryTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[ReadMemoryInput]() }

func (ReadMemoryTool) ValidateInput(string) error { return nil }

func (ReadMemoryTool) Execute(ctx context.Context, env *Env, _ string) Result {
	logger.Debugf(ctx, "[tool:read_session_memory] called")
	if env.Memory == nil {
		return Result{Output: "No prior tasks this session."}
	}
	return Result{Output: env.Memory.Context()}
}

func (ReadMemoryTool) TracingKVs(string) ([]attribute.KeyValue, error) { return nil, nil }

// NavigateTool changes the page location on explicit request.
type NavigateTool struct{}

type NavigateInput struct {
	URL string `json:"url" jsonschema:"required,description=Absolute http or https URL"`
}

func (NavigateTool) Name() string { return "navigate" }

func (NavigateTool) Description() string {
	return "Open a URL. Only use it when the user explicitly asks to go somewhere."
}

func (NavigateTool) GenerateSchema() *jsonschema.Schema { return GenerateSchema[NavigateInput]() }

func (NavigateTool) ValidateInput(parameters string) error {
	in, err := parse[NavigateInput](parameters)
	if err != nil {
		return err
	}
	if !sites.IsValidURL(in.URL) {
		return errors.Errorf("url must be an absolute http or https URL, got %q", in.URL)
	}
	return nil
}

func (NavigateTool) Execute(ctx context.Context, env *Env, parameters string) Result {
	in, err := parse[NavigateInput](parameters)
	if err != nil {
		return errorResult(err)
	}
	nav, ok := env.Page.(page.Navigator)
	if !ok {
		return Result{Err: "navigation is not available"}
	}
	logger.Debugf(ctx, "[tool:navigate] url=%q", in.URL)
	if err := nav.Navigate(ctx, in.URL); err != nil {
		return errorResult(err)
	}
	logger.Debugf(ctx, "[tool:navigate] success url=%q", in.URL)
	return Result{Output: "Navigated to " + in.URL}
}

func (NavigateTool) TracingKVs(parameters string) ([]attribute.KeyValue, error) {
	in, err := parse[NavigateInput](parameters)
	if err != nil {
		return nil, err
	}
	return []attribute.KeyValue{attribute.String("agent.navigate.url", in.URL)}, nil
}
