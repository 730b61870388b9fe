package agents

import (
	"context"
	"strings"
	"time"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/adk"
	"github.com/kiiskristo/marketpulse-backend/internal/adapters/ai"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/internal/tools"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
	"github.com/kiiskristo/marketpulse-backend/pkg/templates"
)

const (
	defaultMaxToolIterations = 6
	appName                  = "marketpulse"
)

// RunnerConfig holds model settings shared by every stage.
type RunnerConfig struct {
	Model string
	// MaxTokens caps each completion. Zero leaves it to the provider.
	MaxTokens int
	// MaxToolIterations caps the send/execute rounds of one stage. The
	// request after the last round offers no tools, forcing a final answer.
	MaxToolIterations int
	// ContextTokens is the conversation budget before old tool results are
	// truncated.
	ContextTokens int
}

// Runner executes pipeline stages as tool-calling ADK agents.
type Runner struct {
	client  ai.ChatClient
	tools   *tools.Registry
	prompts *templates.Registry
	agents  map[AgentType]AgentConfig
	cfg     RunnerConfig
	now     func() time.Time
	log     *logger.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithAgents replaces the built-in agent configs.
func WithAgents(agents map[AgentType]AgentConfig) RunnerOption {
	return func(r *Runner) { r.agents = agents }
}

// WithPrompts replaces the embedded prompt templates.
func WithPrompts(prompts *templates.Registry) RunnerOption {
	return func(r *Runner) { r.prompts = prompts }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(log *logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// WithRunnerClock pins the clock used for the prompts' current date.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a stage runner backed by client and the tools of registry.
func NewRunner(client ai.ChatClient, registry *tools.Registry, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = defaultMaxToolIterations
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}

	r := &Runner{
		client: client,
		tools:  registry,
		agents: DefaultAgentConfigs,
		cfg:    cfg,
		now:    time.Now,
		log:    logger.Get().With("component", "agent_runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.prompts == nil {
		r.prompts = templates.Get()
	}
	return r
}

var _ pipeline.StageRunner = (*Runner)(nil)

// Run implements pipeline.StageRunner. The stage runs as an ADK agent in
// a fresh in-memory session; the returned text is the model's final answer
// and turning it into JSON is the orchestrator's business.
func (r *Runner) Run(ctx context.Context, stage pipeline.Stage, sc pipeline.StageContext) (string, error) {
	cfg, ok := r.agents[AgentType(stage.Agent)]
	if !ok {
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown agent %q for stage %s", stage.Agent, stage.ID)
	}

	if cfg.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TotalTimeout)
		defer cancel()
	}

	conv := NewConversationManager(r.cfg.ContextTokens, r.cfg.MaxToolIterations, cfg.MaxToolCalls)
	ag, task, err := r.createAgent(stage, cfg, sc, conv)
	if err != nil {
		return "", err
	}

	log := r.log.With("run_id", sc.RunID, "pipeline", sc.Pipeline, "stage", stage.ID, "agent", cfg.Type)
	ctx = shared.WithInvocationMetadata(ctx, shared.InvocationMetadata{
		RunID:    sc.RunID,
		Pipeline: sc.Pipeline,
		Stage:    stage.ID,
		Agent:    string(cfg.Type),
	})

	out, err := r.runAgent(ctx, ag, sc.RunID, task)
	if err != nil {
		return "", errors.Wrapf(err, "agent %s", cfg.Type)
	}

	log.Debugw("Agent answered",
		"rounds", conv.Rounds(),
		"tool_calls", conv.ToolCallCount(),
		"estimated_tokens", conv.GetTokenCount())
	return out, nil
}

// createAgent builds the stage's LLM agent and renders its task.
func (r *Runner) createAgent(stage pipeline.Stage, cfg AgentConfig, sc pipeline.StageContext, conv *ConversationManager) (agent.Agent, string, error) {
	toolset, err := r.tools.Subset(cfg.Tools...)
	if err != nil {
		return nil, "", errors.Wrapf(err, "tools of agent %s", cfg.Type)
	}

	data := PromptData{
		Stage:    stage.ID,
		Today:    r.now().Format("2006-01-02"),
		Inputs:   sc.Inputs,
		Previous: sc.Previous,
		Prior:    sc.Prior,
	}
	task, err := r.prompts.Render("tasks/"+stage.ID, data)
	if err != nil {
		return nil, "", errors.Wrapf(err, "render task prompt of %s", stage.ID)
	}

	// The instruction goes through session state injection, so caller
	// text must not look like a {placeholder}.
	data.Inputs = instructionInputs(sc.Inputs)
	instruction, err := r.prompts.Render(cfg.SystemPromptTemplate, data)
	if err != nil {
		return nil, "", errors.Wrapf(err, "render system prompt of %s", cfg.Type)
	}

	client := &stageClient{client: r.client, conv: conv}
	temperature := float32(stage.Temperature)
	ag, err := llmagent.New(llmagent.Config{
		Name:        string(cfg.Type),
		Description: cfg.Name,
		Model:       adk.NewModelAdapter(client, r.cfg.Model, string(cfg.Type), r.log),
		Instruction: instruction,
		Tools:       toolset,
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: int32(r.cfg.MaxTokens),
		},
	})
	if err != nil {
		return nil, "", errors.Wrapf(err, "create agent %s", cfg.Type)
	}
	return ag, task, nil
}

// runAgent drives ag through one task and returns the last final text.
func (r *Runner) runAgent(ctx context.Context, ag agent.Agent, userID, task string) (string, error) {
	if userID == "" {
		userID = appName
	}

	sessions := session.InMemoryService()
	runnerInstance, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          ag,
		SessionService: sessions,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create runner")
	}

	created, err := sessions.Create(ctx, &session.CreateRequest{
		AppName: appName,
		UserID:  userID,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create session")
	}

	input := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: task}},
	}

	var response string
	for event, err := range runnerInstance.Run(ctx, userID, created.Session.ID(), input, agent.RunConfig{}) {
		if err != nil {
			return "", err
		}
		if event == nil || event.LLMResponse.Partial || !event.IsFinalResponse() {
			continue
		}
		if text := eventText(event); text != "" {
			response = text
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return "", errors.Wrap(errors.ErrExternal, "empty answer")
	}
	return response, nil
}

func eventText(event *session.Event) string {
	if event.LLMResponse.Content == nil {
		return ""
	}
	var parts []string
	for _, part := range event.LLMResponse.Content.Parts {
		if part != nil && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var placeholderBraces = strings.NewReplacer("{", "(", "}", ")")

func instructionInputs(inputs map[string]any) map[string]any {
	if inputs == nil {
		return nil
	}
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if s, ok := v.(string); ok {
			v = placeholderBraces.Replace(s)
		}
		out[k] = v
	}
	return out
}
