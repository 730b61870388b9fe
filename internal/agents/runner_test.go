package agents

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/ai"
	"github.com/kiiskristo/marketpulse-backend/internal/domain/portfolio"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/internal/recovery"
	"github.com/kiiskristo/marketpulse-backend/internal/tools"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/quotes"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/search"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// fakeChat replays scripted responses and records every request.
type fakeChat struct {
	mu        sync.Mutex
	responses []*ai.ChatResponse
	err       error
	requests  []ai.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func answer(text string) *ai.ChatResponse {
	return &ai.ChatResponse{Choices: []ai.Choice{{
		Message:      ai.Message{Role: ai.RoleAssistant, Content: text},
		FinishReason: ai.FinishReasonStop,
	}}}
}

func callTools(calls ...ai.ToolCall) *ai.ChatResponse {
	return &ai.ChatResponse{Choices: []ai.Choice{{
		Message:      ai.Message{Role: ai.RoleAssistant, ToolCalls: calls},
		FinishReason: ai.FinishReasonToolCalls,
	}}}
}

func toolCall(id, name, args string) ai.ToolCall {
	return ai.ToolCall{ID: id, Type: "function", Function: ai.FunctionCall{Name: name, Arguments: args}}
}

type echoArgs struct {
	Query  string `json:"query,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// echoTool answers with its name and arguments.
func echoTool(t *testing.T, name string) tools.Tool {
	t.Helper()
	return buildTool(t, name, func(ctx context.Context, args echoArgs) (string, error) {
		return name + " says " + args.Query + args.Symbol, nil
	})
}

func buildTool(t *testing.T, name string, fn shared.ToolFunc[echoArgs]) tools.Tool {
	t.Helper()
	tool, err := shared.NewToolBuilder(name, "echo", fn, shared.Deps{Log: logger.Nop()}).Build()
	require.NoError(t, err)
	return tool
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	for _, name := range []string{search.MarketSearch, search.FinancialNewsSearch, search.InfluencerMonitor, quotes.StockQuote} {
		registry.Register(echoTool(t, name))
	}
	return registry
}

// byRole returns the messages of one role in order.
func byRole(msgs []ai.Message, role ai.MessageRole) []ai.Message {
	var out []ai.Message
	for _, msg := range msgs {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}

func newTestRunner(client ai.ChatClient, registry *tools.Registry, cfg RunnerConfig) *Runner {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return NewRunner(client, registry, cfg,
		WithRunnerLogger(logger.Nop()),
		WithRunnerClock(func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }),
	)
}

func brandStage(t *testing.T, id string) pipeline.Stage {
	t.Helper()
	stage, ok := pipeline.Brand().Stage(id)
	require.True(t, ok)
	return stage
}

func marketStage(t *testing.T, id string) pipeline.Stage {
	t.Helper()
	stage, ok := pipeline.Market().Stage(id)
	require.True(t, ok)
	return stage
}

func TestRunner_AnswerWithoutTools(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{answer("  {\"keywords\": [\"crm\"]}  ")}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{MaxTokens: 2000})

	out, err := runner.Run(context.Background(), brandStage(t, "keywords"), pipeline.StageContext{
		RunID:  "run-1",
		Inputs: pipeline.BrandInputs("Acme CRM"),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"keywords": ["crm"]}`, out)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "keyword_agent", req.Agent)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Equal(t, 2000, req.MaxTokens)
	assert.Empty(t, req.Tools, "keyword agent has no tools")

	require.NotEmpty(t, req.Messages)
	assert.Equal(t, ai.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Acme CRM")
	assert.Contains(t, req.Messages[0].Content, "single JSON object")

	users := byRole(req.Messages, ai.RoleUser)
	require.Len(t, users, 1)
	assert.Contains(t, users[0].Content, `"Acme CRM"`)
}

func TestRunner_ToolLoop(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(toolCall("call_1", search.MarketSearch, `{"query":"best crm"}`)),
		answer(`{"queries":["best crm"],"results":["Acme is #4"]}`),
	}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	out, err := runner.Run(context.Background(), brandStage(t, "queries"), pipeline.StageContext{
		Inputs:   pipeline.BrandInputs("Acme CRM"),
		Previous: &pipeline.StageResult{Stage: "keywords", Payload: recovery.Payload{"keywords": []any{"crm"}}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Acme is #4")

	require.Len(t, client.requests, 2)
	first := client.requests[0]
	require.Len(t, first.Tools, 1)
	assert.Equal(t, search.MarketSearch, first.Tools[0].Function.Name)
	assert.Equal(t, "object", first.Tools[0].Function.Parameters["type"])
	users := byRole(first.Messages, ai.RoleUser)
	require.Len(t, users, 1)
	assert.Contains(t, users[0].Content, `"crm"`, "task prompt carries the previous payload")

	second := client.requests[1].Messages
	assistant := byRole(second, ai.RoleAssistant)
	require.Len(t, assistant, 1)
	require.Len(t, assistant[0].ToolCalls, 1)
	assert.Equal(t, search.MarketSearch, assistant[0].ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"query":"best crm"}`, assistant[0].ToolCalls[0].Function.Arguments)

	results := byRole(second, ai.RoleTool)
	require.Len(t, results, 1)
	assert.Equal(t, assistant[0].ToolCalls[0].ID, results[0].ToolCallID)
	assert.Equal(t, "market_search says best crm", results[0].Content)
}

func TestRunner_ParallelToolCallsKeepOrder(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(
			toolCall("a", quotes.StockQuote, `{"symbol":"AAPL"}`),
			toolCall("b", search.FinancialNewsSearch, `{"query":"AAPL"}`),
			toolCall("c", quotes.StockQuote, `{"symbol":"MSFT"}`),
		),
		answer(`{"stock_news":{}}`),
	}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	_, err := runner.Run(context.Background(), marketStage(t, "portfolio_news"), pipeline.StageContext{
		Inputs: pipeline.MarketInputs(map[string]any{"holdings": []any{}}, map[string]any{}),
	})
	require.NoError(t, err)

	results := byRole(client.requests[1].Messages, ai.RoleTool)
	require.Len(t, results, 3)
	assert.Equal(t, "stock_quote says AAPL", results[0].Content)
	assert.Equal(t, "financial_news_search says AAPL", results[1].Content)
	assert.Equal(t, "stock_quote says MSFT", results[2].Content)

	assistant := byRole(client.requests[1].Messages, ai.RoleAssistant)
	require.Len(t, assistant, 1)
	require.Len(t, assistant[0].ToolCalls, 3)
	for i, result := range results {
		assert.Equal(t, assistant[0].ToolCalls[i].ID, result.ToolCallID)
	}
}

func TestRunner_FailingToolBecomesText(t *testing.T) {
	registry := testRegistry(t)
	registry.Register(buildTool(t, search.MarketSearch, func(ctx context.Context, args echoArgs) (string, error) {
		return "", errors.New("quota exhausted")
	}))

	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(toolCall("y", search.MarketSearch, `{"query":"q"}`)),
		answer(`{"queries":[]}`),
	}}
	runner := newTestRunner(client, registry, RunnerConfig{})

	_, err := runner.Run(context.Background(), brandStage(t, "queries"), pipeline.StageContext{
		Inputs:   pipeline.BrandInputs("Acme"),
		Previous: &pipeline.StageResult{Stage: "keywords", Payload: recovery.Payload{}},
	})
	require.NoError(t, err)

	results := byRole(client.requests[1].Messages, ai.RoleTool)
	require.Len(t, results, 1)
	assert.Equal(t, "Error: quota exhausted", results[0].Content)
}

func TestRunner_UnavailableToolFails(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(toolCall("x", "place_order", `{}`)),
		answer(`{"queries":[]}`),
	}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	_, err := runner.Run(context.Background(), brandStage(t, "queries"), pipeline.StageContext{
		Inputs:   pipeline.BrandInputs("Acme"),
		Previous: &pipeline.StageResult{Stage: "keywords", Payload: recovery.Payload{}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrExternal)
	assert.Contains(t, err.Error(), "place_order")
	assert.Len(t, client.requests, 1)
}

func TestRunner_IterationCapForcesFinalAnswer(t *testing.T) {
	loop := toolCall("again", search.MarketSearch, `{"query":"q"}`)
	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(loop),
		callTools(toolCall("again_2", search.MarketSearch, `{"query":"q"}`)),
		answer(`{"queries":["q"]}`),
	}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{MaxToolIterations: 2})

	out, err := runner.Run(context.Background(), brandStage(t, "queries"), pipeline.StageContext{
		Inputs:   pipeline.BrandInputs("Acme"),
		Previous: &pipeline.StageResult{Stage: "keywords", Payload: recovery.Payload{}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"queries":["q"]}`, out)

	require.Len(t, client.requests, 3)
	assert.NotEmpty(t, client.requests[1].Tools)
	assert.Empty(t, client.requests[2].Tools, "last request offers no tools")
}

func TestRunner_ToolCallCapForcesFinalAnswer(t *testing.T) {
	agents := map[AgentType]AgentConfig{}
	for k, v := range DefaultAgentConfigs {
		agents[k] = v
	}
	capped := agents[AgentQueryBuilder]
	capped.MaxToolCalls = 2
	agents[AgentQueryBuilder] = capped

	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(
			toolCall("a", search.MarketSearch, `{"query":"one"}`),
			toolCall("b", search.MarketSearch, `{"query":"two"}`),
		),
		answer(`{"queries":["one","two"]}`),
	}}
	runner := NewRunner(client, testRegistry(t), RunnerConfig{Model: "gpt-4o-mini"},
		WithAgents(agents), WithRunnerLogger(logger.Nop()))

	_, err := runner.Run(context.Background(), brandStage(t, "queries"), pipeline.StageContext{
		Inputs:   pipeline.BrandInputs("Acme"),
		Previous: &pipeline.StageResult{Stage: "keywords", Payload: recovery.Payload{}},
	})
	require.NoError(t, err)
	require.Len(t, client.requests, 2)
	assert.Empty(t, client.requests[1].Tools)
}

func TestRunner_ToolCallsAfterCapFail(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(toolCall("again", search.MarketSearch, `{"query":"q"}`)),
		callTools(toolCall("again_2", search.MarketSearch, `{"query":"q"}`)),
	}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{MaxToolIterations: 1})

	_, err := runner.Run(context.Background(), brandStage(t, "queries"), pipeline.StageContext{
		Inputs:   pipeline.BrandInputs("Acme"),
		Previous: &pipeline.StageResult{Stage: "keywords", Payload: recovery.Payload{}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrExternal)
	assert.Contains(t, err.Error(), "still calling tools")
}

func TestRunner_ToolsSeeInvocationMetadata(t *testing.T) {
	registry := testRegistry(t)
	registry.Register(buildTool(t, search.MarketSearch, func(ctx context.Context, args echoArgs) (string, error) {
		meta, ok := shared.MetadataFromContext(ctx)
		if !ok {
			return "no metadata", nil
		}
		return meta.RunID + "/" + meta.Stage + "/" + meta.Agent, nil
	}))

	client := &fakeChat{responses: []*ai.ChatResponse{
		callTools(toolCall("m", search.MarketSearch, `{"query":"q"}`)),
		answer(`{"queries":[]}`),
	}}
	runner := newTestRunner(client, registry, RunnerConfig{})

	_, err := runner.Run(context.Background(), brandStage(t, "queries"), pipeline.StageContext{
		RunID:    "run-7",
		Pipeline: "search-rank",
		Inputs:   pipeline.BrandInputs("Acme"),
		Previous: &pipeline.StageResult{Stage: "keywords", Payload: recovery.Payload{}},
	})
	require.NoError(t, err)

	results := byRole(client.requests[1].Messages, ai.RoleTool)
	require.Len(t, results, 1)
	assert.Equal(t, "run-7/queries/query_builder_agent", results[0].Content)
}

func TestRunner_QueryBracesDoNotReachInstruction(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{answer(`{"keywords":[]}`)}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	_, err := runner.Run(context.Background(), brandStage(t, "keywords"), pipeline.StageContext{
		Inputs: pipeline.BrandInputs("{brand} Corp"),
	})
	require.NoError(t, err)

	system := client.requests[0].Messages[0].Content
	assert.Contains(t, system, "(brand) Corp")
	users := byRole(client.requests[0].Messages, ai.RoleUser)
	require.Len(t, users, 1)
	assert.Contains(t, users[0].Content, "{brand} Corp", "the task keeps the query verbatim")
}

func TestRunner_ChatErrorsPropagate(t *testing.T) {
	client := &fakeChat{err: errors.Wrap(errors.ErrRateLimitExceeded, "429")}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	_, err := runner.Run(context.Background(), brandStage(t, "keywords"), pipeline.StageContext{
		Inputs: pipeline.BrandInputs("Acme"),
	})
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
}

func TestRunner_EmptyAnswer(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{answer("   ")}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	_, err := runner.Run(context.Background(), brandStage(t, "keywords"), pipeline.StageContext{
		Inputs: pipeline.BrandInputs("Acme"),
	})
	assert.ErrorIs(t, err, errors.ErrExternal)
}

func TestRunner_UnknownAgent(t *testing.T) {
	runner := newTestRunner(&fakeChat{}, testRegistry(t), RunnerConfig{})

	_, err := runner.Run(context.Background(), pipeline.Stage{ID: "x", Agent: "nobody"}, pipeline.StageContext{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRunner_MissingTool(t *testing.T) {
	runner := newTestRunner(&fakeChat{}, tools.NewRegistry(), RunnerConfig{})

	_, err := runner.Run(context.Background(), marketStage(t, "global_news"), pipeline.StageContext{
		Inputs: pipeline.MarketInputs(nil, nil),
	})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRunner_MarketPromptsCarryInputs(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{answer(`{"trading_recommendations":[]}`)}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	portfolio := map[string]any{"holdings": []any{map[string]any{"ticker": "AAPL"}}}
	preferences := map[string]any{"risk_tolerance": "moderate"}
	_, err := runner.Run(context.Background(), marketStage(t, "recommendations"), pipeline.StageContext{
		Inputs:   pipeline.MarketInputs(portfolio, preferences),
		Previous: &pipeline.StageResult{Stage: "sentiment_analysis", Payload: recovery.Payload{"overall_sentiment": "Bullish"}},
	})
	require.NoError(t, err)

	users := byRole(client.requests[0].Messages, ai.RoleUser)
	require.Len(t, users, 1)
	task := users[0].Content
	assert.Contains(t, task, `"AAPL"`)
	assert.Contains(t, task, `"moderate"`)
	assert.Contains(t, task, `"Bullish"`)
	assert.InDelta(t, 0.2, client.requests[0].Temperature, 1e-6)
}

func TestRunner_HoldingExtrasReachThePrompt(t *testing.T) {
	client := &fakeChat{responses: []*ai.ChatResponse{answer(`{"stock_news":{}}`)}}
	runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

	holdings := &portfolio.Portfolio{Holdings: []portfolio.Holding{{
		Ticker:     "AAPL",
		Allocation: decimal.NewFromInt(10),
		Extra:      map[string]any{"shares": 25, "notes": "core position"},
	}}}
	_, err := runner.Run(context.Background(), marketStage(t, "portfolio_news"), pipeline.StageContext{
		Inputs: pipeline.MarketInputs(holdings, &portfolio.Preferences{RiskTolerance: "moderate"}),
	})
	require.NoError(t, err)

	users := byRole(client.requests[0].Messages, ai.RoleUser)
	require.Len(t, users, 1)
	assert.Contains(t, users[0].Content, `"shares": 25`)
	assert.Contains(t, users[0].Content, `"notes": "core position"`)
}

func TestRunner_EveryStageHasAgentAndPrompt(t *testing.T) {
	for _, def := range pipeline.Definitions() {
		for _, stage := range def.Stages {
			client := &fakeChat{responses: []*ai.ChatResponse{answer(`{"ok":true}`)}}
			runner := newTestRunner(client, testRegistry(t), RunnerConfig{})

			sc := pipeline.StageContext{
				Inputs:   pipeline.MarketInputs(map[string]any{}, map[string]any{}),
				Previous: &pipeline.StageResult{Stage: "prev", Payload: recovery.Payload{}},
				Prior:    []pipeline.StageResult{{Stage: "prev", Payload: recovery.Payload{}}},
			}
			sc.Inputs["query"] = "Acme"

			_, err := runner.Run(context.Background(), stage, sc)
			require.NoError(t, err, "%s/%s", def.Name, stage.ID)
			for _, msg := range client.requests[0].Messages {
				assert.False(t, strings.Contains(msg.Content, "<no value>"), "%s/%s", def.Name, stage.ID)
			}
		}
	}
}
