package ai

import (
	"context"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

const defaultMaxTokens = 4096

// ClientConfig configures an OpenAIClient.
type ClientConfig struct {
	Provider ProviderName
	APIKey   string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	Timeout    time.Duration
	MaxRetries int

	// HTTPClient replaces the SDK's default transport, for tests.
	HTTPClient *http.Client
}

// Ensure OpenAIClient implements ChatClient
var _ ChatClient = (*OpenAIClient)(nil)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client   openai.Client
	provider ProviderName
	timeout  time.Duration
	limiter  RateLimiter
	usage    *UsageTracker
	log      *logger.Logger
}

// NewOpenAIClient creates a client. A nil limiter disables rate limiting
// and a nil tracker starts a fresh one.
func NewOpenAIClient(cfg ClientConfig, limiter RateLimiter, usage *UsageTracker) (*OpenAIClient, error) {
	if !cfg.Provider.IsValid() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unsupported AI provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, errors.Wrapf(errors.ErrNotConfigured, "%s API key not configured", cfg.Provider)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 90 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cfg.Provider.BaseURL()
	}
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	if usage == nil {
		usage = NewUsageTracker()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		limiter:  limiter,
		usage:    usage,
		log:      logger.Get().With("component", "llm_client", "provider", cfg.Provider.String()),
	}, nil
}

// Usage returns the tracker accumulating this client's token usage.
func (c *OpenAIClient) Usage() *UsageTracker {
	return c.usage
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.RecordRateLimited(req.Agent, req.Model)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params, err := toChatParams(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		err = classifyError(c.provider, err)
		metrics.RecordAgentCall(req.Agent, req.Model, latency, 0, 0, 0, err)
		return nil, err
	}

	chatResp := fromChatCompletion(resp)
	cost := c.usage.Record(ModelFor(c.provider, req.Model), chatResp.Usage.PromptTokens, chatResp.Usage.CompletionTokens)
	metrics.RecordAgentCall(req.Agent, req.Model, latency, cost,
		int(chatResp.Usage.PromptTokens), int(chatResp.Usage.CompletionTokens), nil)

	c.log.Debugw("Chat completion",
		"agent", req.Agent,
		"model", req.Model,
		"latency_ms", latency.Milliseconds(),
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
		"cost_usd", cost,
	)

	return chatResp, nil
}

func toChatParams(req ChatRequest) (openai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return openai.ChatCompletionNewParams{}, errors.NewValidationError("model", "model is required", req.Model)
	}
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.NewValidationError("messages", "at least one message is required", nil)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		m, err := toChatMessage(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Opt(req.Temperature),
		MaxTokens:   openai.Opt(int64(maxTokens)),
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        tool.Function.Name,
					Description: openai.Opt(tool.Function.Description),
					Parameters:  shared.FunctionParameters(tool.Function.Parameters),
				},
			},
		})
	}

	return params, nil
}

func toChatMessage(msg Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case RoleSystem:
		return openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.Opt(msg.Content)},
			},
		}, nil
	case RoleUser:
		return openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.Opt(msg.Content)},
			},
		}, nil
	case RoleAssistant:
		assistant := &openai.ChatCompletionAssistantMessageParam{}
		if msg.Content != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.Opt(msg.Content)}
		}
		for _, tc := range msg.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}, nil
	case RoleTool:
		if msg.ToolCallID == "" {
			return openai.ChatCompletionMessageParamUnion{}, errors.NewValidationError("tool_call_id", "tool message requires a call id", msg.Content)
		}
		return openai.ChatCompletionMessageParamUnion{
			OfTool: &openai.ChatCompletionToolMessageParam{
				Content:    openai.ChatCompletionToolMessageParamContentUnion{OfString: openai.Opt(msg.Content)},
				ToolCallID: msg.ToolCallID,
			},
		}, nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, errors.NewValidationError("role", "unsupported message role", msg.Role)
	}
}

func fromChatCompletion(resp *openai.ChatCompletion) *ChatResponse {
	out := &ChatResponse{
		ID:    resp.ID,
		Model: string(resp.Model),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	for _, choice := range resp.Choices {
		msg := Message{
			Role:    RoleAssistant,
			Content: choice.Message.Content,
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}

		out.Choices = append(out.Choices, Choice{
			Index:        int(choice.Index),
			Message:      msg,
			FinishReason: finishReason(string(choice.FinishReason), len(msg.ToolCalls) > 0),
		})
	}

	return out
}

func finishReason(raw string, hasToolCalls bool) FinishReason {
	switch raw {
	case "length":
		return FinishReasonLength
	case "tool_calls", "function_call":
		return FinishReasonToolCalls
	case "content_filter":
		return FinishReasonFilter
	}
	if hasToolCalls {
		return FinishReasonToolCalls
	}
	return FinishReasonStop
}

// classifyError maps SDK errors onto the error kinds callers branch on.
func classifyError(provider ProviderName, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return errors.Wrapf(errors.ErrRateLimitExceeded, "%s API error (%d): %v", provider, apiErr.StatusCode, err)
		}
		return errors.Wrapf(errors.ErrExternal, "%s API error (%d): %v", provider, apiErr.StatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrTimeout, "%s request: %v", provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return errors.Wrapf(errors.ErrCanceled, "%s request: %v", provider, err)
	}
	return errors.Wrapf(errors.ErrExternal, "%s request: %v", provider, err)
}
