// Package adk connects the ADK agent runtime to the chat completion client.
package adk

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/ai"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// ResultKey is the function response field carrying a tool's text output.
// It is handed to the model as the plain tool message content.
const ResultKey = "result"

const roleModel = "model"

// ModelAdapter adapts a ChatClient to ADK's model.LLM interface.
type ModelAdapter struct {
	client    ai.ChatClient
	modelName string
	agent     string
	log       *logger.Logger
}

// NewModelAdapter creates a new ADK model adapter. agent labels the
// requests for metrics and logs.
func NewModelAdapter(client ai.ChatClient, modelName, agent string, log *logger.Logger) *ModelAdapter {
	if log == nil {
		log = logger.Get()
	}
	return &ModelAdapter{
		client:    client,
		modelName: modelName,
		agent:     agent,
		log:       log.With("component", "model_adapter", "model", modelName),
	}
}

// Name returns the model name.
func (m *ModelAdapter) Name() string {
	return m.modelName
}

// GenerateContent implements model.LLM. Streaming requests are answered
// with the single complete response.
func (m *ModelAdapter) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		chatReq, err := m.convertToChatRequest(req)
		if err != nil {
			yield(nil, err)
			return
		}

		m.log.Debugw("Calling LLM", "agent", m.agent, "messages", len(chatReq.Messages), "tools", len(chatReq.Tools))

		resp, err := m.client.Chat(ctx, chatReq)
		if err != nil {
			yield(nil, err)
			return
		}

		adkResp, err := m.convertToADKResponse(resp)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(adkResp, nil)
	}
}

// convertToChatRequest converts an ADK request to a chat completion request.
func (m *ModelAdapter) convertToChatRequest(req *model.LLMRequest) (ai.ChatRequest, error) {
	chatReq := ai.ChatRequest{
		Agent: m.agent,
		Model: m.modelName,
	}
	if req == nil {
		return chatReq, errors.NewValidationError("request", "LLM request is required", nil)
	}
	if req.Model != "" {
		chatReq.Model = req.Model
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			chatReq.Temperature = float64(*cfg.Temperature)
		}
		chatReq.MaxTokens = int(cfg.MaxOutputTokens)
		if system := contentText(cfg.SystemInstruction); system != "" {
			chatReq.Messages = append(chatReq.Messages, ai.SystemMessage(system))
		}
		for _, t := range cfg.Tools {
			if t == nil {
				continue
			}
			for _, decl := range t.FunctionDeclarations {
				def, err := toolDefinition(decl)
				if err != nil {
					return chatReq, err
				}
				chatReq.Tools = append(chatReq.Tools, def)
			}
		}
	}

	// Responses pair with the calls of the preceding model turn. Calls
	// without an id get one here and responses without one take the
	// oldest pending call of the same name.
	var pending []ai.ToolCall
	for _, content := range req.Contents {
		if content == nil {
			continue
		}

		switch content.Role {
		case roleModel:
			msg := ai.Message{Role: ai.RoleAssistant, Content: contentText(content)}
			for _, part := range content.Parts {
				if part == nil || part.FunctionCall == nil {
					continue
				}
				call, err := toToolCall(part.FunctionCall, len(msg.ToolCalls))
				if err != nil {
					return chatReq, err
				}
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
			pending = append([]ai.ToolCall(nil), msg.ToolCalls...)
			if msg.Content == "" && len(msg.ToolCalls) == 0 {
				continue
			}
			chatReq.Messages = append(chatReq.Messages, msg)

		default:
			var text []string
			for _, part := range content.Parts {
				if part == nil {
					continue
				}
				if part.FunctionResponse != nil {
					id := part.FunctionResponse.ID
					if id == "" {
						id, pending = takePending(pending, part.FunctionResponse.Name)
					} else {
						pending = dropPending(pending, id)
					}
					chatReq.Messages = append(chatReq.Messages, ai.ToolMessage(id, responseText(part.FunctionResponse.Response)))
					continue
				}
				if part.Text != "" {
					text = append(text, part.Text)
				}
			}
			if len(text) > 0 {
				chatReq.Messages = append(chatReq.Messages, ai.UserMessage(strings.Join(text, "\n")))
			}
		}
	}

	return chatReq, nil
}

// convertToADKResponse converts a chat completion to ADK format.
func (m *ModelAdapter) convertToADKResponse(resp *ai.ChatResponse) (*model.LLMResponse, error) {
	choice, ok := resp.First()
	if !ok {
		return nil, errors.Wrapf(errors.ErrExternal, "agent %s: empty completion", m.agent)
	}

	content := &genai.Content{Role: roleModel}
	if choice.Message.Content != "" {
		content.Parts = append(content.Parts, &genai.Part{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				m.log.Warnw("Tool call arguments are not a JSON object", "tool", tc.Function.Name, "error", err)
				args = map[string]any{}
			}
		}
		content.Parts = append(content.Parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args},
		})
	}

	adkResp := &model.LLMResponse{
		Content:      content,
		TurnComplete: true,
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(resp.Usage.PromptTokens),
			CandidatesTokenCount: int32(resp.Usage.CompletionTokens),
			TotalTokenCount:      int32(resp.Usage.TotalTokens),
		},
	}

	switch choice.FinishReason {
	case ai.FinishReasonLength:
		adkResp.FinishReason = genai.FinishReasonMaxTokens
	case ai.FinishReasonFilter:
		adkResp.FinishReason = genai.FinishReasonSafety
	default:
		adkResp.FinishReason = genai.FinishReasonStop
	}

	return adkResp, nil
}

func toolDefinition(decl *genai.FunctionDeclaration) (ai.ToolDefinition, error) {
	def := ai.ToolDefinition{
		Type: "function",
		Function: ai.FunctionDefinition{
			Name:        decl.Name,
			Description: decl.Description,
		},
	}

	var params map[string]interface{}
	switch {
	case decl.ParametersJsonSchema != nil:
		raw, err := json.Marshal(decl.ParametersJsonSchema)
		if err != nil {
			return def, errors.Wrapf(err, "encode schema of tool %s", decl.Name)
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return def, errors.Wrapf(err, "decode schema of tool %s", decl.Name)
		}
	case decl.Parameters != nil:
		params = schemaToMap(decl.Parameters)
	}
	if params == nil {
		params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	def.Function.Parameters = params
	return def, nil
}

// schemaToMap renders a genai schema as JSON schema. genai spells types
// in upper case.
func schemaToMap(s *genai.Schema) map[string]interface{} {
	out := map[string]interface{}{}
	if s.Type != "" {
		out["type"] = strings.ToLower(string(s.Type))
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = schemaToMap(s.Items)
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, prop := range s.Properties {
			if prop != nil {
				props[name] = schemaToMap(prop)
			}
		}
		out["properties"] = props
	}
	return out
}

func toToolCall(fc *genai.FunctionCall, index int) (ai.ToolCall, error) {
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return ai.ToolCall{}, errors.Wrapf(err, "encode arguments of %s", fc.Name)
	}
	id := fc.ID
	if id == "" {
		id = fmt.Sprintf("call_%s_%d", fc.Name, index)
	}
	return ai.ToolCall{
		ID:       id,
		Type:     "function",
		Function: ai.FunctionCall{Name: fc.Name, Arguments: string(raw)},
	}, nil
}

func takePending(pending []ai.ToolCall, name string) (string, []ai.ToolCall) {
	for i, call := range pending {
		if call.Function.Name == name {
			return call.ID, append(pending[:i:i], pending[i+1:]...)
		}
	}
	return "call_" + name, pending
}

func dropPending(pending []ai.ToolCall, id string) []ai.ToolCall {
	for i, call := range pending {
		if call.ID == id {
			return append(pending[:i:i], pending[i+1:]...)
		}
	}
	return pending
}

// responseText renders a function response for the model. A lone text
// result goes through unchanged, anything else as JSON.
func responseText(resp map[string]any) string {
	if len(resp) == 1 {
		if s, ok := resp[ResultKey].(string); ok {
			return s
		}
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf("%v", resp)
	}
	return string(raw)
}

func contentText(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var parts []string
	for _, p := range c.Parts {
		if p != nil && p.Text != "" && p.FunctionCall == nil && p.FunctionResponse == nil {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Ensure ModelAdapter implements model.LLM
var _ model.LLM = (*ModelAdapter)(nil)
