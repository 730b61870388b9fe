package agents

import (
	"context"
	"sync"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/ai"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const truncatedToolResult = "[earlier tool result truncated]"

// ConversationManager keeps one stage's conversation inside its budgets.
// The agent runtime owns the history; every request goes through Prepare
// and every reply through Observe.
type ConversationManager struct {
	maxTokens    int
	maxRounds    int
	maxToolCalls int

	mu        sync.Mutex
	rounds    int
	toolCalls int
	tokens    int
}

// NewConversationManager creates a new conversation manager. maxToolCalls
// of zero leaves tool calls capped by rounds only.
func NewConversationManager(maxTokens, maxRounds, maxToolCalls int) *ConversationManager {
	if maxTokens <= 0 {
		maxTokens = 100000
	}
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolIterations
	}

	return &ConversationManager{
		maxTokens:    maxTokens,
		maxRounds:    maxRounds,
		maxToolCalls: maxToolCalls,
	}
}

// Prepare starts a round. Old tool results are truncated until the request
// fits the token budget. Once the round or tool call budget is spent the
// request offers no tools, forcing a final answer.
func (cm *ConversationManager) Prepare(req ai.ChatRequest) (ai.ChatRequest, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	final := cm.rounds >= cm.maxRounds ||
		(cm.maxToolCalls > 0 && cm.toolCalls >= cm.maxToolCalls)
	cm.rounds++
	if final {
		req.Tools = nil
	}
	req.Messages, cm.tokens = compress(req.Messages, cm.maxTokens)
	return req, final
}

// Observe checks a reply to a prepared request. Tool calls are an error
// when the request was final or named a tool it did not offer.
func (cm *ConversationManager) Observe(req ai.ChatRequest, final bool, reply ai.Message) error {
	if len(reply.ToolCalls) == 0 {
		return nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if final {
		return errors.Wrapf(errors.ErrExternal, "still calling tools after %d rounds", cm.rounds-1)
	}
	offered := make(map[string]bool, len(req.Tools))
	for _, def := range req.Tools {
		offered[def.Function.Name] = true
	}
	for _, call := range reply.ToolCalls {
		if !offered[call.Function.Name] {
			return errors.Wrapf(errors.ErrExternal, "called unavailable tool %s", call.Function.Name)
		}
	}
	cm.toolCalls += len(reply.ToolCalls)
	return nil
}

// Rounds returns how many requests were prepared.
func (cm *ConversationManager) Rounds() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.rounds
}

// ToolCallCount returns how many tool calls the model requested so far.
func (cm *ConversationManager) ToolCallCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.toolCalls
}

// GetTokenCount returns the estimated size of the last request.
func (cm *ConversationManager) GetTokenCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.tokens
}

// compress replaces the oldest tool results with a marker until the
// estimate fits budget. Message order and tool call ids are kept; msgs is
// not modified.
func compress(msgs []ai.Message, budget int) ([]ai.Message, int) {
	out := append([]ai.Message(nil), msgs...)
	total := 0
	for _, msg := range out {
		total += estimateMessageTokens(msg)
	}

	for i := range out {
		if total <= budget {
			break
		}
		msg := &out[i]
		if msg.Role != ai.RoleTool || msg.Content == truncatedToolResult {
			continue
		}
		total -= estimateTokens(msg.Content)
		msg.Content = truncatedToolResult
		total += estimateTokens(msg.Content)
	}
	return out, total
}

// estimateTokens provides a rough estimate of token count
// Rule of thumb: ~4 characters per token for English text
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text) / 4
}

func estimateMessageTokens(msg ai.Message) int {
	total := estimateTokens(msg.Content)
	for _, tc := range msg.ToolCalls {
		total += estimateTokens(tc.Function.Name) + estimateTokens(tc.Function.Arguments)
	}
	return total
}

// stageClient applies a ConversationManager to every completion of one
// stage.
type stageClient struct {
	client ai.ChatClient
	conv   *ConversationManager
}

func (c *stageClient) Chat(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	req, final := c.conv.Prepare(req)
	resp, err := c.client.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if choice, ok := resp.First(); ok {
		if err := c.conv.Observe(req, final, choice.Message); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
