package ai

// ProviderName represents an AI provider identifier
type ProviderName string

// Provider name constants. Both speak the OpenAI chat completions protocol.
const (
	ProviderNameOpenAI   ProviderName = "openai"
	ProviderNameDeepSeek ProviderName = "deepseek"
)

// Default API endpoints
const (
	OpenAIBaseURL   = "https://api.openai.com/v1"
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// String returns the string representation of the provider name
func (p ProviderName) String() string {
	return string(p)
}

// IsValid checks if the provider name is supported
func (p ProviderName) IsValid() bool {
	switch p {
	case ProviderNameOpenAI, ProviderNameDeepSeek:
		return true
	default:
		return false
	}
}

// BaseURL returns the provider's default endpoint.
func (p ProviderName) BaseURL() string {
	if p == ProviderNameDeepSeek {
		return DeepSeekBaseURL
	}
	return OpenAIBaseURL
}

// Model name constants
const (
	ModelGPT4oMini    = "gpt-4o-mini"
	ModelGPT4o        = "gpt-4o"
	ModelDeepSeekChat = "deepseek-chat"
)
