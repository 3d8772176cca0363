package providers

import (
	"fmt"

	"github.com/karimjebali/forager/internal/config"
	"github.com/karimjebali/forager/internal/engine"
)

// NewLLMClient creates a completion client from the resolved config.
// OpenAI-compatible providers share the OpenAI client with a
// provider-specific base URL; cfg.BaseURL overrides any default.
func NewLLMClient(cfg config.Config) (engine.LLMClient, string, error) {
	provider := cfg.LLMProvider
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		client, err := NewOpenAIClient(cfg.APIKey, model, cfg.BaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return client, model, nil

	case "anthropic":
		model := cfg.Model
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}
		client, err := NewAnthropicClient(cfg.APIKey, model)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Anthropic client: %w", err)
		}
		return client, model, nil

	case "ollama":
		// Local server, OpenAI-compatible. Any key works.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		model := cfg.Model
		if model == "" {
			model = "llama3.1"
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		client, err := NewOpenAIClient(apiKey, model, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return client, model, nil

	case "deepseek":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepseek.com/v1"
		}
		model := cfg.Model
		if model == "" {
			model = "deepseek-chat"
		}
		client, err := NewOpenAIClient(cfg.APIKey, model, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create DeepSeek client: %w", err)
		}
		return client, model, nil

	case "groq":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		model := cfg.Model
		if model == "" {
			model = "llama-3.1-70b-versatile"
		}
		client, err := NewOpenAIClient(cfg.APIKey, model, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create Groq client: %w", err)
		}
		return client, model, nil

	default:
		return nil, "", fmt.Errorf("unknown llm provider: %s (supported: openai, anthropic, ollama, deepseek, groq)", provider)
	}
}
