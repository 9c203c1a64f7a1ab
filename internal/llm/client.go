package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/lazypower/constellation/internal/config"
)

// ErrNoResult means the text service produced nothing usable.
var ErrNoResult = errors.New("llm: no result")

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	Model     string // empty uses the client's default
	MaxTokens int    // zero uses the client's default
	System    string
	Messages  []Message
}

// UserRequest builds a single-turn request.
func UserRequest(system, prompt string) Request {
	return Request{System: system, Messages: []Message{{Role: "user", Content: prompt}}}
}

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// NewClient creates an LLM client based on the config provider setting.
func NewClient(cfg config.LLMConfig) (Client, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	switch cfg.Provider {
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		return NewClaudeCLI(model), nil
	case "anthropic", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.APIKey, model, maxTokens), nil
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY or a base_url")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, model, maxTokens), nil
	case "ollama":
		url := cfg.BaseURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" || model == config.Default().LLM.Model {
			model = "llama3.2"
		}
		return NewOllama(url, model, maxTokens), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}

// flatten renders a request as one prompt for providers without chat turns.
func flatten(req Request) string {
	var out string
	if req.System != "" {
		out = req.System + "\n\n"
	}
	for i, m := range req.Messages {
		if i > 0 {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}
