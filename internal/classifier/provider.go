// Package classifier wraps language-model providers behind the three classification capabilities.
package classifier

import (
	"context"
	"fmt"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// Role is the sender of a message.
type Role string

// Message roles understood by every provider.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a provider-neutral completion call.
type CompletionRequest struct {
	Model          string
	System         string
	Messages       []Message
	MaxTokens      int
	JSONMode       bool
	ThinkingBudget int // Extended reasoning tokens; 0 disables
}

// CompletionResponse is the text produced by a provider.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// Provider sends completion requests to a model service.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// Default models per provider when none is configured.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o"
)

// NewProvider builds the configured provider, wrapped with the requests-per-minute limiter.
// The none provider returns nil; callers then skip classification entirely.
func NewProvider(cfg *contract.Config) (Provider, error) {
	var p Provider
	switch cfg.AIProvider {
	case schema.NoProvider:
		return nil, nil
	case schema.AnthropicProvider, "":
		if cfg.AIAPIKey == "" {
			return nil, fmt.Errorf("ai-api-key is required for the anthropic provider")
		}
		p = NewAnthropicProvider(cfg.AIAPIKey, cfg.AIModel, cfg.AIBaseURL)
	case schema.OpenAIProvider:
		if cfg.AIAPIKey == "" && cfg.AIBaseURL == "" {
			return nil, fmt.Errorf("ai-api-key or ai-base-url is required for the openai provider")
		}
		p = NewOpenAIProvider(cfg.AIAPIKey, cfg.AIModel, cfg.AIBaseURL)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.AIProvider)
	}
	if cfg.AIRPM > 0 {
		p = NewRateLimitedProvider(p, cfg.AIRPM)
	}
	return p, nil
}
