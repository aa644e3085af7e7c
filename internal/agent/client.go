package agent

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/scoutd/scout/internal/config"
)

// StreamClient is the minimal subset of openai.Client the runtime uses; it
// is easy to mock in tests.
type StreamClient interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// NewClient creates an OpenAI-compatible client from the LLM configuration.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
