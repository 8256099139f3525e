package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/config"
	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
)

// ErrMalformedResponse means the provider answered but no reply text could be extracted.
var ErrMalformedResponse = errors.New("model returned no usable text")

// Gateway produces the next model turn for an assembled conversation.
type Gateway interface {
	Generate(ctx context.Context, turns []chat.Turn) (string, error)
}

// GenerationConfig holds the fixed sampling parameters sent with every call.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            int
	MaxOutputTokens int
}

// GenerationFromConfig extracts sampling parameters from the AI configuration.
func GenerationFromConfig(cfg config.AIConfig) GenerationConfig {
	return GenerationConfig{
		Temperature:     float32(cfg.Temperature),
		TopP:            float32(cfg.TopP),
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
}

// NewGateway builds the gateway for the configured provider.
func NewGateway(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewArkGateway(ctx, chatModel, logger)
	case config.ProviderGemini:
		return NewGeminiGateway(ctx, GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			Generation: GenerationFromConfig(cfg),
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
