package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

// ArkGateway runs the conversation through an eino chain backed by an Ark chat model.
type ArkGateway struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

// NewArkGateway compiles the template + model chain.
func NewArkGateway(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*ArkGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ArkGateway{chain: runnable, logger: logger}, nil
}

// Generate invokes the chain with the assembled turns.
func (g *ArkGateway) Generate(ctx context.Context, turns []chat.Turn) (string, error) {
	response, err := g.chain.Invoke(ctx, map[string]any{
		"history": buildHistoryMessages(turns),
	})
	if err != nil {
		return "", gateway.Wrap(gateway.Model, statusFromMessage(err.Error()), fmt.Errorf("failed to run AI chain: %w", err))
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", ErrMalformedResponse
	}

	g.logger.Debug("ark reply generated", zap.Int("length", len(response.Content)))
	return strings.TrimSpace(response.Content), nil
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Speaker {
		case chat.SpeakerSystemPriming:
			history = append(history, schema.SystemMessage(turn.Text))
		case chat.SpeakerModelPriming, chat.SpeakerModel:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		default:
			history = append(history, schema.UserMessage(turn.Text))
		}
	}
	return history
}

// statusFromMessage recovers the upstream status the Ark SDK folds into its error text.
func statusFromMessage(msg string) int {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "status code: 401"), strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "authenticationerror"):
		return http.StatusUnauthorized
	case strings.Contains(lower, "status code: 403"), strings.Contains(lower, "forbidden"):
		return http.StatusForbidden
	case strings.Contains(lower, "status code: 429"), strings.Contains(lower, "ratelimit"),
		strings.Contains(lower, "too many requests"):
		return http.StatusTooManyRequests
	default:
		return 0
	}
}
