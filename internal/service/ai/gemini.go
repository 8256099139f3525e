package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

// GeminiOptions configures the Gemini gateway.
type GeminiOptions struct {
	APIKey     string
	Model      string
	Generation GenerationConfig
	// BaseURL and HTTPClient override the endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiGateway talks to Google's Gemini API through the genai SDK.
type GeminiGateway struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	logger *zap.Logger
}

// NewGeminiGateway creates the genai client.
func NewGeminiGateway(ctx context.Context, opts GeminiOptions, logger *zap.Logger) (*GeminiGateway, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	gen := opts.Generation
	return &GeminiGateway{
		client: client,
		model:  opts.Model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(gen.Temperature),
			TopP:            genai.Ptr(gen.TopP),
			TopK:            genai.Ptr(float32(gen.TopK)),
			MaxOutputTokens: int32(gen.MaxOutputTokens),
		},
		logger: logger,
	}, nil
}

// Generate sends the whole conversation as contents. Gemini only knows the user and
// model roles, so the system priming turn is sent as a user turn.
func (g *GeminiGateway) Generate(ctx context.Context, turns []chat.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Text, geminiRole(turn.Speaker)))
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", gateway.Wrap(gateway.Model, apiErr.Code, err)
		}
		return "", gateway.Wrap(gateway.Model, 0, err)
	}

	text := firstCandidateText(resp)
	if text == "" {
		return "", ErrMalformedResponse
	}

	g.logger.Debug("gemini reply generated", zap.String("model", g.model), zap.Int("length", len(text)))
	return text, nil
}

func geminiRole(speaker chat.Speaker) genai.Role {
	switch speaker {
	case chat.SpeakerModel, chat.SpeakerModelPriming:
		return genai.RoleModel
	default:
		return genai.RoleUser
	}
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return ""
	}
	return strings.TrimSpace(content.Parts[0].Text)
}
