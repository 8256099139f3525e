package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

type geminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		TopK            float64 `json:"topK"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

func newGeminiTestGateway(t *testing.T, handler http.HandlerFunc) *GeminiGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gw, err := NewGeminiGateway(context.Background(), GeminiOptions{
		APIKey: "test-key",
		Model:  "gemini-1.5-flash",
		Generation: GenerationConfig{
			Temperature:     0.7,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 1000,
		},
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	}, nil)
	require.NoError(t, err)
	return gw
}

var sampleTurns = []chat.Turn{
	{Speaker: chat.SpeakerSystemPriming, Text: "ground"},
	{Speaker: chat.SpeakerModelPriming, Text: "ack"},
	{Speaker: chat.SpeakerUser, Text: "Tell me about myself"},
}

func TestGeminiGenerateSendsConversation(t *testing.T) {
	var got geminiRequest
	gw := newGeminiTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-1.5-flash:generateContent"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"You are a Taurus moon."}]}}]}`))
	})

	reply, err := gw.Generate(context.Background(), sampleTurns)
	require.NoError(t, err)
	assert.Equal(t, "You are a Taurus moon.", reply)

	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "user", got.Contents[2].Role)
	assert.Equal(t, "Tell me about myself", got.Contents[2].Parts[0].Text)
	assert.InDelta(t, 0.7, got.GenerationConfig.Temperature, 1e-6)
	assert.InDelta(t, 40, got.GenerationConfig.TopK, 1e-6)
	assert.Equal(t, 1000, got.GenerationConfig.MaxOutputTokens)
}

func TestGeminiGenerateEmptyCandidates(t *testing.T) {
	gw := newGeminiTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := gw.Generate(context.Background(), sampleTurns)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGeminiGenerateClassifiesStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   gateway.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, gateway.KindRateLimit},
		{"unauthorized", http.StatusUnauthorized, gateway.KindAuth},
		{"bad request", http.StatusBadRequest, gateway.KindGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newGeminiTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"code":` + strconv.Itoa(tc.status) + `,"message":"upstream said no","status":"FAILED"}}`))
			})

			_, err := gw.Generate(context.Background(), sampleTurns)
			require.Error(t, err)
			assert.Equal(t, tc.want, gateway.Classify(err))
		})
	}
}
