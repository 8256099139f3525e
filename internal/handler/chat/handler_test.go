package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/astro-tavern/backend/internal/service/chat"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/gateway"
)

type stubCharts struct {
	mu    sync.Mutex
	calls int
}

func (s *stubCharts) BirthChart(context.Context, time.Time, float64, float64) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return json.RawMessage(`{"data":{"ascendant":"Leo"}}`), nil
}

type stubTimezones struct{}

func (stubTimezones) Timezone(context.Context, float64, float64) (string, error) {
	return "America/New_York", nil
}

type stubModel struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubModel) Generate(_ context.Context, turns []chat.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "echo: " + turns[len(turns)-1].Text, nil
}

type harness struct {
	router *chi.Mux
	store  *chatservice.MemoryStore
	charts *stubCharts
	model  *stubModel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  chatservice.NewMemoryStore(),
		charts: &stubCharts{},
		model:  &stubModel{},
	}
	svc := chatservice.NewService(chatservice.Options{
		Store:     h.store,
		Timezones: stubTimezones{},
		Charts:    h.charts,
		Model:     h.model,
	})
	h.router = chi.NewRouter()
	New(svc, nil).RegisterRoutes(h.router)
	return h
}

func birthDetailsJSON() map[string]any {
	return map[string]any{
		"date": "1990-05-15",
		"time": "14:30",
		"location": map[string]any{
			"lat": 40.7128,
			"lon": -74.0060,
		},
	}
}

func (h *harness) post(t *testing.T, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &decoded))
	return resp.Code, decoded
}

func TestChatStartsAndContinuesSession(t *testing.T) {
	h := newHarness(t)

	status, body := h.post(t, map[string]any{
		"message":      "What does my chart say about career?",
		"birthDetails": birthDetailsJSON(),
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "echo: What does my chart say about career?", body["response"])
	sessionID, _ := body["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	status, body = h.post(t, map[string]any{
		"message":      "And relationships?",
		"birthDetails": birthDetailsJSON(),
		"sessionId":    sessionID,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, sessionID, body["sessionId"])
	assert.Equal(t, 1, h.charts.calls)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID, nil)
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var transcript struct {
		SessionID string      `json:"sessionId"`
		History   []chat.Turn `json:"history"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &transcript))
	assert.Equal(t, sessionID, transcript.SessionID)
	require.Len(t, transcript.History, 4)
	assert.Equal(t, "And relationships?", transcript.History[2].Text)
}

func TestChatRejectsMissingBirthDetails(t *testing.T) {
	cases := map[string]map[string]any{
		"no details":  {"message": "hi"},
		"no location": {"message": "hi", "birthDetails": map[string]any{"date": "1990-05-15", "time": "14:30"}},
		"no lon": {"message": "hi", "birthDetails": map[string]any{
			"date": "1990-05-15", "time": "14:30", "location": map[string]any{"lat": 1.0},
		}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			status, resp := h.post(t, body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "Birth details are required. Please provide your birth information first.", resp["response"])
			assert.Zero(t, h.charts.calls)
			assert.Zero(t, h.model.calls)
		})
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Zero(t, h.model.calls)
}

func TestChatMapsGatewayFailures(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "rate limit",
			err:     gateway.Wrap(gateway.Model, http.StatusTooManyRequests, errors.New("quota")),
			message: "The service is currently busy. Please wait a moment and try again.",
		},
		{
			name:    "auth",
			err:     gateway.Wrap(gateway.Model, http.StatusUnauthorized, errors.New("bad key")),
			message: "There's an authentication issue with the astrology service. Please contact support.",
		},
		{
			name:    "generic",
			err:     gateway.Wrap(gateway.Model, http.StatusInternalServerError, errors.New("boom")),
			message: "I'm sorry, I'm having technical difficulties right now. Please try again in a moment.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.model.err = tc.err

			status, body := h.post(t, map[string]any{
				"message":      "hello",
				"birthDetails": birthDetailsJSON(),
			})
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.Equal(t, tc.message, body["response"])
			assert.NotEmpty(t, body["sessionId"])
		})
	}
}

func TestTranscriptUnknownSession(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist", nil)
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
