package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
	chatService "github.com/zhouzirui/astro-tavern/backend/internal/service/chat"
	"github.com/zhouzirui/astro-tavern/backend/pkg/utils"
)

// Orchestrator is the slice of the chat service the HTTP layer needs.
type Orchestrator interface {
	HandleMessage(ctx context.Context, req chatService.Request) (chatService.Reply, error)
	Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  Orchestrator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建聊天处理器
func New(chatSvc Orchestrator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/ws", h.handleWebSocket)
	r.Get("/sessions/{sessionID}", h.handleTranscript)
}

type chatRequest struct {
	Message      string             `json:"message"`
	BirthDetails *chat.BirthDetails `json:"birthDetails"`
	SessionID    string             `json:"sessionId,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId,omitempty"`
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondJSON(w, http.StatusBadRequest, chatResponse{Response: "Invalid request body."})
		return
	}

	status, resp := h.exchange(r.Context(), payload)
	utils.RespondJSON(w, status, resp)
}

// exchange runs one orchestrator call and maps the outcome to a status and body.
func (h *Handler) exchange(ctx context.Context, payload chatRequest) (int, chatResponse) {
	reply, err := h.chatSvc.HandleMessage(ctx, chatService.Request{
		SessionID:    payload.SessionID,
		BirthDetails: payload.BirthDetails,
		Message:      payload.Message,
	})
	if err == nil {
		return http.StatusOK, chatResponse{Response: reply.Text, SessionID: reply.SessionID}
	}

	if errors.Is(err, chatService.ErrValidation) {
		return http.StatusBadRequest, chatResponse{Response: chatService.UserMessage(err)}
	}

	h.logger.Error("chat request failed", zap.String("session", reply.SessionID), zap.Error(err))
	return http.StatusInternalServerError, chatResponse{
		Response:  chatService.UserMessage(err),
		SessionID: reply.SessionID,
	}
}

// handleTranscript 返回会话中的对话记录
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.chatSvc.Transcript(r.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	if turns == nil {
		turns = []chat.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"history":   turns,
	})
}
