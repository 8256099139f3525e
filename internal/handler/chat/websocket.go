package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 10 * time.Second

type wsReply struct {
	chatResponse
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleWebSocket 每个文本帧是一次 /chat 请求，连接内记住最近的 sessionId。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	var sessionID string

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var payload chatRequest
		if err := json.Unmarshal(data, &payload); err != nil {
			if !h.writeWS(conn, wsReply{Status: http.StatusBadRequest, Error: "invalid message"}) {
				return
			}
			continue
		}
		if payload.SessionID == "" {
			payload.SessionID = sessionID
		}

		status, resp := h.exchange(ctx, payload)
		if resp.SessionID != "" {
			sessionID = resp.SessionID
		}
		if !h.writeWS(conn, wsReply{chatResponse: resp, Status: status}) {
			return
		}
	}
}

func (h *Handler) writeWS(conn *websocket.Conn, reply wsReply) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(reply); err != nil {
		h.logger.Warn("websocket write failed", zap.Error(err))
		return false
	}
	return true
}
