package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteTimeout = 5 * time.Second
	streamMaxDuration  = 10 * time.Minute
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams submission status until it is terminal.
type WebSocketHandler struct {
	getUC  *usecase.GetSubmissionUsecase
	logger *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(getUC *usecase.GetSubmissionUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		getUC:  getUC,
		logger: logger,
	}
}

// Stream handles GET /api/v1/submissions/:id/stream (WebSocket upgrade)
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	log := h.logger.With(zap.String("submission_id", id.String()))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), streamMaxDuration)
	defer cancel()

	// Drain client frames so close messages are noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	log.Debug("WebSocket connection opened")

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var lastStatus string
	for {
		sub, err := h.getUC.Execute(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				h.writeJSON(conn, gin.H{"error": err.Error()}, log)
			}
			return
		}

		if string(sub.Status) != lastStatus {
			if !h.writeJSON(conn, sub, log) {
				return
			}
			lastStatus = string(sub.Status)
		}

		if sub.Status.IsTerminal() {
			log.Debug("Submission reached terminal state, closing WebSocket")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
				time.Now().Add(streamWriteTimeout))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *WebSocketHandler) writeJSON(conn *websocket.Conn, v any, log *zap.Logger) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		log.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
		return false
	}
	return true
}
