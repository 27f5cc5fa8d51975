package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"kirimart/internal/adapter/api/middleware"
	ws "kirimart/internal/infrastructure/websocket"
	"kirimart/pkg/errors"
	"kirimart/pkg/logger"
	"kirimart/pkg/response"
)

type WebSocketHandler struct {
	wsManager      *ws.Manager
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // You should restrict this in production
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:      wsManager,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket upgrades the connection and hands it to the gateway. The
// identity token arrives as a query parameter because browsers cannot set
// headers on WebSocket dials.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	uid, role, err := h.authMiddleware.IdentityFromToken(token)
	if err != nil {
		return response.Error(c, errors.Unauthorized("Invalid identity token", err))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written its own handshake error response.
		logger.Warn("gateway: websocket upgrade: %v", err)
		return nil
	}

	client := &ws.Client{
		ParticipantID: uid,
		Role:          role,
		Conn:          conn,
		Send:          make(chan []byte, 256),
	}

	h.wsManager.RegisterClient(client)

	go client.ReadPump(h.wsManager)
	go client.WritePump()

	return nil
}
