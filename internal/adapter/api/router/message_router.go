package router

import (
	"github.com/labstack/echo/v4"

	"kirimart/internal/adapter/api/handler"
	"kirimart/internal/adapter/api/middleware"
)

// SetupMessageRouter sets up the message routes
func SetupMessageRouter(e *echo.Echo, messageHandler *handler.MessageHandler, authMiddleware *middleware.AuthMiddleware) {
	messageGroup := e.Group("/messages")
	messageGroup.Use(authMiddleware.Authenticate)

	messageGroup.POST("/send", messageHandler.SendMessage)          // POST /messages/send
	messageGroup.GET("", messageHandler.GetMessages)                // GET /messages?chatId=
	messageGroup.PATCH("/:id/status", messageHandler.UpdateStatus)  // PATCH /messages/:id/status
	messageGroup.POST("/mark-all-read", messageHandler.MarkAllRead) // POST /messages/mark-all-read
}
