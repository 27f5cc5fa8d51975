package router

import (
	"github.com/labstack/echo/v4"

	"kirimart/internal/adapter/api/handler"
	"kirimart/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the room directory routes
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.POST("", chatHandler.CreateChat)          // POST /chats - create or return the two-party room
	chatGroup.GET("", chatHandler.GetUserChats)         // GET /chats - rooms by last-message recency
	chatGroup.GET("/single", chatHandler.GetSingleChat) // GET /chats/single?participantId=
	chatGroup.DELETE("/:id", chatHandler.DeleteChat)    // DELETE /chats/:id
}
