package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"kirimart/internal/usecase"
	"kirimart/pkg/errors"
	"kirimart/pkg/response"
	"kirimart/pkg/utils"
)

type MessageHandler struct {
	messageUseCase *usecase.MessageUseCase
}

func NewMessageHandler(messageUseCase *usecase.MessageUseCase) *MessageHandler {
	return &MessageHandler{
		messageUseCase: messageUseCase,
	}
}

type sendMessageRequest struct {
	ChatID      string    `json:"chatId" validate:"required"`
	Content     string    `json:"content" validate:"required"`
	MessageType string    `json:"messageType" validate:"omitempty,oneof=text attachment"`
	Attachments []string  `json:"attachments"`
	TempID      string    `json:"tempId" validate:"required"`
	SentAt      time.Time `json:"sentAt"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=delivered read"`
}

type markAllReadRequest struct {
	RoomID string `json:"roomId" validate:"required"`
}

// SendMessage pushes a message through the staging + publish pipeline. The
// response carries the staged message; durable commit follows asynchronously.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.messageUseCase.Send(c.Request().Context(), userID, usecase.SendMessageInput{
		ChatID:      req.ChatID,
		Content:     req.Content,
		MessageType: req.MessageType,
		Attachments: req.Attachments,
		TempID:      req.TempID,
		SentAt:      req.SentAt,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// GetMessages lists a room's history, newest first
func (h *MessageHandler) GetMessages(c echo.Context) error {
	userID := c.Get("uid").(string)

	chatID := c.QueryParam("chatId")
	if chatID == "" {
		return response.Error(c, errors.BadRequest("chatId query parameter is required", nil))
	}

	params := utils.GetPaginationParams(c)

	messages, total, err := h.messageUseCase.ListMessages(c.Request().Context(), userID, chatID, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, messages, total, params.Page, params.PageSize)
}

// UpdateStatus transitions one message along sent -> delivered -> read
func (h *MessageHandler) UpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.messageUseCase.Transition(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}

// MarkAllRead bulk-transitions a room for the authenticated participant
func (h *MessageHandler) MarkAllRead(c echo.Context) error {
	var req markAllReadRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	room, err := h.messageUseCase.MarkAllRead(c.Request().Context(), req.RoomID, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, room)
}
