package handler

import (
	"github.com/labstack/echo/v4"

	"kirimart/internal/usecase"
	"kirimart/pkg/errors"
	"kirimart/pkg/response"
	"kirimart/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createChatRequest struct {
	ParticipantID  string `json:"participantId" validate:"required"`
	InitialMessage string `json:"initialMessage"`
}

// CreateChat creates (or returns) the two-party room with the given participant
func (h *ChatHandler) CreateChat(c echo.Context) error {
	var req createChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	room, err := h.chatUseCase.CreateChat(c.Request().Context(), userID, usecase.CreateChatInput{
		ParticipantID:  req.ParticipantID,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, room)
}

// GetUserChats lists the authenticated participant's rooms by recency
func (h *ChatHandler) GetUserChats(c echo.Context) error {
	userID := c.Get("uid").(string)
	params := utils.GetPaginationParams(c)

	rooms, total, err := h.chatUseCase.ListRooms(c.Request().Context(), userID, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, rooms, total, params.Page, params.PageSize)
}

// GetSingleChat returns the room shared with ?participantId=
func (h *ChatHandler) GetSingleChat(c echo.Context) error {
	userID := c.Get("uid").(string)

	otherID := c.QueryParam("participantId")
	if otherID == "" {
		return response.Error(c, errors.BadRequest("participantId query parameter is required", nil))
	}

	room, err := h.chatUseCase.GetRoomWith(c.Request().Context(), userID, otherID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, room)
}

// DeleteChat removes a room; historical messages stay durable
func (h *ChatHandler) DeleteChat(c echo.Context) error {
	userID := c.Get("uid").(string)
	roomID := c.Param("id")

	if err := h.chatUseCase.DeleteRoom(c.Request().Context(), userID, roomID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"deleted": roomID})
}
