package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatroom-backend/internal/app"
	"chatroom-backend/internal/transport/http/response"
)

type MessageHandler struct {
	messageService *app.MessageService
}

type EditMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func NewMessageHandler(messageService *app.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) List(c *gin.Context) {
	messages, err := h.messageService.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.OK(c, messages)
}

func (h *MessageHandler) Edit(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, app.ErrMessageEmpty.Error())
		return
	}

	message, err := h.messageService.Edit(c.Request.Context(), parseMessageID(c), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMessageEmpty), errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrMessageNotFound):
			response.Error(c, http.StatusNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "edit message failed")
		}
		return
	}

	response.OK(c, message)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.messageService.Delete(c.Request.Context(), parseMessageID(c)); err != nil {
		switch {
		case errors.Is(err, app.ErrMessageNotFound):
			response.Error(c, http.StatusNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "delete message failed")
		}
		return
	}

	response.Message(c, "message deleted")
}

func (h *MessageHandler) DeleteAll(c *gin.Context) {
	if err := h.messageService.DeleteAll(c.Request.Context()); err != nil {
		response.Error(c, http.StatusInternalServerError, "delete all messages failed")
		return
	}

	response.Message(c, "all messages deleted")
}

// parseMessageID maps anything that is not a positive id to 0, which matches
// no row.
func parseMessageID(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
