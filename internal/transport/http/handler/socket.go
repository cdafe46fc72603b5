package handler

import (
	"github.com/gin-gonic/gin"

	"chatroom-backend/internal/realtime"
)

type SocketHandler struct {
	hub     *realtime.Hub
	creator realtime.MessageCreator
}

func NewSocketHandler(hub *realtime.Hub, creator realtime.MessageCreator) *SocketHandler {
	return &SocketHandler{hub: hub, creator: creator}
}

func (h *SocketHandler) Serve(c *gin.Context) {
	realtime.ServeWs(h.hub, h.creator, c.Writer, c.Request)
}
