package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatroom-backend/internal/bootstrap"
	"chatroom-backend/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	socketHandler := handler.NewSocketHandler(app.Hub, app.MessageService)
	messageHandler := handler.NewMessageHandler(app.MessageService)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/ws", socketHandler.Serve)
	registerMessageRoutes(router, messageHandler)

	// Everything else is served from the static directory.
	router.NoRoute(gin.WrapH(http.FileServer(http.Dir(app.Config.App.StaticDir))))

	return router
}

func registerMessageRoutes(router gin.IRouter, messageHandler *handler.MessageHandler) {
	messages := router.Group("/api/messages")
	messages.GET("", messageHandler.List)
	messages.DELETE("", messageHandler.DeleteAll)
	messages.PUT("/:id", messageHandler.Edit)
	messages.DELETE("/:id", messageHandler.Delete)
}
