package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chatrelay/controllers"
	"chatrelay/gateway"
	"chatrelay/middlewares"
	"chatrelay/services"
)

// Deps are the process-scoped components the router serves.
type Deps struct {
	Logger         zerolog.Logger
	Hub            *gateway.Hub
	Chat           *controllers.ChatController
	History        *services.HistoryStore
	AllowedOrigins []string
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.Logger(d.Logger))
	r.Use(middlewares.CORS(d.AllowedOrigins))

	// Real-time chat: chat / history events
	r.GET("/socket", d.Hub.ServeWS(d.Chat))

	// Full history of one session
	r.GET("/chat/conversations", d.Chat.GetConversations)

	r.GET("/health", controllers.Health(d.History))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
