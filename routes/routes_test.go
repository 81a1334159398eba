package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"chatrelay/controllers"
	"chatrelay/gateway"
	"chatrelay/services"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()
	hub := gateway.NewHub(logger, []string{"*"})
	history := services.NewHistoryStore(services.NewMemoryStore(), "chat:", nil)
	orch := services.NewOrchestrator(services.NewOllamaGenerator("http://127.0.0.1:1"), history, hub, logger)
	chat := controllers.NewChatController(history, orch, hub, logger, controllers.ChatOptions{})

	return SetupRouter(Deps{
		Logger:         logger,
		Hub:            hub,
		Chat:           chat,
		History:        history,
		AllowedOrigins: []string{"*"},
	})
}

func TestRoutes(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/chat/conversations?chatSession=s1", http.StatusOK},
		{"/chat/conversations", http.StatusBadRequest},
		{"/socket", http.StatusBadRequest}, // not a websocket upgrade
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
