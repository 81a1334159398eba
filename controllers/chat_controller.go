package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatrelay/metrics"
	"chatrelay/models"
	"chatrelay/services"
)

// User-visible notices sent as "message" events.
const (
	NoSessionNotice          = "Chat session cookie not found"
	EmptyPromptNotice        = "Prompt is empty"
	HistoryUnavailableNotice = "Chat history is unavailable"
	WelcomeNotice            = "Welcome!"
)

// SessionCookie is the cookie the browser client keeps its session identity in.
const SessionCookie = "chatSession"

// ChatOptions tunes how prompts are turned into generator requests.
type ChatOptions struct {
	Window       int
	DefaultModel string
}

// ChatController maps inbound connection events to a durable session and
// dispatches chat requests to the Orchestrator.
type ChatController struct {
	history      *services.HistoryStore
	orchestrator *services.Orchestrator
	emitter      services.Emitter
	logger       zerolog.Logger
	opts         ChatOptions
}

func NewChatController(history *services.HistoryStore, orchestrator *services.Orchestrator, emitter services.Emitter, logger zerolog.Logger, opts ChatOptions) *ChatController {
	if opts.Window <= 0 {
		opts.Window = services.DefaultContextWindow
	}
	return &ChatController{
		history:      history,
		orchestrator: orchestrator,
		emitter:      emitter,
		logger:       logger,
		opts:         opts,
	}
}

// missingSession reports whether the client sent no usable session identity.
// Browsers serialize an absent cookie in several ways.
func missingSession(sessionID string) bool {
	switch strings.TrimSpace(sessionID) {
	case "", "null", "undefined", "None":
		return true
	}
	return false
}

// HandleChat records the prompt, builds the context window and streams the reply.
func (h *ChatController) HandleChat(ctx context.Context, connID string, req models.ChatRequest) {
	log := h.logger.With().Str("conn", connID).Str("session", req.ChatSession).Logger()

	if missingSession(req.ChatSession) {
		h.notice(connID, NoSessionNotice, "no_session")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.notice(connID, EmptyPromptNotice, "empty_prompt")
		return
	}

	log.Info().Int("chars", len(req.Text)).Msg("received prompt")

	err := h.history.Append(ctx, req.ChatSession, models.Turn{
		Role:    models.RoleUser,
		Content: req.Text,
		HTML:    req.HTML,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to save user turn")
		h.notice(connID, HistoryUnavailableNotice, "store_unavailable")
		return
	}

	window, err := h.history.Get(ctx, req.ChatSession, h.opts.Window)
	if err != nil {
		log.Error().Err(err).Msg("failed to load context window")
		h.notice(connID, HistoryUnavailableNotice, "store_unavailable")
		return
	}

	model := req.Model
	if model == "" {
		model = h.opts.DefaultModel
	}

	// Failures are logged and reported to the client by the orchestrator.
	_, _ = h.orchestrator.Run(ctx, services.StreamRequest{
		ConnectionID: connID,
		SessionID:    req.ChatSession,
		Model:        model,
		Context:      services.BuildContext(window, req.Text),
	})
}

// HandleHistory sends the full stored conversation as one event.
func (h *ChatController) HandleHistory(ctx context.Context, connID string, req models.HistoryRequest) {
	if missingSession(req.ChatSession) {
		h.notice(connID, NoSessionNotice, "no_session")
		return
	}

	turns, err := h.history.Get(ctx, req.ChatSession, 0)
	if err != nil {
		h.logger.Error().Err(err).Str("conn", connID).Str("session", req.ChatSession).Msg("failed to load history")
		h.notice(connID, HistoryUnavailableNotice, "store_unavailable")
		return
	}

	if err := h.emitter.Emit(connID, models.EventHistory, models.HistoryPayload{History: turns}); err != nil {
		metrics.DeliveryFailures.Inc()
		h.logger.Debug().Err(err).Str("conn", connID).Msg("history delivery failed")
	}
}

func (h *ChatController) HandleConnect(_ context.Context, connID string) {
	h.logger.Info().Str("conn", connID).Msg("client connected")
	_ = h.emitter.Emit(connID, models.EventMessage, models.MessagePayload{Message: WelcomeNotice})
}

func (h *ChatController) HandleDisconnect(_ context.Context, connID string) {
	h.logger.Info().Str("conn", connID).Msg("client disconnected")
}

func (h *ChatController) notice(connID, message, reason string) {
	metrics.SessionNotices.WithLabelValues(reason).Inc()
	if err := h.emitter.Emit(connID, models.EventMessage, models.MessagePayload{Message: message}); err != nil {
		metrics.DeliveryFailures.Inc()
	}
}

// GetConversations returns the full history of the session named by the
// chatSession query parameter or cookie.
func (h *ChatController) GetConversations(c *gin.Context) {
	sessionID := c.Query(SessionCookie)
	if sessionID == "" {
		sessionID, _ = c.Cookie(SessionCookie)
	}
	if missingSession(sessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": NoSessionNotice})
		return
	}

	turns, err := h.history.Get(c.Request.Context(), sessionID, 0)
	if err != nil {
		h.logger.Error().Err(err).Str("session", sessionID).Msg("failed to fetch conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}

	c.JSON(http.StatusOK, models.HistoryPayload{History: turns})
}
