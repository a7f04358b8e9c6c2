// Package poe serves the Poe server-bot protocol over HTTP.
package poe

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mkwng/poegate/agent"
	"github.com/mkwng/poegate/domain"
	"github.com/mkwng/poegate/store"
)

// Handler handles Poe protocol requests.
type Handler struct {
	sessions  *agent.Manager
	store     store.Store
	accessKey string
	log       zerolog.Logger
}

// NewHandler creates a new handler. An empty accessKey disables request
// authentication.
func NewHandler(sessions *agent.Manager, st store.Store, accessKey string, log zerolog.Logger) *Handler {
	return &Handler{
		sessions:  sessions,
		store:     st,
		accessKey: accessKey,
		log:       log,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Poe protocol endpoint
	e.POST("/", h.HandleRequest)

	// Inspection API
	e.GET("/v1/conversations/:conversation_id/messages", h.GetConversationMessages)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// HandleRequest dispatches a Poe protocol request by its type field.
// POST /
func (h *Handler) HandleRequest(c echo.Context) error {
	if h.accessKey != "" {
		if c.Request().Header.Get("Authorization") != "Bearer "+h.accessKey {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid access key"})
		}
	}

	var req domain.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	switch req.Type {
	case domain.RequestTypeQuery:
		return h.handleQuery(c, &req)
	case domain.RequestTypeSettings:
		return c.JSON(http.StatusOK, domain.SettingsResponse{})
	case domain.RequestTypeReportFeedback:
		h.log.Info().
			Str("conversation_id", req.ConversationID).
			Str("message_id", req.MessageID).
			Str("feedback_type", req.FeedbackType).
			Msg("feedback reported")
		return c.JSON(http.StatusOK, map[string]string{})
	case domain.RequestTypeReportError:
		h.log.Error().
			Str("conversation_id", req.ConversationID).
			Str("message", req.ErrorMessage).
			Msg("error reported by platform")
		return c.JSON(http.StatusOK, map[string]string{})
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown request type"})
	}
}

type runResult struct {
	text string
	err  error
}

// handleQuery runs one generation and streams the protocol events. The full
// answer goes out as a single text event once generation completes, followed
// by done.
func (h *Handler) handleQuery(c echo.Context, req *domain.Request) error {
	if len(req.Query) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query must contain at least one message"})
	}
	input := req.Query[len(req.Query)-1].Content

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	session := h.sessions.Session(req.ConversationID, req.UserID)

	// The generation runs off the handler goroutine; cancelling the request
	// context aborts it through the session.
	results := make(chan runResult, 1)
	go func() {
		text, err := session.Run(ctx, input, nil)
		results <- runResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		h.log.Info().Str("conversation_id", req.ConversationID).Msg("request cancelled by client")
		return nil
	case result := <-results:
		if result.err != nil {
			h.log.Error().Err(result.err).Str("conversation_id", req.ConversationID).Msg("generation failed")
			if err := writeEvent(c, domain.EventError, domain.ErrorEventData{
				Text:       "The bot failed to produce a response.",
				AllowRetry: true,
			}); err != nil {
				return err
			}
			return writeEvent(c, domain.EventDone, map[string]string{})
		}

		if err := writeEvent(c, domain.EventText, domain.TextEventData{Text: result.text}); err != nil {
			return err
		}
		return writeEvent(c, domain.EventDone, map[string]string{})
	}
}

// GetConversationMessages returns stored messages for a conversation.
// GET /v1/conversations/:conversation_id/messages
func (h *Handler) GetConversationMessages(c echo.Context) error {
	ctx := c.Request().Context()
	conversationID := c.Param("conversation_id")

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = 50
	}

	conversation, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to get conversation")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get conversation"})
	}
	if conversation == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
	}

	messages, err := h.store.GetMessages(ctx, conversationID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to get messages")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get messages"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}
