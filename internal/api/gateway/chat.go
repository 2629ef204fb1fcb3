// chat.go implements the chat endpoint.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/careline/careline/internal/chat"
	"github.com/gin-gonic/gin"
)

// TurnHandler runs one chat turn
type TurnHandler interface {
	Handle(ctx context.Context, token, query string) (chat.Reply, error)
}

// ChatHandlers handles the chat endpoint
type ChatHandlers struct {
	turns TurnHandler
}

// NewChatHandlers creates a new ChatHandlers instance
func NewChatHandlers(turns TurnHandler) *ChatHandlers {
	return &ChatHandlers{turns: turns}
}

// ChatRequest is the POST /api/chat body. The token may instead be sent as a
// bearer Authorization header.
type ChatRequest struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// @Summary      Chat
// @Description  Answers a health-related question. Off-topic questions receive a fixed refusal.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Param        body  body  ChatRequest  true  "Message and session token"
// @Success      200  {object}  map[string]interface{}  "response"
// @Failure      401  {object}  map[string]interface{}  "error: Invalid or expired session"
// @Failure      422  {object}  map[string]interface{}  "error, field"
// @Router       /api/chat [post]
// ChatHandler answers one message for an authenticated session
func (h *ChatHandlers) ChatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			// A message of the wrong type still leaves a decoded token in req.
			// Only the message is discarded, so the session is judged first and
			// a live token with a bad message answers 422.
			req.Message = ""
		}

		token := strings.TrimSpace(req.Token)
		if token == "" {
			token = bearerToken(c)
		}

		reply, err := h.turns.Handle(c.Request.Context(), token, req.Message)
		if err != nil {
			var validationErr *chat.ValidationError
			switch {
			case errors.Is(err, chat.ErrUnauthorized):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			case errors.As(err, &validationErr):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Message, "field": validationErr.Field})
			default:
				slog.Error("chat turn failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
			}
			return
		}

		slog.Debug("chat turn answered",
			"source", reply.Source,
			"reason", reply.Decision.Reason,
			"answer_len", len(reply.Answer),
		)
		c.JSON(http.StatusOK, gin.H{"response": reply.Answer})
	}
}
