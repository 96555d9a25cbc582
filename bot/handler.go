// Package bot routes inbound Telegram updates to commands and free-text chat.
package bot

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talkerbot/talker/session"
	"github.com/talkerbot/talker/store"
	"github.com/talkerbot/talker/telegram"
)

// Sender delivers outbound replies. The production implementation is
// *telegram.Client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Handler handles webhook HTTP requests.
type Handler struct {
	store    store.Store
	sessions *session.Manager
	sender   Sender
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, sessions *session.Manager, sender Sender) *Handler {
	return &Handler{
		store:    st,
		sessions: sessions,
		sender:   sender,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook", h.Webhook)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Webhook processes one Telegram update. The HTTP response is always 200 so
// Telegram never retries; replies go out through the Bot API, not the webhook
// response body.
func (h *Handler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	var update telegram.Update
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid update"})
	}

	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return c.NoContent(http.StatusOK)
	}

	reply := h.dispatch(ctx, update.Message)
	if reply != "" {
		if err := h.sender.SendMessage(ctx, update.Message.Chat.ID, reply); err != nil {
			log.Printf("ERROR: failed to send reply to chat %d: %v", update.Message.Chat.ID, err)
		}
	}

	return c.NoContent(http.StatusOK)
}
