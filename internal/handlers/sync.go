package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/services"
)

// SyncHandler starts bulk history syncs
type SyncHandler struct {
	manager *services.SessionManager
	log     zerolog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(manager *services.SessionManager, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{manager: manager, log: logger}
}

type syncSelectedRequest struct {
	SessionName  string   `json:"sessionName"`
	ContactIDs   []string `json:"contactIds"`
	PerChatLimit int      `json:"perChatLimit"`
	DelayMs      int      `json:"delayMs"`
}

// Selected accepts a sync of the given chats and runs it in the background.
// Progress is reported through the event stream.
func (h *SyncHandler) Selected(c *fiber.Ctx) error {
	var req syncSelectedRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	switch {
	case req.SessionName == "":
		return badRequest(c, "sessionName is required")
	case len(req.ContactIDs) == 0:
		return badRequest(c, "contactIds must not be empty")
	case req.PerChatLimit < 0 || req.DelayMs < 0:
		return badRequest(c, "perChatLimit and delayMs must not be negative")
	}

	opts := services.SyncOptions{
		PerChatLimit:   req.PerChatLimit,
		InterChatDelay: time.Duration(req.DelayMs) * time.Millisecond,
	}
	if err := h.manager.History().SyncSelectedAsync(req.SessionName, req.ContactIDs, opts); err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"message": "sync started",
		"chats":   len(req.ContactIDs),
	})
}
