package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/services"
)

// MessageHandler handles sending and history requests
type MessageHandler struct {
	manager *services.SessionManager
	log     zerolog.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(manager *services.SessionManager, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{manager: manager, log: logger}
}

type sendMessageRequest struct {
	SessionName  string `json:"sessionName"`
	TargetNumber string `json:"targetNumber"`
	Text         string `json:"text"`
}

// Send delivers a text message through a connected session
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	switch {
	case req.SessionName == "":
		return badRequest(c, "sessionName is required")
	case req.TargetNumber == "":
		return badRequest(c, "targetNumber is required")
	case req.Text == "":
		return badRequest(c, "text is required")
	}

	msg, err := h.manager.SendMessage(c.UserContext(), req.SessionName, req.TargetNumber, req.Text)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": msg,
	})
}

type historyRequest struct {
	SessionName string `json:"sessionName"`
	ContactID   string `json:"contactId"`
	Limit       int    `json:"limit"`
	BeforeID    string `json:"beforeId"`
}

// History returns a page of one conversation, oldest first
func (h *MessageHandler) History(c *fiber.Ctx) error {
	var req historyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	switch {
	case req.SessionName == "":
		return badRequest(c, "sessionName is required")
	case req.ContactID == "":
		return badRequest(c, "contactId is required")
	case req.Limit < 0:
		return badRequest(c, "limit must not be negative")
	}

	msgs, err := h.manager.History().LoadHistory(c.UserContext(), req.SessionName, req.ContactID, req.Limit, req.BeforeID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"messages": msgs,
		"count":    len(msgs),
	})
}
