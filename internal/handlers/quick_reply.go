package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/services"
)

// QuickReplyHandler handles canned reply management
type QuickReplyHandler struct {
	replies *services.QuickReplyService
	log     zerolog.Logger
}

// NewQuickReplyHandler creates a new quick reply handler
func NewQuickReplyHandler(replies *services.QuickReplyService, logger zerolog.Logger) *QuickReplyHandler {
	return &QuickReplyHandler{replies: replies, log: logger}
}

func (h *QuickReplyHandler) List(c *fiber.Ctx) error {
	replies, err := h.replies.List(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"quickReplies": replies,
		"count":        len(replies),
	})
}

type createQuickReplyRequest struct {
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	OwnerID *string `json:"ownerId"`
}

func (h *QuickReplyHandler) Create(c *fiber.Ctx) error {
	var req createQuickReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	reply, err := h.replies.Create(c.UserContext(), req.Title, req.Body, req.OwnerID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"quickReply": reply,
		"parameters": services.Parameters(reply.Body),
	})
}

func (h *QuickReplyHandler) Delete(c *fiber.Ctx) error {
	if err := h.replies.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type renderQuickReplyRequest struct {
	Params map[string]string `json:"params"`
}

// Render fills a quick reply's placeholders
func (h *QuickReplyHandler) Render(c *fiber.Ctx) error {
	var req renderQuickReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	text, err := h.replies.Render(c.UserContext(), c.Params("id"), req.Params)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"text":    text,
	})
}
