package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
)

// ContactHandler handles contact CRM edits
type ContactHandler struct {
	store storage.Store
	log   zerolog.Logger
}

// NewContactHandler creates a new contact handler
func NewContactHandler(store storage.Store, logger zerolog.Logger) *ContactHandler {
	return &ContactHandler{store: store, log: logger}
}

// Update replaces a contact's editable fields
func (h *ContactHandler) Update(c *fiber.Ctx) error {
	sessionID, err := c.ParamsInt("sessionId")
	if err != nil || sessionID <= 0 {
		return badRequest(c, "sessionId must be a positive integer")
	}
	contactID, err := c.ParamsInt("contactId")
	if err != nil || contactID <= 0 {
		return badRequest(c, "contactId must be a positive integer")
	}

	var req models.ContactUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}

	contact, err := h.store.UpdateContact(c.UserContext(), uint(sessionID), uint(contactID), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"contact": contact,
	})
}
