package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/services"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
)

// SessionHandler handles session lifecycle requests
type SessionHandler struct {
	manager *services.SessionManager
	store   storage.Store
	log     zerolog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *services.SessionManager, store storage.Store, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		store:   store,
		log:     logger,
	}
}

type startSessionRequest struct {
	SessionName string  `json:"sessionName"`
	OwnerID     *string `json:"ownerId"`
}

// Start creates or resumes a session and returns its pairing state
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SessionName == "" {
		return badRequest(c, "sessionName is required")
	}

	res, err := h.manager.Start(c.UserContext(), req.SessionName, req.OwnerID)
	if err != nil {
		if errors.Is(err, services.ErrStartTimeout) && res != nil {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
				"success":   false,
				"error":     err.Error(),
				"code":      CodeStartTimeout,
				"sessionId": res.SessionID,
				"status":    res.Status,
			})
		}
		return respondError(c, h.log, err)
	}

	body := fiber.Map{
		"success":   true,
		"sessionId": res.SessionID,
		"status":    res.Status,
	}
	if res.Pairing != nil {
		body["pairing"] = *res.Pairing
	}
	return c.JSON(body)
}

// Delete removes a session and everything recorded for it
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	if err := h.manager.Delete(c.UserContext(), c.Params("name")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// List returns all sessions with their live flag
func (h *SessionHandler) List(c *fiber.Ctx) error {
	views, err := h.manager.ListSessions(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"sessions": views,
		"count":    len(views),
	})
}

// Get returns one session's status
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	view, err := h.manager.Status(c.UserContext(), c.Params("name"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"session": view,
	})
}

// Chats lists the one-to-one conversations of a live session
func (h *SessionHandler) Chats(c *fiber.Ctx) error {
	convs, err := h.manager.ListConversations(c.UserContext(), c.Params("name"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"chats":   convs,
		"count":   len(convs),
	})
}

// Contacts lists the stored contacts of a session
func (h *SessionHandler) Contacts(c *fiber.Ctx) error {
	sess, err := h.store.GetSession(c.UserContext(), c.Params("name"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return respondError(c, h.log, services.ErrSessionNotFound)
		}
		return respondError(c, h.log, err)
	}
	contacts, err := h.store.ListContacts(c.UserContext(), sess.ID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"contacts": contacts,
		"count":    len(contacts),
	})
}
