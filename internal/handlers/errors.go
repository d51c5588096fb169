package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/services"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
)

// Error codes returned in the "code" field of failure bodies
const (
	CodeValidation      = "validation_error"
	CodeSessionNotReady = "session_not_ready"
	CodeSyncInProgress  = "sync_in_progress"
	CodeNotFound        = "not_found"
	CodeStartTimeout    = "start_timeout"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal_error"
)

func fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return fail(c, fiber.StatusBadRequest, CodeValidation, message)
}

// respondError maps a service error onto its HTTP status and error code
func respondError(c *fiber.Ctx, log zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return fail(c, fiber.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, services.ErrSessionNotReady):
		return fail(c, fiber.StatusConflict, CodeSessionNotReady, "session is not connected")
	case errors.Is(err, services.ErrSyncInProgress):
		return fail(c, fiber.StatusConflict, CodeSyncInProgress, "a sync is already running for this session")
	case errors.Is(err, services.ErrSessionNotFound):
		return fail(c, fiber.StatusNotFound, CodeNotFound, "session not found")
	case errors.Is(err, storage.ErrNotFound):
		return fail(c, fiber.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, services.ErrStartTimeout):
		return fail(c, fiber.StatusGatewayTimeout, CodeStartTimeout, err.Error())
	case errors.Is(err, services.ErrManagerClosed):
		return fail(c, fiber.StatusServiceUnavailable, CodeUnavailable, err.Error())
	}

	log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
	return fail(c, fiber.StatusInternalServerError, CodeInternal, "internal server error")
}

// ErrorHandler is the fiber error handler; it keeps the failure body shape
// for errors raised outside the handlers (unknown routes, recovered panics).
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := CodeInternal
			switch fe.Code {
			case fiber.StatusNotFound:
				code = CodeNotFound
			case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
				code = CodeValidation
			}
			return fail(c, fe.Code, code, fe.Message)
		}
		return respondError(c, log, err)
	}
}
