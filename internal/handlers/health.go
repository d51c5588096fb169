package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
)

// LiveCounter reports how many sessions hold a client
type LiveCounter interface {
	LiveCount() int
}

// Pinger is an optional dependency checked by the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	store   storage.Store
	live    LiveCounter
	events  Pinger // nil when events stay in-process
}

// NewHealthHandler creates a new health handler. events may be nil.
func NewHealthHandler(version string, store storage.Store, live LiveCounter, events Pinger) *HealthHandler {
	return &HealthHandler{
		Version: version,
		store:   store,
		live:    live,
		events:  events,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status, code := "OK", fiber.StatusOK
	storeStatus := "connected"
	if err := h.store.Ping(ctx); err != nil {
		status, code = "unhealthy", fiber.StatusServiceUnavailable
		storeStatus = "error: " + err.Error()
	}

	// a broken event sink degrades delivery but the API keeps working
	eventsStatus := "in-process"
	if h.events != nil {
		eventsStatus = "redis connected"
		if err := h.events.Ping(ctx); err != nil {
			eventsStatus = "redis error: " + err.Error()
			if code == fiber.StatusOK {
				status = "degraded"
			}
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"service":      "wamirror backend",
		"version":      h.Version,
		"store":        storeStatus,
		"events":       eventsStatus,
		"liveSessions": h.live.LiveCount(),
	})
}
