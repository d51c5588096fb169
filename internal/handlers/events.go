package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/Ananth-NQI/wamirror-backend/internal/notifier"
)

const sseKeepAlive = 15 * time.Second

// EventsHandler streams notifier events as server-sent events
type EventsHandler struct {
	hub *notifier.Hub
	log zerolog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *notifier.Hub, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, log: logger}
}

// Stream holds the connection open and writes one SSE frame per event. The
// optional session query parameter filters to one session.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	session := c.Query("session")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe(session)
	log := h.log.With().Str("session", session).Logger()
	log.Debug().Msg("event stream opened")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ticker := time.NewTicker(sseKeepAlive)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					log.Error().Err(err).Str("event", string(ev.Type)).Msg("failed to encode event")
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
			}
			if err := w.Flush(); err != nil {
				log.Debug().Err(err).Msg("event stream closed by client")
				return
			}
		}
	}))
	return nil
}
