package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/handlers"
	"github.com/Ananth-NQI/wamirror-backend/internal/notifier"
	"github.com/Ananth-NQI/wamirror-backend/internal/services"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
)

// Version is reported by the root and health endpoints
const Version = "1.0.0"

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Store   storage.Store
	Manager *services.SessionManager
	Replies *services.QuickReplyService
	Hub     *notifier.Hub
	// EventSink is pinged by /health when events leave the process
	EventSink handlers.Pinger
	Logger    zerolog.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	log := deps.Logger.With().Str("component", "http").Logger()

	sessionHandler := handlers.NewSessionHandler(deps.Manager, deps.Store, log)
	messageHandler := handlers.NewMessageHandler(deps.Manager, log)
	syncHandler := handlers.NewSyncHandler(deps.Manager, log)
	contactHandler := handlers.NewContactHandler(deps.Store, log)
	quickReplyHandler := handlers.NewQuickReplyHandler(deps.Replies, log)
	eventsHandler := handlers.NewEventsHandler(deps.Hub, log)
	healthHandler := handlers.NewHealthHandler(Version, deps.Store, deps.Manager, deps.EventSink)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "wamirror backend",
			"version": Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"metrics": "/metrics",
				"api":     "/api",
				"events":  "/api/events",
			},
		})
	})

	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api")

	sessions := api.Group("/sessions")
	sessions.Post("/start", sessionHandler.Start)
	sessions.Get("/", sessionHandler.List)
	sessions.Get("/:name", sessionHandler.Get)
	sessions.Delete("/:name", sessionHandler.Delete)
	sessions.Get("/:name/chats", sessionHandler.Chats)
	sessions.Get("/:name/contacts", sessionHandler.Contacts)

	messages := api.Group("/messages")
	messages.Post("/send", messageHandler.Send)
	messages.Post("/history", messageHandler.History)

	api.Post("/sync/selected", syncHandler.Selected)

	api.Put("/contacts/:sessionId/:contactId", contactHandler.Update)

	quickReplies := api.Group("/quick-replies")
	quickReplies.Get("/", quickReplyHandler.List)
	quickReplies.Post("/", quickReplyHandler.Create)
	quickReplies.Delete("/:id", quickReplyHandler.Delete)
	quickReplies.Post("/:id/render", quickReplyHandler.Render)

	api.Get("/events", eventsHandler.Stream)
}
