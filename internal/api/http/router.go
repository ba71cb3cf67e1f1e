package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/voicekit/support-bot/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Status *handlers.StatusHandler
	Token  string
}

// RegisterRoutes wires the read-only ops routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/healthz", cfg.Status.Health)

	api := app.Group("/api/v1", bearerAuth(cfg.Token))
	api.Get("/status", cfg.Status.Status)
	api.Get("/tickets", cfg.Status.Tickets)
}
