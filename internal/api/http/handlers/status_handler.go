package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/voicekit/support-bot/internal/domain"
	"github.com/voicekit/support-bot/internal/support"
)

// StatusHandler serves the read-only ops view of the orchestrator.
type StatusHandler struct {
	serviceName string
	version     string
	sup         *support.Support
}

// NewStatusHandler returns a new handler instance.
func NewStatusHandler(serviceName, version string, sup *support.Support) *StatusHandler {
	return &StatusHandler{serviceName: serviceName, version: version, sup: sup}
}

// Health reports process liveness.
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Status reports queue and session counts.
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.sup.Stats())
}

// Tickets lists stored tickets filtered by ?state=open|closed|any.
func (h *StatusHandler) Tickets(c *fiber.Ctx) error {
	tickets, err := h.sup.TicketsByState(c.UserContext(), c.Query("state", "open"))
	if err != nil {
		return err
	}
	out := make([]domain.TicketRecord, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.Record())
	}
	return c.JSON(fiber.Map{"tickets": out})
}
