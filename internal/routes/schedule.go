package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/atlas-pay/atlas_pay/internal/schedule"
)

// RegisterScheduleRoutes wires the trigger the external scheduler calls.
func RegisterScheduleRoutes(r fiber.Router, h *schedule.Handler) {
	r.Post("/schedules/:scheduleId/execute", h.Execute)
}
