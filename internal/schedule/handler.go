package schedule

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/atlas-pay/atlas_pay/internal/ledger"
)

// Handler exposes the trigger the external scheduler calls at or after a
// schedule's due time.
type Handler struct {
	executor *Executor
}

// NewHandler builds a schedule HTTP handler.
func NewHandler(executor *Executor) *Handler {
	return &Handler{executor: executor}
}

// Execute runs a scheduled withdrawal. Safe under at-least-once delivery:
// repeat calls for a processed schedule are no-ops.
func (h *Handler) Execute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("scheduleId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid schedule id")
	}

	if err := h.executor.Execute(c.UserContext(), id); err != nil {
		if errors.Is(err, ledger.ErrScheduleNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"schedule_id": id.String(),
		"status":      "processed",
	})
}
